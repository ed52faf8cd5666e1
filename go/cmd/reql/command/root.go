/*
Copyright 2026 The ReQL Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package command contains the subcommands of the reql command-line
// client.
package command

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"reql.io/reql/go/log"
	"reql.io/reql/go/reql"
)

var (
	server        string
	username      string
	password      string
	legacyAuth    bool
	actionTimeout time.Duration

	// Root is the main entry point of the reql CLI.
	Root = &cobra.Command{
		Use:   "reql",
		Short: "Minimal command-line client for RethinkDB-compatible servers.",
		Long: "Minimal command-line client for RethinkDB-compatible servers.\n\n" +
			"Terms are passed as pre-serialized JSON; the client wraps them into\n" +
			"query frames, drives the wire protocol, and prints the decoded results.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return log.Init(cmd.Flags())
		},
		SilenceErrors: true,
	}
)

func init() {
	Root.PersistentFlags().StringVar(&server, "server", "rethinkdb://localhost:28015", "connection URL, rethinkdb://[user[:password]@]host[:port]")
	Root.PersistentFlags().StringVar(&username, "user", "", "username, overrides the URL (default admin)")
	Root.PersistentFlags().StringVar(&password, "password", "", "password, overrides the URL")
	Root.PersistentFlags().BoolVar(&legacyAuth, "legacy-auth", false, "use the V0_4 auth-key handshake instead of SCRAM")
	Root.PersistentFlags().DurationVar(&actionTimeout, "action-timeout", 30*time.Second, "timeout for the whole command")

	log.RegisterFlags(Root.PersistentFlags())
}

// connect builds ConnParams from the URL and flag overrides and dials.
func connect(ctx context.Context) (*reql.Conn, error) {
	params, err := reql.ParseURL(server)
	if err != nil {
		return nil, err
	}
	if username != "" {
		params.Username = username
	}
	if password != "" {
		params.Password = password
	}
	if legacyAuth {
		params.Protocol = reql.ProtocolV0_4
	}
	return reql.Connect(ctx, params)
}

// withConn runs fn against a fresh connection under the action timeout.
func withConn(fn func(ctx context.Context, conn *reql.Conn) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(ctx, conn)
}
