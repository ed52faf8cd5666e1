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

package command

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"reql.io/reql/go/reql"
)

var (
	// ServerInfo asks the server to describe itself.
	ServerInfo = &cobra.Command{
		Use:                   "server-info",
		Short:                 "Prints the server's description of itself.",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		RunE:                  commandServerInfo,
	}

	// NoreplyWait blocks until all previous noreply writes settled.
	NoreplyWait = &cobra.Command{
		Use:                   "noreply-wait",
		Short:                 "Waits until the server has applied all noreply writes on this connection.",
		DisableFlagsInUseLine: true,
		Args:                  cobra.NoArgs,
		RunE:                  commandNoreplyWait,
	}
)

func init() {
	Root.AddCommand(ServerInfo)
	Root.AddCommand(NoreplyWait)
}

func commandServerInfo(cmd *cobra.Command, args []string) error {
	return withConn(func(ctx context.Context, conn *reql.Conn) error {
		resp, err := await(ctx, conn.ServerInfo)
		if err != nil {
			return err
		}
		return printJSON(resp.Value)
	})
}

func commandNoreplyWait(cmd *cobra.Command, args []string) error {
	return withConn(func(ctx context.Context, conn *reql.Conn) error {
		if _, err := await(ctx, conn.NoreplyWait); err != nil {
			return err
		}
		fmt.Println("done")
		return nil
	})
}

// await adapts a waiter-style call into a blocking one.
func await(ctx context.Context, start func(reql.Waiter) (uint64, error)) (*reql.Response, error) {
	ch := make(chan *reql.Response, 1)
	if _, err := start(func(r *reql.Response) { ch <- r }); err != nil {
		return nil, err
	}
	select {
	case resp := <-ch:
		if resp.Kind == reql.KindError {
			return nil, resp.Err
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
