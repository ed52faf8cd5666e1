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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"reql.io/reql/go/reql"
	"reql.io/reql/go/reqltypes"
)

// Run sends one query term and prints every result batch.
var Run = &cobra.Command{
	Use:                   "run <term-json>",
	Short:                 "Runs a pre-serialized ReQL term and prints the results as JSON.",
	DisableFlagsInUseLine: true,
	Args:                  cobra.ExactArgs(1),
	RunE:                  commandRun,
}

func init() {
	Root.AddCommand(Run)
}

func commandRun(cmd *cobra.Command, args []string) error {
	term := json.RawMessage(args[0])
	if !json.Valid(term) {
		return fmt.Errorf("term is not valid JSON: %q", args[0])
	}
	payload, err := json.Marshal([]any{reql.QueryStart, term, map[string]any{}})
	if err != nil {
		return err
	}

	return withConn(func(ctx context.Context, conn *reql.Conn) error {
		resp, err := conn.RunQuery(ctx, payload)
		if err != nil {
			return err
		}

		switch resp.Kind {
		case reql.KindValue:
			return printJSON(resp.Value)
		case reql.KindRows:
			cursor, err := reql.NewCursor(conn, resp)
			if err != nil {
				return err
			}
			defer cursor.Close()
			batch := cursor.Batch()
			for {
				for _, doc := range batch {
					if err := printJSON(doc); err != nil {
						return err
					}
				}
				if !cursor.More() {
					return nil
				}
				if batch, err = cursor.Next(ctx); err != nil {
					return err
				}
			}
		}
		return fmt.Errorf("unexpected %v response", resp.Kind)
	})
}

func printJSON(v reqltypes.Value) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
