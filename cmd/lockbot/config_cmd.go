package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the persisted bot configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the saved configuration with credentials redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openConfigStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			cfg, ok, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no saved configuration")
				return nil
			}
			if len(cfg.Cookies) > 0 {
				cfg.Cookies = json.RawMessage(`"[redacted]"`)
			}
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})
	return cmd
}
