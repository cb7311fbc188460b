package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

// Set through -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func versionString() string {
	parts := []string{}
	if c := strings.TrimSpace(commit); c != "" && c != "none" {
		parts = append(parts, c)
	}
	if d := strings.TrimSpace(date); d != "" && d != "unknown" {
		parts = append(parts, d)
	}
	out := "lockbot " + strings.TrimSpace(version)
	if len(parts) > 0 {
		out += " (" + strings.Join(parts, ", ") + ")"
	}
	return out
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, args []string) error {
			short, _ := cmd.Flags().GetBool("short")
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(version))
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s %s\n", versionString(), runtime.GOOS, runtime.GOARCH, runtime.Version())
			return nil
		},
	}
	cmd.Flags().Bool("short", false, "Print only the version number.")
	return cmd
}
