package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"webpconv/credentials"
)

func newCredsCommand(ctx *commandContext) *cobra.Command {
	credsCmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage named publish credentials",
	}

	credsCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <name=value>...",
		Short: "Store credentials under key, replacing any previous value",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string, len(args)-1)
			for _, pair := range args[1:] {
				name, value, ok := strings.Cut(pair, "=")
				if !ok || name == "" {
					return fmt.Errorf("expected name=value, got %q", pair)
				}
				values[name] = value
			}
			return withCredentials(ctx, func() error {
				if err := credentials.StoreCredentials(args[0], values); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %d value(s) under %s\n", len(values), args[0])
				return nil
			})
		},
	})

	credsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List credential keys and the names they hold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(ctx, func() error {
				keys, err := credentials.ListKeys()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(keys) == 0 {
					fmt.Fprintln(out, "No credentials stored")
					return nil
				}
				rows := make([][]string, 0, len(keys))
				for _, key := range keys {
					creds, err := credentials.GetCredentials(key)
					if err != nil {
						return err
					}
					names := make([]string, 0, len(creds))
					for name := range creds {
						names = append(names, name)
					}
					sort.Strings(names)
					rows = append(rows, []string{key, strings.Join(names, ", ")})
				}
				fmt.Fprintln(out, renderTable([]string{"Key", "Names"}, rows, nil))
				return nil
			})
		},
	})

	credsCmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Delete stored credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCredentials(ctx, func() error {
				if err := credentials.DeleteCredentials(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	})

	return credsCmd
}

func withCredentials(ctx *commandContext, fn func() error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	closeCreds, err := openCredentials(cfg)
	if err != nil {
		return err
	}
	defer closeCreds()
	return fn()
}
