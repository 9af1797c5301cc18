package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"webpconv/job"
	"webpconv/utils"
)

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Create signing secrets and signed batch manifests",
	}

	var size int
	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random hex secret for signing manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := utils.GenerateSecret(size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret)
			return nil
		},
	}
	keygen.Flags().IntVar(&size, "bytes", 32, "Random bytes in the secret")
	manifestCmd.AddCommand(keygen)

	var secret, issuer string
	var ttl time.Duration
	sign := &cobra.Command{
		Use:   "sign <manifest.json>",
		Short: "Validate a JSON manifest and print it as a signed token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("WEBPCONV_MANIFEST_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("sign needs --secret or WEBPCONV_MANIFEST_SECRET")
			}
			m, err := job.ReadManifest(args[0])
			if err != nil {
				return err
			}
			now := time.Now()
			m.Issuer = issuer
			m.IssuedAt = now.Unix()
			m.ExpiresAt = 0
			if ttl > 0 {
				m.ExpiresAt = now.Add(ttl).Unix()
			}
			token, err := utils.SignManifest(m, []byte(secret))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	sign.Flags().StringVar(&secret, "secret", "", "HS256 secret (default $WEBPCONV_MANIFEST_SECRET)")
	sign.Flags().StringVar(&issuer, "issuer", "", "Issuer claim")
	sign.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime; 0 never expires")
	manifestCmd.AddCommand(sign)

	return manifestCmd
}
