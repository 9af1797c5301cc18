package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"webpconv/config"
	"webpconv/credentials"
	"webpconv/decoder"
	"webpconv/job"
	"webpconv/logger"
	"webpconv/models"
	"webpconv/utils"
	"webpconv/workspace"
	writerbackends "webpconv/writerBackends"
)

type convertFlags struct {
	output      string
	quality     int
	transparent string
	manifest    string
	token       string
	secret      string
	issuer      string
	publish     string
	noHistory   bool
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "convert [input.webp...]",
		Short: "Convert WebP files to PNG (still) or GIF (animated)",
		Long: `Convert one or more WebP files. Without -o the output goes next to the
input, as .gif for animations and .png otherwise. A batch can also come from
a JSON manifest (--manifest) or a signed manifest token (--token).

All jobs are validated before the first one runs; the first failure stops
the batch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			manifest, err := buildManifest(flags, args)
			if err != nil {
				return err
			}

			opts := job.OptionsFromConfig(*cfg)
			if cmd.Flags().Changed("quality") {
				opts.Defaults.Quality = models.IntPtr(flags.quality)
			}
			if cmd.Flags().Changed("transparent") {
				opts.Defaults.Transparent = models.StringPtr(flags.transparent)
			}

			lock, err := workspace.LockRoot(cfg.TempRoot)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			if !flags.noHistory {
				closeHistory, err := openHistory(cfg)
				if err != nil {
					return err
				}
				defer closeHistory()
				opts.History = job.StoreHistory{}
			}

			if flags.publish != "" {
				target, err := loadPublishTarget(cfg, flags.publish)
				if err != nil {
					return err
				}
				opts.Publish = target
			}

			conv, err := job.NewConverter(decoder.FromConfig(cfg.Decoder), opts)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			outputs, err := conv.ConvertManifest(runCtx, manifest)
			if err != nil {
				return err
			}
			for _, out := range outputs {
				fmt.Fprintln(cmd.OutOrStdout(), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output path (.gif or .png); only with a single input")
	cmd.Flags().IntVar(&flags.quality, "quality", models.DefaultQuality, "Palette sampling stride 0-100, lower is better")
	cmd.Flags().StringVar(&flags.transparent, "transparent", models.DefaultTransparent, "Transparent color as 0xRRGGBB or 0xRRGGBBAA")
	cmd.Flags().StringVar(&flags.manifest, "manifest", "", "JSON batch manifest")
	cmd.Flags().StringVar(&flags.token, "token", "", "Signed batch manifest token")
	cmd.Flags().StringVar(&flags.secret, "secret", "", "HS256 secret for --token (default $WEBPCONV_MANIFEST_SECRET)")
	cmd.Flags().StringVar(&flags.issuer, "issuer", "", "Required issuer of --token")
	cmd.Flags().StringVar(&flags.publish, "publish", "", "Publish outputs to <backend>:<credentials key>")
	cmd.Flags().BoolVar(&flags.noHistory, "no-history", false, "Do not record results in the history stores")

	return cmd
}

// buildManifest turns the positional inputs, --manifest or --token into one
// batch document.
func buildManifest(flags convertFlags, args []string) (*models.Manifest, error) {
	sources := 0
	for _, set := range []bool{len(args) > 0, flags.manifest != "", flags.token != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, &models.ValidationError{Index: -1, Reason: "give input files, --manifest or --token (exactly one)"}
	}

	switch {
	case flags.manifest != "":
		return job.ReadManifest(flags.manifest)
	case flags.token != "":
		secret := flags.secret
		if secret == "" {
			secret = os.Getenv("WEBPCONV_MANIFEST_SECRET")
		}
		if secret == "" {
			return nil, fmt.Errorf("--token needs --secret or WEBPCONV_MANIFEST_SECRET")
		}
		return job.ParseToken(flags.token, utils.VerifyConfig{
			SecretKey:      []byte(secret),
			ExpectedIssuer: flags.issuer,
			ClockSkew:      time.Minute,
		})
	}

	if flags.output != "" && len(args) > 1 {
		return nil, &models.ValidationError{Index: -1, Reason: "-o can only be used with a single input"}
	}
	m := &models.Manifest{Jobs: make([]models.ConversionJob, 0, len(args))}
	for _, in := range args {
		m.Jobs = append(m.Jobs, models.ConversionJob{Input: in, Output: flags.output})
	}
	return m, nil
}

func loadPublishTarget(cfg *config.Config, target string) (*models.PublishJob, error) {
	backend, key, ok := strings.Cut(target, ":")
	if !ok || backend == "" || key == "" {
		return nil, fmt.Errorf("--publish expects <backend>:<credentials key>, got %q", target)
	}
	if !writerbackends.IsBackend(backend) {
		return nil, fmt.Errorf("unknown publish backend %q (want one of %s)", backend, strings.Join(writerbackends.Backends, ", "))
	}

	closeCreds, err := openCredentials(cfg)
	if err != nil {
		return nil, err
	}
	defer closeCreds()
	creds, err := credentials.GetCredentials(key)
	if err != nil {
		return nil, err
	}
	logger.Debugf("publishing to %s with credentials %q", backend, key)
	return &models.PublishJob{Type: backend, Credentials: creds}, nil
}
