package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"inspirestack/internal/servicetoken"
	"inspirestack/pkg/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		opts       seedOptions
		dbURL      string
		privateKey string
		keyID      string
		issuer     string
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "seed-categories",
		Short: "Upsert the category set and refresh the content service",
		Long: `Reads categories from a YAML file, upserts them by slug and, when
--content-url is given, asks the content service to reload its category set.

Examples:
  seed-categories --file categories.yaml --dry-run
  seed-categories --file categories.yaml --db $DATABASE_URL \
    --content-url http://content:8081 --private-key /secrets/internal.pem`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var writer categoryWriter
			if !opts.dryRun {
				if dbURL == "" {
					return errors.New("--db or DATABASE_URL is required")
				}
				gormStore, err := store.NewGormStore(dbURL, store.WithMaxOpenConns(2))
				if err != nil {
					return fmt.Errorf("init postgres store: %w", err)
				}
				writer = gormStore
			}
			var signer *servicetoken.Signer
			if privateKey != "" {
				var err error
				signer, err = servicetoken.NewSignerWithOptions(servicetoken.SignerOptions{
					PrivateKeyPath: privateKey,
					KeyID:          keyID,
					Issuer:         issuer,
				})
				if err != nil {
					return err
				}
			}
			client := &http.Client{Timeout: 10 * time.Second}
			return run(ctx, opts, writer, client, signer, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "YAML file listing the categories")
	flags.StringVar(&dbURL, "db", os.Getenv("DATABASE_URL"), "Postgres connection URL")
	flags.StringVar(&opts.contentURL, "content-url", os.Getenv("CONTENT_URL"), "Base URL of the content service to refresh")
	flags.StringVar(&privateKey, "private-key", os.Getenv("INTERNAL_JWT_PRIVATE_KEY_PATH"), "RSA key used to sign the refresh call")
	flags.StringVar(&keyID, "key-id", servicetoken.DefaultKeyID, "Key id placed in the service token header")
	flags.StringVar(&issuer, "issuer", "seed-categories", "Issuer of the service token")
	flags.DurationVar(&timeout, "timeout", 30*time.Second, "Overall deadline")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the parsed categories without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
