package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/docroot/internal/config"
	"github.com/vango-dev/docroot/internal/mirror"
)

type syncOptions struct {
	root      string
	bucket    string
	prefix    string
	region    string
	endpoint  string
	pathStyle bool
	dryRun    bool
}

func syncCmd() *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy a bucket prefix into the document root",
		Long: `Download every object under an S3 prefix into the document root.

Keys with hidden segments (a leading dot), empty segments, spaces or
control characters are skipped because the server would refuse to
serve them. Credentials come from AWS_ACCESS_KEY_ID and
AWS_SECRET_ACCESS_KEY; without them requests are anonymous.

Examples:
  docroot sync --bucket my-site --prefix public/
  docroot sync --bucket site --endpoint http://127.0.0.1:9000 --path-style
  docroot sync --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applySyncFlags(cmd, cfg, opts)
			return runSync(cmd.Context(), cfg, opts.dryRun)
		},
	}

	cmd.Flags().StringVarP(&opts.root, "root", "r", "", "Document root to write into (default from docroot.json)")
	cmd.Flags().StringVarP(&opts.bucket, "bucket", "b", "", "Source bucket")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Key prefix mapped to the document root")
	cmd.Flags().StringVar(&opts.region, "region", "", "Bucket region (default: us-east-1)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Custom S3 endpoint URL")
	cmd.Flags().BoolVar(&opts.pathStyle, "path-style", false, "Use path-style bucket addressing")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "List what would be written without downloading")

	return cmd
}

func applySyncFlags(cmd *cobra.Command, cfg *config.Config, opts syncOptions) {
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = opts.root
	}
	if flags.Changed("bucket") {
		cfg.Mirror.Bucket = opts.bucket
	}
	if flags.Changed("prefix") {
		cfg.Mirror.Prefix = opts.prefix
	}
	if flags.Changed("region") {
		cfg.Mirror.Region = opts.region
	}
	if flags.Changed("endpoint") {
		cfg.Mirror.Endpoint = opts.endpoint
	}
	if flags.Changed("path-style") {
		cfg.Mirror.PathStyle = opts.pathStyle
	}
	applyLogFlags(cfg)
}

func runSync(ctx context.Context, cfg *config.Config, dryRun bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	mcfg := mirror.Config{
		Bucket:    cfg.Mirror.Bucket,
		Prefix:    cfg.Mirror.Prefix,
		Region:    cfg.Mirror.Region,
		Endpoint:  cfg.Mirror.Endpoint,
		PathStyle: cfg.Mirror.PathStyle,
	}
	root := cfg.RootPath()

	m := mirror.New(mirror.NewClient(mcfg), mcfg, root,
		mirror.WithDryRun(dryRun),
		mirror.WithLogger(logger.With("component", "mirror")),
	)

	res, err := m.Sync(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		for _, rel := range res.Written {
			info("%s", rel)
		}
		success("%d objects (%d bytes) would be written to %s", len(res.Written), res.Bytes, root)
	} else {
		success("Wrote %d objects (%d bytes) to %s", len(res.Written), res.Bytes, root)
	}
	if len(res.Skipped) > 0 {
		warn("Skipped %d keys", len(res.Skipped))
	}
	return nil
}
