package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/docroot/internal/config"
	"github.com/vango-dev/docroot/internal/errors"
	"github.com/vango-dev/docroot/internal/metrics"
	"github.com/vango-dev/docroot/pkg/admin"
	"github.com/vango-dev/docroot/pkg/cgi"
	"github.com/vango-dev/docroot/pkg/handler"
	"github.com/vango-dev/docroot/pkg/pool"
	"github.com/vango-dev/docroot/pkg/server"
	"github.com/vango-dev/docroot/pkg/static"
)

type serveOptions struct {
	root           string
	port           int
	bind           string
	workers        int
	silent         bool
	interpreter    string
	interpreterDir string
	adminAddr      string
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document root",
		Long: `Serve files from the document root until interrupted.

Flags override docroot.json. With fewer than two workers every
connection is served on the accepting loop.

Examples:
  docroot serve --root ./www
  docroot serve --port 8080 --workers 8
  docroot serve --interpreter php-cgi --interpreter-dir /usr/bin
  docroot serve --admin-addr 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&opts.root, "root", "r", "", "Document root (default from docroot.json)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (default from docroot.json)")
	cmd.Flags().StringVar(&opts.bind, "bind", "", "Address to bind (default: all interfaces)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Worker slots; fewer than 2 serves synchronously")
	cmd.Flags().BoolVarP(&opts.silent, "silent", "s", false, "Suppress per-connection logging")
	cmd.Flags().StringVar(&opts.interpreter, "interpreter", "", "Interpreter binary name (e.g. php-cgi)")
	cmd.Flags().StringVar(&opts.interpreterDir, "interpreter-dir", "", "Directory holding the interpreter binary")
	cmd.Flags().StringVar(&opts.adminAddr, "admin-addr", "", "Admin listener address (health, slots, metrics)")

	return cmd
}

// applyServeFlags copies every flag the user set over cfg.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root = opts.root
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("bind") {
		cfg.BindAddress = opts.bind
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}
	if flags.Changed("silent") {
		cfg.Silent = opts.silent
	}
	if flags.Changed("interpreter") {
		cfg.Interpreter.Binary = opts.interpreter
	}
	if flags.Changed("interpreter-dir") {
		cfg.Interpreter.Dir = opts.interpreterDir
	}
	if flags.Changed("admin-addr") {
		cfg.Admin.Address = opts.adminAddr
	}
	applyLogFlags(cfg)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}

	root := cfg.RootPath()
	if !static.DirExists(root) {
		return errors.New("E102").
			WithDetail(fmt.Sprintf("%s is not a directory", root)).
			WithSuggestion("Create it, pass --root, or run 'docroot sync' to fill it from a bucket")
	}

	interp := startInterpreter(cfg)
	readTimeout, _ := cfg.ReadTimeout()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.WithRegistry(reg))

	h := handler.New(handler.Config{
		Root:             root,
		TriggerExtension: cfg.Handler.TriggerExtension,
		IndexScript:      cfg.Handler.IndexScript,
		IndexFiles:       cfg.Handler.IndexFiles,
		ChunkSize:        cfg.Handler.ChunkSize,
		MaxLineBytes:     cfg.Handler.MaxLineBytes,
		ReadTimeout:      readTimeout,
		Silent:           cfg.Silent,
	}, handler.WithMetrics(m))

	serverOpts := []server.Option{
		server.WithMetrics(m),
		server.WithInterpreter(interp),
	}

	var feed *admin.SlotFeed
	if cfg.Admin.Address != "" {
		feed = admin.NewSlotFeed(nil)
		serverOpts = append(serverOpts, server.WithPoolOptions(pool.WithStatusHook(feed.Notify)))
	}

	srv := server.New(&server.ServerConfig{
		Port:        cfg.Port,
		BindAddress: cfg.BindAddress,
		Workers:     cfg.Workers,
		Silent:      cfg.Silent,
	}, h, serverOpts...)

	if err := srv.Listen(); err != nil {
		return err
	}

	success("Serving %s on %s", root, srv.Addr())
	if srv.Pool() != nil {
		info("Workers:     %d", srv.Pool().Size())
	} else {
		info("Workers:     none (synchronous)")
	}
	if interp.Configured() {
		info("Interpreter: %s", interp.Path())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if feed != nil {
		feed.SetSource(srv.Pool())
		adm := admin.New(cfg.Admin.Address,
			admin.WithSlots(srv.Pool()),
			admin.WithFeed(feed),
			admin.WithGatherer(reg),
		)
		info("Admin:       http://%s", cfg.Admin.Address)
		go func() {
			if err := adm.Start(ctx); err != nil {
				logger.Error("admin server failed", "error", err)
			}
		}()
	}

	return srv.Run(ctx)
}

// startInterpreter resolves the configured interpreter. A missing binary
// disables delegation with a warning instead of failing startup.
func startInterpreter(cfg *config.Config) *cgi.Interpreter {
	if !cfg.HasInterpreter() {
		return nil
	}

	interp := cgi.NewInterpreter(cfg.Interpreter.Binary, cfg.InterpreterDir())
	if !interp.Available() {
		warn("%s", errors.New("E140").WithDetail(interp.Path()+" does not exist").FormatCompact())
		return nil
	}
	return interp
}
