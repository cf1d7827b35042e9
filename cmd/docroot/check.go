package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/docroot/internal/config"
	"github.com/vango-dev/docroot/pkg/cgi"
	"github.com/vango-dev/docroot/pkg/handler"
	"github.com/vango-dev/docroot/pkg/mediatype"
	"github.com/vango-dev/docroot/pkg/request"
	"github.com/vango-dev/docroot/pkg/static"
)

func checkCmd() *cobra.Command {
	var showTypes bool

	cmd := &cobra.Command{
		Use:   "check [path...]",
		Short: "Validate the configuration and explain how paths are served",
		Long: `Validate docroot.json, confirm the document root and interpreter
exist, and report how each given request path would be answered.

Examples:
  docroot check
  docroot check index.html app/index.php ../etc/passwd
  docroot check --types`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if showTypes {
				printMediaTypes()
				return nil
			}
			return runCheck(cfg, args)
		},
	}

	cmd.Flags().BoolVarP(&showTypes, "types", "t", false, "Print the media type table")

	return cmd
}

func runCheck(cfg *config.Config, paths []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Path() != "" {
		success("Config %s is valid", cfg.Path())
	} else {
		info("No docroot.json found, using defaults")
	}

	root := cfg.RootPath()
	if static.DirExists(root) {
		success("Document root %s", root)
	} else {
		errorMsg("Document root %s does not exist", root)
	}

	var interp *cgi.Interpreter
	if cfg.HasInterpreter() {
		interp = cgi.NewInterpreter(cfg.Interpreter.Binary, cfg.InterpreterDir())
		if interp.Available() {
			success("Interpreter %s", interp.Path())
		} else {
			warn("Interpreter %s not found, delegation disabled", interp.Path())
			interp = nil
		}
	}

	defaults := handler.New(handler.Config{
		Root:             root,
		TriggerExtension: cfg.Handler.TriggerExtension,
		IndexScript:      cfg.Handler.IndexScript,
		IndexFiles:       cfg.Handler.IndexFiles,
	}).Config()

	for _, p := range paths {
		info("%-30s %s", "/"+p, explain(defaults, interp, p))
	}
	return nil
}

// explain describes the response a GET for path would get. It follows the
// same decisions as the handler without touching the network.
func explain(cfg handler.Config, interp *cgi.Interpreter, path string) string {
	line, err := request.ParseLine([]byte("GET /" + path + " HTTP/1.1"))
	if err != nil {
		return "not found (" + err.Error() + ")"
	}
	if line.IsRoot() {
		if interp.Configured() && static.FileExists(static.Join(cfg.Root, cfg.IndexScript)) {
			return "delegate " + cfg.IndexScript
		}
		for _, name := range cfg.IndexFiles {
			if static.FileExists(static.Join(cfg.Root, name)) {
				return "stream " + name
			}
		}
		return "close without response (no index)"
	}

	rel := line.Path
	if ext, ok := mediatype.Extension(rel); ok && ext == cfg.TriggerExtension {
		if interp.Configured() && static.IsSafe(cfg.Root, rel) && static.FileExists(static.Join(cfg.Root, rel)) {
			return "delegate to " + interp.Binary
		}
		return "not found (delegation unavailable)"
	}
	if !static.IsSafe(cfg.Root, rel) {
		return "not found"
	}
	if !static.FileExists(static.Join(cfg.Root, rel)) {
		return "close without response (not a regular file)"
	}
	return fmt.Sprintf("stream as %s", mediatype.Resolve(rel).ContentType)
}

func printMediaTypes() {
	fmt.Fprintf(os.Stdout, "  %-10s %-28s %s\n", "EXT", "CONTENT-TYPE", "BINARY")
	for _, e := range mediatype.Table() {
		fmt.Fprintf(os.Stdout, "  %-10s %-28s %t\n", e.Extension, e.ContentType, e.Binary)
	}
	fmt.Fprintf(os.Stdout, "  %-10s %-28s %t\n", "(other)", mediatype.Default.ContentType, mediatype.Default.Binary)
}
