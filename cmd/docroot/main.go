package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/docroot/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Persistent flags shared by every command.
var (
	configPath string
	logFormat  string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docroot",
		Short: "A minimal static file and CGI responder",
		Long: `docroot serves files from a document root over a single TCP listener.

Requests for scripts (php by default) are handed to an external
interpreter whose output is written straight to the client. Each
connection is served by an idle worker slot, or by the accepting
loop itself when every slot is busy.

  • One request per connection, GET only
  • Fixed worker slots, no queue
  • Optional CGI-style delegation
  • Prometheus metrics and live slot feed on an admin port
  • Seed the document root from an S3 bucket`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to docroot.json or its directory (default: search upward from the working directory)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (default from docroot.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from docroot.json)")

	rootCmd.AddCommand(
		initCmd(),
		serveCmd(),
		syncCmd(),
		checkCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		if _, ok := err.(*errors.DocrootError); ok {
			errors.PrintError(err)
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
