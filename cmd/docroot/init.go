package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/docroot/internal/config"
	"github.com/vango-dev/docroot/internal/errors"
)

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default docroot.json",
		Long: `Write a docroot.json with default settings and create the
document root next to it.

Examples:
  docroot init
  docroot init ./site --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing docroot.json")

	return cmd
}

func runInit(dir string, force bool) error {
	if config.Exists(dir) && !force {
		return errors.Newf(errors.CategoryCLI, "%s already exists", filepath.Join(dir, config.ConfigFileName)).
			WithSuggestion("Pass --force to overwrite it")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	cfg := config.New()
	path := filepath.Join(dir, config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		return err
	}
	success("Wrote %s", path)

	root := cfg.RootPath()
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	info("Document root: %s", root)
	return nil
}
