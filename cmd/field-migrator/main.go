// Package main provides the field-migrator CLI. It records the descriptors of
// fields whose types changed in a patched game jar and rewrites a Tiny v2
// mapping file so later remapping links against the patched types.
//
// Commands:
//   - run  : field-migrator run --jar patched.jar --mappings m.tiny --cache-dir build/fm
//   - scan : field-migrator scan --jar patched.jar
//   - diff : field-migrator diff --mappings m.tiny --cache-dir build/fm
//
// Settings may also come from a YAML file (--config); flags win.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"field-migrator/internal/config"
	"field-migrator/internal/logging"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		a.report(err)
	}
	return err
}

// app carries state shared by every command.
type app struct {
	stdout, stderr io.Writer

	configPath string
	logLevel   string
	noColor    bool

	// Bound to command flags; applied over the config file when set.
	jar         string
	mappings    string
	srgMappings string
	cacheDir    string
	refresh     bool
	workers     int

	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "field-migrator",
		Short:         "Migrate field descriptors of a patched jar into Tiny v2 mappings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.noColor, "no-color", false, "disable coloured log output")

	root.AddCommand(a.runCmd(), a.scanCmd(), a.diffCmd())
	return root
}

// setup loads the config, applies changed flags, validates it and installs
// the logger on cmd's context.
func (a *app) setup(cmd *cobra.Command, required ...config.Field) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.applyFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(required...); err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	ctx := logging.Setup(cmd.Context(), a.stderr, logging.Options{Level: level, NoColor: cfg.Log.NoColor})
	a.logger = slog.Default()
	cmd.SetContext(ctx)
	return nil
}

func (a *app) applyFlags(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, apply func()) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			apply()
		}
	}
	set("jar", func() { cfg.PatchedJar = a.jar })
	set("mappings", func() { cfg.Mappings = a.mappings })
	set("srg-mappings", func() { cfg.SrgMappings = a.srgMappings })
	set("cache-dir", func() { cfg.CacheDir = a.cacheDir })
	set("refresh", func() { cfg.Refresh = a.refresh })
	set("workers", func() { cfg.Workers = a.workers })
	set("log-level", func() { cfg.Log.Level = a.logLevel })
	set("no-color", func() { cfg.Log.NoColor = a.noColor })
}

// report logs a failed command. Stack details are written at debug level.
func (a *app) report(err error) {
	if a.logger == nil {
		fmt.Fprintf(a.stderr, "error: %v\n", err)
		return
	}
	a.logger.Error("field-migrator failed", "error", err.Error())
	if a.logger.Enabled(context.Background(), slog.LevelDebug) {
		fmt.Fprintf(a.stderr, "%+v\n", err)
	}
}
