package main

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"field-migrator/internal/cache"
	"field-migrator/internal/config"
	"field-migrator/internal/descriptor"
	"field-migrator/internal/diff"
	"field-migrator/internal/jar"
	"field-migrator/internal/migrate"
)

func (a *app) jarFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&a.jar, "jar", "", "patched game jar to scan")
	cmd.Flags().IntVar(&a.workers, "workers", runtime.NumCPU(), "class parsing workers")
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, diff and rewrite, reusing cached results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, config.Mappings, config.CacheDir); err != nil {
				return err
			}
			p := &migrate.Provider{
				Inputs: migrate.Inputs{
					PatchedJar:  a.cfg.PatchedJar,
					Mappings:    a.cfg.Mappings,
					SrgMappings: a.cfg.SrgMappings,
					CacheDir:    a.cfg.CacheDir,
					Refresh:     a.cfg.Refresh,
				},
				Scanner: &jar.Scanner{Workers: a.cfg.Workers},
			}
			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, res.OutputPath)
			return nil
		},
	}
	a.jarFlags(cmd)
	cmd.Flags().StringVar(&a.mappings, "mappings", "", "Tiny v2 mappings to rewrite")
	cmd.Flags().StringVar(&a.srgMappings, "srg-mappings", "", "Tiny v2 mappings with srg names (default: --mappings)")
	cmd.Flags().StringVar(&a.cacheDir, "cache-dir", "", "directory for "+cache.FileName+" and "+migrate.OutputFileName)
	cmd.Flags().BoolVar(&a.refresh, "refresh", false, "discard the cached migrations and rescan")
	return cmd
}

func (a *app) scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print every field descriptor in the patched jar as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, config.PatchedJar); err != nil {
				return err
			}
			scanned, err := (&jar.Scanner{Workers: a.cfg.Workers}).Scan(cmd.Context(), a.cfg.PatchedJar)
			if err != nil {
				return err
			}
			entries := make([]descriptor.Entry, 0, len(scanned))
			for k, desc := range scanned {
				entries = append(entries, descriptor.Entry{Key: k, Desc: desc})
			}
			out, err := cache.Encode(entries)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(out)
			return err
		},
	}
	a.jarFlags(cmd)
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var opt diff.Options
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show the migrated mapping file as a unified diff against its source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd, config.Mappings, config.CacheDir); err != nil {
				return err
			}
			migrated := filepath.Join(a.cfg.CacheDir, migrate.OutputFileName)
			body, oversize, err := diff.Files(a.cfg.Mappings, migrated, opt)
			if err != nil {
				return err
			}
			if oversize {
				a.logger.Warn("diff omitted, inputs exceed --max-bytes", "max_bytes", opt.MaxBytes)
			}
			_, err = fmt.Fprint(a.stdout, body)
			return err
		},
	}
	cmd.Flags().StringVar(&a.mappings, "mappings", "", "source Tiny v2 mappings")
	cmd.Flags().StringVar(&a.cacheDir, "cache-dir", "", "directory holding "+migrate.OutputFileName)
	cmd.Flags().IntVar(&opt.Context, "context", 3, "context lines per hunk")
	cmd.Flags().IntVar(&opt.MaxBytes, "max-bytes", 0, "skip the diff when both files together exceed this size (0 = no limit)")
	return cmd
}
