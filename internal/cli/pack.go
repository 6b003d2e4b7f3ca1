package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vsixgate/vsixgate/internal/config"
	"github.com/vsixgate/vsixgate/internal/extension"
	"github.com/vsixgate/vsixgate/internal/logging"
	"github.com/vsixgate/vsixgate/internal/pack"
	"github.com/vsixgate/vsixgate/internal/pathguard"
)

var packFlags struct {
	configPath   string
	extensions   []string
	sourceDir    string
	outputDir    string
	nameTemplate string
	retries      int
	skipFailed   bool
	logLevel     string
}

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Download extensions and build the archive plus manifest",
	Long: `The internet-side half of the pipeline. Downloads the configured extensions
from the marketplace (or collects them from --source-dir), and builds a zip
archive plus a checksummed JSON manifest ready for the distribution server.`,
	Args: cobra.NoArgs,
	RunE: runPack,
}

func init() {
	f := packCmd.Flags()
	f.StringVar(&packFlags.configPath, "config", "", "Config file to load over the defaults")
	f.StringSliceVar(&packFlags.extensions, "extensions", nil, "Extensions to package (publisher.name@version)")
	f.StringVar(&packFlags.sourceDir, "source-dir", "", "Collect already-downloaded .vsix files from this directory instead of fetching")
	f.StringVar(&packFlags.outputDir, "output-dir", "", "Directory for the archive and manifest")
	f.StringVar(&packFlags.nameTemplate, "name-template", "", "Output name template; {{date}} expands to today")
	f.IntVar(&packFlags.retries, "retries", 0, "Download retry attempts before failing")
	f.BoolVar(&packFlags.skipFailed, "skip-failed", true, "Skip extensions that fail to download instead of aborting")
	f.StringVar(&packFlags.logLevel, "log-level", "", "Log detail: DEBUG, INFO, WARNING, or ERROR")
	rootCmd.AddCommand(packCmd)
}

func runPack(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(packFlags.configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("extensions") {
		cfg.Pack.Extensions = packFlags.extensions
	}
	if f.Changed("source-dir") {
		cfg.Pack.SourceDir = packFlags.sourceDir
	}
	if f.Changed("output-dir") {
		cfg.Pack.OutputDir = packFlags.outputDir
	}
	if f.Changed("name-template") {
		cfg.Pack.NameTemplate = packFlags.nameTemplate
	}
	if f.Changed("retries") {
		cfg.Pack.Retries = packFlags.retries
	}
	if f.Changed("skip-failed") {
		cfg.Pack.SkipFailed = packFlags.skipFailed
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = packFlags.logLevel
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Syslog: cfg.Logging.Syslog,
	})

	if err := pathguard.Ensure(cfg.Pack.OutputDir); err != nil {
		return err
	}

	packer := pack.New(logger)

	var files []pack.File
	if cfg.Pack.SourceDir != "" {
		files, err = packer.Collect(cfg.Pack.SourceDir)
	} else {
		var refs []extension.Ref
		for _, spec := range cfg.Pack.Extensions {
			ref, parseErr := extension.ParseRef(spec)
			if parseErr != nil {
				return parseErr
			}
			refs = append(refs, ref)
		}
		if len(refs) == 0 {
			return fmt.Errorf("no extensions configured; set pack.extensions or pass --extensions")
		}
		downloadDir := filepath.Join(cfg.Pack.OutputDir, "downloads")
		files, err = packer.Fetch(cmd.Context(), refs, cfg.Pack.Marketplace, downloadDir, cfg.Pack.Retries, cfg.Pack.SkipFailed)
	}
	if err != nil {
		return err
	}

	zipPath, manifestPath, err := packer.Build(files, cfg.Pack.OutputDir, cfg.Pack.NameTemplate)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Packaged %d extensions.\n  archive:  %s\n  manifest: %s\n",
		len(files), zipPath, manifestPath)
	return nil
}
