package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vsixgate/vsixgate/internal/backup"
	"github.com/vsixgate/vsixgate/internal/config"
	"github.com/vsixgate/vsixgate/internal/deploy"
	"github.com/vsixgate/vsixgate/internal/extension"
	"github.com/vsixgate/vsixgate/internal/fetch"
	"github.com/vsixgate/vsixgate/internal/integrity"
	"github.com/vsixgate/vsixgate/internal/logging"
	"github.com/vsixgate/vsixgate/internal/manifest"
	"github.com/vsixgate/vsixgate/internal/pathguard"
	"github.com/vsixgate/vsixgate/internal/plan"
	"github.com/vsixgate/vsixgate/internal/scanner"
)

var deployFlags struct {
	configPath      string
	archiveURL      string
	manifestURL     string
	retries         int
	targetDir       string
	verifyIntegrity string
	dryRun          bool
	logLevel        string
	logFile         string
	include         []string
	exclude         []string
	backupDir       string
	tempDir         string
	replaceMode     string
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Fetch the extension archive and reconcile it against the target directory",
	Long: `Retrieve the extension archive and manifest produced by the pack half from a
locally accessible file server, verify the contents, and install extensions
into the VS Code extensions directory.

Include/exclude specs use one of the formats:
    publisher.name
    publisher.name@version
For example:
    ms-python.python
    redhat.vscode-yaml@1.19.1`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.configPath, "config", "", "Config file to load over the defaults")
	f.StringVar(&deployFlags.archiveURL, "archive-url", "", "URL (or local path) of the extension archive")
	f.StringVar(&deployFlags.manifestURL, "manifest-url", "", "URL (or local path) of the manifest; derived from the archive URL when unset")
	f.IntVar(&deployFlags.retries, "retries", 0, "Download retry attempts before failing")
	f.StringVar(&deployFlags.targetDir, "target-dir", "", "VS Code extensions directory to install into")
	f.StringVar(&deployFlags.verifyIntegrity, "verify-integrity", "", "Checksum verification level: NONE, WARN, or ERROR")
	f.BoolVar(&deployFlags.dryRun, "dry-run", false, "Evaluate every action without touching the filesystem")
	f.StringVar(&deployFlags.logLevel, "log-level", "", "Log detail: DEBUG, INFO, WARNING, or ERROR")
	f.StringVar(&deployFlags.logFile, "log-file", "", "Also append log output to this file")
	f.StringSliceVar(&deployFlags.include, "include-extensions", nil, "Only deploy these extensions (publisher.name[@version])")
	f.StringSliceVar(&deployFlags.exclude, "exclude-extensions", nil, "Never deploy these extensions (publisher.name[@version])")
	f.StringVar(&deployFlags.backupDir, "backup-dir", "", "Directory to back up replaced extensions into")
	f.StringVar(&deployFlags.tempDir, "temp-dir", "", "Working directory for downloads and staging")
	f.StringVar(&deployFlags.replaceMode, "replace-mode", "", "Existing-extension policy: NONE, REPLACE, or CLEAN")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(deployFlags.configPath)
	if err != nil {
		return err
	}
	applyDeployOverrides(cmd, cfg)

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Syslog: cfg.Logging.Syslog,
	})

	mode, err := plan.ParseMode(cfg.Plan.ReplaceMode)
	if err != nil {
		return err
	}
	level, err := integrity.ParseLevel(cfg.Deployment.VerifyIntegrity)
	if err != nil {
		return err
	}
	filter, err := extension.ParseFilter(cfg.Plan.IncludeExtensions, cfg.Plan.ExcludeExtensions)
	if err != nil {
		return err
	}
	if cfg.Source.ArchiveURL == "" {
		return fmt.Errorf("no archive URL configured; set source.archive_url or pass --archive-url")
	}

	// The temp dir is needed even on a dry run (downloads land there);
	// the backup dir is a mutation-side path and stays untouched until a
	// live run actually snapshots something.
	guarded := []string{cfg.Plan.TempDir}
	if !cfg.Deployment.DryRun {
		guarded = append(guarded, cfg.Plan.BackupDir)
	}
	if err := pathguard.Ensure(guarded...); err != nil {
		return err
	}

	logger.Info().
		Str("archive", cfg.Source.ArchiveURL).
		Str("target", cfg.Deployment.TargetDir).
		Str("replace_mode", mode.String()).
		Str("verify_integrity", level.String()).
		Bool("dry_run", cfg.Deployment.DryRun).
		Msg("starting deployment")

	archivePath, manifestPath, err := acquire(cmd, cfg, logger)
	if err != nil {
		return err
	}

	m, err := manifest.ParseFile(manifestPath)
	if err != nil {
		return err
	}

	state, err := scanner.Scan(cfg.Deployment.TargetDir, logger)
	if err != nil {
		return err
	}

	p := plan.Build(m, state, filter, mode)
	if len(p.Actions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do: archive and target directory agree.")
		return nil
	}

	backups := backup.NewManager(cfg.Plan.BackupDir, logger)
	engine := deploy.NewEngine(archivePath, cfg.Deployment.TargetDir, cfg.Plan.TempDir, backups, level, logger)

	report := engine.Apply(p, cfg.Deployment.DryRun)
	report.Print(cmd.OutOrStdout())

	if failed := report.Failed(); !report.DryRun && len(failed) > 0 {
		return fmt.Errorf("%d of %d actions failed; backups remain under %s",
			len(failed), len(report.Results), backups.Dir())
	}
	return nil
}

// applyDeployOverrides copies explicitly set flags over the loaded config,
// so the command line always wins over file and environment values.
func applyDeployOverrides(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("archive-url") {
		cfg.Source.ArchiveURL = deployFlags.archiveURL
	}
	if f.Changed("manifest-url") {
		cfg.Source.ManifestURL = deployFlags.manifestURL
	}
	if f.Changed("retries") {
		cfg.Source.Retries = deployFlags.retries
	}
	if f.Changed("target-dir") {
		cfg.Deployment.TargetDir = deployFlags.targetDir
	}
	if f.Changed("verify-integrity") {
		cfg.Deployment.VerifyIntegrity = deployFlags.verifyIntegrity
	}
	if f.Changed("dry-run") {
		cfg.Deployment.DryRun = deployFlags.dryRun
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = deployFlags.logLevel
	}
	if f.Changed("log-file") {
		cfg.Logging.File = deployFlags.logFile
	}
	if f.Changed("include-extensions") {
		cfg.Plan.IncludeExtensions = deployFlags.include
	}
	if f.Changed("exclude-extensions") {
		cfg.Plan.ExcludeExtensions = deployFlags.exclude
	}
	if f.Changed("backup-dir") {
		cfg.Plan.BackupDir = deployFlags.backupDir
	}
	if f.Changed("temp-dir") {
		cfg.Plan.TempDir = deployFlags.tempDir
	}
	if f.Changed("replace-mode") {
		cfg.Plan.ReplaceMode = deployFlags.replaceMode
	}
}

// acquire resolves the archive and manifest onto local disk, downloading
// over HTTP when the source is a URL. The manifest location defaults to
// the archive URL with its .zip suffix swapped for .manifest.json.
func acquire(cmd *cobra.Command, cfg *config.Config, logger zerolog.Logger) (string, string, error) {
	archiveURL := cfg.Source.ArchiveURL
	manifestURL := cfg.Source.ManifestURL
	if manifestURL == "" {
		manifestURL = strings.TrimSuffix(archiveURL, ".zip") + ".manifest.json"
	}

	fetcher := fetch.New(cfg.Source.Retries, logger)

	archivePath, err := resolveSource(cmd, fetcher, archiveURL, cfg.Plan.TempDir)
	if err != nil {
		return "", "", err
	}
	manifestPath, err := resolveSource(cmd, fetcher, manifestURL, cfg.Plan.TempDir)
	if err != nil {
		return "", "", err
	}
	return archivePath, manifestPath, nil
}

// resolveSource downloads a URL into the temp dir, or passes a local path
// through after checking it exists.
func resolveSource(cmd *cobra.Command, fetcher *fetch.Fetcher, src, tempDir string) (string, error) {
	if strings.Contains(src, "://") {
		return fetcher.Download(cmd.Context(), src, tempDir)
	}
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("source %s: %w", src, err)
	}
	return src, nil
}
