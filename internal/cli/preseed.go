package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsixgate/vsixgate/internal/config"
	"github.com/vsixgate/vsixgate/internal/logging"
	"github.com/vsixgate/vsixgate/internal/remoteserver"
)

var preseedFlags struct {
	configPath   string
	archivePath  string
	vscodeCommit string
	home         string
	logLevel     string
}

var preseedCmd = &cobra.Command{
	Use:   "preseed",
	Short: "Pre-seed the VS Code server from the bundle",
	Long: `Install the VS Code server under ~/.vscode-server/bin/<commit> from the
server tarball carried in the archive, so the first remote-SSH connection
on the isolated machine never attempts an online fetch. The commit hash
comes from 'code --version' on the client.`,
	Args: cobra.NoArgs,
	RunE: runPreseed,
}

func init() {
	f := preseedCmd.Flags()
	f.StringVar(&preseedFlags.configPath, "config", "", "Config file to load over the defaults")
	f.StringVar(&preseedFlags.archivePath, "archive", "", "Local path of the downloaded archive zip")
	f.StringVar(&preseedFlags.vscodeCommit, "vscode-commit", "", "VS Code client commit hash")
	f.StringVar(&preseedFlags.home, "home", "", "Home directory override (defaults to $HOME)")
	f.StringVar(&preseedFlags.logLevel, "log-level", "", "Log detail: DEBUG, INFO, WARNING, or ERROR")
	_ = preseedCmd.MarkFlagRequired("archive")
	_ = preseedCmd.MarkFlagRequired("vscode-commit")
	rootCmd.AddCommand(preseedCmd)
}

func runPreseed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(preseedFlags.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = preseedFlags.logLevel
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Syslog: cfg.Logging.Syslog,
	})

	bundleRoot, err := remoteserver.PrepareBundleRoot(preseedFlags.archivePath, preseedFlags.vscodeCommit, cfg.Plan.TempDir)
	if err != nil {
		return err
	}

	target, err := remoteserver.Preseed(preseedFlags.vscodeCommit, bundleRoot, preseedFlags.home, logger)
	if err != nil {
		return err
	}
	if err := remoteserver.Validate(target); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VS Code server preseeded at %s\n", target)
	return nil
}
