package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vsixgate/vsixgate/internal/backup"
	"github.com/vsixgate/vsixgate/internal/config"
	"github.com/vsixgate/vsixgate/internal/logging"
)

var restoreFlags struct {
	configPath string
	backupDir  string
	targetDir  string
	list       bool
	prune      bool
	logLevel   string
}

var restoreCmd = &cobra.Command{
	Use:   "restore [backup-name]",
	Short: "Restore a backed-up extension, or list and prune backups",
	Long: `Manual recovery for extensions the deployer backed up before replacing or
removing them. The deployer itself never restores automatically; a failed
action leaves its backup in place for this command.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRestore,
}

func init() {
	f := restoreCmd.Flags()
	f.StringVar(&restoreFlags.configPath, "config", "", "Config file to load over the defaults")
	f.StringVar(&restoreFlags.backupDir, "backup-dir", "", "Backup directory to read from")
	f.StringVar(&restoreFlags.targetDir, "target-dir", "", "VS Code extensions directory to restore into")
	f.BoolVar(&restoreFlags.list, "list", false, "List available backups")
	f.BoolVar(&restoreFlags.prune, "prune", false, "Delete all backups")
	f.StringVar(&restoreFlags.logLevel, "log-level", "", "Log detail: DEBUG, INFO, WARNING, or ERROR")
	rootCmd.AddCommand(restoreCmd)
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(restoreFlags.configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("backup-dir") {
		cfg.Plan.BackupDir = restoreFlags.backupDir
	}
	if f.Changed("target-dir") {
		cfg.Deployment.TargetDir = restoreFlags.targetDir
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = restoreFlags.logLevel
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Syslog: cfg.Logging.Syslog,
	})

	backups := backup.NewManager(cfg.Plan.BackupDir, logger)

	switch {
	case restoreFlags.list:
		names, err := listBackups(backups.Dir())
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
			return nil
		}
		for _, name := range names {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
		}
		return nil

	case restoreFlags.prune:
		if err := backups.Prune(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Backups pruned.")
		return nil

	case len(args) == 1:
		dest, err := backups.Restore(filepath.Join(backups.Dir(), args[0]), cfg.Deployment.TargetDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored to %s\n", dest)
		return nil

	default:
		return fmt.Errorf("pass a backup name, --list, or --prune")
	}
}

func listBackups(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
