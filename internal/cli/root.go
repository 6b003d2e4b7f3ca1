package cli

import (
	"github.com/spf13/cobra"

	"github.com/vsixgate/vsixgate/internal/branding"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var rootCmd = &cobra.Command{
	Use:   branding.CLIName,
	Short: branding.Description,
	Long: branding.DisplayName + ` is a two-part tool for distributing VS Code extensions
across an airgapped environment. The pack half runs on an internet-connected
machine and produces a checksummed archive plus manifest; the deploy half runs
on the isolated side, fetches the archive from a local file server, verifies
it, and reconciles it against the VS Code extensions directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}
