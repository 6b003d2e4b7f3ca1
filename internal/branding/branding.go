// Package branding holds the identity strings shared across the CLI.
package branding

const (
	// CLIName is the root command name.
	CLIName = "vsixgate"

	// DisplayName is the human-readable product name.
	DisplayName = "VSIXGate"

	// Description is the one-line product summary.
	Description = "Collect and deploy VS Code extensions across an air gap"

	// HomeDir is the dot-directory under $HOME.
	HomeDir = ".vsixgate"

	// EnvPrefix is the environment variable prefix.
	EnvPrefix = "VSIXGATE"
)
