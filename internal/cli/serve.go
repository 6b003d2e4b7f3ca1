package cli

import (
	"github.com/spf13/cobra"

	"github.com/vsixgate/vsixgate/internal/config"
	"github.com/vsixgate/vsixgate/internal/logging"
	"github.com/vsixgate/vsixgate/internal/server"
)

var serveFlags struct {
	configPath string
	listen     string
	filesDir   string
	logLevel   string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve archives and manifests over HTTP",
	Long: `Run the distribution file server inside the isolated network. Place the
archive and manifest produced by pack into the files directory; deployers
fetch them from /zip/<name> and /manifest/<name>.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.configPath, "config", "", "Config file to load over the defaults")
	f.StringVar(&serveFlags.listen, "listen", "", "Listen address, e.g. :5000")
	f.StringVar(&serveFlags.filesDir, "files-dir", "", "Directory holding zips and manifests")
	f.StringVar(&serveFlags.logLevel, "log-level", "", "Log detail: DEBUG, INFO, WARNING, or ERROR")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveFlags.configPath)
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("listen") {
		cfg.Serve.Listen = serveFlags.listen
	}
	if f.Changed("files-dir") {
		cfg.Serve.FilesDir = serveFlags.filesDir
	}
	if f.Changed("log-level") {
		cfg.Logging.Level = serveFlags.logLevel
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		Syslog: cfg.Logging.Syslog,
	})

	return server.New(cfg.Serve.FilesDir, logger).ListenAndServe(cfg.Serve.Listen)
}
