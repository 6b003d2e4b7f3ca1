// Package config loads the YAML configuration shared by both halves of
// the pipeline. Values resolve file < environment < command line; the CLI
// layer applies explicit flag overrides after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/vsixgate/vsixgate/internal/branding"
)

// Config is the parsed configuration tree.
type Config struct {
	Plan       PlanConfig       `mapstructure:"plan"`
	Source     SourceConfig     `mapstructure:"source"`
	Deployment DeploymentConfig `mapstructure:"deployment"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Pack       PackConfig       `mapstructure:"pack"`
	Serve      ServeConfig      `mapstructure:"serve"`
}

// PlanConfig governs reconciliation policy.
type PlanConfig struct {
	ReplaceMode       string   `mapstructure:"replace_mode"`
	BackupDir         string   `mapstructure:"backup_dir"`
	TempDir           string   `mapstructure:"temp_dir"`
	IncludeExtensions []string `mapstructure:"include_extensions"`
	ExcludeExtensions []string `mapstructure:"exclude_extensions"`
}

// SourceConfig locates the archive and manifest.
type SourceConfig struct {
	ArchiveURL  string `mapstructure:"archive_url"`
	ManifestURL string `mapstructure:"manifest_url"`
	Retries     int    `mapstructure:"retries"`
}

// DeploymentConfig governs the target installation.
type DeploymentConfig struct {
	TargetDir       string `mapstructure:"target_dir"`
	VerifyIntegrity string `mapstructure:"verify_integrity"`
	DryRun          bool   `mapstructure:"dry_run"`
}

// LoggingConfig selects log sinks.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Syslog bool   `mapstructure:"syslog"`
}

// PackConfig drives the producer half.
type PackConfig struct {
	Extensions   []string `mapstructure:"extensions"`
	SourceDir    string   `mapstructure:"source_dir"`
	OutputDir    string   `mapstructure:"output_dir"`
	NameTemplate string   `mapstructure:"name_template"`
	Marketplace  string   `mapstructure:"marketplace_url"`
	Retries      int      `mapstructure:"retries"`
	SkipFailed   bool     `mapstructure:"skip_failed"`
}

// ServeConfig drives the distribution server.
type ServeConfig struct {
	Listen   string `mapstructure:"listen"`
	FilesDir string `mapstructure:"files_dir"`
}

// Dir returns the config directory (~/.vsixgate).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir)
	}
	return filepath.Join(home, branding.HomeDir)
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads the config file at path (or the default location when path is
// empty) and returns the parsed Config. A missing default file just yields
// the defaults; a missing explicit file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(branding.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		missing := errors.Is(err, fs.ErrNotExist)
		if explicit || !missing {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("plan.replace_mode", "NONE")
	v.SetDefault("plan.backup_dir", filepath.Join(Dir(), "backups"))
	v.SetDefault("plan.temp_dir", filepath.Join(os.TempDir(), branding.CLIName))
	v.SetDefault("source.retries", 3)
	v.SetDefault("deployment.target_dir", filepath.Join(home, ".vscode", "extensions"))
	v.SetDefault("deployment.verify_integrity", "ERROR")
	v.SetDefault("deployment.dry_run", false)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.syslog", true)
	v.SetDefault("pack.output_dir", ".")
	v.SetDefault("pack.name_template", branding.CLIName+"-extensions-{{date}}.zip")
	v.SetDefault("pack.retries", 3)
	v.SetDefault("pack.skip_failed", true)
	v.SetDefault("serve.listen", ":5000")
	v.SetDefault("serve.files_dir", "./files")
}
