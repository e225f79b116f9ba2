// Package commands implements CLI commands.
package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/fluentsql/internal/config"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
	"github.com/satishbabariya/fluentsql/internal/debug"
	"github.com/satishbabariya/fluentsql/internal/ui"
	"github.com/satishbabariya/fluentsql/internal/version"
)

// Options are the flags shared by all commands. Non-empty values override
// the loaded configuration.
type Options struct {
	Dir      string
	Provider string
	URL      string
	Schema   string
	Debug    bool
}

// NewRootCommand creates the fluentsql command tree.
func NewRootCommand() *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:           "fluentsql",
		Short:         "Render and run fluent SQL queries",
		Long:          "fluentsql compiles typed queries to SQL for PostgreSQL, MySQL, SQLite and SQL Server.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Debug {
				debug.InitWriter(true, cmd.ErrOrStderr())
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.Dir, "dir", "C", ".", "project directory holding .fluentsql.yaml")
	flags.StringVar(&opts.Provider, "provider", "", "database provider (postgresql, pgx, mysql, sqlite)")
	flags.StringVar(&opts.URL, "url", "", "database connection URL")
	flags.StringVar(&opts.Schema, "schema", "", "path to the YAML schema file")
	flags.BoolVar(&opts.Debug, "debug", false, "log pipeline stages to stderr")

	cmd.AddCommand(
		NewInitCommand(opts),
		NewSchemaCommand(opts),
		NewSQLCommand(opts),
		NewPingCommand(opts),
		NewVersionCommand(),
	)
	return cmd
}

// config loads the project configuration and applies flag overrides.
func (o *Options) config() (*config.Config, error) {
	cfg, err := config.LoadDir(o.Dir)
	if err != nil {
		return nil, err
	}
	if o.Provider != "" {
		cfg.Provider = o.Provider
	}
	if o.URL != "" {
		cfg.DatabaseURL = o.URL
	}
	if o.Schema != "" {
		cfg.SchemaPath = o.Schema
	}
	cfg.Debug = cfg.Debug || o.Debug
	return cfg, nil
}

// path resolves p against the project directory.
func (o *Options) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(o.Dir, p)
}

// registry loads and freezes the schema at path, or at the configured
// schema path when path is empty.
func (o *Options) registry(cfg *config.Config, path string) (*schema.Registry, error) {
	if path == "" {
		path = cfg.SchemaPath
	}
	reg := schema.NewRegistry()
	if err := reg.LoadFile(config.AppFs, o.path(path)); err != nil {
		return nil, err
	}
	if err := reg.Freeze(); err != nil {
		return nil, err
	}
	return reg, nil
}

func dialectFor(cfg *config.Config) (dialect.Dialect, error) {
	if cfg.Provider == "mysql" {
		return dialect.NewMySQL(cfg.MySQLVersion)
	}
	return dialect.New(cfg.Provider)
}

func printer(cmd *cobra.Command) *ui.Printer {
	return &ui.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
}
