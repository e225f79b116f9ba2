package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/fluentsql/internal/config"
	"github.com/satishbabariya/fluentsql/internal/core/query/dialect"
	"github.com/satishbabariya/fluentsql/internal/core/schema"
	"github.com/satishbabariya/fluentsql/internal/dsl"
	"github.com/satishbabariya/fluentsql/pkg/fluent"
)

// NewSQLCommand creates the sql command.
func NewSQLCommand(opts *Options) *cobra.Command {
	var (
		exec        bool
		dialectName string
	)

	cmd := &cobra.Command{
		Use:   "sql <query>",
		Short: "Compile a query to SQL",
		Long: `Compile a query written in the fluentsql query language and print the SQL
with its arguments. With --exec the query runs against the configured database.

  fluentsql sql "from Order o join Customer c on o.CustomerId = c.Id where o.Id > 1 select o.Id, c.Name order by o.Id desc take 10"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			reg, err := opts.registry(cfg, "")
			if err != nil {
				return err
			}
			if err := render(cmd, cfg, reg, dialectName, args[0]); err != nil {
				return err
			}
			if !exec {
				return nil
			}
			return execute(cmd.Context(), cmd, cfg, reg, args[0])
		},
	}

	cmd.Flags().BoolVar(&exec, "exec", false, "run the query and print the rows")
	cmd.Flags().StringVar(&dialectName, "dialect", "", "render for another dialect (postgres, mysql, sqlite, sqlserver)")
	return cmd
}

func render(cmd *cobra.Command, cfg *config.Config, reg *schema.Registry, dialectName, input string) error {
	var (
		d   dialect.Dialect
		err error
	)
	if dialectName != "" {
		d, err = dialect.New(dialectName)
	} else {
		d, err = dialectFor(cfg)
	}
	if err != nil {
		return err
	}

	db, err := fluent.Open(nil, d, reg, fluent.WithAliasStart(cfg.AliasRune()))
	if err != nil {
		return err
	}
	q, err := dsl.CompileString(db, input)
	if err != nil {
		return err
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return err
	}
	printer(cmd).SQL(d.Name(), sql, args)
	return nil
}

func execute(ctx context.Context, cmd *cobra.Command, cfg *config.Config, reg *schema.Registry, input string) error {
	db, err := fluent.OpenConfig(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	q, err := dsl.CompileString(db, input)
	if err != nil {
		return err
	}
	var rows []map[string]any
	if err := q.ToList(ctx, &rows); err != nil {
		return err
	}
	return printer(cmd).Rows(rows)
}
