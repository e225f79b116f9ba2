package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/fluentsql/internal/core/schema"
	"github.com/satishbabariya/fluentsql/internal/ui"
	"github.com/satishbabariya/fluentsql/internal/watch"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the entity schema",
	}
	cmd.AddCommand(newSchemaShowCommand(opts), newSchemaWatchCommand(opts))
	return cmd
}

func newSchemaShowCommand(opts *Options) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "List the entities declared in the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadSchema(opts, args)
			if err != nil {
				return err
			}
			p := printer(cmd)
			if markdown {
				return p.Markdown(ui.EntitiesMarkdown(reg.Entities()))
			}
			return p.Entities(reg.Entities())
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "render as markdown")
	return cmd
}

func newSchemaWatchCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [path]",
		Short: "Validate the schema every time it changes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			raw := cfg.SchemaPath
			if len(args) == 1 {
				raw = args[0]
			}
			path := opts.path(raw)
			p := printer(cmd)

			reload := func() error {
				reg, err := opts.registry(cfg, raw)
				if err != nil {
					return err
				}
				p.Success("%s: %d entities", path, len(reg.Entities()))
				return nil
			}
			w, err := watch.NewWatcher(path, reload, watch.WithErrorHandler(func(err error) {
				p.Error("%v", err)
			}))
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				w.Stop()
				return err
			}
			p.Info("Watching %s (Ctrl+C to stop)", path)

			<-cmd.Context().Done()
			return w.Stop()
		},
	}
}

func loadSchema(opts *Options, args []string) (*schema.Registry, error) {
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	reg, err := opts.registry(cfg, path)
	if err != nil {
		return nil, fmt.Errorf("%w (run `fluentsql init` to create one)", err)
	}
	return reg, nil
}
