package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/fluentsql/internal/adapters"
)

// NewPingCommand creates the ping command.
func NewPingCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			adapter, err := adapters.NewAdapter(cfg.Database())
			if err != nil {
				return err
			}

			timeout := time.Duration(cfg.ConnectTimeout) * time.Second
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			p := printer(cmd)
			spinner, _ := p.Spinner(fmt.Sprintf("Connecting to %s", cfg.Provider))
			start := time.Now()
			err = adapter.Connect(ctx)
			if err == nil {
				err = adapter.Ping(ctx)
				adapter.Disconnect(ctx)
			}
			if spinner != nil {
				spinner.Stop()
			}
			if err != nil {
				return fmt.Errorf("%s: %w", cfg.Provider, err)
			}

			p.Success("Connected to %s (%s dialect) in %s", cfg.Provider, adapter.Dialect().Name(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
