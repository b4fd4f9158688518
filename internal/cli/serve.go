package cli

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/mirror"
	"github.com/matzehuels/nixmirror/pkg/server"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		opts       server.Options
		configFile string
	)

	cmd := &cobra.Command{
		Use:   "serve [MIRROR_DIR]",
		Short: "Serve a mirror directory as a binary cache",
		Long: `Serve a mirror directory over HTTP so it can be used as a Nix substituter.

Files of downloads still in progress are never served.`,
		Example: `  nixmirror serve /srv/nix-mirror --addr :8080`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.MirrorDir = args[0]
			}
			if cfg.MirrorDir == "" {
				return errors.New(errors.ErrCodeInvalidInput, "no mirror directory: pass MIRROR_DIR or set mirror_dir in the config file")
			}

			opts.Logger = loggerFromContext(cmd.Context())
			srv := server.New(mirror.NewLayout(cfg.MirrorDir), opts)
			err = srv.ListenAndServe(cmd.Context())
			if stderrors.Is(err, context.Canceled) || stderrors.Is(err, http.ErrServerClosed) {
				printInfo(c.Out, "Server stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nixmirror/config.toml)")
	cmd.Flags().StringVar(&opts.Addr, "addr", server.DefaultAddr, "listen address")
	cmd.Flags().IntVar(&opts.Priority, "priority", server.DefaultPriority, "priority announced in nix-cache-info")
	cmd.Flags().StringVar(&opts.StoreDir, "store-dir", server.DefaultStoreDir, "store directory announced in nix-cache-info")

	return cmd
}
