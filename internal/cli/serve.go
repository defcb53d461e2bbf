package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deepsave/pkg/server"
)

// serveOpts holds the flags for the serve command. Empty values fall back
// to the [server] section of the config.
type serveOpts struct {
	addr      string
	mountPath string
	appID     string
}

func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference backend on the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, :1337)")
	cmd.Flags().StringVar(&opts.mountPath, "mount", "", "route prefix (default from config, /parse)")
	cmd.Flags().StringVar(&opts.appID, "app-id", "", "required X-Parse-Application-Id")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts serveOpts) error {
	sc := c.cfg.Server
	if opts.addr != "" {
		sc.Addr = opts.addr
	}
	if opts.mountPath != "" {
		sc.MountPath = opts.mountPath
	}
	if opts.appID != "" {
		sc.AppID = opts.appID
	}

	st, err := openStore(ctx, c.cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", c.cfg.Store.Backend, err)
	}
	defer st.Close()

	srv := server.New(st, server.Config{
		MountPath: sc.MountPath,
		AppID:     sc.AppID,
		MaxBatch:  sc.MaxBatch,
		Logger:    c.Logger,
	})

	printInfo("Serving %s store on %s%s", c.cfg.Store.Backend, StyleValue.Render(sc.Addr), sc.MountPath)
	printNextStep("Save into it", fmt.Sprintf("%s save FILE --server http://localhost%s%s", appName, sc.Addr, sc.MountPath))
	return srv.ListenAndServe(ctx, sc.Addr)
}
