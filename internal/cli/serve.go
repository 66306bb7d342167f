package cli

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/evidencepack/internal/server"
	"github.com/matzehuels/evidencepack/pkg/cache"
)

const shutdownTimeout = 10 * time.Second

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve <pack-dir>",
		Short: "Serve an evidence pack over HTTP",
		Long: `Serve an evidence pack for review. Routes:

  GET /api/summary   summary.json
  GET /api/files     the SHA256SUMS entries
  GET /api/verify    integrity report (cached per manifest digest)
  GET /files/<path>  one listed file
  GET /archive.zip   the whole pack as a zip`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadPackView(args[0]); err != nil {
				return err
			}
			verdicts, err := cache.NewMemoryCache(memoryCacheEntries)
			if err != nil {
				return err
			}
			defer verdicts.Close()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return c.serve(cmd.Context(), ln, server.New(args[0], verdicts, c.Logger))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")

	return cmd
}

// serve runs srv on ln until ctx is cancelled, then shuts down gracefully.
func (c *CLI) serve(ctx context.Context, ln net.Listener, srv *server.Server) error {
	hs := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	c.Logger.Info("serving evidence pack", "dir", srv.Dir, "addr", "http://"+ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	c.Logger.Info("server stopped")
	return nil
}
