package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		addr    string
		dataDir string
		connect bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the machine control API",
		Long:  "Serves an HTTP API for controlling the machine, a file store for builds under /data/, and server-sent events under /events/.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(g, addr, dataDir, connect)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envOr("REPG_ADDR", ":9091"), "address to bind")
	cmd.Flags().StringVar(&dataDir, "dir", envOr("REPG_DATA", "./data"), "data directory")
	cmd.Flags().BoolVar(&connect, "connect", false, "connect to the machine at startup")
	return cmd
}

func runServe(g *globalOptions, addr, dataDir string, connect bool) error {
	c, err := g.newController()
	if err != nil {
		return err
	}
	defer c.Dispose()

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	a := newAPI(c, dataDir, g.log.WithField("component", "api"))
	defer a.Close()

	if connect {
		c.Connect()
	}

	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			g.log.WithField("remote", req.RemoteAddr).Debugf("%s %s", req.Method, req.URL.Path)
			a.ServeHTTP(w, req)
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	g.log.WithField("addr", addr).Info("serving")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
