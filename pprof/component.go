// The `pprof` component serves profiling information of the host over HTTP
// under /debug; see https://pkg.go.dev/net/http/pprof for details.
package pprof

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mook/componenthost/components"
	"github.com/mook/componenthost/utils"
)

const (
	defaultPort = 6060
)

// Configuration for this component.
type Configuration struct {
	Port int    `yaml:"port"` // Port to listen on; defaults to 6060.
	Bind string `yaml:"bind"` // Address to bind to; defaults to localhost only.
}

type component struct {
	config Configuration
}

func (c *component) Metadata() *components.Metadata {
	return &components.Metadata{
		UserMetadata: components.UserMetadata{
			Name:        "pprof",
			DisplayName: "Profiler",
			Description: "Serves runtime profiling data of the host.",
		},
	}
}

func (c *component) Configure(ctx context.Context, load func(any) error) error {
	c.config.Port = defaultPort
	c.config.Bind = "localhost"
	return load(&c.config)
}

func (c *component) Dependencies() []string {
	return nil
}

func (c *component) handler() http.Handler {
	r := chi.NewRouter()
	r.Mount("/debug", middleware.Profiler())
	return r
}

func (c *component) Start(ctx context.Context) error {
	listenAddr := net.JoinHostPort(c.config.Bind, fmt.Sprint(c.config.Port))
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listenAddr, err)
	}
	server := &http.Server{Handler: c.handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		if err := server.Close(); err != nil {
			slog.DebugContext(ctx, "failed to close pprof server", "error", err)
		}
	}()
	go func() {
		if err := server.Serve(listener); !utils.AnyError(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "error serving", "address", listenAddr, "error", err)
		}
	}()
	slog.InfoContext(ctx, "pprof server started", "address", listener.Addr())
	return nil
}

func init() {
	components.Register(&component{})
}
