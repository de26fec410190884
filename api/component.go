// The `api` component serves the component management API over HTTP: listing,
// installing, uninstalling, toggling and reloading user components.  The
// service is advertised over mDNS unless disabled.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/brutella/dnssd"
	"github.com/mook/componenthost/components"
	"github.com/mook/componenthost/utils"
	"golang.org/x/sys/unix"
)

const (
	defaultPort = 6053
	serviceType = "_componenthost._tcp"
)

// Configuration for the component.
type Configuration struct {
	Port      int    `yaml:"port"`      // The port to listen on; defaults to 6053.
	Advertise *bool  `yaml:"advertise"` // Whether to advertise over mDNS; defaults to true.
	Instance  string `yaml:"instance"`  // mDNS instance name; defaults to the host name.
}

// Management API component
type component struct {
	config  Configuration
	lock    sync.Mutex
	manager Manager
	styles  io.WriterTo
}

var instance = &component{}

// Attach the registry to be served by the API; must be called before the
// component is started.
func Attach(manager Manager, styles io.WriterTo) {
	instance.lock.Lock()
	defer instance.lock.Unlock()
	instance.manager = manager
	instance.styles = styles
}

func (c *component) Metadata() *components.Metadata {
	return &components.Metadata{
		UserMetadata: components.UserMetadata{
			Name:        "api",
			DisplayName: "Management API",
			Description: "HTTP API for managing user components.",
		},
	}
}

func (c *component) Dependencies() []string {
	return nil
}

func (c *component) Configure(ctx context.Context, load func(any) error) error {
	c.config.Port = defaultPort
	return load(&c.config)
}

func (c *component) Start(ctx context.Context) error {
	c.lock.Lock()
	manager, styles := c.manager, c.styles
	c.lock.Unlock()
	if manager == nil {
		return fmt.Errorf("api component started without a registry")
	}

	port := c.config.Port
	if port == 0 {
		port = defaultPort
	}
	listenConfig := &net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if err != nil {
					slog.ErrorContext(ctx, "failed to set SO_REUSEADDR", "error", err)
				}
			})
		},
	}
	listener, err := listenConfig.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen for connections: %w", err)
	}

	server := &http.Server{
		Handler:           NewHandler(manager, styles),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		slog.DebugContext(ctx, "shutting down management API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "failed to shut down management API", "error", err)
		}
	}()
	go func() {
		if err := server.Serve(listener); !utils.AnyError(err, http.ErrServerClosed, net.ErrClosed) {
			slog.ErrorContext(ctx, "error serving management API", "error", err)
		}
	}()

	if c.config.Advertise == nil || *c.config.Advertise {
		if err := advertise(ctx, c.config.Instance, port); err != nil {
			return errors.Join(err, listener.Close())
		}
	}

	slog.InfoContext(ctx, "listening for management API", "port", port)
	return nil
}

// advertise publishes the management API as a DNS-SD service until the
// context is done.  The TXT record points clients at the API endpoints.
func advertise(ctx context.Context, name string, port int) error {
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get host name: %w", err)
		}
		name = hostname
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("failed to create mDNS responder: %w", err)
	}
	service, err := dnssd.NewService(dnssd.Config{
		Name: name,
		Type: serviceType,
		Port: port,
		Text: map[string]string{
			"components": "/components",
			"styles":     "/styles.css",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to describe %s service: %w", serviceType, err)
	}
	if _, err := responder.Add(service); err != nil {
		return fmt.Errorf("failed to publish %s service: %w", serviceType, err)
	}
	go func() {
		logger := slog.With("instance", name, "type", serviceType, "port", port)
		logger.DebugContext(ctx, "advertising management API")
		err := responder.Respond(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "mDNS advertisement stopped", "error", err)
			return
		}
		logger.DebugContext(ctx, "mDNS advertisement withdrawn")
	}()
	return nil
}

func init() {
	components.Register(instance)
}
