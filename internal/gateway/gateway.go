// Package gateway composes tool registries under path prefixes and
// serves them over one of two MCP wire transports, chosen once at
// startup.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"devtoolbox-mcp/internal/registry"
)

// Transport selects the wire transport for the whole process
type Transport string

const (
	// TransportSSE serves a long-lived event stream per client
	TransportSSE Transport = "sse"
	// TransportStreamableHTTP serves request/response over streamable HTTP
	TransportStreamableHTTP Transport = "stream-http"
)

// ParseTransport validates a transport flag value
func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case TransportSSE, TransportStreamableHTTP:
		return Transport(s), nil
	default:
		return "", fmt.Errorf("unknown transport %q (want %q or %q)", s, TransportSSE, TransportStreamableHTTP)
	}
}

// Mount binds a tool registry to a URL path prefix
type Mount struct {
	Prefix   string
	Registry *registry.Registry
}

const shutdownTimeout = 10 * time.Second

// Gateway is the composition layer: registries mounted under path
// prefixes, one transport, one listener.
type Gateway struct {
	addr      string
	transport Transport
	logger    *slog.Logger
	router    chi.Router
}

// New builds a gateway serving the given mounts. All registries are
// bridged before the handler is returned, so no request can be accepted
// ahead of a mount being ready.
func New(addr string, transport Transport, logger *slog.Logger, mounts ...Mount) *Gateway {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g := &Gateway{
		addr:      addr,
		transport: transport,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	for _, m := range mounts {
		srv := m.Registry.Server()
		r.Mount(m.Prefix, g.transportHandler(srv))
		logger.Info("mounted tool registry", "prefix", m.Prefix, "registry", m.Registry.Name())
	}

	g.router = r
	return g
}

func (g *Gateway) transportHandler(srv *mcp.Server) http.Handler {
	getServer := func(*http.Request) *mcp.Server { return srv }
	switch g.transport {
	case TransportStreamableHTTP:
		return mcp.NewStreamableHTTPHandler(getServer, nil)
	default:
		return mcp.NewSSEHandler(getServer)
	}
}

// Handler exposes the root HTTP handler. Requests outside every mounted
// prefix get the router's 404, not a tool-level error.
func (g *Gateway) Handler() http.Handler { return g.router }

// Run serves until the context is canceled, then shuts the listener down
// gracefully with a bounded deadline. One shutdown covers every mount.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.addr,
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info("gateway listening", "addr", g.addr, "transport", string(g.transport))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		g.logger.Info("gateway shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}
