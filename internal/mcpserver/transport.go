package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/elefante-mem/elefante/internal/health"
	"github.com/elefante-mem/elefante/internal/observe"
	"github.com/elefante-mem/elefante/pkg/memory"
)

// shutdownGrace bounds how long Serve waits for in-flight streamable-http
// requests to finish once ctx is cancelled.
const shutdownGrace = 5 * time.Second

// Serve runs srv over the configured transport until ctx is cancelled.
// transport is one of "stdio" (default) or "streamable-http"; listenAddr is
// only used for the latter. graph is consulted for the /readyz readiness
// check under streamable-http; it may be nil under stdio.
func Serve(ctx context.Context, srv *mcpsdk.Server, transport, listenAddr string, graph memory.GraphStore) error {
	switch transport {
	case "", "stdio":
		return srv.Run(ctx, &mcpsdk.StdioTransport{})

	case "streamable-http":
		if listenAddr == "" {
			return fmt.Errorf("mcpserver: streamable-http transport requires a listen address")
		}
		mux := http.NewServeMux()
		mux.Handle("/", mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil))
		health.New(health.Checker{
			Name: "graph",
			Check: func(ctx context.Context) error {
				_, err := graph.ListSessions(ctx, 0, 1)
				return err
			},
		}).Register(mux)

		handler := observe.Middleware(observe.DefaultMetrics())(mux)
		httpServer := &http.Server{Addr: listenAddr, Handler: handler}

		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}

	default:
		return fmt.Errorf("mcpserver: unknown transport %q", transport)
	}
}
