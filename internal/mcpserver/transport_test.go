package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestServe_UnknownTransport(t *testing.T) {
	t.Parallel()
	deps, _ := newTestDeps(t)
	srv := New(deps)

	err := Serve(context.Background(), srv, "carrier-pigeon", "", deps.Graph)
	if err == nil {
		t.Fatal("expected an error for an unknown transport")
	}
}

func TestServe_StreamableHTTPRequiresListenAddr(t *testing.T) {
	t.Parallel()
	deps, _ := newTestDeps(t)
	srv := New(deps)

	err := Serve(context.Background(), srv, "streamable-http", "", deps.Graph)
	if err == nil {
		t.Fatal("expected an error when listen_addr is empty")
	}
}

func TestServe_StreamableHTTPServesHealthz(t *testing.T) {
	t.Parallel()
	deps, _ := newTestDeps(t)
	srv := New(deps)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, srv, "streamable-http", addr, deps.Graph) }()

	url := fmt.Sprintf("http://%s/healthz", addr)
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		cancel()
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned error after cancel: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
