package link

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestClientServerRoundTrip exercises the full path the daemon and
// controller use in production: the daemon dials in, announces itself and
// a sync snapshot, and the controller issues a correlated RPC call that
// the daemon's registry answers.
func TestClientServerRoundTrip(t *testing.T) {
	server := NewServer(nil, 2*time.Second)

	var mu sync.Mutex
	var gotDaemonID string
	var gotSync SyncPayload
	configDone := make(chan struct{})
	server.OnDaemonConfig = func(p DaemonConfigPayload) {
		mu.Lock()
		gotDaemonID = p.DaemonID
		mu.Unlock()
	}
	server.OnSync = func(p SyncPayload) {
		mu.Lock()
		gotSync = p
		mu.Unlock()
		close(configDone)
	}

	httpSrv := httptest.NewServer(server.Handler())
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	registry := NewRegistry()
	registry.Register("get_drive_status", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]string{"state": "scanned"}, nil
	})

	client := NewClient(wsURL, "daemon-123", registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- client.Run(ctx, func(ctx context.Context, conn *Conn) error {
			cfgEnv, err := NewEnvelope(TypeDaemonConfig, DaemonConfigPayload{DaemonID: "daemon-123", Device: "/dev/sr0"})
			if err != nil {
				return err
			}
			if err := conn.Send(ctx, cfgEnv); err != nil {
				return err
			}
			syncEnv, err := NewEnvelope(TypeSync, SyncPayload{DaemonID: "daemon-123", DriveState: "empty", QueueDepth: 0})
			if err != nil {
				return err
			}
			return conn.Send(ctx, syncEnv)
		})
	}()

	select {
	case <-configDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for daemon_config/sync")
	}

	mu.Lock()
	require.Equal(t, "daemon-123", gotDaemonID)
	require.Equal(t, "empty", gotSync.DriveState)
	mu.Unlock()

	// Give the server a moment to register the connection before calling.
	require.Eventually(t, server.Connected, time.Second, 10*time.Millisecond)

	result, err := server.Call(context.Background(), "get_drive_status", nil)
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.Equal(t, "scanned", decoded["state"])

	cancel()
	select {
	case <-runErrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("client.Run did not exit after cancel")
	}
}

// TestServerCallNoConnectionErrors verifies calling before any daemon has
// connected fails fast rather than hanging.
func TestServerCallNoConnectionErrors(t *testing.T) {
	server := NewServer(nil, time.Second)
	_, err := server.Call(context.Background(), "get_drives", nil)
	require.ErrorIs(t, err, ErrNoConnection)
}

// TestServerCallTimesOutWithoutResponse verifies the RPC timeout fires
// when a connected peer never answers.
func TestServerCallTimesOutWithoutResponse(t *testing.T) {
	server := NewServer(nil, 50*time.Millisecond)

	httpSrv := httptest.NewServer(server.Handler())
	defer httpSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http")

	// The handler blocks until the client shuts down, so the client's serve
	// loop never sends a response for the call.
	registry := NewRegistry()
	registry.Register("get_drives", func(ctx context.Context, params json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client := NewClient(wsURL, "daemon-xyz", registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = client.Run(ctx, nil)
	}()

	require.Eventually(t, server.Connected, time.Second, 10*time.Millisecond)

	_, err := server.Call(context.Background(), "get_drives", nil)
	require.ErrorIs(t, err, ErrRPCTimeout)
}
