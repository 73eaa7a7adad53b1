package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/protocol"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub(newDispatcher(t))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	t.Cleanup(cancel)
	return hub, server, cancel
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestLocalMessengerRoundTrip(t *testing.T) {
	m := NewLocalMessenger(newDispatcher(t))

	env, err := protocol.NewEnvelope("", protocol.TypeCheckAndConsumePage, protocol.ConsumePageRequest{PageKey: "https://x.com/a"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	reply, err := m.Send(context.Background(), env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if reply.ID == "" {
		t.Error("reply missing correlation ID")
	}

	var result protocol.ConsumePageResponse
	if err := protocol.DecodePayload(reply, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Allowed {
		t.Errorf("consume = %+v", result)
	}
}

func TestWSMessengerRoundTrip(t *testing.T) {
	_, server, _ := startHub(t)

	m, err := DialMessenger(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("DialMessenger: %v", err)
	}
	defer m.Close()

	env, _ := protocol.NewEnvelope("", protocol.TypeGetQuota, nil)
	reply, err := m.Send(context.Background(), env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	var result protocol.QuotaResponse
	if err := protocol.DecodePayload(reply, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3", result.Remaining)
	}
}

func TestWSMessengerCorrelatesConcurrentRequests(t *testing.T) {
	_, server, _ := startHub(t)

	m, err := DialMessenger(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("DialMessenger: %v", err)
	}
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, _ := protocol.NewEnvelope("", protocol.TypeGetStatus, nil)
			reply, err := m.Send(context.Background(), env)
			if err != nil {
				t.Errorf("Send: %v", err)
				return
			}
			if reply.ID != env.ID {
				t.Errorf("reply ID %q does not match request %q", reply.ID, env.ID)
			}
		}()
	}
	wg.Wait()
}

func TestWSMessengerInvalidation(t *testing.T) {
	_, server, cancel := startHub(t)

	invalidated := make(chan struct{})
	m, err := DialMessenger(context.Background(), wsURL(server), func() {
		close(invalidated)
	})
	if err != nil {
		t.Fatalf("DialMessenger: %v", err)
	}

	// Tearing down the hub kills the connection; the messenger must
	// report it exactly once and fail further sends.
	cancel()
	server.Close()

	select {
	case <-invalidated:
	case <-time.After(3 * time.Second):
		t.Fatal("invalidation callback never fired")
	}

	env, _ := protocol.NewEnvelope("", protocol.TypeGetStatus, nil)
	if _, err := m.Send(context.Background(), env); !errkind.IsTransport(err) {
		t.Errorf("Send after invalidation = %v, want transport error", err)
	}
}

func TestWSMessengerSendTimeout(t *testing.T) {
	// A server that accepts the upgrade and then never replies.
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	m, err := DialMessenger(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("DialMessenger: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	env, _ := protocol.NewEnvelope("", protocol.TypeGetStatus, nil)
	_, err = m.Send(ctx, env)
	if !errkind.IsTransport(err) {
		t.Errorf("Send against silent server = %v, want transport error", err)
	}
}
