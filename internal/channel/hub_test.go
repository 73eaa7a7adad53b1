package channel

import (
	"context"
	"testing"
	"time"

	"github.com/orvi2014/classcatch/internal/protocol"
)

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for hub.ClientCount() != want {
		select {
		case <-deadline:
			t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), want)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestHubTracksClients(t *testing.T) {
	hub, server, _ := startHub(t)

	first, err := DialMessenger(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial first: %v", err)
	}
	second, err := DialMessenger(context.Background(), wsURL(server), nil)
	if err != nil {
		t.Fatalf("dial second: %v", err)
	}
	waitForClients(t, hub, 2)

	first.Close()
	waitForClients(t, hub, 1)

	// The surviving client still works.
	env, _ := protocol.NewEnvelope("", protocol.TypeGetStatus, nil)
	if _, err := second.Send(context.Background(), env); err != nil {
		t.Errorf("Send on surviving client: %v", err)
	}
	second.Close()
	waitForClients(t, hub, 0)
}

func TestHubRejectsAfterShutdown(t *testing.T) {
	_, server, cancel := startHub(t)

	cancel()
	// Give Run a moment to close the done channel.
	time.Sleep(50 * time.Millisecond)

	// The upgrade may still succeed at the HTTP level; the hub drops the
	// connection instead of serving it.
	m, err := DialMessenger(context.Background(), wsURL(server), nil)
	if err != nil {
		return
	}
	defer m.Close()

	ctx, cancelReq := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancelReq()
	env, _ := protocol.NewEnvelope("", protocol.TypeGetStatus, nil)
	if _, err := m.Send(ctx, env); err == nil {
		t.Error("request served after hub shutdown")
	}
}
