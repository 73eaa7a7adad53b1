package channel

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/errkind"
	"github.com/orvi2014/classcatch/internal/protocol"
)

// Messenger sends one request envelope and waits for its reply. It is
// the only surface a page gate needs from the channel, so a gate can
// run over a live connection or fully in-process.
type Messenger interface {
	Send(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error)
}

// LocalMessenger dispatches requests in-process without a transport.
// Used by tests and by embedded clients that share the authority's
// process.
type LocalMessenger struct {
	dispatcher *Dispatcher
}

// NewLocalMessenger wraps a dispatcher as a messenger.
func NewLocalMessenger(d *Dispatcher) *LocalMessenger {
	return &LocalMessenger{dispatcher: d}
}

func (m *LocalMessenger) Send(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	return m.dispatcher.Dispatch(ctx, env), nil
}

// WSMessenger sends requests over a websocket connection to the hub and
// correlates replies by envelope ID. Once the connection drops the
// messenger is invalidated for good; callers create a fresh one after
// reconnecting.
type WSMessenger struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]chan protocol.Envelope
	closed  bool

	onInvalidate func()
	done         chan struct{}
}

// DialMessenger connects to the hub's websocket endpoint. onInvalidate,
// if non-nil, runs once when the connection is torn down for any
// reason.
func DialMessenger(ctx context.Context, url string, onInvalidate func()) (*WSMessenger, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.KindTransport, "channel.dial", "failed to connect to quota authority", err)
	}
	m := &WSMessenger{
		conn:         conn,
		pending:      make(map[string]chan protocol.Envelope),
		onInvalidate: onInvalidate,
		done:         make(chan struct{}),
	}
	go m.readLoop()
	return m, nil
}

// Send writes the envelope and blocks until the matching reply arrives,
// the context expires, or the connection dies.
func (m *WSMessenger) Send(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	if env.ID == "" {
		env.ID = uuid.NewString()
	}

	ch := make(chan protocol.Envelope, 1)
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return protocol.Envelope{}, errkind.New(errkind.KindTransport, "channel.send", "channel invalidated")
	}
	m.pending[env.ID] = ch
	err := m.conn.WriteJSON(env)
	m.mu.Unlock()
	if err != nil {
		m.forget(env.ID)
		return protocol.Envelope{}, errkind.Wrap(errkind.KindTransport, "channel.send", "failed to send request", err)
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-m.done:
		return protocol.Envelope{}, errkind.New(errkind.KindTransport, "channel.send", "channel invalidated")
	case <-ctx.Done():
		m.forget(env.ID)
		return protocol.Envelope{}, errkind.Wrap(errkind.KindTransport, "channel.send", "request timed out", ctx.Err())
	}
}

// Close tears down the connection. Pending senders are released with a
// transport error.
func (m *WSMessenger) Close() error {
	return m.conn.Close()
}

func (m *WSMessenger) readLoop() {
	defer m.invalidate()
	for {
		var env protocol.Envelope
		if err := m.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Channel connection lost")
			}
			return
		}
		m.mu.Lock()
		ch, ok := m.pending[env.ID]
		if ok {
			delete(m.pending, env.ID)
		}
		m.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (m *WSMessenger) invalidate() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.pending = make(map[string]chan protocol.Envelope)
	m.mu.Unlock()

	close(m.done)
	_ = m.conn.Close()
	if m.onInvalidate != nil {
		m.onInvalidate()
	}
}

func (m *WSMessenger) forget(id string) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}
