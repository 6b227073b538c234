package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"nado_bot/pkg/logger"
)

const wsPingEvery = 25 * time.Second

// wsTransport — запрос/ответ поверх одного соединения gateway.
// Вызовы сериализуются мьютексом, поэтому ответ всегда относится к последнему запросу.
type wsTransport struct {
	url     string
	dialer  *websocket.Dialer
	timeout time.Duration

	mu       sync.Mutex
	conn     *websocket.Conn
	stopPing chan struct{}
}

func dialWS(ctx context.Context, url string, timeout time.Duration) (*wsTransport, error) {
	t := &wsTransport{
		url:     url,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout, EnableCompression: true},
		timeout: timeout,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connectLocked(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *wsTransport) Mode() Mode { return ModeWS }

func (t *wsTransport) connectLocked(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.url, http.Header{})
	if err != nil {
		return errors.Wrapf(err, "ws dial %s", t.url)
	}
	t.conn = conn
	t.stopPing = make(chan struct{})
	go t.keepalive(conn, t.stopPing)
	return nil
}

// keepalive шлёт ping, иначе gateway рвёт простаивающее соединение.
func (t *wsTransport) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	tk := time.NewTicker(wsPingEvery)
	defer tk.Stop()
	for {
		select {
		case <-stop:
			return
		case <-tk.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.timeout)); err != nil {
				logger.Warn("[WS] ping %s: %v", t.url, err)
				return
			}
		}
	}
}

func (t *wsTransport) dropLocked() {
	if t.conn == nil {
		return
	}
	close(t.stopPing)
	_ = t.conn.Close()
	t.conn = nil
}

func (t *wsTransport) roundTrip(ctx context.Context, req any, out any) error {
	payload, err := sonic.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "ws marshal")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		if err := t.connectLocked(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.dropLocked()
		return errors.Wrap(err, "ws write")
	}
	_ = t.conn.SetReadDeadline(deadline)
	_, msg, err := t.conn.ReadMessage()
	if err != nil {
		t.dropLocked()
		return errors.Wrap(err, "ws read")
	}

	var env envelope
	if err := sonic.Unmarshal(msg, &env); err != nil {
		return errors.Wrap(err, "ws decode envelope")
	}
	return checkEnvelope(env, out)
}

func (t *wsTransport) Query(ctx context.Context, q Query, out any) error {
	return t.roundTrip(ctx, q, out)
}

func (t *wsTransport) Execute(ctx context.Context, payload any, out any) error {
	return t.roundTrip(ctx, payload, out)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropLocked()
	return nil
}
