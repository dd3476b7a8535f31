package transport

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport talks to the positioner firmware's /ws endpoint. Every text
// message is one command; replies may carry several lines ("123\nOK").
type wsTransport struct {
	url         string
	conn        *websocket.Conn
	readTimeout time.Duration

	lines chan string
	done  chan struct{}

	mu      sync.Mutex
	readErr error
	closed  bool
}

// DialWebSocket connects to a positioner over its websocket endpoint,
// e.g. ws://192.168.1.19:8080/ws.
func DialWebSocket(url string, readTimeout time.Duration) (Transport, error) {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	t := &wsTransport{
		url:         url,
		conn:        conn,
		readTimeout: readTimeout,
		lines:       make(chan string, 64),
		done:        make(chan struct{}),
	}
	go t.readLoop()
	log.Printf("websocket: connected to %s", url)
	return t, nil
}

// readLoop owns all reads; gorilla connections do not survive a read
// deadline, so timeouts are applied on the channel side instead.
func (t *wsTransport) readLoop() {
	defer close(t.lines)
	for {
		kind, payload, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.readErr = err
			}
			t.mu.Unlock()
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		for _, line := range splitLines(payload) {
			select {
			case t.lines <- line:
			case <-t.done:
				return
			}
		}
	}
}

func (t *wsTransport) ReadLine() (string, error) {
	timer := time.NewTimer(t.readTimeout)
	defer timer.Stop()
	select {
	case line, ok := <-t.lines:
		if !ok {
			t.mu.Lock()
			defer t.mu.Unlock()
			if t.readErr != nil {
				return "", fmt.Errorf("read %s: %w", t.url, t.readErr)
			}
			return "", ErrClosed
		}
		return line, nil
	case <-timer.C:
		return "", nil
	}
}

func (t *wsTransport) WriteLine(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write %s: %w", t.url, err)
	}
	return nil
}

func (t *wsTransport) DiscardInput() error {
	for {
		select {
		case _, ok := <-t.lines:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return t.conn.Close()
}
