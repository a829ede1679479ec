package distribution

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/sirupsen/logrus"
)

// Client is one live subscriber connection. Outbound frames go through a
// bounded mailbox drained by a single write pump, so a slow client only ever
// loses its own frames and never blocks delivery to anyone else.
type Client struct {
	ID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	dropped uint64
	mu      sync.Mutex
}

func NewClient(id string, mailboxSize int) *Client {
	if mailboxSize <= 0 {
		mailboxSize = 64
	}

	return &Client{
		ID:   id,
		send: make(chan []byte, mailboxSize),
		done: make(chan struct{}),
	}
}

// Enqueue offers a frame to the mailbox without blocking. A full mailbox
// drops the frame for this client only.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		c.mu.Lock()
		c.dropped++
		dropped := c.dropped
		c.mu.Unlock()

		if dropped%100 == 1 {
			logrus.WithFields(logrus.Fields{
				"client":  c.ID,
				"dropped": dropped,
			}).Warn("slow subscriber, dropping frames")
		}

		return false
	}
}

// Send exposes the mailbox for test harnesses and alternate transports.
func (c *Client) Send() <-chan []byte {
	return c.send
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WritePump drains the mailbox to the websocket connection, interleaving
// pings. Returns when the client closes or a write fails.
func (c *Client) WritePump(conn *websocket.Conn, cfg config.StreamConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logrus.WithField("client", c.ID).Debugf("write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
