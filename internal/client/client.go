package client

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/protocol"
)

const (
	// DefaultHandshakeTimeout bounds the opening handshake.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultBuffer is the number of decoded messages held for the reader.
	DefaultBuffer = 64

	writeTimeout = 5 * time.Second
	closeTimeout = time.Second
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("client closed")

// Options configures Dial. The zero value is usable.
type Options struct {
	HandshakeTimeout time.Duration
	TLSConfig        *tls.Config
	Buffer           int
}

// Client is a connection to a fieldsync server. Messages from the server
// are decoded on a background goroutine and delivered on Messages.
type Client struct {
	conn     *websocket.Conn
	messages chan protocol.ServerMessage

	writeMu sync.Mutex

	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
	err       error // set before done is closed
}

// Dial connects to a ws:// or wss:// URL.
func Dial(ctx context.Context, rawURL string, opts Options) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be ws or wss", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", rawURL)
	}

	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		TLSClientConfig:  opts.TLSConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to %s: %w (HTTP %d)", u, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("connect to %s: %w", u, err)
	}

	logging.Info("Connected to server", zap.String("url", u.String()))

	c := &Client{
		conn:     conn,
		messages: make(chan protocol.ServerMessage, opts.Buffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages delivers server messages in arrival order. It is closed when
// the connection ends.
func (c *Client) Messages() <-chan protocol.ServerMessage {
	return c.messages
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil for a normal close. It is
// only meaningful after Done is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if !isNormalClose(err) {
				select {
				case <-c.closing:
				default:
					c.err = err
				}
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			logging.Warn("Failed to decode server message", zap.Error(err))
			continue
		}

		select {
		case c.messages <- msg:
		case <-c.closing:
			return
		}
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// Send encodes and writes one client message.
func (c *Client) Send(msg protocol.ClientMessage) error {
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closing:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}
	return nil
}

// Join registers a player. An empty nickname lets the server pick one.
func (c *Client) Join(nickname string) error {
	var join protocol.Join
	if nickname != "" {
		join.Nickname = &nickname
	}
	return c.Send(join)
}

// Move requests a new position.
func (c *Client) Move(x, y float64) error {
	return c.Send(protocol.Move{X: x, Y: y})
}

// Chat sends a chat line.
func (c *Client) Chat(message string) error {
	return c.Send(protocol.Chat{Message: message})
}

// ChangeNick renames the player.
func (c *Client) ChangeNick(nickname string) error {
	return c.Send(protocol.ChangeNick{Nickname: nickname})
}

// Close sends a normal close frame, waits briefly for the server's reply
// and closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout))
		c.writeMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(closeTimeout):
		}
		err = c.conn.Close()
		<-c.done
	})
	return err
}
