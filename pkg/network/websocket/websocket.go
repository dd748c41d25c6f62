// Package websocket wraps gorilla connections into a pair of
// reader and writer pumps with a bounded send queue.
package websocket

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/edgeviewer/edgeviewer/pkg/com"
	"github.com/edgeviewer/edgeviewer/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 10 * 1024
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
	sendQueue      = 3
)

var (
	ErrClosed = errors.New("connection closed")
	ErrBusy   = errors.New("send queue is full")
)

type Options struct {
	SendQueue int
	PingPong  bool
	PongTime  time.Duration
	WriteWait time.Duration
	ReadLimit int64
}

func (o *Options) defaults() {
	if o.SendQueue <= 0 {
		o.SendQueue = sendQueue
	}
	if o.PongTime <= 0 {
		o.PongTime = pongTime
	}
	if o.WriteWait <= 0 {
		o.WriteWait = writeWait
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = maxMessageSize
	}
}

type Connection struct {
	id   com.Uid
	conn deadlinedConn
	send chan []byte
	opts Options

	// OnMessage is called from the reader pump, it should be set before Listen.
	OnMessage func(message []byte, err error)

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	log  *logger.Logger
}

type Upgrader struct {
	websocket.Upgrader
}

// DefaultUpgrader accepts viewers from any origin.
var DefaultUpgrader = Upgrader{Upgrader: websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
	CheckOrigin:     func(*http.Request) bool { return true },
}}

// Upgrade makes a server side connection with ping/pong keepalive.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, opts Options, log *logger.Logger) (*Connection, error) {
	conn, err := u.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	opts.PingPong = true
	return newConnection(conn, opts, log), nil
}

func NewClient(address url.URL, opts Options, log *logger.Logger) (*Connection, error) {
	conn, _, err := websocket.DefaultDialer.Dial(address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newConnection(conn, opts, log), nil
}

func newConnection(conn *websocket.Conn, opts Options, log *logger.Logger) *Connection {
	opts.defaults()
	id := com.NewUid()
	return &Connection{
		id:   id,
		conn: deadlinedConn{sock: conn, wt: opts.WriteWait},
		send: make(chan []byte, opts.SendQueue),
		opts: opts,
		done: make(chan struct{}),
		log:  log.Extend(log.With().Str(logger.ClientField, id.Short())),
	}
}

func (c *Connection) Id() com.Uid { return c.id }

// Listen starts the pumps.
func (c *Connection) Listen() {
	c.wg.Add(2)
	go c.writer()
	go c.reader()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (c *Connection) reader() {
	defer func() {
		c.wg.Done()
		c.Close()
		c.log.Debug().Msg("WS reader closed")
	}()
	c.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(c.opts.ReadLimit)
		if c.opts.PingPong {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongTime))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(c.opts.PongTime))
			})
		}
	})
	for {
		message, err := c.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("WS read")
			}
			return
		}
		if c.OnMessage != nil {
			c.OnMessage(message, nil)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (c *Connection) writer() {
	var tick <-chan time.Time
	if c.opts.PingPong {
		ticker := time.NewTicker(c.opts.PongTime * 9 / 10)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		c.wg.Done()
		c.Close()
		_ = c.conn.close()
		c.log.Debug().Msg("WS writer closed")
	}()
	for {
		select {
		case message := <-c.send:
			if err := c.conn.write(websocket.TextMessage, message); err != nil {
				c.log.Debug().Err(err).Msg("WS write")
				return
			}
		case <-tick:
			if err := c.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message, blocking while the queue is full.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// TrySend queues a message or fails right away.
func (c *Connection) TrySend(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBusy
	}
}

// Close stops the pumps, it's safe to call many times.
func (c *Connection) Close() { c.once.Do(func() { close(c.done) }) }

// Wait blocks until both pumps have exited.
func (c *Connection) Wait() { c.wg.Wait() }

func (c *Connection) Done() <-chan struct{} { return c.done }
