// Package feed owns the WebSocket connection to the market-data feed: the
// connect/subscribe/reconnect state machine, frame decoding, and dispatch of
// book updates into the book manager.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/updownbot/internal/book"
	"github.com/alanyoungcy/updownbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// BookListener receives every snapshot produced from an inbound frame.
type BookListener func(domain.BookSnapshot)

// Connection maintains the WebSocket connection to the feed. After Start it
// keeps the connection alive with exponential backoff until Stop, re-sending
// the subscription for the currently configured asset IDs on every
// (re)connect. Inbound frames are decoded and applied to the book manager;
// the resulting snapshot is handed to registered book listeners.
type Connection struct {
	wsURL  string
	books  *book.Manager
	logger *slog.Logger

	mu       sync.Mutex // guards conn and assetIDs
	conn     *websocket.Conn
	assetIDs []string

	// writeMu serializes data writes to conn: the transport allows at most
	// one concurrent writer, and pings race re-subscriptions otherwise.
	writeMu sync.Mutex

	state atomic.Int32

	listenerMu   sync.RWMutex
	onBook       []BookListener
	onConnect    []func()
	onDisconnect []func()

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConnection creates a Connection that writes decoded book updates into
// books. wsURL is the full market-channel endpoint.
func NewConnection(wsURL string, books *book.Manager, logger *slog.Logger) *Connection {
	return &Connection{
		wsURL:  wsURL,
		books:  books,
		logger: logger.With(slog.String("component", "feed")),
		done:   make(chan struct{}),
	}
}

// OnBookUpdate registers a listener fired for every published snapshot.
// Listeners run synchronously on the receive loop, in registration order.
func (c *Connection) OnBookUpdate(fn BookListener) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onBook = append(c.onBook, fn)
}

// OnConnect registers a listener fired after every successful (re)connect.
func (c *Connection) OnConnect(fn func()) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers a listener fired when the connection drops.
func (c *Connection) OnDisconnect(fn func()) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the transport is currently up.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Start begins the connect/receive loop subscribed to the given asset IDs.
// A failed first connect is not fatal: the loop keeps retrying with backoff
// until Stop is called.
func (c *Connection) Start(ctx context.Context, assetIDs []string) error {
	if c.State() == StateStopped {
		return fmt.Errorf("feed: start: %w", domain.ErrWSDisconnect)
	}

	c.mu.Lock()
	c.assetIDs = append([]string(nil), assetIDs...)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run(ctx)
	return nil
}

// SetAssetIDs re-subscribes the live connection to a new set of asset IDs.
// If the subscription cannot be written, the connection is torn down and the
// reconnect path re-subscribes with the new IDs.
func (c *Connection) SetAssetIDs(assetIDs []string) {
	c.mu.Lock()
	c.assetIDs = append([]string(nil), assetIDs...)
	conn := c.conn
	ids := c.assetIDs
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if err := c.writeCommand(conn, wsCommand{Type: "subscribe", Channel: "market", AssetIDs: ids}); err != nil {
		c.logger.Warn("re-subscribe failed, forcing reconnect", slog.String("error", err.Error()))
		conn.Close()
	}
}

// Stop cancels retries and closes the transport. Idempotent.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
		}
		c.mu.Unlock()
		c.wg.Wait()
		c.state.Store(int32(StateStopped))
	})
}

// run is the connection supervisor: connect, subscribe, read until failure,
// back off, repeat. It exits only on Stop or context cancellation.
func (c *Connection) run(ctx context.Context) {
	defer c.wg.Done()

	delay := reconnectDelay
	first := true

	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if first {
			c.state.Store(int32(StateConnecting))
			first = false
		} else {
			c.state.Store(int32(StateReconnecting))
		}

		conn, err := c.connect(ctx)
		if err != nil {
			c.logger.Warn("feed connect failed",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", delay),
			)
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		delay = reconnectDelay

		c.state.Store(int32(StateConnected))
		c.fireConnect()

		pingDone := make(chan struct{})
		go c.pingLoop(conn, pingDone)

		readErr := c.readLoop(conn)
		close(pingDone)
		conn.Close()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		c.fireDisconnect()

		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		c.logger.Warn("feed disconnected, reconnecting", slog.String("error", readErr.Error()))
	}
}

// connect dials the endpoint and sends the subscription for the currently
// configured asset IDs.
func (c *Connection) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	ids := c.assetIDs
	c.mu.Unlock()

	if err := c.writeCommand(conn, wsCommand{Type: "subscribe", Channel: "market", AssetIDs: ids}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	c.logger.Info("feed subscribed", slog.Int("assets", len(ids)))
	return conn, nil
}

// readLoop reads frames until the connection fails or Stop closes it.
func (c *Connection) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(raw)
	}
}

// pingLoop keeps the connection alive until done is closed.
func (c *Connection) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one inbound frame, applies it to the book manager,
// and hands the resulting snapshot to the book listeners. Malformed frames
// are dropped with a log line; the receive loop always survives.
func (c *Connection) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Debug("dropping malformed frame", slog.String("error", err.Error()))
		return
	}

	switch env.EventType {
	case "book":
		var msg bookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("dropping malformed book frame", slog.String("error", err.Error()))
			return
		}
		snap := c.books.ApplyFullBook(msg.AssetID, parseLevels(msg.Bids), parseLevels(msg.Asks))
		c.fireBook(snap)

	case "price_change":
		var msg priceChangeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug("dropping malformed price_change frame", slog.String("error", err.Error()))
			return
		}
		price, perr := parseFloat(msg.Price)
		size, serr := parseFloat(msg.Size)
		if perr != nil || serr != nil {
			c.logger.Debug("dropping price_change with bad numbers",
				slog.String("price", msg.Price),
				slog.String("size", msg.Size),
			)
			return
		}
		snap := c.books.ApplyDelta(msg.AssetID, domain.OrderSide(msg.Side), price, size)
		c.fireBook(snap)
	}
}

func (c *Connection) writeCommand(conn *websocket.Conn, cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) fireBook(snap domain.BookSnapshot) {
	c.listenerMu.RLock()
	listeners := c.onBook
	c.listenerMu.RUnlock()

	for _, fn := range listeners {
		c.safeCall(func() { fn(snap) })
	}
}

func (c *Connection) fireConnect() {
	c.listenerMu.RLock()
	listeners := c.onConnect
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		c.safeCall(fn)
	}
}

func (c *Connection) fireDisconnect() {
	c.listenerMu.RLock()
	listeners := c.onDisconnect
	c.listenerMu.RUnlock()
	for _, fn := range listeners {
		c.safeCall(fn)
	}
}

// safeCall shields the receive loop from listener panics.
func (c *Connection) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked", slog.Any("panic", r))
		}
	}()
	fn()
}
