package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/itskum47/judgeforge/internal/observability"
)

// pendingCall is a request awaiting its response.
type pendingCall struct {
	resultCh chan Response
}

// Client is a RemoteServiceClient: it dials one ServiceCoord, optionally
// auto-retries at a fixed interval, and resolves outstanding calls via a
// pending-request map keyed by request id. Reconnection never replays
// pending requests — on disconnect, every outstanding future resolves with
// a transport error (§4.1).
type Client struct {
	coord    ServiceCoord
	resolver *Resolver

	retryInterval time.Duration

	mu      sync.Mutex
	fc      *frameConn
	pending map[string]*pendingCall
	closed  bool

	onConnect    []func()
	onDisconnect []func()
}

// NewClient creates a client for coord. A retryInterval of 0 disables
// automatic reconnection.
func NewClient(coord ServiceCoord, resolver *Resolver, retryInterval time.Duration) *Client {
	return &Client{
		coord:         coord,
		resolver:      resolver,
		retryInterval: retryInterval,
		pending:       make(map[string]*pendingCall),
	}
}

// OnConnect registers a callback for connection establishment.
func (c *Client) OnConnect(h func()) { c.mu.Lock(); c.onConnect = append(c.onConnect, h); c.mu.Unlock() }

// OnDisconnect registers a callback for connection termination.
func (c *Client) OnDisconnect(h func()) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, h)
	c.mu.Unlock()
}

// Connected reports whether the client currently has a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fc != nil
}

// Start dials the endpoint, retrying every retryInterval until ctx is
// cancelled or a connection succeeds permanently (subsequent drops also
// trigger reconnection while ctx is live).
func (c *Client) Start(ctx context.Context) {
	go c.maintain(ctx)
}

func (c *Client) maintain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !c.Connected() {
			if err := c.dialOnce(ctx); err != nil {
				log.Printf("rpc client %s: dial failed: %v", c.coord, err)
			}
		}
		if c.retryInterval <= 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.retryInterval):
		}
	}
}

func (c *Client) dialOnce(ctx context.Context) error {
	addr, err := c.resolver.Resolve(c.coord)
	if err != nil {
		return err
	}
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return err
	}
	fc := newFrameConn(conn)

	c.mu.Lock()
	c.fc = fc
	handlers := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	for _, h := range handlers {
		go h()
	}

	go c.readLoop(fc)
	return nil
}

func (c *Client) readLoop(fc *frameConn) {
	for {
		var resp Response
		if err := fc.readJSON(&resp); err != nil {
			c.handleDisconnect(fc, err)
			return
		}
		c.mu.Lock()
		call, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()
		if !ok {
			log.Printf("rpc client %s: response for unknown request id %s dropped", c.coord, resp.ID)
			continue
		}
		call.resultCh <- resp
	}
}

func (c *Client) handleDisconnect(fc *frameConn, reason error) {
	c.mu.Lock()
	if c.fc != fc {
		// Already superseded by a newer connection.
		c.mu.Unlock()
		return
	}
	c.fc = nil
	pending := c.pending
	c.pending = make(map[string]*pendingCall)
	handlers := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()

	for _, call := range pending {
		msg := fmt.Sprintf("transport error: %v", reason)
		call.resultCh <- Response{Error: &msg}
	}
	for _, h := range handlers {
		go h()
	}
}

// Call issues a synchronous future-returning RPC call and waits for the
// result or ctx cancellation. Per the source's "one future-returning API"
// redesign, callers who want a callback build a thin wrapper around Call.
func (c *Client) Call(ctx context.Context, method string, args any, result any) error {
	start := time.Now()
	err := c.call(ctx, method, args, result)
	observability.RPCCallDuration.WithLabelValues(c.coord.Name, method).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RPCCallFailures.WithLabelValues(c.coord.Name, method).Inc()
	}
	return err
}

func (c *Client) call(ctx context.Context, method string, args any, result any) error {
	c.mu.Lock()
	fc := c.fc
	if fc == nil {
		c.mu.Unlock()
		return fmt.Errorf("rpc client %s: not connected", c.coord)
	}
	data, err := json.Marshal(args)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("encoding request args: %w", err)
	}
	id := uuid.NewString()
	call := &pendingCall{resultCh: make(chan Response, 1)}
	c.pending[id] = call
	c.mu.Unlock()

	req := Request{ID: id, Method: method, Data: data}
	if err := fc.writeJSON(req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("rpc client %s: write failed: %w", c.coord, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case resp := <-call.resultCh:
		if resp.Error != nil {
			return fmt.Errorf("%s", *resp.Error)
		}
		if result != nil && len(resp.Data) > 0 {
			return json.Unmarshal(resp.Data, result)
		}
		return nil
	}
}

// CallAsync attaches an on-complete callback to Call, for callers who
// prefer not to block.
func (c *Client) CallAsync(ctx context.Context, method string, args any, result any, done func(error)) {
	go func() {
		done(c.Call(ctx, method, args, result))
	}()
}

// Close tears down the current connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	fc := c.fc
	c.closed = true
	c.mu.Unlock()
	if fc != nil {
		return fc.Close()
	}
	return nil
}
