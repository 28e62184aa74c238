package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn is one WebSocket connection to a single relay URL. Writes go
// through a single writer goroutine draining a send queue, matching the
// single-writer-per-connection discipline requires; gorilla's
// websocket.Conn is not safe for concurrent writers.
type conn struct {
	url string
	ws  *websocket.Conn

	send     chan []byte
	done     chan struct{}
	closeOne sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	listeners map[string]chan Inbound // sub_id -> delivery channel
	okWaiters map[string]chan Inbound // event id -> delivery channel
	closed    bool
}

// dial opens a connection and starts its writer/reader goroutines.
func dial(ctx context.Context, url string) (*conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("relay: dial %s: %w", url, err)
	}
	c := &conn{
		url:       url,
		ws:        ws,
		send:      make(chan []byte, 32),
		done:      make(chan struct{}),
		listeners: make(map[string]chan Inbound),
		okWaiters: make(map[string]chan Inbound),
	}
	c.wg.Add(2)
	go c.writer()
	go c.reader()
	return c, nil
}

func (c *conn) writer() {
	defer c.wg.Done()
	for {
		select {
		case msg := <-c.send:
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *conn) reader() {
	defer c.wg.Done()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.broadcastClose()
			return
		}
		in, err := decodeInbound(raw)
		if err != nil || in.Kind == InboundUnknown {
			continue
		}
		c.dispatch(in)
	}
}

func (c *conn) dispatch(in Inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch in.Kind {
	case InboundEvent, InboundEOSE:
		if ch, ok := c.listeners[in.SubID]; ok {
			select {
			case ch <- in:
			default:
			}
		}
	case InboundOK:
		if ch, ok := c.okWaiters[in.OKEventID]; ok {
			select {
			case ch <- in:
			default:
			}
		}
	}
}

func (c *conn) broadcastClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.listeners {
		close(ch)
	}
	for _, ch := range c.okWaiters {
		close(ch)
	}
}

// subscribe registers a delivery channel for sub_id and sends REQ.
func (c *conn) subscribe(subID string, filters []Filter) (chan Inbound, error) {
	frame, err := encodeREQ(subID, filters)
	if err != nil {
		return nil, err
	}
	ch := make(chan Inbound, 64)
	c.mu.Lock()
	c.listeners[subID] = ch
	c.mu.Unlock()
	if err := c.enqueue(frame); err != nil {
		return nil, err
	}
	return ch, nil
}

// unsubscribe sends CLOSE and unregisters the delivery channel.
func (c *conn) unsubscribe(subID string) {
	frame, err := encodeCLOSE(subID)
	if err == nil {
		_ = c.enqueue(frame)
	}
	c.mu.Lock()
	if ch, ok := c.listeners[subID]; ok {
		delete(c.listeners, subID)
		close(ch)
	}
	c.mu.Unlock()
}

// publish sends EVENT and waits for a matching OK frame or ctx expiry.
func (c *conn) publish(ctx context.Context, evID string, frame []byte) (Inbound, error) {
	ch := make(chan Inbound, 1)
	c.mu.Lock()
	c.okWaiters[evID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.okWaiters, evID)
		c.mu.Unlock()
	}()

	if err := c.enqueue(frame); err != nil {
		return Inbound{}, err
	}
	select {
	case in, ok := <-ch:
		if !ok {
			return Inbound{}, fmt.Errorf("relay: connection to %s closed before OK", c.url)
		}
		return in, nil
	case <-ctx.Done():
		return Inbound{}, ctx.Err()
	}
}

func (c *conn) enqueue(frame []byte) error {
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return fmt.Errorf("relay: connection to %s closed", c.url)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("relay: send queue to %s full", c.url)
	}
}

func (c *conn) close() error {
	c.closeOne.Do(func() { close(c.done) })
	err := c.ws.Close()
	c.wg.Wait()
	c.broadcastClose()
	return err
}
