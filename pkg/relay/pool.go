package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// Pool multiplexes a set of relay connections, one per URL; concurrent
// subscribers multiplex over each connection.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*conn
}

// NewPool constructs an empty pool; connections are established lazily
// on first use of a given URL.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*conn)}
}

func (p *Pool) connFor(ctx context.Context, url string) (*conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[url]; ok {
		return c, nil
	}
	c, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}
	p.conns[url] = c
	return c, nil
}

// PublishResult is one relay's outcome for a Publish call.
type PublishResult struct {
	URL      string
	Accepted bool
	Message  string
	Err      error
}

// Publish sends ev to every URL in relays concurrently and returns each
// relay's OK/error outcome. Callers apply their own quorum rule over the
// results (treats quorum as an executor concern, not a pool
// concern).
func (p *Pool) Publish(ctx context.Context, relays []string, ev api.Event) []PublishResult {
	results := make([]PublishResult, len(relays))
	var wg sync.WaitGroup
	for i, url := range relays {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = p.publishOne(ctx, url, ev)
		}(i, url)
	}
	wg.Wait()
	return results
}

func (p *Pool) publishOne(ctx context.Context, url string, ev api.Event) PublishResult {
	c, err := p.connFor(ctx, url)
	if err != nil {
		return PublishResult{URL: url, Err: err}
	}
	frame, err := encodeEVENT(ev)
	if err != nil {
		return PublishResult{URL: url, Err: err}
	}
	in, err := c.publish(ctx, ev.ID, frame)
	if err != nil {
		return PublishResult{URL: url, Err: err}
	}
	return PublishResult{URL: url, Accepted: in.Accepted, Message: in.Message}
}

// Subscription is a live REQ against one or more relays, fanning inbound
// events from every relay into one channel.
type Subscription struct {
	SubID string
	Out   chan Inbound

	pool  *Pool
	urls  []string
	close sync.Once
}

// Subscribe opens a REQ with the given filters against every URL in
// relays, generating a fresh sub_id () via google/uuid.
func (p *Pool) Subscribe(ctx context.Context, relays []string, filters []Filter) (*Subscription, error) {
	subID := uuid.NewString()
	out := make(chan Inbound, 256)
	sub := &Subscription{SubID: subID, Out: out, pool: p, urls: relays}

	for _, url := range relays {
		c, err := p.connFor(ctx, url)
		if err != nil {
			sub.Close()
			return nil, fmt.Errorf("relay: subscribe to %s: %w", url, err)
		}
		ch, err := c.subscribe(subID, filters)
		if err != nil {
			sub.Close()
			return nil, err
		}
		go forward(ch, out)
	}
	return sub, nil
}

func forward(in <-chan Inbound, out chan<- Inbound) {
	for msg := range in {
		out <- msg
	}
}

// Close sends CLOSE on every relay this subscription was opened against.
func (s *Subscription) Close() {
	s.close.Do(func() {
		s.pool.mu.Lock()
		conns := make([]*conn, 0, len(s.urls))
		for _, url := range s.urls {
			if c, ok := s.pool.conns[url]; ok {
				conns = append(conns, c)
			}
		}
		s.pool.mu.Unlock()
		for _, c := range conns {
			c.unsubscribe(s.SubID)
		}
	})
}

// CloseAll tears down every connection the pool holds.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for url, c := range p.conns {
		if err := c.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("relay: closing %s: %w", url, err)
		}
		delete(p.conns, url)
	}
	return firstErr
}
