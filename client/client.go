// Package salesclient is the client-side mirror of internal/session: a
// demultiplexer that lets one TCP connection carry many concurrent
// outstanding requests (§4.2). One reader goroutine dispatches every
// incoming frame to the caller waiting on its correlation tag; callers never
// read the connection directly.
//
// Grounded on SagerNet-smux's Session: a single recvLoop goroutine, a table
// of waiters keyed by an identifier (streams there, tags here), and
// sync.Once-guarded propagation of a terminal read error to every waiter.
// Unlike smux, there is exactly one "stream" concept here (a tag is a
// one-shot request, not a long-lived byte stream), so the waiter table holds
// channels directly instead of stream objects.
package salesclient

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adred-codev/salesd/internal/wire"
)

// ShortTimeout is used for operations that complete quickly (§4.2).
const ShortTimeout = 30 * time.Second

// LongTimeout is used for WAIT_SIMUL/WAIT_CONSEC, which legitimately block
// until a day boundary (§4.2).
const LongTimeout = 24 * time.Hour

// Sale mirrors internal/storage.Sale for FILTER responses, decoded from the
// wire's dictionary encoding (§4.5).
type Sale struct {
	Product string
	Qty     int32
	Price   float64
}

type response struct {
	typ     int32
	payload []byte
}

// Client is one connection's demultiplexer.
type Client struct {
	stream *wire.Stream

	nextTag int32

	mu      sync.Mutex
	pending map[int32]chan response

	closeOnce sync.Once
	done      chan struct{}
	termErr   atomic.Value // error
}

// Dial connects to a salesd server and starts the reader goroutine.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("salesclient: dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	c := &Client{
		stream:  wire.NewStream(conn),
		pending: make(map[int32]chan response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the underlying connection. Safe to call more than once.
func (c *Client) Close() error {
	return c.stream.Close()
}

func (c *Client) readLoop() {
	for {
		frame, err := c.stream.Receive()
		if err != nil {
			c.terminate(err)
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.Tag]
		if ok {
			delete(c.pending, frame.Tag)
		}
		c.mu.Unlock()

		if !ok {
			// Either the caller timed out and already removed this tag, or
			// the server echoed a tag we never registered. Either way, the
			// frame is dropped (§4.2).
			continue
		}
		ch <- response{typ: frame.Type, payload: frame.Payload}
	}
}

// terminate propagates a terminal stream error to every outstanding waiter
// and marks the client dead for future calls (§4.2 "the reader ... records
// the error, wakes every waiter, and terminates").
func (c *Client) terminate(err error) {
	c.closeOnce.Do(func() {
		c.termErr.Store(err)
		c.mu.Lock()
		for tag, ch := range c.pending {
			close(ch)
			delete(c.pending, tag)
		}
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) terminalError() error {
	if v := c.termErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// call registers a tag, sends the request, and waits for either a matching
// response, the given timeout, or a terminal stream error.
func (c *Client) call(op wire.Op, payload []byte, timeout time.Duration) ([]byte, error) {
	if err := c.terminalError(); err != nil {
		return nil, err
	}

	tag := atomic.AddInt32(&c.nextTag, 1)
	ch := make(chan response, 1)

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return nil, c.terminalError()
	default:
	}
	c.pending[tag] = ch
	c.mu.Unlock()

	if err := c.stream.Send(tag, int32(op), payload); err != nil {
		c.mu.Lock()
		delete(c.pending, tag)
		c.mu.Unlock()
		return nil, fmt.Errorf("salesclient: send: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, c.terminalError()
		}
		if resp.typ == wire.StatusErr {
			return nil, errors.New(string(resp.payload))
		}
		return resp.payload, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, tag)
		c.mu.Unlock()
		return nil, fmt.Errorf("salesclient: timed out waiting for tag %d", tag)
	}
}

// Register creates a user account. Returns true if created, false if the
// user already existed.
func (c *Client) Register(user, pass string) (bool, error) {
	payload, err := c.call(wire.OpRegister, wire.NewPayloadWriter().UTF(user).UTF(pass).Bytes(), ShortTimeout)
	if err != nil {
		return false, err
	}
	return len(payload) > 0 && payload[0] == 1, nil
}

// Login authenticates the connection as user.
func (c *Client) Login(user, pass string) (bool, error) {
	payload, err := c.call(wire.OpLogin, wire.NewPayloadWriter().UTF(user).UTF(pass).Bytes(), ShortTimeout)
	if err != nil {
		return false, err
	}
	return len(payload) > 0 && payload[0] == 1, nil
}

// AddEvent appends one sale to the current day.
func (c *Client) AddEvent(product string, qty int32, price float64) error {
	_, err := c.call(wire.OpAddEvent, wire.NewPayloadWriter().UTF(product).Int(qty).Double(price).Bytes(), ShortTimeout)
	return err
}

// NewDay closes the current day and opens the next one.
func (c *Client) NewDay() error {
	_, err := c.call(wire.OpNewDay, nil, ShortTimeout)
	return err
}

func (c *Client) aggregate(op wire.Op, product string, days int32) (float64, error) {
	payload, err := c.call(op, wire.NewPayloadWriter().UTF(product).Int(days).Bytes(), ShortTimeout)
	if err != nil {
		return 0, err
	}
	r := wire.NewPayloadReader(payload)
	return r.Double()
}

// AggregateQty returns AGGR_QTY(product, days).
func (c *Client) AggregateQty(product string, days int32) (float64, error) {
	return c.aggregate(wire.OpAggrQty, product, days)
}

// AggregateVol returns AGGR_VOL(product, days).
func (c *Client) AggregateVol(product string, days int32) (float64, error) {
	return c.aggregate(wire.OpAggrVol, product, days)
}

// AggregateAvg returns AGGR_AVG(product, days).
func (c *Client) AggregateAvg(product string, days int32) (float64, error) {
	return c.aggregate(wire.OpAggrAvg, product, days)
}

// AggregateMax returns AGGR_MAX(product, days).
func (c *Client) AggregateMax(product string, days int32) (float64, error) {
	return c.aggregate(wire.OpAggrMax, product, days)
}

// Filter returns every sale of day whose product is in products, decoding
// the dictionary-compressed wire response back into plain Sales (§4.5).
func (c *Client) Filter(day int32, products []string) ([]Sale, error) {
	w := wire.NewPayloadWriter().Int(day).Int(int32(len(products)))
	for _, p := range products {
		w.UTF(p)
	}
	payload, err := c.call(wire.OpFilter, w.Bytes(), ShortTimeout)
	if err != nil {
		return nil, err
	}

	r := wire.NewPayloadReader(payload)
	dictSize, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("salesclient: decode filter response: %w", err)
	}
	dict := make([]string, dictSize)
	for i := range dict {
		if dict[i], err = r.UTF(); err != nil {
			return nil, fmt.Errorf("salesclient: decode filter response: %w", err)
		}
	}
	numEvents, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("salesclient: decode filter response: %w", err)
	}
	sales := make([]Sale, numEvents)
	for i := range sales {
		idx, err := r.Int()
		if err != nil {
			return nil, fmt.Errorf("salesclient: decode filter response: %w", err)
		}
		qty, err := r.Int()
		if err != nil {
			return nil, fmt.Errorf("salesclient: decode filter response: %w", err)
		}
		price, err := r.Double()
		if err != nil {
			return nil, fmt.Errorf("salesclient: decode filter response: %w", err)
		}
		if int(idx) < 0 || int(idx) >= len(dict) {
			return nil, fmt.Errorf("salesclient: filter response dictionary index %d out of range", idx)
		}
		sales[i] = Sale{Product: dict[idx], Qty: qty, Price: price}
	}
	return sales, nil
}

// WaitSimultaneous blocks (up to LongTimeout) until both products have sold
// at least once today, or the day ends.
func (c *Client) WaitSimultaneous(p1, p2 string) (bool, error) {
	payload, err := c.call(wire.OpWaitSimul, wire.NewPayloadWriter().UTF(p1).UTF(p2).Bytes(), LongTimeout)
	if err != nil {
		return false, err
	}
	return len(payload) > 0 && payload[0] == 1, nil
}

// WaitConsecutive blocks (up to LongTimeout) until some product reaches a
// streak of exactly n same-product sales today, or the day ends. ok is false
// if the day ended first.
func (c *Client) WaitConsecutive(n int32) (product string, ok bool, err error) {
	payload, err := c.call(wire.OpWaitConsec, wire.NewPayloadWriter().Int(n).Bytes(), LongTimeout)
	if err != nil {
		return "", false, err
	}
	r := wire.NewPayloadReader(payload)
	product, err = r.UTF()
	if err != nil {
		return "", false, fmt.Errorf("salesclient: decode wait_consec response: %w", err)
	}
	return product, product != "", nil
}

// GetCurrentDay returns the server's open day number.
func (c *Client) GetCurrentDay() (int32, error) {
	payload, err := c.call(wire.OpGetCurrentDay, nil, ShortTimeout)
	if err != nil {
		return 0, err
	}
	r := wire.NewPayloadReader(payload)
	return r.Int()
}
