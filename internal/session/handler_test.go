package session

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/salesd/internal/auth"
	"github.com/adred-codev/salesd/internal/metrics"
	"github.com/adred-codev/salesd/internal/notify"
	"github.com/adred-codev/salesd/internal/storage"
	"github.com/adred-codev/salesd/internal/wire"
	"github.com/adred-codev/salesd/internal/workerpool"
)

func newTestHandler(t *testing.T, window int) *Handler {
	t.Helper()
	storeEngine, err := storage.New(t.TempDir(), 10, window, zerolog.Nop())
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	authStore, err := auth.Open(t.TempDir())
	if err != nil {
		t.Fatalf("auth.Open: %v", err)
	}
	pool := workerpool.New(4, zerolog.Nop())
	pool.Start()
	t.Cleanup(pool.Stop)

	return &Handler{
		Storage:            storeEngine,
		Notify:             notify.New(),
		Auth:               authStore,
		Pool:               pool,
		Metrics:            metrics.New(),
		Logger:             zerolog.Nop(),
		Window:             window,
		ReadTimeout:        time.Second,
		RateLimitPerSecond: 10000,
		RateLimitBurst:     10000,
	}
}

// dial returns a client-side *wire.Stream whose peer is served by h.Serve in
// its own goroutine, connected over an in-memory net.Pipe.
func dial(t *testing.T, h *Handler) *wire.Stream {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go h.Serve(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	return wire.NewStream(clientConn)
}

func call(t *testing.T, s *wire.Stream, tag int32, op wire.Op, payload []byte) wire.Frame {
	t.Helper()
	if err := s.Send(tag, int32(op), payload); err != nil {
		t.Fatalf("send: %v", err)
	}
	frame, err := s.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if frame.Tag != tag {
		t.Fatalf("got tag %d, want %d", frame.Tag, tag)
	}
	return frame
}

func TestRegisterLoginFlow(t *testing.T) {
	h := newTestHandler(t, 365)
	s := dial(t, h)

	resp := call(t, s, 1, wire.OpRegister, wire.NewPayloadWriter().UTF("alice").UTF("pw").Bytes())
	if resp.Type != wire.StatusOK || resp.Payload[0] != 1 {
		t.Fatalf("register = %+v, want OK/1", resp)
	}

	resp = call(t, s, 2, wire.OpLogin, wire.NewPayloadWriter().UTF("alice").UTF("pw").Bytes())
	if resp.Type != wire.StatusOK || resp.Payload[0] != 1 {
		t.Fatalf("login = %+v, want OK/1", resp)
	}

	resp = call(t, s, 3, wire.OpRegister, wire.NewPayloadWriter().UTF("alice").UTF("other").Bytes())
	if resp.Type != wire.StatusOK || resp.Payload[0] != 0 {
		t.Fatalf("duplicate register = %+v, want OK/0", resp)
	}

	resp = call(t, s, 4, wire.OpLogin, wire.NewPayloadWriter().UTF("alice").UTF("bad").Bytes())
	if resp.Type != wire.StatusOK || resp.Payload[0] != 0 {
		t.Fatalf("bad login = %+v, want OK/0", resp)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	h := newTestHandler(t, 365)
	s := dial(t, h)

	resp := call(t, s, 1, wire.OpAddEvent, wire.NewPayloadWriter().UTF("A").Int(1).Double(1.0).Bytes())
	if resp.Type != wire.StatusErr {
		t.Fatalf("expected 500 before auth, got %+v", resp)
	}
}

func login(t *testing.T, s *wire.Stream, tag int32, user string) {
	t.Helper()
	call(t, s, tag, wire.OpRegister, wire.NewPayloadWriter().UTF(user).UTF("pw").Bytes())
	resp := call(t, s, tag+1, wire.OpLogin, wire.NewPayloadWriter().UTF(user).UTF("pw").Bytes())
	if resp.Payload[0] != 1 {
		t.Fatalf("login failed for %s", user)
	}
}

func TestSingleDayAggregationOverWire(t *testing.T) {
	h := newTestHandler(t, 365)
	s := dial(t, h)
	login(t, s, 1, "alice")

	call(t, s, 10, wire.OpAddEvent, wire.NewPayloadWriter().UTF("A").Int(10).Double(5.0).Bytes())
	call(t, s, 11, wire.OpAddEvent, wire.NewPayloadWriter().UTF("A").Int(5).Double(10.0).Bytes())
	resp := call(t, s, 12, wire.OpNewDay, nil)
	if resp.Type != wire.StatusOK {
		t.Fatalf("new_day failed: %+v", resp)
	}

	resp = call(t, s, 13, wire.OpAggrQty, wire.NewPayloadWriter().UTF("A").Int(1).Bytes())
	r := wire.NewPayloadReader(resp.Payload)
	qty, _ := r.Double()
	if qty != 15 {
		t.Errorf("AGGR_QTY = %v, want 15", qty)
	}

	resp = call(t, s, 14, wire.OpAggrVol, wire.NewPayloadWriter().UTF("A").Int(1).Bytes())
	r = wire.NewPayloadReader(resp.Payload)
	vol, _ := r.Double()
	if vol != 100.0 {
		t.Errorf("AGGR_VOL = %v, want 100.0", vol)
	}
}

func TestAggregateRejectsOutOfRangeDays(t *testing.T) {
	h := newTestHandler(t, 10)
	s := dial(t, h)
	login(t, s, 1, "alice")

	resp := call(t, s, 10, wire.OpAggrQty, wire.NewPayloadWriter().UTF("A").Int(0).Bytes())
	if resp.Type != wire.StatusErr {
		t.Fatalf("expected 500 for days=0, got %+v", resp)
	}
	resp = call(t, s, 11, wire.OpAggrQty, wire.NewPayloadWriter().UTF("A").Int(11).Bytes())
	if resp.Type != wire.StatusErr {
		t.Fatalf("expected 500 for days>D, got %+v", resp)
	}
}

func TestFilterRoundTripOverWire(t *testing.T) {
	h := newTestHandler(t, 365)
	s := dial(t, h)
	login(t, s, 1, "alice")

	call(t, s, 10, wire.OpAddEvent, wire.NewPayloadWriter().UTF("A").Int(1).Double(1.5).Bytes())
	call(t, s, 11, wire.OpAddEvent, wire.NewPayloadWriter().UTF("B").Int(2).Double(2.5).Bytes())
	call(t, s, 12, wire.OpNewDay, nil)

	req := wire.NewPayloadWriter().Int(0).Int(2).UTF("A").UTF("B").Bytes()
	resp := call(t, s, 13, wire.OpFilter, req)
	if resp.Type != wire.StatusOK {
		t.Fatalf("filter failed: %s", resp.Payload)
	}

	r := wire.NewPayloadReader(resp.Payload)
	dictSize, _ := r.Int()
	dict := make([]string, dictSize)
	for i := range dict {
		dict[i], _ = r.UTF()
	}
	numEvents, _ := r.Int()
	if numEvents != 2 {
		t.Fatalf("numEvents = %d, want 2", numEvents)
	}
	idx, _ := r.Int()
	qty, _ := r.Int()
	price, _ := r.Double()
	if dict[idx] != "A" || qty != 1 || price != 1.5 {
		t.Errorf("event 0 = (%s, %d, %v), want (A, 1, 1.5)", dict[idx], qty, price)
	}
}

func TestFilterRejectsOpenDay(t *testing.T) {
	h := newTestHandler(t, 365)
	s := dial(t, h)
	login(t, s, 1, "alice")

	req := wire.NewPayloadWriter().Int(0).Int(0).Bytes()
	resp := call(t, s, 10, wire.OpFilter, req)
	if resp.Type != wire.StatusErr {
		t.Fatalf("expected 500 filtering the open day, got %+v", resp)
	}
}

func TestWaitConsecLateSubscriber(t *testing.T) {
	h := newTestHandler(t, 365)
	s := dial(t, h)
	login(t, s, 1, "alice")

	for i := 0; i < 3; i++ {
		call(t, s, int32(10+i), wire.OpAddEvent, wire.NewPayloadWriter().UTF("Orange").Int(1).Double(0.5).Bytes())
	}

	resp := call(t, s, 20, wire.OpWaitConsec, wire.NewPayloadWriter().Int(3).Bytes())
	if resp.Type != wire.StatusOK {
		t.Fatalf("wait_consec failed: %s", resp.Payload)
	}
	r := wire.NewPayloadReader(resp.Payload)
	product, _ := r.UTF()
	if product != "Orange" {
		t.Errorf("wait_consec winner = %q, want Orange", product)
	}
}

func TestWaitSimulAcrossConnections(t *testing.T) {
	h := newTestHandler(t, 365)
	x := dial(t, h)
	y := dial(t, h)
	login(t, x, 1, "x")
	login(t, y, 1, "y")

	done := make(chan wire.Frame, 1)
	go func() {
		resp := call(t, x, 50, wire.OpWaitSimul, wire.NewPayloadWriter().UTF("Banana").UTF("Apple").Bytes())
		done <- resp
	}()

	time.Sleep(20 * time.Millisecond)
	call(t, y, 10, wire.OpAddEvent, wire.NewPayloadWriter().UTF("Banana").Int(1).Double(1.0).Bytes())
	call(t, y, 11, wire.OpAddEvent, wire.NewPayloadWriter().UTF("Apple").Int(1).Double(1.0).Bytes())

	select {
	case resp := <-done:
		if resp.Type != wire.StatusOK || resp.Payload[0] != 1 {
			t.Fatalf("wait_simul = %+v, want OK/1", resp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wait_simul did not return")
	}
}
