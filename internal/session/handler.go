// Package session implements the connection handler and operation
// dispatcher from §4.4: the UNAUTH -> AUTH -> CLOSED state machine, one
// reader loop per connection submitting one worker-pool task per frame, and
// the per-op decode/validate/dispatch/respond cycle for every operation in
// §4.1.
//
// Grounded on the teacher's per-connection readPump/writePump split
// (adred-codev-ws_poc/ws/internal/single/core/client.go): one dedicated
// reader per connection, work handed off rather than processed inline, and
// socket write failures treated as terminal for that connection only.
package session

import (
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/salesd/internal/apperr"
	"github.com/adred-codev/salesd/internal/auth"
	"github.com/adred-codev/salesd/internal/metrics"
	"github.com/adred-codev/salesd/internal/notify"
	"github.com/adred-codev/salesd/internal/ratelimit"
	"github.com/adred-codev/salesd/internal/storage"
	"github.com/adred-codev/salesd/internal/wire"
	"github.com/adred-codev/salesd/internal/workerpool"
)

// Handler wires the shared singletons (storage, notify, auth, worker pool)
// to every accepted connection. One Handler serves the whole listener;
// Serve is called once per accepted net.Conn.
type Handler struct {
	Storage *storage.Engine
	Notify  *notify.Coordinator
	Auth    *auth.Store
	Pool    *workerpool.Pool
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	// Window is D, the retention window, used to validate AGGR_* and FILTER
	// parameters the same way the storage engine does (§4.4, §9 "the engine
	// clamp is redundant with handler validation; prefer both").
	Window int

	// ReadTimeout is the per-connection socket read timeout (§6): expiry is
	// used only to detect dead peers and does not close the connection.
	ReadTimeout time.Duration

	// RateLimitPerSecond/RateLimitBurst configure the per-connection inbound
	// frame guard (SPEC_FULL.md Supplement #3).
	RateLimitPerSecond float64
	RateLimitBurst     int

	activeConns int64
}

// ActiveConnections reports the number of connections currently being
// served, for internal/sysmon.
func (h *Handler) ActiveConnections() int64 {
	return atomic.LoadInt64(&h.activeConns)
}

// Serve drives one accepted connection until it closes. Blocks until the
// connection's reader loop exits; callers run it in its own goroutine.
func (h *Handler) Serve(netConn net.Conn) {
	atomic.AddInt64(&h.activeConns, 1)
	defer atomic.AddInt64(&h.activeConns, -1)

	if tc, ok := netConn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	stream := wire.NewStream(netConn)
	defer stream.Close()

	c := newConn()
	guard := ratelimit.NewGuard(h.RateLimitPerSecond, h.RateLimitBurst)

	remote := netConn.RemoteAddr().String()
	h.Logger.Info().Str("remote", remote).Msg("session: connection accepted")
	defer h.Logger.Info().Str("remote", remote).Msg("session: connection closed")

	for {
		_ = netConn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
		frame, err := stream.Receive()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Dead-peer detection only; the spec requires the reader to
				// continue past a read timeout, not disconnect (§6).
				continue
			}
			if errors.Is(err, io.EOF) {
				return
			}
			h.Logger.Warn().Str("remote", remote).Err(err).Msg("session: terminal stream error, closing connection")
			return
		}

		if c.isBroken() {
			return
		}

		if !guard.Allow() {
			h.Metrics.RateLimited.Inc()
			h.respondErr(stream, c, frame.Tag, errors.New("rate limited"))
			continue
		}

		f := frame
		h.Pool.Submit(func() { h.dispatch(c, stream, f) })
	}
}

func (h *Handler) dispatch(c *Conn, stream *wire.Stream, f wire.Frame) {
	defer func() {
		if r := recover(); r != nil {
			h.Logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("session: request handler panicked")
			h.respondErr(stream, c, f.Tag, errors.New("internal error"))
		}
	}()

	op := wire.Op(f.Type)
	h.Metrics.OpsTotal.WithLabelValues(op.String()).Inc()

	payload, err := h.handle(c, op, f.Payload)
	if err != nil {
		h.Metrics.ErrorsTotal.WithLabelValues(errKind(err)).Inc()
		h.respondErr(stream, c, f.Tag, err)
		return
	}

	if err := stream.Send(f.Tag, wire.StatusOK, payload); err != nil {
		h.Logger.Warn().Err(err).Msg("session: write failed, dropping remaining work for connection")
		c.markBroken()
	}
}

func (h *Handler) respondErr(stream *wire.Stream, c *Conn, tag int32, err error) {
	if sendErr := stream.Send(tag, wire.StatusErr, []byte(err.Error())); sendErr != nil {
		h.Logger.Warn().Err(sendErr).Msg("session: write failed sending error response")
		c.markBroken()
	}
}

func errKind(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, apperr.ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, apperr.ErrDayClosed):
		return "day_closed"
	case errors.Is(err, apperr.ErrOutOfWindow):
		return "out_of_window"
	default:
		return "internal"
	}
}
