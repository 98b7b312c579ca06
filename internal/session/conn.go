package session

import "sync/atomic"

// Conn holds one accepted connection's session state from §3/§4.4: the
// UNAUTH/AUTH flag and optional identity, plus a broken flag set once a
// socket write fails (§7 "I/O (socket write): mark connection terminating").
//
// authenticated and user are read without any storage lock by design (§4.4):
// the handshake is one-shot (UNAUTH -> AUTH, never back), so a plain atomic
// flag gives every reader a consistent, race-free view once it observes
// "true" — Go's memory model guarantees the write to user happens-before the
// atomic store that publishes it, and happens-before the atomic load that
// observes it on another goroutine.
type Conn struct {
	authenticated atomic.Bool
	user          atomic.Value // string
	broken        atomic.Bool
}

func newConn() *Conn {
	return &Conn{}
}

// setAuthenticated publishes a successful LOGIN. Must only be called once,
// from UNAUTH.
func (c *Conn) setAuthenticated(user string) {
	c.user.Store(user)
	c.authenticated.Store(true)
}

func (c *Conn) isAuthenticated() bool {
	return c.authenticated.Load()
}

func (c *Conn) username() string {
	v, _ := c.user.Load().(string)
	return v
}

func (c *Conn) markBroken() {
	c.broken.Store(true)
}

func (c *Conn) isBroken() bool {
	return c.broken.Load()
}
