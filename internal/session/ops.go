package session

import (
	"fmt"

	"github.com/adred-codev/salesd/internal/apperr"
	"github.com/adred-codev/salesd/internal/storage"
	"github.com/adred-codev/salesd/internal/wire"
)

// handle decodes, validates, and executes one request, returning the OK
// response payload or an error to be sent back as a 500 (§4.4).
func (h *Handler) handle(c *Conn, op wire.Op, payload []byte) ([]byte, error) {
	if op != wire.OpRegister && op != wire.OpLogin && !c.isAuthenticated() {
		return nil, apperr.ErrNotAuthenticated
	}

	r := wire.NewPayloadReader(payload)

	switch op {
	case wire.OpRegister:
		return h.handleRegister(r)
	case wire.OpLogin:
		return h.handleLogin(c, r)
	case wire.OpAddEvent:
		return h.handleAddEvent(r)
	case wire.OpNewDay:
		return h.handleNewDay()
	case wire.OpAggrQty:
		return h.handleAggregate(r, storage.AggQty)
	case wire.OpAggrVol:
		return h.handleAggregate(r, storage.AggVol)
	case wire.OpAggrAvg:
		return h.handleAggregate(r, storage.AggAvg)
	case wire.OpAggrMax:
		return h.handleAggregate(r, storage.AggMax)
	case wire.OpFilter:
		return h.handleFilter(r)
	case wire.OpWaitSimul:
		return h.handleWaitSimul(r)
	case wire.OpWaitConsec:
		return h.handleWaitConsec(r)
	case wire.OpGetCurrentDay:
		return wire.NewPayloadWriter().Int(int32(h.Storage.GetCurrentDay())).Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown operation code %d: %w", int32(op), apperr.ErrInvalidParameter)
	}
}

func (h *Handler) handleRegister(r *wire.PayloadReader) ([]byte, error) {
	user, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	pass, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	created, err := h.Auth.Register(user, pass)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return wire.NewPayloadWriter().Byte(boolByte(created)).Bytes(), nil
}

func (h *Handler) handleLogin(c *Conn, r *wire.PayloadReader) ([]byte, error) {
	user, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	pass, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	ok := h.Auth.Login(user, pass)
	if ok {
		c.setAuthenticated(user)
	}
	return wire.NewPayloadWriter().Byte(boolByte(ok)).Bytes(), nil
}

func (h *Handler) handleAddEvent(r *wire.PayloadReader) ([]byte, error) {
	product, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("add_event: %w", err)
	}
	qty, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("add_event: %w", err)
	}
	price, err := r.Double()
	if err != nil {
		return nil, fmt.Errorf("add_event: %w", err)
	}

	// Ordering matters (§5): storage.addEvent before notify.registerSale, so
	// a WAIT_* waiter never observes a sale that isn't yet durable-pending in
	// the current day's buffer.
	h.Storage.AddEvent(product, qty, price)
	h.Notify.RegisterSale(product)
	return []byte{}, nil
}

func (h *Handler) handleNewDay() ([]byte, error) {
	if err := h.Storage.PersistDay(); err != nil {
		return nil, fmt.Errorf("new_day: %w", err)
	}
	h.Notify.NewDay()
	return []byte{}, nil
}

func (h *Handler) handleAggregate(r *wire.PayloadReader, op storage.AggOp) ([]byte, error) {
	product, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	days, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if days < 1 || int(days) > h.Window {
		return nil, fmt.Errorf("aggregate: days must be in [1,%d], got %d: %w", h.Window, days, apperr.ErrInvalidParameter)
	}

	val, err := h.Storage.Aggregate(op, product, int(days))
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	return wire.NewPayloadWriter().Double(val).Bytes(), nil
}

func (h *Handler) handleFilter(r *wire.PayloadReader) ([]byte, error) {
	day, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	n, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if n < 0 || n > 10000 {
		return nil, fmt.Errorf("filter: product count must be in [0,10000], got %d: %w", n, apperr.ErrInvalidParameter)
	}

	products := make([]string, n)
	for i := range products {
		products[i], err = r.UTF()
		if err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
	}

	currentDay := h.Storage.GetCurrentDay()
	if day < 0 || day >= currentDay {
		return nil, fmt.Errorf("filter: day %d is not closed (current day %d): %w", day, currentDay, apperr.ErrDayClosed)
	}
	if oldest := currentDay - h.Window; day < max0(oldest) {
		return nil, fmt.Errorf("filter: day %d is outside the %d-day retention window: %w", day, h.Window, apperr.ErrOutOfWindow)
	}

	filter := make(map[string]struct{}, n)
	for _, p := range products {
		filter[p] = struct{}{}
	}

	sales, err := h.Storage.GetEventsForDay(int(day), filter)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return encodeFilterResponse(sales), nil
}

func (h *Handler) handleWaitSimul(r *wire.PayloadReader) ([]byte, error) {
	p1, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("wait_simul: %w", err)
	}
	p2, err := r.UTF()
	if err != nil {
		return nil, fmt.Errorf("wait_simul: %w", err)
	}
	if p1 == "" || p2 == "" {
		return nil, fmt.Errorf("wait_simul: product names must not be empty: %w", apperr.ErrInvalidParameter)
	}

	ok := h.Notify.WaitSimultaneous(p1, p2)
	return wire.NewPayloadWriter().Byte(boolByte(ok)).Bytes(), nil
}

func (h *Handler) handleWaitConsec(r *wire.PayloadReader) ([]byte, error) {
	n, err := r.Int()
	if err != nil {
		return nil, fmt.Errorf("wait_consec: %w", err)
	}
	if n < 1 || n > 100000 {
		return nil, fmt.Errorf("wait_consec: n must be in [1,100000], got %d: %w", n, apperr.ErrInvalidParameter)
	}

	product, ok := h.Notify.WaitConsecutive(int(n))
	if !ok {
		return wire.NewPayloadWriter().UTF("").Bytes(), nil
	}
	return wire.NewPayloadWriter().UTF(product).Bytes(), nil
}

// encodeFilterResponse builds the dictionary-encoded FILTER response (§4.5):
// distinct products in first-seen order, then each event as (dictIndex, qty,
// price).
func encodeFilterResponse(sales []storage.Sale) []byte {
	dict := make(map[string]int32)
	var order []string
	indices := make([]int32, len(sales))
	for i, s := range sales {
		idx, ok := dict[s.Product]
		if !ok {
			idx = int32(len(order))
			dict[s.Product] = idx
			order = append(order, s.Product)
		}
		indices[i] = idx
	}

	w := wire.NewPayloadWriter()
	w.Int(int32(len(order)))
	for _, p := range order {
		w.UTF(p)
	}
	w.Int(int32(len(sales)))
	for i, s := range sales {
		w.Int(indices[i]).Int(s.Qty).Double(s.Price)
	}
	return w.Bytes()
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
