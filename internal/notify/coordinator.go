// Package notify implements the notification coordinator from §4.6: a single
// mutex/condition variable over day-scoped sale state, supporting
// simultaneous-products and consecutive-sales waits that are cancelled only
// by the day turning over.
//
// Grounded on SagerNet-smux's sync.Cond wait-for-tokens idiom (broadcast on
// every state change, re-check the predicate in a for loop) — the same shape
// applies here even though the predicates (two disjoint products, a streak
// length) are unrelated to smux's flow-control token bucket.
package notify

import "sync"

// Coordinator tracks same-day sale activity for WAIT_SIMUL/WAIT_CONSEC.
type Coordinator struct {
	mu   sync.Mutex
	cond *sync.Cond

	currentDay       int
	soldToday        map[string]struct{}
	lastProductSold  string
	hasLastProduct   bool
	consecutiveCount int
	streaksReached   map[int]map[string]struct{}
}

// New constructs a Coordinator with empty day-0 state.
func New() *Coordinator {
	c := &Coordinator{
		soldToday:      make(map[string]struct{}),
		streaksReached: make(map[int]map[string]struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// RegisterSale records one sale of product for the current day and wakes
// every waiter so they can re-check their predicate.
func (c *Coordinator) RegisterSale(product string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.soldToday[product] = struct{}{}

	if c.hasLastProduct && c.lastProductSold == product {
		c.consecutiveCount++
	} else {
		c.lastProductSold = product
		c.hasLastProduct = true
		c.consecutiveCount = 1
	}

	// Every (length, product) pair reached this day is kept, not just the
	// latest: a subscriber that starts waiting after the streak already
	// happened must still observe it (late-subscriber correctness, §4.6).
	set := c.streaksReached[c.consecutiveCount]
	if set == nil {
		set = make(map[string]struct{})
		c.streaksReached[c.consecutiveCount] = set
	}
	set[product] = struct{}{}

	c.cond.Broadcast()
}

// NewDay clears all day-scoped state and cancels every in-flight wait.
func (c *Coordinator) NewDay() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.currentDay++
	c.soldToday = make(map[string]struct{})
	c.streaksReached = make(map[int]map[string]struct{})
	c.lastProductSold = ""
	c.hasLastProduct = false
	c.consecutiveCount = 0

	c.cond.Broadcast()
}

// WaitSimultaneous blocks until both products have sold at least once today,
// or the day ends. Returns true iff both were observed before the day ended.
func (c *Coordinator) WaitSimultaneous(p1, p2 string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	startDay := c.currentDay
	for c.currentDay == startDay && !c.bothSold(p1, p2) {
		c.cond.Wait()
	}
	return c.currentDay == startDay
}

func (c *Coordinator) bothSold(p1, p2 string) bool {
	_, a := c.soldToday[p1]
	_, b := c.soldToday[p2]
	return a && b
}

// WaitConsecutive blocks until some product has reached a streak of exactly n
// sales today, or the day ends. Returns (product, true) on success; the tie
// break among products reaching length n simultaneously is implementation
// defined (here, Go map iteration order).
func (c *Coordinator) WaitConsecutive(n int) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	startDay := c.currentDay
	for c.currentDay == startDay {
		if set := c.streaksReached[n]; len(set) > 0 {
			for product := range set {
				return product, true
			}
		}
		c.cond.Wait()
	}
	return "", false
}
