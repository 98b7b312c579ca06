package notify

import (
	"testing"
	"time"
)

func TestWaitSimultaneousSucceeds(t *testing.T) {
	c := New()
	done := make(chan bool, 1)
	go func() { done <- c.WaitSimultaneous("Banana", "Apple") }()

	time.Sleep(10 * time.Millisecond) // give the waiter time to block
	c.RegisterSale("Banana")
	c.RegisterSale("Apple")

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected WaitSimultaneous to succeed")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitSimultaneous never returned")
	}
}

func TestWaitSimultaneousCancelledByNewDay(t *testing.T) {
	c := New()
	done := make(chan bool, 1)
	go func() { done <- c.WaitSimultaneous("Banana", "Apple") }()

	time.Sleep(10 * time.Millisecond)
	c.NewDay()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected WaitSimultaneous to be cancelled by NewDay")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitSimultaneous never returned")
	}
}

func TestWaitSimultaneousNotSatisfiedByPriorDay(t *testing.T) {
	c := New()
	c.RegisterSale("Banana")
	c.NewDay()

	done := make(chan bool, 1)
	go func() { done <- c.WaitSimultaneous("Banana", "Apple") }()

	time.Sleep(10 * time.Millisecond)
	c.RegisterSale("Apple") // Banana was sold on the PREVIOUS day only

	select {
	case <-done:
		t.Fatal("WaitSimultaneous must not be satisfied by a prior day's sale")
	case <-time.After(50 * time.Millisecond):
	}
	c.RegisterSale("Banana")
	if ok := <-done; !ok {
		t.Fatal("expected success once both sold in the same day")
	}
}

func TestWaitConsecutiveLateSubscriber(t *testing.T) {
	c := New()
	c.RegisterSale("Orange")
	c.RegisterSale("Orange")
	c.RegisterSale("Orange")

	product, ok := c.WaitConsecutive(3)
	if !ok || product != "Orange" {
		t.Fatalf("got (%q, %v), want (\"Orange\", true)", product, ok)
	}
}

func TestWaitConsecutiveResetsOnProductChange(t *testing.T) {
	c := New()
	c.RegisterSale("Orange")
	c.RegisterSale("Orange")
	c.RegisterSale("Banana")
	c.RegisterSale("Orange")

	if _, ok := c.streaksReached[3]; ok {
		t.Fatal("no product reached a streak of 3")
	}
	done := make(chan bool, 1)
	go func() { _, ok := c.WaitConsecutive(3); done <- ok }()
	time.Sleep(10 * time.Millisecond)
	c.NewDay()
	if ok := <-done; ok {
		t.Fatal("expected cancellation, streak of 3 never reached")
	}
}
