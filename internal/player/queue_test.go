package player

import (
	"testing"
	"time"

	"github.com/tikotus/funky-server/internal/network"
)

func envWithID(id string) network.Envelope {
	return network.Envelope{ID: id}
}

func TestSlidingQueueFIFO(t *testing.T) {
	q := newSlidingQueue(4)
	q.Push(envWithID("a"))
	q.Push(envWithID("b"))

	e, ok := q.Pop()
	if !ok || e.ID != "a" {
		t.Fatalf("expected a first, got %+v ok=%v", e, ok)
	}
	e, ok = q.Pop()
	if !ok || e.ID != "b" {
		t.Fatalf("expected b second, got %+v ok=%v", e, ok)
	}
}

func TestSlidingQueueDropsOldestOnOverflow(t *testing.T) {
	q := newSlidingQueue(2)
	q.Push(envWithID("a"))
	q.Push(envWithID("b"))
	q.Push(envWithID("c")) // should evict "a"

	e, ok := q.Pop()
	if !ok || e.ID != "b" {
		t.Fatalf("expected oldest element dropped, got %+v ok=%v", e, ok)
	}
	e, ok = q.Pop()
	if !ok || e.ID != "c" {
		t.Fatalf("expected c second, got %+v ok=%v", e, ok)
	}
}

func TestSlidingQueuePopBlocksUntilPush(t *testing.T) {
	q := newSlidingQueue(2)

	done := make(chan network.Envelope, 1)
	go func() {
		e, ok := q.Pop()
		if ok {
			done <- e
		}
	}()

	select {
	case <-done:
		t.Fatalf("Pop returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(envWithID("late"))

	select {
	case e := <-done:
		if e.ID != "late" {
			t.Fatalf("unexpected envelope: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop did not unblock after Push")
	}
}

func TestSlidingQueueCloseUnblocksPop(t *testing.T) {
	q := newSlidingQueue(2)

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected Pop to report ok=false after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("Pop did not unblock after Close")
	}

	if _, ok := q.Pop(); ok {
		t.Fatalf("expected Pop on a closed queue to always return ok=false")
	}
}
