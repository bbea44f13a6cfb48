package buffer

import (
	"sync"
	"testing"
	"time"
)

func TestBuffer_SendReceive(t *testing.T) {
	buf := New[int](10, 0)

	for i := range 5 {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	for i := range 5 {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
	if _, ok := buf.TryReceive(); ok {
		t.Error("TryReceive() on empty buffer returned true")
	}
}

func TestBuffer_GrowAt70Percent(t *testing.T) {
	buf := New[int](10, 0)
	for i := range 7 {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity != 20 {
		t.Errorf("Capacity = %d, want 20 after 70%% fill", stats.Capacity)
	}
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}
}

func TestBuffer_MultipleGrowsKeepOrder(t *testing.T) {
	buf := New[int](4, 0)
	for i := range 100 {
		buf.Send(i)
	}
	if stats := buf.Stats(); stats.Count != 100 || stats.Resizes < 3 {
		t.Errorf("Stats() = %+v, want 100 items after at least 3 resizes", stats)
	}
	for i, got := range buf.Drain(0) {
		if got != i {
			t.Fatalf("item %d = %d, want %d", i, got, i)
		}
	}
}

func TestBuffer_WrapAround(t *testing.T) {
	buf := New[int](5, 0)

	buf.Send(1)
	buf.Send(2)
	buf.TryReceive()
	buf.TryReceive()
	buf.Send(3)
	buf.Send(4)
	buf.TryReceive()
	buf.Send(5) // last slot
	buf.TryReceive()
	buf.Send(6) // wraps to slot 0
	buf.Send(7) // grows while wrapped
	buf.Send(8)

	if buf.Stats().Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", buf.Stats().Resizes)
	}
	want := []int{5, 6, 7, 8}
	got := buf.Drain(0)
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBuffer_LimitDropsOldest(t *testing.T) {
	buf := New[int](2, 4)
	for i := range 10 {
		buf.Send(i)
	}

	stats := buf.Stats()
	if stats.Capacity != 4 {
		t.Errorf("Capacity = %d, want 4", stats.Capacity)
	}
	if stats.Dropped != 6 {
		t.Errorf("Dropped = %d, want 6", stats.Dropped)
	}
	if stats.Received != 10 || stats.Sent != 0 {
		t.Errorf("Received, Sent = %d, %d; want 10, 0", stats.Received, stats.Sent)
	}

	got := buf.Drain(0)
	want := []int{6, 7, 8, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drain()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBuffer_Drain(t *testing.T) {
	buf := New[int](10, 0)
	for i := range 10 {
		buf.Send(i)
	}

	if items := buf.Drain(5); len(items) != 5 || items[0] != 0 || items[4] != 4 {
		t.Errorf("Drain(5) = %v, want [0 1 2 3 4]", items)
	}
	if items := buf.Drain(0); len(items) != 5 {
		t.Errorf("Drain(0) returned %d items, want 5", len(items))
	}
	if items := buf.Drain(3); items != nil {
		t.Errorf("Drain() on empty buffer = %v, want nil", items)
	}
}

func TestBuffer_BlockingReceive(t *testing.T) {
	buf := New[int](10, 0)
	received := make(chan int, 1)

	go func() {
		if val, ok := buf.Receive(); ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestBuffer_Close(t *testing.T) {
	buf := New[int](10, 0)
	buf.Send(1)
	buf.Close()

	if buf.Send(2) {
		t.Error("Send should return false after Close")
	}
	if val, ok := buf.Receive(); !ok || val != 1 {
		t.Errorf("Receive() = %d, %v; want 1, true", val, ok)
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive should return false when closed and empty")
	}
}

func TestBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := New[int](10, 0)
	done := make(chan bool, 1)

	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestBuffer_Concurrent(t *testing.T) {
	buf := New[int](10, 0)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range numItems {
			buf.Send(i)
		}
	}()

	received := make([]int, 0, numItems)
	go func() {
		defer wg.Done()
		for range numItems {
			if val, ok := buf.Receive(); ok {
				received = append(received, val)
			}
		}
	}()
	wg.Wait()

	if len(received) != numItems {
		t.Fatalf("received %d items, want %d", len(received), numItems)
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("received[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestNew_Capacity(t *testing.T) {
	tests := []struct {
		initial, limit, want int
	}{
		{0, 0, 1},
		{-5, 0, 1},
		{8, 4, 4},
		{8, 0, 8},
	}
	for _, tt := range tests {
		if got := New[int](tt.initial, tt.limit).Cap(); got != tt.want {
			t.Errorf("New(%d, %d).Cap() = %d, want %d", tt.initial, tt.limit, got, tt.want)
		}
	}
}
