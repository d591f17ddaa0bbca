package notifyws

import (
	"sync"
	"testing"
)

func TestTrySendDeliversToOpenClient(t *testing.T) {
	client := NewClient(nil, nil, 1, "patient")

	if !client.trySend([]byte("hello")) {
		t.Fatal("expected trySend to queue on an open client")
	}
	select {
	case payload := <-client.send:
		if string(payload) != "hello" {
			t.Fatalf("unexpected payload %q", payload)
		}
	default:
		t.Fatal("expected a queued payload")
	}
}

func TestTrySendAfterCloseDoesNotPanic(t *testing.T) {
	client := NewClient(nil, nil, 1, "patient")
	client.closeSend()

	if client.trySend([]byte("late")) {
		t.Fatal("expected trySend to refuse a closed client")
	}
}

func TestCloseSendIsIdempotent(t *testing.T) {
	client := NewClient(nil, nil, 1, "patient")
	client.closeSend()
	client.closeSend()
}

func TestTrySendRefusesFullBuffer(t *testing.T) {
	client := NewClient(nil, nil, 1, "patient")
	for client.trySend([]byte("fill")) {
	}

	if client.trySend([]byte("overflow")) {
		t.Fatal("expected trySend to refuse a full buffer")
	}
}

func TestConcurrentSendAndClose(t *testing.T) {
	client := NewClient(nil, nil, 1, "clinician")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			client.trySend([]byte("event"))
		}
	}()
	go func() {
		defer wg.Done()
		client.closeSend()
	}()
	wg.Wait()
}
