package verifier

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockPage creates a Client with a send channel but no real connection.
func mockPage(hub *Hub) *Client {
	return &Client{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	p1 := mockPage(hub)
	p2 := mockPage(hub)

	hub.Register(p1)
	hub.Register(p2)

	if got := hub.PageCount(); got != 2 {
		t.Fatalf("expected 2 pages, got %d", got)
	}

	hub.Unregister(p1)

	if got := hub.PageCount(); got != 1 {
		t.Fatalf("expected 1 page after unregister, got %d", got)
	}

	hub.Unregister(p2)

	if got := hub.PageCount(); got != 0 {
		t.Fatalf("expected 0 pages, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	p := mockPage(hub)
	hub.Register(p)
	hub.Unregister(p)
	// Should not panic
	hub.Unregister(p)

	if got := hub.PageCount(); got != 0 {
		t.Fatalf("expected 0 pages, got %d", got)
	}
}

func TestBroadcastReachesAllPages(t *testing.T) {
	hub := NewHub(slog.Default())

	p1 := mockPage(hub)
	p2 := mockPage(hub)
	hub.Register(p1)
	hub.Register(p2)

	hub.Broadcast(Message{Type: TypeNotificationClicked, URL: "/orders/42"})

	for _, p := range []*Client{p1, p2} {
		select {
		case data := <-p.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != TypeNotificationClicked {
				t.Errorf("expected type %s, got %s", TypeNotificationClicked, got.Type)
			}
			if got.URL != "/orders/42" {
				t.Errorf("expected url /orders/42, got %s", got.URL)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Unregister(p1)
	hub.Unregister(p2)
}

func TestBroadcastRefusesInboundTypes(t *testing.T) {
	hub := NewHub(slog.Default())
	p := mockPage(hub)
	hub.Register(p)

	hub.Broadcast(Message{Type: TypeVerifyUser, UserID: "7"})

	select {
	case <-p.send:
		t.Fatal("page-to-worker type must never be broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	hub.Unregister(p)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(Message{Type: TypeCheckUserID, ID: "x"})
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	p := mockPage(hub)
	hub.Register(p)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(Message{Type: TypeCheckUserID, ID: "fill"})
	}

	// This should drop the message, not panic or block
	hub.Broadcast(Message{Type: TypeCheckUserID, ID: "dropped"})

	count := 0
	for {
		select {
		case <-p.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Unregister(p)
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := mockPage(hub)
			hub.Register(p)
			hub.Broadcast(Message{Type: TypeCheckUserID, ID: "concurrent"})
			for {
				select {
				case <-p.send:
				default:
					hub.Unregister(p)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.PageCount(); got != 0 {
		t.Errorf("expected 0 pages after concurrent test, got %d", got)
	}
}

func TestMessageDirections(t *testing.T) {
	fromWorker := []MessageType{TypeCheckUserID, TypeTestNotification, TypeNotificationClicked}
	fromPage := []MessageType{TypeVerifyUser, TypeUserIDForTest, TypeAppVisible}

	for _, mt := range fromWorker {
		if !mt.ValidFromWorker() || mt.ValidFromPage() {
			t.Errorf("%s should be worker-to-page only", mt)
		}
	}
	for _, mt := range fromPage {
		if !mt.ValidFromPage() || mt.ValidFromWorker() {
			t.Errorf("%s should be page-to-worker only", mt)
		}
	}
}
