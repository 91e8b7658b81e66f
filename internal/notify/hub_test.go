package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meridianbank/backoffice/internal/models"
	"go.uber.org/zap"
)

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop())

	a := &websocket.Conn{}
	b := &websocket.Conn{}

	hub.Register(1, a)
	hub.Register(1, b)
	hub.Register(2, a)
	if got := hub.ConnCount(); got != 3 {
		t.Fatalf("ConnCount = %d, want 3", got)
	}

	hub.Unregister(1, a)
	if got := hub.ConnCount(); got != 2 {
		t.Fatalf("ConnCount = %d, want 2", got)
	}

	// Unregistering twice is harmless.
	hub.Unregister(1, a)
	hub.Unregister(99, b)
	if got := hub.ConnCount(); got != 2 {
		t.Fatalf("ConnCount = %d, want 2", got)
	}
}

func TestBroadcastDelivers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	upgrader := websocket.Upgrader{}

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register(7, conn)
		close(done)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	<-done
	hub.Broadcast(&models.Notification{ID: 5, Title: "maintenance window"})

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got models.Notification
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if got.ID != 5 || got.Title != "maintenance window" {
		t.Fatalf("unexpected notification: %+v", got)
	}
}

// Two admins broadcasting at the same moment must not interleave frames
// on a shared connection.
func TestConcurrentBroadcastsSerializeWrites(t *testing.T) {
	hub := NewHub(zap.NewNop())
	upgrader := websocket.Upgrader{}

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Register(7, conn)
		close(done)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	<-done

	const rounds = 20
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			hub.Broadcast(&models.Notification{ID: id, Title: "rate change"})
		}(int64(i + 1))
	}
	wg.Wait()

	for i := 0; i < rounds; i++ {
		_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
		var got models.Notification
		if err := client.ReadJSON(&got); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if got.Title != "rate change" || got.ID < 1 || got.ID > rounds {
			t.Fatalf("corrupt frame %d: %+v", i, got)
		}
	}
	if got := hub.ConnCount(); got != 1 {
		t.Fatalf("ConnCount = %d, want 1 (no sockets should have been dropped)", got)
	}
}
