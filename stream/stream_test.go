package stream

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type capturePublisher struct {
	mu   sync.Mutex
	subj []string
	data [][]byte
	err  error
}

func (c *capturePublisher) Publish(subj string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.subj = append(c.subj, subj)
	c.data = append(c.data, data)
	return nil
}

func TestPublisher_Subjects(t *testing.T) {
	cp := &capturePublisher{}
	p := NewPublisher(cp, "vitals.readings", "vitals.results", nil)
	if err := p.PublishReading(ReadingMsg{SessionID: "s1", Ts: 10, BPM: 72, SpO2: 97}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishResult(ResultMsg{SessionID: "s1", Ts: 20, BPM: 71, SpO2: 96, Condition: "very_good"}); err != nil {
		t.Fatal(err)
	}
	if len(cp.subj) != 2 || cp.subj[0] != "vitals.readings" || cp.subj[1] != "vitals.results" {
		t.Fatalf("subjects = %v", cp.subj)
	}
	var res ResultMsg
	if err := json.Unmarshal(cp.data[1], &res); err != nil {
		t.Fatal(err)
	}
	if res.Subject != "vitals.results" || res.BPM != 71 || res.Condition != "very_good" || res.Synthetic {
		t.Fatalf("decoded result = %+v", res)
	}
	if !strings.Contains(string(cp.data[0]), `"session_id":"s1"`) {
		t.Fatalf("reading payload = %s", cp.data[0])
	}
}

func TestPublisher_Errors(t *testing.T) {
	var nilPub *Publisher
	if err := nilPub.PublishReading(ReadingMsg{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("nil publisher: %v", err)
	}
	if err := NewPublisher(nil, "a", "b", nil).PublishResult(ResultMsg{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("nil conn: %v", err)
	}
	boom := errors.New("boom")
	p := NewPublisher(&capturePublisher{err: boom}, "a", "b", nil)
	if err := p.PublishReading(ReadingMsg{}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Len() != 1 {
		t.Fatalf("clients = %d, want 1", hub.Len())
	}

	hub.Broadcast([]byte(`{"bpm":72}`))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.TextMessage || string(msg) != `{"bpm":72}` {
		t.Fatalf("got %d %s", typ, msg)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Len() != 0 {
		t.Fatalf("clients after close = %d, want 0", hub.Len())
	}
}

func dialHub(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Len() != 1 {
		t.Fatalf("clients = %d, want 1", hub.Len())
	}
	return conn
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn := dialHub(t, hub, srv)
	defer conn.Close()

	const senders, perSender = 4, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				hub.Broadcast([]byte(`{"type":"reading"}`))
			}
		}()
	}
	wg.Wait()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < senders*perSender; i++ {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(msg) != `{"type":"reading"}` {
			t.Fatalf("message %d = %s", i, msg)
		}
	}
	if d := hub.Dropped(); d != 0 {
		t.Fatalf("dropped = %d, want 0", d)
	}
	if hub.Len() != 1 {
		t.Fatalf("client dropped during concurrent broadcast")
	}
}

func TestHub_CloseStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn := dialHub(t, hub, srv)
	defer conn.Close()

	hub.Close()
	hub.Close()
	if hub.Len() != 0 {
		t.Fatalf("clients after close = %d", hub.Len())
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*queueSize; i++ {
			hub.Broadcast([]byte("late"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after Close")
	}
	if d := hub.Dropped(); d != 2*queueSize {
		t.Fatalf("dropped = %d, want %d", d, 2*queueSize)
	}
}
