package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/relay/internal/bus"
	"github.com/matheus3301/relay/internal/model"
	"github.com/matheus3301/relay/internal/status"
	"go.uber.org/zap"
)

// fakeConn is an in-memory websocket connection. Reads come from a
// scripted queue; writes are recorded for assertions.
type fakeConn struct {
	mu     sync.Mutex
	writes [][]byte

	reads  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 8),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.reads:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeConn) write(i int) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[i]
}

type stubContacts struct {
	contacts []model.Contact
	err      error
}

func (s *stubContacts) ListContacts() ([]model.Contact, error) {
	return s.contacts, s.err
}

type stubSender struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *stubSender) Send(_ context.Context, contactID, text string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, contactID+"/"+text)
	if s.err != nil {
		return nil, s.err
	}
	return &model.Message{ID: "m1", ContactID: contactID, Text: text}, nil
}

func (s *stubSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func startHub(t *testing.T, contacts ContactLister) (*Hub, *bus.Bus) {
	t.Helper()
	b := bus.New()
	h := New(contacts, b, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h, b
}

// join registers a client backed by conn and starts its write pump.
func join(t *testing.T, h *Hub, conn *fakeConn, sender Sender) *Client {
	t.Helper()
	c := NewClient(conn, h, sender, zap.NewNop())
	go c.WritePump()
	h.Register(c)
	return c
}

func decodeFrame(t *testing.T, data []byte) map[string]json.RawMessage {
	t.Helper()
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("invalid frame %q: %v", data, err)
	}
	return frame
}

func frameType(t *testing.T, data []byte) string {
	t.Helper()
	var typ string
	if err := json.Unmarshal(decodeFrame(t, data)["type"], &typ); err != nil {
		t.Fatalf("frame without type: %q", data)
	}
	return typ
}

func TestSnapshotOnRegister(t *testing.T) {
	contacts := &stubContacts{contacts: []model.Contact{
		{ID: "123", Name: "Alice", Platform: "whatsapp"},
		{ID: "ig_42", Name: "Instagram ig_42", Platform: "instagram"},
	}}
	h, _ := startHub(t, contacts)

	conn := newFakeConn()
	join(t, h, conn, &stubSender{})

	waitFor(t, func() bool { return conn.writeCount() >= 1 }, "no snapshot frame")
	if got := frameType(t, conn.write(0)); got != "contacts" {
		t.Fatalf("first frame type = %q, want contacts", got)
	}
	var snapshot []model.Contact
	if err := json.Unmarshal(decodeFrame(t, conn.write(0))["contacts"], &snapshot); err != nil {
		t.Fatal(err)
	}
	if len(snapshot) != 2 || snapshot[0].ID != "123" {
		t.Fatalf("snapshot = %+v", snapshot)
	}
}

func TestSnapshotListFailureKeepsConnection(t *testing.T) {
	h, b := startHub(t, &stubContacts{err: errors.New("db gone")})

	conn := newFakeConn()
	join(t, h, conn, &stubSender{})

	// The snapshot is skipped but the connection stays live for events.
	b.Publish(bus.Event{Kind: "relay.message", Payload: model.MessageEvent{
		Message: model.Message{ID: "m1", ContactID: "123", Text: "hi"},
	}})
	waitFor(t, func() bool { return conn.writeCount() >= 1 }, "no message frame")
	if got := frameType(t, conn.write(0)); got != "message" {
		t.Fatalf("frame type = %q, want message", got)
	}
}

func TestBroadcastReachesAllObservers(t *testing.T) {
	h, b := startHub(t, &stubContacts{})

	first := newFakeConn()
	second := newFakeConn()
	join(t, h, first, &stubSender{})
	join(t, h, second, &stubSender{})
	waitFor(t, func() bool { return first.writeCount() >= 1 && second.writeCount() >= 1 }, "no snapshots")

	b.Publish(bus.Event{Kind: "relay.message", Payload: model.MessageEvent{
		Message: model.Message{
			ID:        "wamid.IN1",
			ContactID: "123",
			Text:      "hi",
			Direction: model.Incoming,
			Status:    status.Delivered,
		},
		Contact: &model.Contact{ID: "123", Name: "Alice", Platform: "whatsapp"},
	}})

	waitFor(t, func() bool { return first.writeCount() >= 2 && second.writeCount() >= 2 }, "broadcast missed an observer")
	for _, conn := range []*fakeConn{first, second} {
		frame := decodeFrame(t, conn.write(1))
		var msg model.Message
		if err := json.Unmarshal(frame["message"], &msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID != "wamid.IN1" || msg.Status != status.Delivered {
			t.Fatalf("message frame = %+v", msg)
		}
		var contact model.Contact
		if err := json.Unmarshal(frame["contact"], &contact); err != nil {
			t.Fatal(err)
		}
		if contact.Name != "Alice" {
			t.Fatalf("contact frame = %+v", contact)
		}
	}
}

func TestUnregisteredObserverReceivesNothing(t *testing.T) {
	h, b := startHub(t, &stubContacts{})

	gone := newFakeConn()
	stays := newFakeConn()
	goneClient := join(t, h, gone, &stubSender{})
	join(t, h, stays, &stubSender{})
	waitFor(t, func() bool { return gone.writeCount() >= 1 && stays.writeCount() >= 1 }, "no snapshots")

	h.Unregister(goneClient)
	baseline := gone.writeCount()

	b.Publish(bus.Event{Kind: "relay.message", Payload: model.MessageEvent{
		Message: model.Message{ID: "m1", ContactID: "123", Text: "hi"},
	}})
	waitFor(t, func() bool { return stays.writeCount() >= 2 }, "remaining observer missed the event")
	if gone.writeCount() != baseline {
		t.Fatalf("disconnected observer still received frames")
	}

	// A second unregister of the same client is a no-op.
	h.Unregister(goneClient)
}

func TestSendMessageCommand(t *testing.T) {
	h, _ := startHub(t, &stubContacts{})

	conn := newFakeConn()
	sender := &stubSender{}
	client := join(t, h, conn, sender)
	go client.ReadPump(context.Background())

	conn.reads <- []byte(`{"type":"send_message","contactId":"123","text":"hello"}`)
	waitFor(t, func() bool { return sender.callCount() == 1 }, "send command not dispatched")
	sender.mu.Lock()
	call := sender.calls[0]
	sender.mu.Unlock()
	if call != "123/hello" {
		t.Fatalf("send call = %q", call)
	}
}

func TestSendMessageCommandFailure(t *testing.T) {
	h, _ := startHub(t, &stubContacts{})

	conn := newFakeConn()
	sender := &stubSender{err: errors.New("graph unavailable")}
	client := join(t, h, conn, sender)
	go client.ReadPump(context.Background())

	conn.reads <- []byte(`{"type":"send_message","contactId":"123","text":"hello"}`)
	waitFor(t, func() bool { return conn.writeCount() >= 2 }, "no error frame")

	last := decodeFrame(t, conn.write(conn.writeCount()-1))
	var typ, msg string
	_ = json.Unmarshal(last["type"], &typ)
	_ = json.Unmarshal(last["message"], &msg)
	if typ != "error" || msg != "failed to send message" {
		t.Fatalf("frame = %s/%s", typ, msg)
	}
}

func TestUnknownCommand(t *testing.T) {
	h, _ := startHub(t, &stubContacts{})

	conn := newFakeConn()
	client := join(t, h, conn, &stubSender{})
	go client.ReadPump(context.Background())

	conn.reads <- []byte(`{"type":"subscribe"}`)
	waitFor(t, func() bool { return conn.writeCount() >= 2 }, "no error frame")
	var msg string
	_ = json.Unmarshal(decodeFrame(t, conn.write(conn.writeCount()-1))["message"], &msg)
	if msg != "unknown command type" {
		t.Fatalf("error = %q", msg)
	}
}

func TestMalformedCommand(t *testing.T) {
	h, _ := startHub(t, &stubContacts{})

	conn := newFakeConn()
	client := join(t, h, conn, &stubSender{})
	go client.ReadPump(context.Background())

	conn.reads <- []byte(`{not json`)
	waitFor(t, func() bool { return conn.writeCount() >= 2 }, "no error frame")
	var msg string
	_ = json.Unmarshal(decodeFrame(t, conn.write(conn.writeCount()-1))["message"], &msg)
	if msg != "invalid command" {
		t.Fatalf("error = %q", msg)
	}
}

func TestRegisterAndUnregisterAfterShutdown(t *testing.T) {
	b := bus.New()
	h := New(&stubContacts{}, b, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()

	conn := newFakeConn()
	client := NewClient(conn, h, &stubSender{}, zap.NewNop())
	go client.WritePump()
	h.Register(client)
	waitFor(t, func() bool { return conn.writeCount() >= 1 }, "no snapshot")

	cancel()
	<-done

	// A client disconnecting during shutdown must not park its read
	// pump forever.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.Unregister(client)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("unregister blocked after hub shutdown")
	}

	late := NewClient(newFakeConn(), h, &stubSender{}, zap.NewNop())
	go late.WritePump()
	finished = make(chan struct{})
	go func() {
		defer close(finished)
		h.Register(late)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked after hub shutdown")
	}
}

func TestReadPumpUnregistersOnDisconnect(t *testing.T) {
	h, b := startHub(t, &stubContacts{})

	conn := newFakeConn()
	client := join(t, h, conn, &stubSender{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.ReadPump(context.Background())
	}()
	waitFor(t, func() bool { return conn.writeCount() >= 1 }, "no snapshot")

	_ = conn.Close()
	<-done

	baseline := conn.writeCount()
	b.Publish(bus.Event{Kind: "relay.message", Payload: model.MessageEvent{
		Message: model.Message{ID: "m1", ContactID: "123", Text: "hi"},
	}})
	time.Sleep(50 * time.Millisecond)
	if conn.writeCount() != baseline {
		t.Fatal("disconnected observer still received frames")
	}
}
