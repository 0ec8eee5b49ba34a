package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muurk/fieldsync/internal/broadcast"
	"github.com/muurk/fieldsync/internal/protocol"
	"github.com/muurk/fieldsync/internal/registry"
)

const waitTimeout = 2 * time.Second

// fakeTransport is an in-memory Transport. Tests push client payloads on in
// and read server payloads from out.
type fakeTransport struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once sync.Once

	failWrites atomic.Bool
	closeCode  atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan []byte, 16),
		out:  make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (byte, []byte, error) {
	select {
	case p, ok := <-f.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return protocol.OpcodeText, p, nil
	case <-f.done:
		return 0, nil, net.ErrClosed
	}
}

func (f *fakeTransport) WriteText(payload []byte) error {
	if f.failWrites.Load() {
		return errors.New("broken pipe")
	}
	select {
	case <-f.done:
		return net.ErrClosed
	default:
	}
	select {
	case f.out <- payload:
		return nil
	case <-f.done:
		return net.ErrClosed
	}
}

func (f *fakeTransport) WriteClose(code int, reason string) error {
	f.closeCode.CompareAndSwap(0, int32(code))
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return "pipe" }

func (f *fakeTransport) send(t *testing.T, msg protocol.ClientMessage) {
	t.Helper()
	data, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		t.Fatalf("EncodeClientMessage() error = %v", err)
	}
	f.in <- data
}

func (f *fakeTransport) expect(t *testing.T) protocol.ServerMessage {
	t.Helper()
	select {
	case data := <-f.out:
		msg, err := protocol.DecodeServerMessage(data)
		if err != nil {
			t.Fatalf("DecodeServerMessage(%s) error = %v", data, err)
		}
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for server message")
		return nil
	}
}

func (f *fakeTransport) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected server message: %s", data)
	case <-time.After(d):
	}
}

type harness struct {
	reg *registry.Registry
	bus *broadcast.Bus
}

func newHarness() *harness {
	return &harness{reg: registry.New(), bus: broadcast.New(64)}
}

type running struct {
	tr      *fakeTransport
	session *Session
	errc    chan error
}

func (h *harness) start(t *testing.T, ctx context.Context, opts Options) *running {
	t.Helper()
	tr := newFakeTransport()
	s := New(tr, h.reg, h.bus, h.bus.Subscribe(), opts)
	r := &running{tr: tr, session: s, errc: make(chan error, 1)}
	go func() { r.errc <- s.Run(ctx) }()
	t.Cleanup(func() { tr.Close() })
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errc:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Run() did not return")
		return nil
	}
}

// join sends Join and consumes the Welcome and the session's own PlayerJoined.
func (r *running) join(t *testing.T, nickname string) protocol.Welcome {
	t.Helper()
	r.tr.send(t, protocol.Join{Nickname: &nickname})

	welcome, ok := r.tr.expect(t).(protocol.Welcome)
	if !ok {
		t.Fatal("first message after Join should be Welcome")
	}
	joined, ok := r.tr.expect(t).(protocol.PlayerJoined)
	if !ok || joined.Player.ID != welcome.YourID {
		t.Fatalf("expected own PlayerJoined after Welcome, got %#v", joined)
	}
	return welcome
}

func nextWithin(t *testing.T, sub *broadcast.Subscription) protocol.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	msg, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	return msg
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Connecting, "connecting"},
		{AwaitingJoin, "awaiting_join"},
		{Active, "active"},
		{Closing, "closing"},
		{Closed, "closed"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestSession_JoinSendsWelcome(t *testing.T) {
	h := newHarness()
	r := h.start(t, context.Background(), Options{})

	welcome := r.join(t, "Ann")

	if welcome.YourID == "" {
		t.Fatal("Welcome.YourID is empty")
	}
	if len(welcome.Players) != 1 {
		t.Fatalf("Welcome has %d players, want 1", len(welcome.Players))
	}
	if p := welcome.Players[0]; p.ID != welcome.YourID || p.Nickname != "Ann" {
		t.Errorf("Welcome player = %+v", p)
	}
	if r.session.State() != Active {
		t.Errorf("State() = %v, want active", r.session.State())
	}
	if _, ok := h.reg.Get(welcome.YourID); !ok {
		t.Error("player not registered")
	}
}

func TestSession_WelcomeSnapshotConsistency(t *testing.T) {
	h := newHarness()
	b := registry.NewPlayer(nil)
	c := registry.NewPlayer(nil)
	_ = h.reg.Add(b)
	_ = h.reg.Add(c)
	c, _ = h.reg.Move(c.ID, 123, 45)

	r := h.start(t, context.Background(), Options{})
	welcome := r.join(t, "A")

	got := map[string]protocol.Player{}
	for _, p := range welcome.Players {
		got[p.ID] = p
	}
	if len(got) != 3 {
		t.Fatalf("Welcome lists %d players, want 3", len(got))
	}
	if got[b.ID] != b {
		t.Errorf("B = %+v, want %+v", got[b.ID], b)
	}
	if got[c.ID] != c {
		t.Errorf("C = %+v, want %+v", got[c.ID], c)
	}
	if got[welcome.YourID].Nickname != "A" {
		t.Errorf("A missing from its own Welcome")
	}
}

func TestSession_NoStateBeforeJoin(t *testing.T) {
	h := newHarness()
	r := h.start(t, context.Background(), Options{})

	h.bus.Publish(protocol.PlayerMoved{PlayerID: "someone", X: 1, Y: 1})
	r.tr.send(t, protocol.Move{X: 5, Y: 5})
	r.tr.send(t, protocol.Chat{Message: "anyone?"})
	r.tr.expectNone(t, 50*time.Millisecond)

	if r.session.State() != AwaitingJoin {
		t.Errorf("State() = %v, want awaiting_join", r.session.State())
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry has %d players before Join", h.reg.Len())
	}

	// Messages queued before Join are superseded by the Welcome snapshot.
	r.join(t, "late")
}

func TestSession_MoveIsClampedAndBroadcast(t *testing.T) {
	h := newHarness()
	r := h.start(t, context.Background(), Options{})
	id := r.join(t, "Ann").YourID

	observer := h.bus.Subscribe()
	r.tr.send(t, protocol.Move{X: -10, Y: 1000})

	want := protocol.PlayerMoved{PlayerID: id, X: 0, Y: 400}
	if got := nextWithin(t, observer); got != want {
		t.Errorf("observer got %#v, want %#v", got, want)
	}
	if got := r.tr.expect(t); got != want {
		t.Errorf("originator got %#v, want %#v", got, want)
	}
}

func TestSession_ChangeNickIsNotBroadcast(t *testing.T) {
	h := newHarness()
	now := time.Unix(1700000000, 0)
	r := h.start(t, context.Background(), Options{Now: func() time.Time { return now }})
	id := r.join(t, "Ann").YourID

	observer := h.bus.Subscribe()
	r.tr.send(t, protocol.ChangeNick{Nickname: "Bob"})
	r.tr.send(t, protocol.Chat{Message: "hi"})

	// The first thing peers see is the chat carrying the new nickname;
	// the rename itself produced no event.
	want := protocol.ChatMessage{PlayerID: id, Nickname: "Bob", Message: "hi", Timestamp: now.Unix()}
	if got := nextWithin(t, observer); got != want {
		t.Errorf("observer got %#v, want %#v", got, want)
	}
	if observer.Len() != 0 {
		t.Errorf("observer has %d extra queued messages", observer.Len())
	}

	p, _ := h.reg.Get(id)
	if p.Nickname != "Bob" {
		t.Errorf("registry nickname = %q, want %q", p.Nickname, "Bob")
	}
}

func TestSession_DisconnectPublishesPlayerLeftOnce(t *testing.T) {
	h := newHarness()
	r := h.start(t, context.Background(), Options{})
	id := r.join(t, "Ann").YourID

	observer := h.bus.Subscribe()
	close(r.tr.in)

	if err := r.wait(t); err != nil {
		t.Fatalf("Run() error = %v, want nil on peer disconnect", err)
	}

	if got := nextWithin(t, observer); got != (protocol.PlayerLeft{PlayerID: id}) {
		t.Errorf("observer got %#v, want PlayerLeft{%s}", got, id)
	}
	if observer.Len() != 0 {
		t.Errorf("observer has %d extra messages, want exactly one PlayerLeft", observer.Len())
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry still has %d players", h.reg.Len())
	}
	if r.session.State() != Closed {
		t.Errorf("State() = %v, want closed", r.session.State())
	}
	if got := h.bus.Stats().Subscribers; got != 1 {
		t.Errorf("bus has %d subscribers, want 1 (observer only)", got)
	}
}

func TestSession_DisconnectBeforeJoin(t *testing.T) {
	h := newHarness()
	observer := h.bus.Subscribe()
	r := h.start(t, context.Background(), Options{})

	close(r.tr.in)
	if err := r.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if observer.Len() != 0 {
		t.Error("a session that never joined must not publish anything")
	}
}

func TestSession_DuplicateIDStaysAwaitingJoin(t *testing.T) {
	h := newHarness()
	existing := protocol.Player{ID: "fixed", Nickname: "first"}
	_ = h.reg.Add(existing)
	observer := h.bus.Subscribe()

	r := h.start(t, context.Background(), Options{
		NewPlayer: func(*string) protocol.Player { return protocol.Player{ID: "fixed", Nickname: "second"} },
	})
	r.tr.send(t, protocol.Join{})

	got, ok := r.tr.expect(t).(protocol.ErrorMessage)
	if !ok || got.Message != duplicateIDMessage {
		t.Fatalf("expected Error message, got %#v", got)
	}
	if r.session.State() != AwaitingJoin {
		t.Errorf("State() = %v, want awaiting_join", r.session.State())
	}

	close(r.tr.in)
	if err := r.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if p, ok := h.reg.Get("fixed"); !ok || p.Nickname != "first" {
		t.Error("existing player must survive a colliding session")
	}
	if observer.Len() != 0 {
		t.Error("a rejected Join must not publish anything")
	}
}

func TestSession_IgnoresMalformedAndRepeatedJoin(t *testing.T) {
	h := newHarness()
	r := h.start(t, context.Background(), Options{})
	id := r.join(t, "Ann").YourID

	r.tr.in <- []byte(`{"type":"Teleport","x":1}`)
	r.tr.in <- []byte(`not json`)
	r.tr.in <- []byte(`{"type":"Move","x":1}`)
	r.tr.send(t, protocol.Join{})
	r.tr.send(t, protocol.Move{X: 10, Y: 20})

	want := protocol.PlayerMoved{PlayerID: id, X: 10, Y: 20}
	if got := r.tr.expect(t); got != want {
		t.Errorf("got %#v, want %#v", got, want)
	}
	if h.reg.Len() != 1 {
		t.Errorf("registry has %d players, want 1", h.reg.Len())
	}
}

func TestSession_WriteFailureDeregisters(t *testing.T) {
	h := newHarness()
	r := h.start(t, context.Background(), Options{})
	id := r.join(t, "Ann").YourID

	observer := h.bus.Subscribe()
	r.tr.failWrites.Store(true)
	h.bus.Publish(protocol.ChatMessage{PlayerID: "x", Message: "boom"})

	if err := r.wait(t); err == nil {
		t.Error("Run() should report the write failure")
	}

	nextWithin(t, observer) // the chat itself
	if got := nextWithin(t, observer); got != (protocol.PlayerLeft{PlayerID: id}) {
		t.Errorf("observer got %#v, want PlayerLeft", got)
	}
	if h.reg.Len() != 0 {
		t.Error("player should be removed after write failure")
	}
}

func TestSession_WelcomeWriteFailureIsSilent(t *testing.T) {
	h := newHarness()
	observer := h.bus.Subscribe()
	r := h.start(t, context.Background(), Options{})

	r.tr.failWrites.Store(true)
	r.tr.send(t, protocol.Join{})

	if err := r.wait(t); err == nil {
		t.Error("Run() should report the Welcome write failure")
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry has %d players, want 0", h.reg.Len())
	}
	if observer.Len() != 0 {
		msg := nextWithin(t, observer)
		t.Errorf("a Join that never completed must not publish anything, got %#v", msg)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	r := h.start(t, ctx, Options{})
	r.join(t, "Ann")

	cancel()
	if err := r.wait(t); err != nil {
		t.Fatalf("Run() error = %v, want nil on shutdown", err)
	}
	if code := r.tr.closeCode.Load(); code != protocol.CloseGoingAway {
		t.Errorf("close code = %d, want %d", code, protocol.CloseGoingAway)
	}
	if h.reg.Len() != 0 {
		t.Error("registry should be empty after shutdown")
	}
}

func TestSession_EndToEndScenario(t *testing.T) {
	h := newHarness()
	bystander := h.bus.Subscribe()

	ann := h.start(t, context.Background(), Options{})
	welcome := ann.join(t, "Ann")
	if len(welcome.Players) != 1 || welcome.Players[0].Nickname != "Ann" {
		t.Fatalf("Welcome should contain Ann only, got %+v", welcome.Players)
	}
	id := welcome.YourID

	if _, ok := nextWithin(t, bystander).(protocol.PlayerJoined); !ok {
		t.Fatal("bystander should see PlayerJoined")
	}

	ann.tr.send(t, protocol.Move{X: 10, Y: 20})
	moved := protocol.PlayerMoved{PlayerID: id, X: 10, Y: 20}
	if got := ann.tr.expect(t); got != moved {
		t.Errorf("Ann got %#v, want %#v", got, moved)
	}
	if got := nextWithin(t, bystander); got != moved {
		t.Errorf("bystander got %#v, want %#v", got, moved)
	}

	close(ann.tr.in)
	if err := ann.wait(t); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := nextWithin(t, bystander); got != (protocol.PlayerLeft{PlayerID: id}) {
		t.Errorf("bystander got %#v, want PlayerLeft", got)
	}
}

func TestSession_ManyConcurrentJoins(t *testing.T) {
	h := newHarness()
	const n = 20

	sessions := make([]*running, n)
	for i := range sessions {
		sessions[i] = h.start(t, context.Background(), Options{})
	}

	for _, r := range sessions {
		r.tr.send(t, protocol.Join{})
	}

	ids := make([]string, n)
	for i, r := range sessions {
		for ids[i] == "" {
			if w, ok := r.tr.expect(t).(protocol.Welcome); ok {
				ids[i] = w.YourID
			}
		}
	}

	sort.Strings(ids)
	for i := 1; i < n; i++ {
		if ids[i] == "" || ids[i] == ids[i-1] {
			t.Fatalf("ids not unique: %v", ids)
		}
	}
	if h.reg.Len() != n {
		t.Errorf("registry has %d players, want %d", h.reg.Len(), n)
	}

	for _, r := range sessions {
		close(r.tr.in)
		if err := r.wait(t); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry has %d players after all disconnects", h.reg.Len())
	}
}
