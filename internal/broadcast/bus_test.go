package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/muurk/fieldsync/internal/protocol"
)

func chat(i int) protocol.ServerMessage {
	return protocol.ChatMessage{PlayerID: "p", Message: fmt.Sprint(i)}
}

func nextWithin(t *testing.T, sub *Subscription, d time.Duration) (protocol.ServerMessage, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return sub.Next(ctx)
}

func TestBus_FIFO(t *testing.T) {
	bus := New(16)
	sub := bus.Subscribe()

	for i := 0; i < 10; i++ {
		bus.Publish(chat(i))
	}

	for i := 0; i < 10; i++ {
		msg, err := nextWithin(t, sub, time.Second)
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got := msg.(protocol.ChatMessage).Message; got != fmt.Sprint(i) {
			t.Errorf("message %d = %q, want %q", i, got, fmt.Sprint(i))
		}
	}
}

func TestBus_NoReplay(t *testing.T) {
	bus := New(16)
	bus.Publish(chat(0))

	sub := bus.Subscribe()
	bus.Publish(chat(1))

	msg, err := nextWithin(t, sub, time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got := msg.(protocol.ChatMessage).Message; got != "1" {
		t.Errorf("first message = %q, want %q (no replay of earlier publishes)", got, "1")
	}
	if sub.Len() != 0 {
		t.Errorf("Len() = %d, want 0", sub.Len())
	}
}

func TestBus_DropOldest(t *testing.T) {
	bus := New(3)
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(chat(i))
		if _, err := nextWithin(t, fast, time.Second); err != nil {
			t.Fatalf("fast Next() error = %v", err)
		}
	}

	if slow.Dropped() != 2 {
		t.Errorf("slow Dropped() = %d, want 2", slow.Dropped())
	}
	if fast.Dropped() != 0 {
		t.Errorf("fast Dropped() = %d, want 0", fast.Dropped())
	}

	for _, want := range []string{"2", "3", "4"} {
		msg, err := nextWithin(t, slow, time.Second)
		if err != nil {
			t.Fatalf("slow Next() error = %v", err)
		}
		if got := msg.(protocol.ChatMessage).Message; got != want {
			t.Errorf("slow message = %q, want %q", got, want)
		}
	}

	stats := bus.Stats()
	if stats.Published != 5 || stats.Dropped != 2 || stats.Subscribers != 2 {
		t.Errorf("Stats() = %+v, want {Subscribers:2 Published:5 Dropped:2}", stats)
	}
}

func TestBus_UnsubscribeWakesNext(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()

	errc := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errc <- err
	}()

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrUnsubscribed) {
			t.Errorf("Next() error = %v, want ErrUnsubscribed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() still blocked after Unsubscribe")
	}

	bus.Publish(chat(0))
	if sub.Len() != 0 {
		t.Error("unsubscribed subscription should not receive messages")
	}
	if bus.Stats().Subscribers != 0 {
		t.Errorf("Subscribers = %d, want 0", bus.Stats().Subscribers)
	}
}

func TestBus_NextContextCancel(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := sub.Next(ctx)
		errc <- err
	}()

	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Next() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() still blocked after cancel")
	}
}

func TestBus_NextBlocksUntilPublish(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe()

	got := make(chan protocol.ServerMessage, 1)
	go func() {
		msg, err := sub.Next(context.Background())
		if err == nil {
			got <- msg
		}
	}()

	select {
	case <-got:
		t.Fatal("Next() returned before anything was published")
	case <-time.After(20 * time.Millisecond):
	}

	bus.Publish(protocol.PlayerLeft{PlayerID: "x"})

	select {
	case msg := <-got:
		if msg.Type() != protocol.TypePlayerLeft {
			t.Errorf("Next() = %s, want PlayerLeft", msg.Type())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Next() not woken by Publish")
	}
}

func TestSubscription_Discard(t *testing.T) {
	bus := New(8)
	sub := bus.Subscribe()

	bus.Publish(chat(0))
	bus.Publish(chat(1))
	sub.Discard()
	bus.Publish(chat(2))

	msg, err := nextWithin(t, sub, time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got := msg.(protocol.ChatMessage).Message; got != "2" {
		t.Errorf("message after Discard = %q, want %q", got, "2")
	}
}

func TestBus_SameOrderAcrossSubscribers(t *testing.T) {
	const publishers = 8
	const perPublisher = 100

	bus := New(publishers * perPublisher)
	subs := []*Subscription{bus.Subscribe(), bus.Subscribe(), bus.Subscribe()}

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				bus.Publish(protocol.PlayerMoved{PlayerID: fmt.Sprint(p), X: float64(i)})
			}
		}(p)
	}
	wg.Wait()

	var reference []protocol.ServerMessage
	for i, sub := range subs {
		var seq []protocol.ServerMessage
		for sub.Len() > 0 {
			msg, err := nextWithin(t, sub, time.Second)
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			seq = append(seq, msg)
		}
		if len(seq) != publishers*perPublisher {
			t.Fatalf("subscriber %d received %d messages, want %d", i, len(seq), publishers*perPublisher)
		}
		if i == 0 {
			reference = seq
			continue
		}
		for j := range seq {
			if seq[j] != reference[j] {
				t.Fatalf("subscriber %d diverges at %d: %v vs %v", i, j, seq[j], reference[j])
			}
		}
	}

	// Per-publisher order is preserved.
	last := make(map[string]float64)
	for _, msg := range reference {
		m := msg.(protocol.PlayerMoved)
		if prev, ok := last[m.PlayerID]; ok && m.X <= prev {
			t.Fatalf("publisher %s out of order: %v after %v", m.PlayerID, m.X, prev)
		}
		last[m.PlayerID] = m.X
	}
}

func BenchmarkBus_Publish(b *testing.B) {
	bus := New(DefaultQueueSize)
	for i := 0; i < 50; i++ {
		bus.Subscribe()
	}
	msg := protocol.PlayerMoved{PlayerID: "p", X: 1, Y: 2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(msg)
	}
}
