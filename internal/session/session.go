package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/fieldsync/internal/broadcast"
	"github.com/muurk/fieldsync/internal/logging"
	"github.com/muurk/fieldsync/internal/protocol"
	"github.com/muurk/fieldsync/internal/registry"
)

// State is the lifecycle position of a session.
type State int32

const (
	Connecting State = iota
	AwaitingJoin
	Active
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingJoin:
		return "awaiting_join"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Transport is an upgraded message stream. *protocol.Conn implements it.
type Transport interface {
	ReadMessage() (byte, []byte, error)
	WriteText(payload []byte) error
	WriteClose(code int, reason string) error
	Close() error
	RemoteAddr() string
}

// readDeadliner is implemented by transports that support idle timeouts.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Store is the subset of the player registry a session uses.
type Store interface {
	Add(p protocol.Player) error
	Remove(id string) bool
	Move(id string, x, y float64) (protocol.Player, bool)
	Rename(id, nickname string) bool
	Get(id string) (protocol.Player, bool)
	Snapshot() []protocol.Player
}

// Bus is the broadcast side a session publishes to.
type Bus interface {
	Publish(msg protocol.ServerMessage)
	Unsubscribe(sub *broadcast.Subscription)
}

// Options tunes a session. The zero value is usable.
type Options struct {
	// IdleTimeout closes the session when no frame arrives for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// NewPlayer builds the player registered on Join. Defaults to registry.NewPlayer.
	NewPlayer func(nickname *string) protocol.Player

	// Now stamps chat messages. Defaults to time.Now.
	Now func() time.Time
}

// duplicateIDMessage is sent to a client whose Join collided with an existing id.
const duplicateIDMessage = "Player ID already exists"

var (
	errInboundDone  = errors.New("inbound loop finished")
	errOutboundDone = errors.New("outbound loop finished")
)

// Session pumps messages for one connection: inbound client messages are
// applied to the registry and published, and messages from the bus
// subscription are written back to the client.
type Session struct {
	transport Transport
	players   Store
	bus       Bus
	sub       *broadcast.Subscription
	opts      Options

	state    atomic.Int32
	playerID string // set once by the inbound loop on a successful Join
	joined   chan struct{}
	deregOne sync.Once
}

// New creates a session. sub must already be subscribed to bus so that
// nothing published after the connection was accepted is missed.
func New(t Transport, players Store, bus Bus, sub *broadcast.Subscription, opts Options) *Session {
	if opts.NewPlayer == nil {
		opts.NewPlayer = registry.NewPlayer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		transport: t,
		players:   players,
		bus:       bus,
		sub:       sub,
		opts:      opts,
		joined:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// PlayerID returns the id assigned on Join, or "" before that.
// It is only safe to call after Run has returned.
func (s *Session) PlayerID() string {
	return s.playerID
}

// Run drives the session until the peer disconnects, a transport error
// occurs, or ctx is cancelled. The player is deregistered and the
// subscription released before Run returns. A normal disconnect returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.setState(AwaitingJoin)
	remote := s.transport.RemoteAddr()

	g, gctx := errgroup.WithContext(ctx)
	unblocked := make(chan struct{})
	context.AfterFunc(gctx, func() {
		defer close(unblocked)
		if ctx.Err() != nil {
			_ = s.transport.WriteClose(protocol.CloseGoingAway, "server shutting down")
		}
		_ = s.transport.Close()
	})

	g.Go(func() error { return s.inbound(gctx) })
	g.Go(func() error { return s.outbound(gctx) })
	err := g.Wait()
	// Wait cancels gctx, so the callback above has been scheduled.
	<-unblocked

	s.setState(Closing)
	s.deregister()
	s.bus.Unsubscribe(s.sub)
	_ = s.transport.Close()
	s.setState(Closed)

	if isNormalEnd(err) {
		logging.LogSessionEvent(remote, s.playerID, "closed")
		return nil
	}
	logging.Warn("Session ended with error",
		zap.String("remote_addr", remote),
		zap.String("player_id", s.playerID),
		zap.Error(err),
	)
	return err
}

func isNormalEnd(err error) bool {
	return err == nil ||
		errors.Is(err, errInboundDone) ||
		errors.Is(err, errOutboundDone) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		protocol.IsCloseError(err)
}

// inbound reads and applies client messages. It always returns a non-nil
// error so that the errgroup cancels the outbound loop.
func (s *Session) inbound(ctx context.Context) error {
	remote := s.transport.RemoteAddr()
	d := dispatcher{s: s}
	deadliner, canTimeout := s.transport.(readDeadliner)

	for {
		if s.opts.IdleTimeout > 0 && canTimeout {
			if err := deadliner.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout)); err != nil {
				return fmt.Errorf("set read deadline: %w", err)
			}
		}

		opcode, payload, err := s.transport.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return errInboundDone
			}
			return fmt.Errorf("read: %w", err)
		}

		if opcode != protocol.OpcodeText {
			logging.Debug("Ignoring non-text message",
				zap.String("remote_addr", remote),
				zap.String("opcode", protocol.OpcodeName(opcode)),
			)
			continue
		}

		msg, err := protocol.DecodeClientMessage(payload)
		if err != nil {
			logging.Warn("Failed to decode client message",
				zap.String("remote_addr", remote),
				zap.String("player_id", s.playerID),
				zap.Error(err),
			)
			continue
		}

		if err := msg.Accept(d); err != nil {
			return err
		}
	}
}

// outbound relays bus messages once the client has joined. It always returns
// a non-nil error so that the errgroup cancels the inbound loop.
func (s *Session) outbound(ctx context.Context) error {
	select {
	case <-s.joined:
	case <-ctx.Done():
		return errOutboundDone
	}

	for {
		msg, err := s.sub.Next(ctx)
		if err != nil {
			if errors.Is(err, broadcast.ErrUnsubscribed) || ctx.Err() != nil {
				return errOutboundDone
			}
			return err
		}
		if err := s.send(msg); err != nil {
			return err
		}
	}
}

// send encodes msg and writes it to the transport.
func (s *Session) send(msg protocol.ServerMessage) error {
	data, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		logging.Error("Failed to encode server message",
			zap.String("type", msg.Type()),
			zap.Error(err),
		)
		return nil
	}
	if err := s.transport.WriteText(data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type(), err)
	}
	return nil
}

// deregister removes the player and announces the departure. It runs at
// most once regardless of which loop ended first.
func (s *Session) deregister() {
	s.deregOne.Do(func() {
		if s.playerID == "" {
			return
		}
		if s.players.Remove(s.playerID) {
			s.bus.Publish(protocol.PlayerLeft{PlayerID: s.playerID})
			logging.LogSessionEvent(s.transport.RemoteAddr(), s.playerID, "left")
		}
	})
}

// dispatcher applies decoded client messages on behalf of a session. It runs
// only on the inbound goroutine.
type dispatcher struct {
	s *Session
}

func (d dispatcher) HandleJoin(m protocol.Join) error {
	s := d.s
	remote := s.transport.RemoteAddr()

	if s.State() != AwaitingJoin {
		logging.Warn("Ignoring repeated Join",
			zap.String("remote_addr", remote),
			zap.String("player_id", s.playerID),
		)
		return nil
	}

	player := s.opts.NewPlayer(m.Nickname)
	if err := s.players.Add(player); err != nil {
		logging.Error("Player registration failed",
			zap.String("remote_addr", remote),
			zap.String("player_id", player.ID),
			zap.Error(err),
		)
		return s.send(protocol.ErrorMessage{Message: duplicateIDMessage})
	}
	s.playerID = player.ID

	// The snapshot below supersedes anything queued so far.
	s.sub.Discard()
	welcome := protocol.Welcome{YourID: player.ID, Players: s.players.Snapshot()}
	if err := s.send(welcome); err != nil {
		// Never announced, so leave without a PlayerLeft.
		s.players.Remove(player.ID)
		s.playerID = ""
		return err
	}

	s.setState(Active)
	close(s.joined)
	s.bus.Publish(protocol.PlayerJoined{Player: player})

	logging.LogSessionEvent(remote, player.ID, "joined",
		zap.String("nickname", player.Nickname),
		zap.String("color", player.Color),
	)
	return nil
}

func (d dispatcher) HandleMove(m protocol.Move) error {
	s := d.s
	if !d.active(protocol.TypeMove) {
		return nil
	}
	p, ok := s.players.Move(s.playerID, m.X, m.Y)
	if !ok {
		return nil
	}
	s.bus.Publish(protocol.PlayerMoved{PlayerID: p.ID, X: p.X, Y: p.Y})
	return nil
}

func (d dispatcher) HandleChat(m protocol.Chat) error {
	s := d.s
	if !d.active(protocol.TypeChat) {
		return nil
	}
	p, ok := s.players.Get(s.playerID)
	if !ok {
		return nil
	}
	s.bus.Publish(protocol.ChatMessage{
		PlayerID:  p.ID,
		Nickname:  p.Nickname,
		Message:   m.Message,
		Timestamp: s.opts.Now().Unix(),
	})
	return nil
}

// HandleChangeNick updates the registry only. Other clients learn the new
// nickname from the next Welcome or ChatMessage.
func (d dispatcher) HandleChangeNick(m protocol.ChangeNick) error {
	s := d.s
	if !d.active(protocol.TypeChangeNick) {
		return nil
	}
	if s.players.Rename(s.playerID, m.Nickname) {
		logging.Debug("Nickname changed",
			zap.String("player_id", s.playerID),
			zap.String("nickname", m.Nickname),
		)
	}
	return nil
}

func (d dispatcher) active(msgType string) bool {
	if d.s.State() == Active {
		return true
	}
	logging.Debug("Ignoring message before Join",
		zap.String("remote_addr", d.s.transport.RemoteAddr()),
		zap.String("type", msgType),
	)
	return false
}
