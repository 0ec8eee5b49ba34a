package protocol

// Message type discriminators. These are the values of the "type" field on
// the wire and must not change: existing renderers match on them verbatim.
const (
	TypeJoin       = "Join"
	TypeMove       = "Move"
	TypeChat       = "Chat"
	TypeChangeNick = "ChangeNick"

	TypeWelcome      = "Welcome"
	TypePlayerJoined = "PlayerJoined"
	TypePlayerLeft   = "PlayerLeft"
	TypePlayerMoved  = "PlayerMoved"
	TypeChatMessage  = "ChatMessage"
	TypeError        = "Error"
)

// Field bounds. Positions are clamped into [0, FieldWidth] x [0, FieldHeight].
const (
	FieldWidth  = 800.0
	FieldHeight = 400.0
)

// Player is the client-visible state of one connected participant.
type Player struct {
	ID       string  `json:"id" jsonschema:"description=Server issued identifier stable for the connection lifetime"`
	Nickname string  `json:"nickname"`
	X        float64 `json:"x" jsonschema:"minimum=0,maximum=800"`
	Y        float64 `json:"y" jsonschema:"minimum=0,maximum=400"`
	Color    string  `json:"color" jsonschema:"description=CSS hex colour picked at join time"`
	LastSeen int64   `json:"last_seen" jsonschema:"description=Unix seconds of the last accepted move"`
}

// ClientMessage is one of Join, Move, Chat or ChangeNick.
// The set is closed: only types in this package implement it.
type ClientMessage interface {
	Type() string
	// Accept calls the handler method matching the concrete variant.
	Accept(h ClientHandler) error
	clientMessage()
}

// ClientHandler has one method per ClientMessage variant. Adding a variant
// adds a method here, so every handler must be updated before it compiles.
type ClientHandler interface {
	HandleJoin(Join) error
	HandleMove(Move) error
	HandleChat(Chat) error
	HandleChangeNick(ChangeNick) error
}

// Join announces a new player. A nil Nickname asks the server for a default.
type Join struct {
	Nickname *string `json:"nickname,omitempty"`
}

// Move requests a new position for the sender's player.
type Move struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Chat sends text to every connected client.
type Chat struct {
	Message string `json:"message"`
}

// ChangeNick replaces the sender's nickname.
type ChangeNick struct {
	Nickname string `json:"nickname"`
}

func (Join) Type() string       { return TypeJoin }
func (Move) Type() string       { return TypeMove }
func (Chat) Type() string       { return TypeChat }
func (ChangeNick) Type() string { return TypeChangeNick }

func (m Join) Accept(h ClientHandler) error       { return h.HandleJoin(m) }
func (m Move) Accept(h ClientHandler) error       { return h.HandleMove(m) }
func (m Chat) Accept(h ClientHandler) error       { return h.HandleChat(m) }
func (m ChangeNick) Accept(h ClientHandler) error { return h.HandleChangeNick(m) }

func (Join) clientMessage()       {}
func (Move) clientMessage()       {}
func (Chat) clientMessage()       {}
func (ChangeNick) clientMessage() {}

// ServerMessage is one of Welcome, PlayerJoined, PlayerLeft, PlayerMoved,
// ChatMessage or ErrorMessage.
type ServerMessage interface {
	Type() string
	// Accept calls the handler method matching the concrete variant.
	Accept(h ServerHandler) error
	serverMessage()
}

// ServerHandler has one method per ServerMessage variant.
type ServerHandler interface {
	HandleWelcome(Welcome) error
	HandlePlayerJoined(PlayerJoined) error
	HandlePlayerLeft(PlayerLeft) error
	HandlePlayerMoved(PlayerMoved) error
	HandleChatMessage(ChatMessage) error
	HandleError(ErrorMessage) error
}

// Welcome is sent once, only to the joining connection, with the full
// registry state including the joining player.
type Welcome struct {
	YourID  string   `json:"your_id"`
	Players []Player `json:"players"`
}

// PlayerJoined announces a newly registered player.
type PlayerJoined struct {
	Player Player `json:"player"`
}

// PlayerLeft announces that a player's connection ended.
type PlayerLeft struct {
	PlayerID string `json:"player_id"`
}

// PlayerMoved carries the clamped position accepted by the server.
type PlayerMoved struct {
	PlayerID string  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// ChatMessage relays chat text with the sender's nickname at send time.
type ChatMessage struct {
	PlayerID  string `json:"player_id"`
	Nickname  string `json:"nickname"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp" jsonschema:"description=Unix seconds assigned by the server"`
}

// ErrorMessage reports a problem to a single client. Its wire tag is "Error".
type ErrorMessage struct {
	Message string `json:"message"`
}

func (Welcome) Type() string      { return TypeWelcome }
func (PlayerJoined) Type() string { return TypePlayerJoined }
func (PlayerLeft) Type() string   { return TypePlayerLeft }
func (PlayerMoved) Type() string  { return TypePlayerMoved }
func (ChatMessage) Type() string  { return TypeChatMessage }
func (ErrorMessage) Type() string { return TypeError }

func (m Welcome) Accept(h ServerHandler) error      { return h.HandleWelcome(m) }
func (m PlayerJoined) Accept(h ServerHandler) error { return h.HandlePlayerJoined(m) }
func (m PlayerLeft) Accept(h ServerHandler) error   { return h.HandlePlayerLeft(m) }
func (m PlayerMoved) Accept(h ServerHandler) error  { return h.HandlePlayerMoved(m) }
func (m ChatMessage) Accept(h ServerHandler) error  { return h.HandleChatMessage(m) }
func (m ErrorMessage) Accept(h ServerHandler) error { return h.HandleError(m) }

func (Welcome) serverMessage()      {}
func (PlayerJoined) serverMessage() {}
func (PlayerLeft) serverMessage()   {}
func (PlayerMoved) serverMessage()  {}
func (ChatMessage) serverMessage()  {}
func (ErrorMessage) serverMessage() {}
