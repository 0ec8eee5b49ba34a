package ui

import (
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/muurk/fieldsync/internal/protocol"
)

// maxChatLines bounds the chat history kept in memory.
const maxChatLines = 100

// ChatLine is one received chat message.
type ChatLine struct {
	PlayerID string
	Nickname string
	Message  string
	At       time.Time
}

// Field is the client-side mirror of the shared state, kept up to date by
// applying server messages to it. It implements protocol.ServerHandler.
type Field struct {
	SelfID    string
	Joined    bool
	LastError string
	Chat      []ChatLine

	players map[string]protocol.Player
}

// NewField returns an empty field.
func NewField() *Field {
	return &Field{players: make(map[string]protocol.Player)}
}

var _ protocol.ServerHandler = (*Field)(nil)

// HandleWelcome replaces the local state with the server's snapshot.
func (f *Field) HandleWelcome(m protocol.Welcome) error {
	f.SelfID = m.YourID
	f.Joined = true
	f.players = make(map[string]protocol.Player, len(m.Players))
	for _, p := range m.Players {
		f.players[p.ID] = p
	}
	return nil
}

func (f *Field) HandlePlayerJoined(m protocol.PlayerJoined) error {
	f.players[m.Player.ID] = m.Player
	return nil
}

func (f *Field) HandlePlayerLeft(m protocol.PlayerLeft) error {
	delete(f.players, m.PlayerID)
	return nil
}

func (f *Field) HandlePlayerMoved(m protocol.PlayerMoved) error {
	p, ok := f.players[m.PlayerID]
	if !ok {
		return nil
	}
	p.X, p.Y = m.X, m.Y
	f.players[m.PlayerID] = p
	return nil
}

// HandleChatMessage appends to the chat log. Chat also reveals a sender's
// current nickname, since nickname changes are not broadcast.
func (f *Field) HandleChatMessage(m protocol.ChatMessage) error {
	if p, ok := f.players[m.PlayerID]; ok && p.Nickname != m.Nickname {
		p.Nickname = m.Nickname
		f.players[m.PlayerID] = p
	}

	f.Chat = append(f.Chat, ChatLine{
		PlayerID: m.PlayerID,
		Nickname: m.Nickname,
		Message:  m.Message,
		At:       time.Unix(m.Timestamp, 0),
	})
	if len(f.Chat) > maxChatLines {
		f.Chat = f.Chat[len(f.Chat)-maxChatLines:]
	}
	return nil
}

func (f *Field) HandleError(m protocol.ErrorMessage) error {
	f.LastError = m.Message
	return nil
}

// RenameSelf records a nickname change made by this client.
func (f *Field) RenameSelf(nickname string) {
	if p, ok := f.players[f.SelfID]; ok {
		p.Nickname = nickname
		f.players[f.SelfID] = p
	}
}

// Self returns this client's player once joined.
func (f *Field) Self() (protocol.Player, bool) {
	p, ok := f.players[f.SelfID]
	return p, ok
}

// Players returns all known players ordered by nickname, then id.
func (f *Field) Players() []protocol.Player {
	players := make([]protocol.Player, 0, len(f.players))
	for _, p := range f.players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Nickname != players[j].Nickname {
			return players[i].Nickname < players[j].Nickname
		}
		return players[i].ID < players[j].ID
	})
	return players
}

// Cell maps a field position to a grid cell of cols x rows.
func Cell(x, y float64, cols, rows int) (int, int) {
	col := int(x / protocol.FieldWidth * float64(cols-1))
	row := int(y / protocol.FieldHeight * float64(rows-1))
	return min(max(col, 0), cols-1), min(max(row, 0), rows-1)
}

// marker is the character drawn for a player.
func marker(nickname string) string {
	r, _ := utf8.DecodeRuneInString(nickname)
	if r == utf8.RuneError || !unicode.IsPrint(r) {
		return "@"
	}
	return string(unicode.ToUpper(r))
}

// Render draws the field as a bordered grid with the given outer size.
// Later players in Players order are drawn over earlier ones; this client
// is always drawn last.
func (f *Field) Render(width, height int) string {
	cols, rows := max(width-2, 2), max(height-2, 2)

	grid := make([][]string, rows)
	empty := FieldEmptyStyle.Render(EmptyCell)
	for r := range grid {
		grid[r] = make([]string, cols)
		for c := range grid[r] {
			grid[r][c] = empty
		}
	}

	draw := func(p protocol.Player, self bool) {
		c, r := Cell(p.X, p.Y, cols, rows)
		grid[r][c] = PlayerStyle(p.Color, self).Render(marker(p.Nickname))
	}
	for _, p := range f.Players() {
		if p.ID != f.SelfID {
			draw(p, false)
		}
	}
	if self, ok := f.Self(); ok {
		draw(self, true)
	}

	lines := make([]string, rows)
	for r, row := range grid {
		lines[r] = strings.Join(row, "")
	}
	return FieldBorderStyle.Render(strings.Join(lines, "\n"))
}
