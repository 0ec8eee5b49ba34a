package ui

import (
	"strings"
	"testing"

	"github.com/muurk/fieldsync/internal/protocol"
)

func player(id, nick string, x, y float64) protocol.Player {
	return protocol.Player{ID: id, Nickname: nick, X: x, Y: y, Color: "#FF6B6B"}
}

func TestField_ApplyMessages(t *testing.T) {
	f := NewField()

	steps := []struct {
		name  string
		msg   protocol.ServerMessage
		check func(t *testing.T, f *Field)
	}{
		{
			name: "welcome",
			msg: protocol.Welcome{YourID: "a", Players: []protocol.Player{
				player("a", "Ann", 100, 100),
				player("b", "Bob", 200, 200),
			}},
			check: func(t *testing.T, f *Field) {
				if !f.Joined || f.SelfID != "a" || len(f.Players()) != 2 {
					t.Errorf("after welcome: joined=%v self=%q players=%d", f.Joined, f.SelfID, len(f.Players()))
				}
			},
		},
		{
			name: "joined",
			msg:  protocol.PlayerJoined{Player: player("c", "Cy", 300, 300)},
			check: func(t *testing.T, f *Field) {
				if len(f.Players()) != 3 {
					t.Errorf("players = %d, want 3", len(f.Players()))
				}
			},
		},
		{
			name: "moved",
			msg:  protocol.PlayerMoved{PlayerID: "a", X: 800, Y: 0},
			check: func(t *testing.T, f *Field) {
				self, _ := f.Self()
				if self.X != 800 || self.Y != 0 {
					t.Errorf("self at (%v,%v), want (800,0)", self.X, self.Y)
				}
			},
		},
		{
			name: "moved unknown player",
			msg:  protocol.PlayerMoved{PlayerID: "zz", X: 1, Y: 1},
			check: func(t *testing.T, f *Field) {
				if len(f.Players()) != 3 {
					t.Errorf("unknown move added a player")
				}
			},
		},
		{
			name: "chat reveals nickname",
			msg:  protocol.ChatMessage{PlayerID: "b", Nickname: "Bobby", Message: "hi", Timestamp: 1700000000},
			check: func(t *testing.T, f *Field) {
				if len(f.Chat) != 1 || f.Chat[0].Message != "hi" || f.Chat[0].At.Unix() != 1700000000 {
					t.Errorf("chat = %+v", f.Chat)
				}
				for _, p := range f.Players() {
					if p.ID == "b" && p.Nickname != "Bobby" {
						t.Errorf("nickname = %q, want Bobby", p.Nickname)
					}
				}
			},
		},
		{
			name: "left",
			msg:  protocol.PlayerLeft{PlayerID: "c"},
			check: func(t *testing.T, f *Field) {
				if len(f.Players()) != 2 {
					t.Errorf("players = %d, want 2", len(f.Players()))
				}
			},
		},
		{
			name: "error",
			msg:  protocol.ErrorMessage{Message: "Player ID already exists"},
			check: func(t *testing.T, f *Field) {
				if f.LastError != "Player ID already exists" {
					t.Errorf("LastError = %q", f.LastError)
				}
			},
		},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if err := step.msg.Accept(f); err != nil {
				t.Fatalf("Accept() error = %v", err)
			}
			step.check(t, f)
		})
	}
}

func TestField_ChatBounded(t *testing.T) {
	f := NewField()
	for i := 0; i < maxChatLines+10; i++ {
		_ = f.HandleChatMessage(protocol.ChatMessage{PlayerID: "a", Nickname: "Ann", Message: strings.Repeat("x", i)})
	}
	if len(f.Chat) != maxChatLines {
		t.Fatalf("chat lines = %d, want %d", len(f.Chat), maxChatLines)
	}
	if got := len(f.Chat[0].Message); got != 10 {
		t.Errorf("oldest kept line has length %d, want 10", got)
	}
}

func TestField_RenameSelf(t *testing.T) {
	f := NewField()
	_ = f.HandleWelcome(protocol.Welcome{YourID: "a", Players: []protocol.Player{player("a", "Ann", 0, 0)}})

	f.RenameSelf("Annie")
	if self, _ := f.Self(); self.Nickname != "Annie" {
		t.Errorf("nickname = %q, want Annie", self.Nickname)
	}
}

func TestField_PlayersOrder(t *testing.T) {
	f := NewField()
	_ = f.HandleWelcome(protocol.Welcome{YourID: "x", Players: []protocol.Player{
		player("3", "Cy", 0, 0),
		player("2", "Ann", 0, 0),
		player("1", "Ann", 0, 0),
	}})

	var ids []string
	for _, p := range f.Players() {
		ids = append(ids, p.ID)
	}
	if got := strings.Join(ids, ","); got != "1,2,3" {
		t.Errorf("order = %s, want 1,2,3", got)
	}
}

func TestCell(t *testing.T) {
	tests := []struct {
		name         string
		x, y         float64
		cols, rows   int
		wantC, wantR int
	}{
		{"origin", 0, 0, 80, 20, 0, 0},
		{"far corner", 800, 400, 80, 20, 79, 19},
		{"middle", 400, 200, 81, 21, 40, 10},
		{"beyond field", 2000, -50, 10, 10, 9, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, r := Cell(tt.x, tt.y, tt.cols, tt.rows)
			if c != tt.wantC || r != tt.wantR {
				t.Errorf("Cell() = (%d,%d), want (%d,%d)", c, r, tt.wantC, tt.wantR)
			}
		})
	}
}

func TestMarker(t *testing.T) {
	tests := map[string]string{
		"ann":  "A",
		"Éva":  "É",
		"":     "@",
		"\x01": "@",
	}
	for nick, want := range tests {
		if got := marker(nick); got != want {
			t.Errorf("marker(%q) = %q, want %q", nick, got, want)
		}
	}
}

func TestField_Render(t *testing.T) {
	f := NewField()
	_ = f.HandleWelcome(protocol.Welcome{YourID: "a", Players: []protocol.Player{
		player("a", "ann", 0, 0),
		player("b", "bob", 800, 400),
	}})

	out := f.Render(40, 12)
	if !strings.Contains(out, "A") || !strings.Contains(out, "B") {
		t.Errorf("render is missing player markers:\n%s", out)
	}
	if lines := strings.Split(out, "\n"); len(lines) != 12 {
		t.Errorf("render has %d lines, want 12", len(lines))
	}
}
