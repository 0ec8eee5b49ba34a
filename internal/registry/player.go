package registry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/muurk/fieldsync/internal/protocol"
)

// Palette is the fixed set of colours a new player can be assigned.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#96CEB4",
	"#FECA57",
	"#FF9FF3",
}

// Spawn area for new players. Coordinates are drawn from [min, max).
const (
	spawnMinX = 50.0
	spawnMaxX = 750.0
	spawnMinY = 50.0
	spawnMaxY = 350.0
)

// NewPlayer builds a player with a fresh id, a random spawn position and a
// random palette colour. A nil nickname yields "Player" followed by the first
// six characters of the id. An empty string is kept as given.
func NewPlayer(nickname *string) protocol.Player {
	id := uuid.NewString()

	name := "Player" + id[:6]
	if nickname != nil {
		name = *nickname
	}

	return protocol.Player{
		ID:       id,
		Nickname: name,
		X:        spawnMinX + rand.Float64()*(spawnMaxX-spawnMinX),
		Y:        spawnMinY + rand.Float64()*(spawnMaxY-spawnMinY),
		Color:    Palette[rand.IntN(len(Palette))],
		LastSeen: time.Now().Unix(),
	}
}

// Clamp limits x and y to the field bounds independently. NaN maps to 0.
func Clamp(x, y float64) (float64, float64) {
	return clampAxis(x, protocol.FieldWidth), clampAxis(y, protocol.FieldHeight)
}

func clampAxis(v, limit float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), limit)
}
