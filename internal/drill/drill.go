// Package drill defines the persisted training-position record.
package drill

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Severity ranks how costly a flagged move was.
type Severity int

const (
	// SeverityMinor: evaluation loss past the blunder threshold.
	SeverityMinor Severity = 1
	// SeverityTimed: a blunder despite a long think.
	SeverityTimed Severity = 2
	// SeveritySevere: loss past the severe threshold, regardless of time.
	SeveritySevere Severity = 3
)

// Drill is a severity-tagged training position derived from one flagged
// move. Identity is (GameID, Ply); immutable once persisted.
type Drill struct {
	ID     string
	RunID  int64
	GameID string
	Ply    int

	Side      string // "w" or "b", the player who moved
	Phase     string
	SANPlayed string
	FENBefore string

	BestSAN string
	BestUCI string

	CPLoss       int
	EvalBeforeCP int // mover's perspective, position before the move
	EvalAfterCP  int // opponent's perspective, position after the move

	TimeSpentSec int // -1 when the clock annotation was missing
	Severity     Severity
	Tags         []string
	Difficulty   string
	CreatedAt    time.Time
}

// NewID derives the deterministic drill identifier from the drill's
// identity and content, so re-analysis of the same game reproduces the
// same id.
func NewID(gameID string, ply int, fenBefore, bestSAN string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%s|%s", gameID, ply, fenBefore, bestSAN)))
	return hex.EncodeToString(sum[:])[:16]
}

// DifficultyFor buckets a centipawn loss into the coarse difficulty
// label shown to the player.
func DifficultyFor(cpLoss int) string {
	if cpLoss < 250 {
		return "easy"
	}
	return "medium"
}
