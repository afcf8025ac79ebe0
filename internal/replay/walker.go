// Package replay deterministically replays recorded games, yielding the
// before/after positions the analyzer evaluates.
package replay

import (
	"errors"
	"fmt"
	"time"

	"github.com/notnil/chess"
)

// ErrIllegalMove means a recorded move cannot be legally applied to the
// current position. The game is corrupt input and is skipped, not retried.
var ErrIllegalMove = errors.New("illegal move in recorded game")

// Game phases by ply, matching the drill tagging scheme.
const (
	OpeningPly    = 14
	MiddlegamePly = 50
)

// PhaseFromPly buckets a ply into opening/middlegame/endgame.
func PhaseFromPly(ply int) string {
	switch {
	case ply <= OpeningPly:
		return "opening"
	case ply <= MiddlegamePly:
		return "middlegame"
	default:
		return "endgame"
	}
}

// Flags are cheap motif markers derived from SAN text.
type Flags struct {
	Check     bool
	Capture   bool
	PawnPush  bool
	Promotion bool
	Castle    bool
}

func sanFlags(san string) Flags {
	f := Flags{
		Castle: san == "O-O" || san == "O-O-O",
	}
	for i := 0; i < len(san); i++ {
		switch san[i] {
		case '+', '#':
			f.Check = true
		case 'x':
			f.Capture = true
		case '=':
			f.Promotion = true
		}
	}
	if len(san) > 0 && san[0] >= 'a' && san[0] <= 'h' {
		f.PawnPush = true
	}
	return f
}

// MoveRecord is one replayed move with its surrounding positions.
// FENBefore/FENAfter are immutable snapshots; Side is the mover.
type MoveRecord struct {
	Ply       int
	Side      chess.Color
	SAN       string
	UCI       string
	FENBefore string
	FENAfter  string
	Flags     Flags
	Phase     string

	// TimeSpent is the wall-clock time the player used on this move,
	// derived from clock annotations. Valid only when TimeKnown.
	TimeSpent time.Duration
	TimeKnown bool

	// ClockAfter is the player's remaining clock after the move.
	ClockAfter time.Duration
	ClockKnown bool
}

// Walker replays one recorded move list. Walks are restartable: each
// Walk call builds its own board state, so the same Walker can be
// walked again, or concurrently, with no shared mutable state.
type Walker struct {
	startFEN string // empty means the standard initial position
	sans     []string
	clocks   []time.Duration // -1 where unknown
}

// NewWalker builds a walker over a parsed game's main line.
func NewWalker(g Game) *Walker {
	return &Walker{sans: g.SANs, clocks: g.Clocks}
}

// NewWalkerFromMoves builds a walker over a raw SAN move list starting
// from startFEN (empty for the initial position). clocks may be nil.
func NewWalkerFromMoves(startFEN string, sans []string, clocks []time.Duration) *Walker {
	return &Walker{startFEN: startFEN, sans: sans, clocks: clocks}
}

// Walk replays the move list from the start, invoking fn for every
// move. Returning an error from fn aborts the walk with that error.
// A recorded move that cannot be applied aborts with ErrIllegalMove.
func (w *Walker) Walk(fn func(MoveRecord) error) error {
	game, err := w.newGame()
	if err != nil {
		return err
	}

	lastClock := map[chess.Color]time.Duration{chess.White: -1, chess.Black: -1}

	for i, san := range w.sans {
		pos := game.Position()
		fenBefore := pos.String()
		side := pos.Turn()

		move, err := chess.AlgebraicNotation{}.Decode(pos, san)
		if err != nil {
			return fmt.Errorf("%w: ply %d %q: %v", ErrIllegalMove, i+1, san, err)
		}
		if err := game.Move(move); err != nil {
			return fmt.Errorf("%w: ply %d %q: %v", ErrIllegalMove, i+1, san, err)
		}

		rec := MoveRecord{
			Ply:       i + 1,
			Side:      side,
			SAN:       san,
			UCI:       move.String(),
			FENBefore: fenBefore,
			FENAfter:  game.Position().String(),
			Flags:     sanFlags(san),
			Phase:     PhaseFromPly(i + 1),
		}

		if i < len(w.clocks) && w.clocks[i] >= 0 {
			rec.ClockAfter = w.clocks[i]
			rec.ClockKnown = true
			if prev := lastClock[side]; prev >= 0 && prev >= w.clocks[i] {
				rec.TimeSpent = prev - w.clocks[i]
				rec.TimeKnown = true
			}
			lastClock[side] = w.clocks[i]
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) newGame() (*chess.Game, error) {
	if w.startFEN == "" {
		return chess.NewGame(), nil
	}
	fen, err := chess.FEN(w.startFEN)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start position: %v", ErrIllegalMove, err)
	}
	return chess.NewGame(fen), nil
}
