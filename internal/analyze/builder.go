package analyze

import (
	"time"

	"github.com/notnil/chess"

	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/replay"
)

// BuildDrill packages a flagged move into a persistable drill record.
// Given a valid move outcome and severity it cannot fail; best-move SAN
// conversion falls back to the raw UCI string if the FEN cannot be
// rebuilt (which would indicate a walker bug, not bad input).
func BuildDrill(runID int64, gameID string, rec replay.MoveRecord, bestUCI string, beforeCP, afterCP, lossCP int, sev drill.Severity) drill.Drill {
	bestSAN := uciToSAN(rec.FENBefore, bestUCI)

	spentSec := -1
	if rec.TimeKnown {
		spentSec = int(rec.TimeSpent / time.Second)
	}

	d := drill.Drill{
		ID:           drill.NewID(gameID, rec.Ply, rec.FENBefore, bestSAN),
		RunID:        runID,
		GameID:       gameID,
		Ply:          rec.Ply,
		Side:         rec.Side.String(),
		Phase:        rec.Phase,
		SANPlayed:    rec.SAN,
		FENBefore:    rec.FENBefore,
		BestSAN:      bestSAN,
		BestUCI:      bestUCI,
		CPLoss:       lossCP,
		EvalBeforeCP: beforeCP,
		EvalAfterCP:  afterCP,
		TimeSpentSec: spentSec,
		Severity:     sev,
		Tags:         drillTags(rec, sev),
		Difficulty:   drill.DifficultyFor(lossCP),
		CreatedAt:    time.Now().UTC(),
	}
	return d
}

func drillTags(rec replay.MoveRecord, sev drill.Severity) []string {
	tags := []string{"blunder"}
	if sev == drill.SeverityTimed {
		tags = append(tags, "long-think")
	}
	if rec.Flags.Check {
		tags = append(tags, "check")
	}
	if rec.Flags.Capture {
		tags = append(tags, "capture")
	}
	if rec.Flags.PawnPush {
		tags = append(tags, "pawn-push")
	}
	return tags
}

// uciToSAN re-expresses an engine move in algebraic notation for
// display and exact-match checking.
func uciToSAN(fen, uci string) string {
	if uci == "" {
		return ""
	}
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return uci
	}
	pos := chess.NewGame(fenOpt).Position()
	move, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		return uci
	}
	return chess.AlgebraicNotation{}.Encode(pos, move)
}
