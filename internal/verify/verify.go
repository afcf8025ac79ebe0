// Package verify grades a player's answer to a drill position.
package verify

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/notnil/chess"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/engine"
)

// Quality buckets a verified answer.
type Quality string

const (
	// QualityBest: the candidate is exactly the stored best move.
	QualityBest Quality = "best"
	// QualityAcceptable: a different move within the acceptable loss.
	QualityAcceptable Quality = "acceptable"
	// QualityInferior: a legal move losing more than the tolerance.
	QualityInferior Quality = "inferior"
)

// ErrInvalidMove reports a candidate that is not a legal move in the
// drill position. Distinct from engine faults so callers can show it
// as user error rather than a server problem.
var ErrInvalidMove = errors.New("not a legal move in this position")

// Evaluator is the engine capability the verifier needs. Satisfied by
// *engine.Session.
type Evaluator interface {
	Evaluate(ctx context.Context, fen string, limit engine.Limit) (engine.Verdict, error)
}

// Result is the graded outcome of one answer.
type Result struct {
	Quality Quality
	CPLoss  int    // engine loss of the candidate; 0 for an exact match
	BestSAN string // revealed on inferior answers, empty otherwise

	// Degraded marks results produced without an engine: only the
	// exact-match check ran, so non-matching legal moves are not graded.
	Degraded bool
}

// Check grades a candidate move against a drill. Exact matches are
// decided by move identity alone, with no engine call. Anything else is
// applied to the position and re-evaluated; the loss against the stored
// pre-move score decides acceptable versus inferior.
func Check(ctx context.Context, d drill.Drill, candidate string, eng Evaluator, limit engine.Limit, t analyze.Thresholds) (Result, error) {
	pos, move, err := decodeCandidate(d.FENBefore, candidate)
	if err != nil {
		return Result{}, err
	}

	if move.String() == d.BestUCI {
		return Result{Quality: QualityBest}, nil
	}

	if limit.Depth == 0 && limit.MoveTime == 0 {
		limit.Depth = 12
	}
	after := pos.Update(move)
	verdict, err := eng.Evaluate(ctx, after.String(), limit)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate answer: %w", err)
	}

	loss := analyze.Loss(d.EvalBeforeCP, verdict.ScoreCP)
	if loss <= t.AcceptableCP {
		return Result{Quality: QualityAcceptable, CPLoss: loss}, nil
	}
	return Result{Quality: QualityInferior, CPLoss: loss, BestSAN: d.BestSAN}, nil
}

// CheckExact is the engineless fallback used when no engine session can
// be opened: best on a match, degraded-inferior otherwise.
func CheckExact(d drill.Drill, candidate string) (Result, error) {
	_, move, err := decodeCandidate(d.FENBefore, candidate)
	if err != nil {
		return Result{}, err
	}
	if move.String() == d.BestUCI {
		return Result{Quality: QualityBest, Degraded: true}, nil
	}
	return Result{Quality: QualityInferior, BestSAN: d.BestSAN, Degraded: true}, nil
}

// uciShape matches coordinate moves like e2e4 or e7e8q. Such text must
// never reach the algebraic decoder: it reads "g1f3" as a pawn move to
// f3 without error, silently swapping the candidate.
var uciShape = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][nbrq]?$`)

// decodeCandidate accepts the answer in either algebraic or UCI form
// and confirms legality against the drill position.
func decodeCandidate(fen, candidate string) (*chess.Position, *chess.Move, error) {
	fenOpt, err := chess.FEN(fen)
	if err != nil {
		return nil, nil, fmt.Errorf("drill position: %w", err)
	}
	pos := chess.NewGame(fenOpt).Position()

	var move *chess.Move
	if uciShape.MatchString(candidate) {
		move, err = chess.UCINotation{}.Decode(pos, candidate)
	} else {
		move, err = chess.AlgebraicNotation{}.Decode(pos, candidate)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidMove, candidate)
	}
	for _, legal := range pos.ValidMoves() {
		if legal.String() == move.String() {
			return pos, move, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrInvalidMove, candidate)
}
