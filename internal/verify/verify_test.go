package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/engine"
)

// countingEvaluator returns a fixed score and counts calls, so tests
// can assert the exact-match fast path never reaches the engine.
type countingEvaluator struct {
	scoreCP int
	calls   int
}

func (e *countingEvaluator) Evaluate(ctx context.Context, fen string, limit engine.Limit) (engine.Verdict, error) {
	e.calls++
	return engine.Verdict{ScoreCP: e.scoreCP, BestMove: "a1a1", Depth: limit.Depth}, nil
}

// Position after 1.e4 e5, white to move; the stored best move is Nf3.
func testDrill() drill.Drill {
	return drill.Drill{
		ID:           "abc123",
		FENBefore:    "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",
		BestSAN:      "Nf3",
		BestUCI:      "g1f3",
		EvalBeforeCP: 30,
	}
}

func TestCheckExactMatchSkipsEngine(t *testing.T) {
	eng := &countingEvaluator{}
	th := analyze.DefaultThresholds()

	for _, candidate := range []string{"Nf3", "g1f3"} {
		res, err := Check(context.Background(), testDrill(), candidate, eng, engine.Limit{}, th)
		if err != nil {
			t.Fatalf("Check(%q): %v", candidate, err)
		}
		if res.Quality != QualityBest || res.CPLoss != 0 {
			t.Errorf("Check(%q) = %+v, want best with zero loss", candidate, res)
		}
	}
	if eng.calls != 0 {
		t.Errorf("engine called %d times for exact matches, want 0", eng.calls)
	}
}

func TestCheckCoordinateFormDecodesAsItself(t *testing.T) {
	// Coordinate text that also scans as algebraic must not be
	// reinterpreted: g1f3 is the stored best knight move, f2f3 is a
	// distinct pawn move that goes to the engine.
	eng := &countingEvaluator{scoreCP: 25}
	th := analyze.DefaultThresholds()

	res, err := Check(context.Background(), testDrill(), "g1f3", eng, engine.Limit{}, th)
	if err != nil {
		t.Fatalf("Check(g1f3): %v", err)
	}
	if res.Quality != QualityBest || eng.calls != 0 {
		t.Fatalf("Check(g1f3) = %+v with %d engine calls, want best with 0", res, eng.calls)
	}

	res, err = Check(context.Background(), testDrill(), "f2f3", eng, engine.Limit{}, th)
	if err != nil {
		t.Fatalf("Check(f2f3): %v", err)
	}
	if res.Quality != QualityInferior || res.CPLoss != 55 || eng.calls != 1 {
		t.Errorf("Check(f2f3) = %+v with %d engine calls, want inferior 55cp via the engine", res, eng.calls)
	}

	// Degraded grading honors the coordinate form the same way.
	degraded, err := CheckExact(testDrill(), "g1f3")
	if err != nil {
		t.Fatalf("CheckExact(g1f3): %v", err)
	}
	if degraded.Quality != QualityBest || !degraded.Degraded {
		t.Errorf("CheckExact(g1f3) = %+v, want degraded best", degraded)
	}
}

func TestCheckAcceptable(t *testing.T) {
	// Opponent sits at -10 after Nc3: loss = 30 + (-10) = 20, inside
	// the 50cp tolerance.
	eng := &countingEvaluator{scoreCP: -10}
	res, err := Check(context.Background(), testDrill(), "Nc3", eng, engine.Limit{}, analyze.DefaultThresholds())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Quality != QualityAcceptable || res.CPLoss != 20 {
		t.Errorf("res = %+v, want acceptable with 20cp loss", res)
	}
	if res.BestSAN != "" {
		t.Error("acceptable answers should not reveal the best move")
	}
	if eng.calls != 1 {
		t.Errorf("engine called %d times, want 1", eng.calls)
	}
}

func TestCheckInferior(t *testing.T) {
	// Loss = 30 + 25 = 55, past the tolerance.
	eng := &countingEvaluator{scoreCP: 25}
	res, err := Check(context.Background(), testDrill(), "a3", eng, engine.Limit{}, analyze.DefaultThresholds())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.Quality != QualityInferior || res.CPLoss != 55 {
		t.Errorf("res = %+v, want inferior with 55cp loss", res)
	}
	if res.BestSAN != "Nf3" {
		t.Errorf("BestSAN = %q, want Nf3", res.BestSAN)
	}
}

func TestCheckInvalidMove(t *testing.T) {
	eng := &countingEvaluator{}
	for _, candidate := range []string{"zzzz", "e5", "Nf6", ""} {
		_, err := Check(context.Background(), testDrill(), candidate, eng, engine.Limit{}, analyze.DefaultThresholds())
		if !errors.Is(err, ErrInvalidMove) {
			t.Errorf("Check(%q) err = %v, want ErrInvalidMove", candidate, err)
		}
	}
	if eng.calls != 0 {
		t.Errorf("engine called %d times for invalid moves, want 0", eng.calls)
	}
}

func TestCheckExact(t *testing.T) {
	res, err := CheckExact(testDrill(), "Nf3")
	if err != nil {
		t.Fatalf("CheckExact: %v", err)
	}
	if res.Quality != QualityBest || !res.Degraded {
		t.Errorf("res = %+v, want degraded best", res)
	}

	res, err = CheckExact(testDrill(), "Nc3")
	if err != nil {
		t.Fatalf("CheckExact: %v", err)
	}
	if res.Quality != QualityInferior || !res.Degraded || res.BestSAN != "Nf3" {
		t.Errorf("res = %+v, want degraded inferior revealing Nf3", res)
	}

	if _, err := CheckExact(testDrill(), "zzzz"); !errors.Is(err, ErrInvalidMove) {
		t.Errorf("CheckExact(zzzz) err = %v, want ErrInvalidMove", err)
	}
}
