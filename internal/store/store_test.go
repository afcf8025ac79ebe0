package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/notnil/chess"
	"github.com/rs/zerolog"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/replay"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDrill(id string, sev drill.Severity, cpLoss int) drill.Drill {
	return drill.Drill{
		ID:           id,
		RunID:        1,
		GameID:       "2025.06.01_alice_vs_bob",
		Ply:          cpLoss, // distinct ply per drill keeps the unique key happy
		Side:         "w",
		Phase:        "middlegame",
		SANPlayed:    "Nf3",
		FENBefore:    "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",
		BestSAN:      "d4",
		BestUCI:      "d2d4",
		CPLoss:       cpLoss,
		EvalBeforeCP: 20,
		EvalAfterCP:  cpLoss - 20,
		TimeSpentSec: -1,
		Severity:     sev,
		Tags:         []string{"blunder", "capture"},
		Difficulty:   drill.DifficultyFor(cpLoss),
		CreatedAt:    time.Now().UTC(),
	}
}

func TestDrillRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := testDrill("d1", drill.SeveritySevere, 320)
	if err := s.RecordDrill(ctx, want); err != nil {
		t.Fatalf("RecordDrill: %v", err)
	}

	got, err := s.GetDrill(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDrill: %v", err)
	}
	if got.ID != want.ID || got.GameID != want.GameID || got.Ply != want.Ply {
		t.Errorf("identity = %+v", got)
	}
	if got.CPLoss != 320 || got.Severity != drill.SeveritySevere || got.Difficulty != "medium" {
		t.Errorf("classification = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "blunder" || got.Tags[1] != "capture" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.FENBefore != want.FENBefore || got.BestUCI != "d2d4" {
		t.Errorf("position = %+v", got)
	}

	if _, err := s.GetDrill(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDrill(missing) err = %v, want ErrNotFound", err)
	}
}

func TestRecordDrillKeepsFirstFlagging(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := testDrill("d1", drill.SeverityMinor, 160)
	if err := s.RecordDrill(ctx, first); err != nil {
		t.Fatal(err)
	}
	// Same game and ply from a later run must not clobber the original.
	dup := testDrill("d2", drill.SeveritySevere, 160)
	dup.RunID = 2
	if err := s.RecordDrill(ctx, dup); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetDrill(ctx, "d1"); err != nil {
		t.Errorf("original drill gone: %v", err)
	}
	if _, err := s.GetDrill(ctx, "d2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("duplicate flagging stored, err = %v", err)
	}
}

func TestPickDrillExcludesAttempted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordDrill(ctx, testDrill("d1", drill.SeveritySevere, 400)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordDrill(ctx, testDrill("d2", drill.SeverityMinor, 180)); err != nil {
		t.Fatal(err)
	}

	got, err := s.PickDrill(ctx, 2, "")
	if err != nil {
		t.Fatalf("PickDrill: %v", err)
	}
	if got.ID != "d1" {
		t.Errorf("picked %s, want d1 (only severity >= 2)", got.ID)
	}

	if err := s.RecordAttempt(ctx, "d1", "Nf3", "inferior", 120); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if _, err := s.PickDrill(ctx, 2, ""); !errors.Is(err, ErrNoDrills) {
		t.Errorf("PickDrill after attempt err = %v, want ErrNoDrills", err)
	}

	// The unattempted minor drill is still served at min severity 1.
	got, err = s.PickDrill(ctx, 1, "")
	if err != nil {
		t.Fatalf("PickDrill: %v", err)
	}
	if got.ID != "d2" {
		t.Errorf("picked %s, want d2", got.ID)
	}
}

func TestPickDrillDifficultyFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordDrill(ctx, testDrill("easy1", drill.SeverityMinor, 180)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordDrill(ctx, testDrill("med1", drill.SeveritySevere, 400)); err != nil {
		t.Fatal(err)
	}

	got, err := s.PickDrill(ctx, 1, "easy")
	if err != nil {
		t.Fatalf("PickDrill: %v", err)
	}
	if got.ID != "easy1" {
		t.Errorf("picked %s, want easy1", got.ID)
	}
	if _, err := s.PickDrill(ctx, 1, "hard"); !errors.Is(err, ErrNoDrills) {
		t.Errorf("unknown difficulty err = %v, want ErrNoDrills", err)
	}
}

func TestRunLifecycleAndMoveStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	runID, err := s.BeginRun(ctx, "user=alice")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if runID == 0 {
		t.Fatal("runID = 0")
	}

	meta := replay.GameMeta{ID: "g1", White: "alice", Black: "bob", TimeControl: "300"}
	if err := s.RecordGame(ctx, meta); err != nil {
		t.Fatalf("RecordGame: %v", err)
	}
	// Upsert is idempotent.
	if err := s.RecordGame(ctx, meta); err != nil {
		t.Fatalf("RecordGame again: %v", err)
	}

	moves := []analyze.MoveEval{
		{MoveRecord: replay.MoveRecord{Ply: 1, Side: chess.White, SAN: "e4", UCI: "e2e4", Phase: "opening", TimeSpent: 2 * time.Second, TimeKnown: true}, BeforeCP: 20, AfterCP: -20, LossCP: 0},
		{MoveRecord: replay.MoveRecord{Ply: 2, Side: chess.Black, SAN: "e5", UCI: "e7e5", Phase: "opening", TimeSpent: 30 * time.Second, TimeKnown: true}, BeforeCP: -20, AfterCP: 20, LossCP: 0},
		{MoveRecord: replay.MoveRecord{Ply: 3, Side: chess.White, SAN: "Qh5", UCI: "d1h5", Phase: "opening"}, BeforeCP: 20, AfterCP: 160, LossCP: 180},
	}
	for _, me := range moves {
		if err := s.RecordMove(ctx, runID, "g1", me); err != nil {
			t.Fatalf("RecordMove: %v", err)
		}
	}

	ms, err := s.MoveStats(ctx, runID, analyze.DefaultThresholds())
	if err != nil {
		t.Fatalf("MoveStats: %v", err)
	}
	if ms.Moves != 3 || ms.TimedMoves != 2 {
		t.Errorf("counts = %+v", ms)
	}
	if ms.AvgTimeSec != 16 {
		t.Errorf("AvgTimeSec = %v, want 16", ms.AvgTimeSec)
	}
	if ms.LongThinks != 1 || ms.FastMoves != 1 || ms.Blunders != 1 {
		t.Errorf("stats = %+v", ms)
	}

	if err := s.FinishRun(ctx, runID, analyze.Summary{GamesAnalyzed: 1, Drills: 1, Evals: 4}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
}

func TestDrillStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordDrill(ctx, testDrill("d1", drill.SeveritySevere, 400)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordDrill(ctx, testDrill("d2", drill.SeverityMinor, 180)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordAttempt(ctx, "d1", "d4", "best", 0); err != nil {
		t.Fatal(err)
	}

	st, err := s.DrillStats(ctx)
	if err != nil {
		t.Fatalf("DrillStats: %v", err)
	}
	if st.Drills != 2 || st.Unseen != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.BySeverity[3] != 1 || st.BySeverity[1] != 1 {
		t.Errorf("BySeverity = %v", st.BySeverity)
	}
	if st.ByPhase["middlegame"] != 2 {
		t.Errorf("ByPhase = %v", st.ByPhase)
	}
	if st.Attempts != 1 || st.Best != 1 || st.Inferior != 0 {
		t.Errorf("attempts = %+v", st)
	}
}
