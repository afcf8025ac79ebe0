package analyze

import (
	"testing"
	"time"

	"github.com/notnil/chess"

	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/replay"
)

func testMoveRecord() replay.MoveRecord {
	return replay.MoveRecord{
		Ply:       3,
		Side:      chess.White,
		SAN:       "Qh5",
		UCI:       "d1h5",
		FENBefore: "rnbqkbnr/pppp1ppp/8/4p3/4P3/8/PPPP1PPP/RNBQKBNR w KQkq e6 0 2",
		FENAfter:  "rnbqkbnr/pppp1ppp/8/4p2Q/4P3/8/PPPP1PPP/RNB1KBNR b KQkq - 1 2",
		Phase:     "opening",
		TimeSpent: 12 * time.Second,
		TimeKnown: true,
	}
}

func TestBuildDrill(t *testing.T) {
	rec := testMoveRecord()
	d := BuildDrill(7, "g1", rec, "g1f3", 20, 160, 180, drill.SeverityMinor)

	if d.RunID != 7 || d.GameID != "g1" || d.Ply != 3 || d.Side != "w" {
		t.Errorf("identity = %+v", d)
	}
	if d.BestUCI != "g1f3" || d.BestSAN != "Nf3" {
		t.Errorf("best move = %q / %q, want g1f3 / Nf3", d.BestUCI, d.BestSAN)
	}
	if d.CPLoss != 180 || d.EvalBeforeCP != 20 || d.EvalAfterCP != 160 {
		t.Errorf("evals = %+v", d)
	}
	if d.TimeSpentSec != 12 {
		t.Errorf("TimeSpentSec = %d, want 12", d.TimeSpentSec)
	}
	if d.Difficulty != "easy" {
		t.Errorf("Difficulty = %q", d.Difficulty)
	}
	if len(d.ID) != 16 {
		t.Errorf("ID = %q, want 16 hex chars", d.ID)
	}

	// Same inputs, same id; a different best move changes it.
	again := BuildDrill(8, "g1", rec, "g1f3", 20, 160, 180, drill.SeverityMinor)
	if again.ID != d.ID {
		t.Error("id should not depend on the run")
	}
	other := BuildDrill(7, "g1", rec, "b1c3", 20, 160, 180, drill.SeverityMinor)
	if other.ID == d.ID {
		t.Error("id should depend on the best move")
	}
}

func TestBuildDrillUnknownTime(t *testing.T) {
	rec := testMoveRecord()
	rec.TimeKnown = false
	d := BuildDrill(1, "g1", rec, "g1f3", 20, 160, 180, drill.SeverityMinor)
	if d.TimeSpentSec != -1 {
		t.Errorf("TimeSpentSec = %d, want -1 when unknown", d.TimeSpentSec)
	}
}

func TestDrillTags(t *testing.T) {
	rec := testMoveRecord()
	rec.Flags = replay.Flags{Check: true, Capture: true}
	tags := drillTags(rec, drill.SeverityTimed)
	want := []string{"blunder", "long-think", "check", "capture"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tags = %v, want %v", tags, want)
		}
	}
}

func TestUCIToSANFallback(t *testing.T) {
	// Unparseable inputs fall back to the raw UCI text.
	if got := uciToSAN("not a fen", "e2e4"); got != "e2e4" {
		t.Errorf("got %q", got)
	}
	if got := uciToSAN(testMoveRecord().FENBefore, "zz99"); got != "zz99" {
		t.Errorf("got %q", got)
	}
	if got := uciToSAN(testMoveRecord().FENBefore, ""); got != "" {
		t.Errorf("got %q", got)
	}
}
