// Package store persists runs, games, per-move evaluations, drills, and
// answer attempts in a single SQLite file.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/replay"
)

// ErrNoDrills is returned by PickDrill when every matching drill has
// already been attempted (or none exist).
var ErrNoDrills = errors.New("no unseen drills match")

// ErrNotFound is returned by GetDrill for an unknown id.
var ErrNotFound = errors.New("drill not found")

// Store wraps the SQLite handle. A single Store is safe for concurrent
// use; SQLite serializes writers via WAL and the busy timeout.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. The schema is idempotent, so reopening an existing file is a
// no-op migration.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite is a single-connection-friendly driver; more
	// than one writer connection just trades locks.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS run_meta (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at     TEXT NOT NULL,
	finished_at    TEXT,
	params         TEXT,
	games_analyzed INTEGER NOT NULL DEFAULT 0,
	games_skipped  INTEGER NOT NULL DEFAULT 0,
	games_failed   INTEGER NOT NULL DEFAULT 0,
	drills         INTEGER NOT NULL DEFAULT 0,
	evals          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS games (
	id           TEXT PRIMARY KEY,
	date         TEXT,
	white        TEXT,
	black        TEXT,
	time_control TEXT,
	result       TEXT,
	termination  TEXT
);

CREATE TABLE IF NOT EXISTS moves (
	run_id         INTEGER NOT NULL,
	game_id        TEXT NOT NULL,
	ply            INTEGER NOT NULL,
	side           TEXT NOT NULL,
	san            TEXT NOT NULL,
	uci            TEXT NOT NULL,
	phase          TEXT NOT NULL,
	eval_before_cp INTEGER,
	eval_after_cp  INTEGER,
	cp_loss        INTEGER,
	time_spent_sec INTEGER,
	is_check       INTEGER NOT NULL DEFAULT 0,
	is_capture     INTEGER NOT NULL DEFAULT 0,
	is_pawn_push   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, game_id, ply)
);

CREATE TABLE IF NOT EXISTS drills (
	id             TEXT PRIMARY KEY,
	run_id         INTEGER NOT NULL,
	game_id        TEXT NOT NULL,
	ply            INTEGER NOT NULL,
	side           TEXT NOT NULL,
	phase          TEXT NOT NULL,
	san_played     TEXT NOT NULL,
	fen_before     TEXT NOT NULL,
	best_san       TEXT NOT NULL,
	best_uci       TEXT NOT NULL,
	cp_loss        INTEGER NOT NULL,
	eval_before_cp INTEGER NOT NULL,
	eval_after_cp  INTEGER NOT NULL,
	time_spent_sec INTEGER NOT NULL,
	severity       INTEGER NOT NULL,
	tags           TEXT NOT NULL DEFAULT '',
	difficulty     TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	UNIQUE (game_id, ply)
);

CREATE TABLE IF NOT EXISTS attempts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	drill_id    TEXT NOT NULL REFERENCES drills(id),
	answered_at TEXT NOT NULL,
	answer      TEXT NOT NULL,
	quality     TEXT NOT NULL,
	cp_loss     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attempts_drill ON attempts(drill_id);
CREATE INDEX IF NOT EXISTS idx_drills_severity ON drills(severity, cp_loss);
`

// BeginRun inserts a run_meta row and returns its id. params is a
// free-form description of the run configuration, kept for audit.
func (s *Store) BeginRun(ctx context.Context, params string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO run_meta (started_at, params) VALUES (?, ?)`,
		time.Now().UTC().Format(time.RFC3339), params)
	if err != nil {
		return 0, fmt.Errorf("begin run: %w", err)
	}
	return res.LastInsertId()
}

// FinishRun stamps the run finished and stores its summary counters.
func (s *Store) FinishRun(ctx context.Context, runID int64, sum analyze.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE run_meta SET finished_at = ?, games_analyzed = ?, games_skipped = ?,
		        games_failed = ?, drills = ?, evals = ?
		 WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339),
		sum.GamesAnalyzed, sum.GamesSkipped, sum.GamesFailed, sum.Drills, sum.Evals,
		runID)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	return nil
}

// RecordGame upserts a game's metadata. Re-analysis of a game already
// on file updates it in place.
func (s *Store) RecordGame(ctx context.Context, meta replay.GameMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO games (id, date, white, black, time_control, result, termination)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   date = excluded.date, white = excluded.white, black = excluded.black,
		   time_control = excluded.time_control, result = excluded.result,
		   termination = excluded.termination`,
		meta.ID, meta.Date, meta.White, meta.Black, meta.TimeControl, meta.Result, meta.Termination)
	if err != nil {
		return fmt.Errorf("record game %s: %w", meta.ID, err)
	}
	return nil
}

// RecordMove stores one evaluated move of a run.
func (s *Store) RecordMove(ctx context.Context, runID int64, gameID string, me analyze.MoveEval) error {
	spentSec := -1
	if me.TimeKnown {
		spentSec = int(me.TimeSpent / time.Second)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO moves
		   (run_id, game_id, ply, side, san, uci, phase,
		    eval_before_cp, eval_after_cp, cp_loss, time_spent_sec,
		    is_check, is_capture, is_pawn_push)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, gameID, me.Ply, me.Side.String(), me.SAN, me.UCI, me.Phase,
		me.BeforeCP, me.AfterCP, me.LossCP, spentSec,
		boolInt(me.Flags.Check), boolInt(me.Flags.Capture), boolInt(me.Flags.PawnPush))
	if err != nil {
		return fmt.Errorf("record move %s/%d: %w", gameID, me.Ply, err)
	}
	return nil
}

// RecordDrill stores a drill, silently keeping the existing row when
// the same (game, ply) was flagged by an earlier run.
func (s *Store) RecordDrill(ctx context.Context, d drill.Drill) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO drills
		   (id, run_id, game_id, ply, side, phase, san_played, fen_before,
		    best_san, best_uci, cp_loss, eval_before_cp, eval_after_cp,
		    time_spent_sec, severity, tags, difficulty, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RunID, d.GameID, d.Ply, d.Side, d.Phase, d.SANPlayed, d.FENBefore,
		d.BestSAN, d.BestUCI, d.CPLoss, d.EvalBeforeCP, d.EvalAfterCP,
		d.TimeSpentSec, int(d.Severity), strings.Join(d.Tags, ","), d.Difficulty,
		d.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record drill %s: %w", d.ID, err)
	}
	return nil
}

// RecordAttempt stores one graded answer to a drill.
func (s *Store) RecordAttempt(ctx context.Context, drillID, answer, quality string, cpLoss int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (drill_id, answered_at, answer, quality, cp_loss)
		 VALUES (?, ?, ?, ?, ?)`,
		drillID, time.Now().UTC().Format(time.RFC3339), answer, quality, cpLoss)
	if err != nil {
		return fmt.Errorf("record attempt for %s: %w", drillID, err)
	}
	return nil
}

const drillColumns = `id, run_id, game_id, ply, side, phase, san_played, fen_before,
	best_san, best_uci, cp_loss, eval_before_cp, eval_after_cp,
	time_spent_sec, severity, tags, difficulty, created_at`

// PickDrill selects a random unseen drill at or above minSeverity. The
// candidate pool is the hardest 20 matches, so serving order trends
// from worst blunders downward without being fully predictable.
// difficulty filters when non-empty.
func (s *Store) PickDrill(ctx context.Context, minSeverity int, difficulty string) (drill.Drill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+drillColumns+` FROM drills d
		 WHERE d.severity >= ?
		   AND (? = '' OR d.difficulty = ?)
		   AND NOT EXISTS (SELECT 1 FROM attempts a WHERE a.drill_id = d.id)
		 ORDER BY d.severity DESC, d.cp_loss DESC
		 LIMIT 20`,
		minSeverity, difficulty, difficulty)
	if err != nil {
		return drill.Drill{}, fmt.Errorf("pick drill: %w", err)
	}
	defer rows.Close()

	var pool []drill.Drill
	for rows.Next() {
		d, err := scanDrill(rows)
		if err != nil {
			return drill.Drill{}, err
		}
		pool = append(pool, d)
	}
	if err := rows.Err(); err != nil {
		return drill.Drill{}, fmt.Errorf("pick drill: %w", err)
	}
	if len(pool) == 0 {
		return drill.Drill{}, ErrNoDrills
	}
	return pool[rand.Intn(len(pool))], nil
}

// GetDrill fetches one drill by id.
func (s *Store) GetDrill(ctx context.Context, id string) (drill.Drill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+drillColumns+` FROM drills WHERE id = ?`, id)
	d, err := scanDrill(row)
	if errors.Is(err, sql.ErrNoRows) {
		return drill.Drill{}, ErrNotFound
	}
	return d, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrill(r rowScanner) (drill.Drill, error) {
	var d drill.Drill
	var sev int
	var tags, createdAt string
	err := r.Scan(&d.ID, &d.RunID, &d.GameID, &d.Ply, &d.Side, &d.Phase,
		&d.SANPlayed, &d.FENBefore, &d.BestSAN, &d.BestUCI,
		&d.CPLoss, &d.EvalBeforeCP, &d.EvalAfterCP,
		&d.TimeSpentSec, &sev, &tags, &d.Difficulty, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return drill.Drill{}, err
		}
		return drill.Drill{}, fmt.Errorf("scan drill: %w", err)
	}
	d.Severity = drill.Severity(sev)
	if tags != "" {
		d.Tags = strings.Split(tags, ",")
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		d.CreatedAt = t
	}
	return d, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
