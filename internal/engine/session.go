// Package engine drives one external UCI chess engine process over its
// line-oriented protocol. A Session owns exactly one process; requests
// are serialized, every blocking call has a timeout, and a timed-out
// session is assumed corrupted and closed.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures an engine session.
type Config struct {
	Path           string         // engine executable
	Threads        int            // UCI Threads option, default 1 (deterministic search)
	HashMB         int            // UCI Hash option, default 64
	StartupTimeout time.Duration  // handshake deadline, default 10s
	SearchTimeout  time.Duration  // wall cap for depth-bounded searches, default 30s
	Grace          time.Duration  // margin on top of the search budget, default 2s
	Logger         zerolog.Logger // optional
}

func (c Config) withDefaults() Config {
	if c.Threads == 0 {
		c.Threads = 1
	}
	if c.HashMB == 0 {
		c.HashMB = 64
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = 10 * time.Second
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = 30 * time.Second
	}
	if c.Grace == 0 {
		c.Grace = 2 * time.Second
	}
	return c
}

// Limit bounds one evaluation. Exactly one of Depth or MoveTime should
// be set; Depth wins if both are.
type Limit struct {
	Depth    int
	MoveTime time.Duration
}

// Verdict is the result of one evaluation. ScoreCP is from the side to
// move's perspective; forced mates are mapped onto ±MateScore.
type Verdict struct {
	ScoreCP  int
	Mate     bool
	MateIn   int
	BestMove string // UCI notation; empty for terminal positions
	Depth    int
	Elapsed  time.Duration
}

type sessionState int

const (
	stateIdle sessionState = iota
	stateSearching
	stateClosed
)

// Session is a live engine process. Safe for concurrent use; concurrent
// Evaluate calls are serialized. Parallelism comes from opening multiple
// sessions, not from queuing inside one.
type Session struct {
	cfg   Config
	log   zerolog.Logger
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	mu    sync.Mutex
	state sessionState
}

// Open starts the engine process and completes the UCI handshake.
// Returns ErrUnavailable if the process cannot start or does not answer
// within the startup timeout.
func Open(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: no executable path", ErrUnavailable)
	}

	cmd := exec.Command(cfg.Path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, cfg.Path, err)
	}

	s := &Session{
		cfg:   cfg,
		log:   cfg.Logger,
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
	}

	// Reader goroutine owns stdout for the life of the process. The
	// channel close is the EOF signal for every pending read.
	go func() {
		defer close(s.lines)
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			s.lines <- sc.Text()
		}
	}()

	if err := s.handshake(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake() error {
	deadline := time.NewTimer(s.cfg.StartupTimeout)
	defer deadline.Stop()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.waitFor("uciok", deadline.C); err != nil {
		return err
	}
	if err := s.send(fmt.Sprintf("setoption name Threads value %d", s.cfg.Threads)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.send(fmt.Sprintf("setoption name Hash value %d", s.cfg.HashMB)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.send("isready"); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s.waitFor("readyok", deadline.C)
}

func (s *Session) waitFor(token string, deadline <-chan time.Time) error {
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return fmt.Errorf("%w: engine exited during handshake", ErrUnavailable)
			}
			if line == token {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("%w: no %s within %s", ErrUnavailable, token, s.cfg.StartupTimeout)
		}
	}
}

func (s *Session) send(cmd string) error {
	_, err := io.WriteString(s.stdin, cmd+"\n")
	return err
}

// Evaluate searches the position given as a FEN string, bounded by
// limit. The returned score is from the side to move's perspective.
//
// On ErrTimeout the session has been closed: the process state is
// unknowable once a response is overdue, and a stale bestmove must
// never be misread as the answer to a later request.
func (s *Session) Evaluate(ctx context.Context, fen string, limit Limit) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateClosed:
		return Verdict{}, ErrClosed
	case stateSearching:
		return Verdict{}, ErrBusy
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	var goCmd string
	budget := s.cfg.SearchTimeout
	if limit.Depth > 0 {
		goCmd = fmt.Sprintf("go depth %d", limit.Depth)
	} else if limit.MoveTime > 0 {
		goCmd = fmt.Sprintf("go movetime %d", limit.MoveTime.Milliseconds())
		budget = limit.MoveTime
	} else {
		return Verdict{}, fmt.Errorf("%w: empty search limit", ErrProtocol)
	}

	if err := s.send("position fen " + fen); err != nil {
		s.closeLocked()
		return Verdict{}, fmt.Errorf("%w: write position: %v", ErrProtocol, err)
	}
	if err := s.send(goCmd); err != nil {
		s.closeLocked()
		return Verdict{}, fmt.Errorf("%w: write go: %v", ErrProtocol, err)
	}
	s.state = stateSearching

	start := time.Now()
	timer := time.NewTimer(budget + s.cfg.Grace)
	defer timer.Stop()

	// Track the principal-variation score at the deepest completed
	// iteration. Later lines at the same or greater depth override
	// earlier ones; bound scores are not resolved values and are
	// skipped.
	var best infoLine
	var haveScore bool

	for {
		select {
		case <-ctx.Done():
			// Cooperative cancellation mid-search: the process may
			// still emit a bestmove later, so the session cannot be
			// reused.
			s.closeLocked()
			return Verdict{}, ctx.Err()

		case <-timer.C:
			s.closeLocked()
			return Verdict{}, fmt.Errorf("%w: no bestmove within %s", ErrTimeout, budget+s.cfg.Grace)

		case line, ok := <-s.lines:
			if !ok {
				s.closeLocked()
				return Verdict{}, fmt.Errorf("%w: engine exited mid-search", ErrProtocol)
			}
			if info, isInfo := parseInfo(line); isInfo {
				if info.hasEval && !info.bound && info.depth >= best.depth {
					best = info
					haveScore = true
				}
				continue
			}
			if move, isBest := parseBestmove(line); isBest {
				s.state = stateIdle
				if !haveScore {
					s.closeLocked()
					return Verdict{}, fmt.Errorf("%w: bestmove without score", ErrProtocol)
				}
				return Verdict{
					ScoreCP:  best.scoreCP,
					Mate:     best.mate,
					MateIn:   best.mateIn,
					BestMove: move,
					Depth:    best.depth,
					Elapsed:  time.Since(start),
				}, nil
			}
			// Anything else (id lines, option echoes) is discarded.
		}
	}
}

// Close terminates the engine process and drains its streams. Safe to
// call multiple times and from deferred cleanup on every exit path.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.state == stateClosed {
		return nil
	}
	s.state = stateClosed

	_ = s.send("quit")
	_ = s.stdin.Close()

	// Drain remaining output so the reader goroutine can reach EOF.
	go func() {
		for range s.lines {
		}
	}()

	// Bounded drain: give the process a moment to exit on its own,
	// then kill it. The reader goroutine exits when stdout closes.
	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		_ = s.cmd.Process.Kill()
		return <-done
	}
}
