// Package drillapi serves training positions over HTTP and grades
// submitted answers.
package drillapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/engine"
	"github.com/daonin/chessdrill/internal/store"
	"github.com/daonin/chessdrill/internal/verify"
)

// Config holds the engine and grading settings for answer checking.
type Config struct {
	Engine     engine.Config
	Limit      engine.Limit
	Thresholds analyze.Thresholds
}

// Handler serves the drill API off the SQLite store.
type Handler struct {
	st  *store.Store
	cfg Config
	log zerolog.Logger
}

// NewRouter wires the drill endpoints with request-id and access-log
// middleware.
func NewRouter(log zerolog.Logger, st *store.Store, cfg Config) http.Handler {
	h := &Handler{st: st, cfg: cfg, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/api/drill", http.HandlerFunc(h.nextDrill))
	mux.Handle("/api/drill/answer", http.HandlerFunc(h.answer))
	mux.Handle("/api/stats", http.HandlerFunc(h.stats))

	return RequestID(AccessLog(log, mux))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// DrillResponse is a training position with the answer withheld.
type DrillResponse struct {
	ID           string   `json:"id"`
	FEN          string   `json:"fen"`
	Side         string   `json:"side"`
	Phase        string   `json:"phase"`
	GameID       string   `json:"game_id"`
	Ply          int      `json:"ply"`
	SANPlayed    string   `json:"san_played"`
	CPLoss       int      `json:"cp_loss"`
	TimeSpentSec int      `json:"time_spent_sec"`
	Severity     int      `json:"severity"`
	Tags         []string `json:"tags,omitempty"`
	Difficulty   string   `json:"difficulty"`
}

func toDrillResponse(d drill.Drill) DrillResponse {
	return DrillResponse{
		ID:           d.ID,
		FEN:          d.FENBefore,
		Side:         d.Side,
		Phase:        d.Phase,
		GameID:       d.GameID,
		Ply:          d.Ply,
		SANPlayed:    d.SANPlayed,
		CPLoss:       d.CPLoss,
		TimeSpentSec: d.TimeSpentSec,
		Severity:     int(d.Severity),
		Tags:         d.Tags,
		Difficulty:   d.Difficulty,
	}
}

func (h *Handler) nextDrill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	minSeverity := 1
	if s := r.URL.Query().Get("min_severity"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 3 {
			http.Error(w, "min_severity must be 1..3", http.StatusBadRequest)
			return
		}
		minSeverity = n
	}
	difficulty := r.URL.Query().Get("difficulty")

	d, err := h.st.PickDrill(r.Context(), minSeverity, difficulty)
	if err != nil {
		if errors.Is(err, store.ErrNoDrills) {
			http.Error(w, "no unseen drills", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("pick drill")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toDrillResponse(d))
}

// AnswerRequest is a candidate move for a drill, in SAN or UCI.
type AnswerRequest struct {
	DrillID string `json:"drill_id"`
	Move    string `json:"move"`
}

// AnswerResponse is the graded outcome. BestSAN is revealed only for
// inferior answers.
type AnswerResponse struct {
	Quality  string `json:"quality"`
	CPLoss   int    `json:"cp_loss"`
	BestSAN  string `json:"best_san,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

func (h *Handler) answer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.DrillID == "" || req.Move == "" {
		http.Error(w, "drill_id and move are required", http.StatusBadRequest)
		return
	}

	d, err := h.st.GetDrill(r.Context(), req.DrillID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "unknown drill", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("get drill")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	res, err := h.grade(r, d, req.Move)
	if err != nil {
		if errors.Is(err, verify.ErrInvalidMove) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Str("drill", d.ID).Msg("grade answer")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.st.RecordAttempt(r.Context(), d.ID, req.Move, string(res.Quality), res.CPLoss); err != nil {
		h.log.Error().Err(err).Str("drill", d.ID).Msg("record attempt")
	}

	writeJSON(w, AnswerResponse{
		Quality:  string(res.Quality),
		CPLoss:   res.CPLoss,
		BestSAN:  res.BestSAN,
		Degraded: res.Degraded,
	})
}

// grade opens a fresh engine session per answer. When no engine can be
// started the exact-match check still runs, marked degraded.
func (h *Handler) grade(r *http.Request, d drill.Drill, move string) (verify.Result, error) {
	sess, err := engine.Open(h.cfg.Engine)
	if err != nil {
		h.log.Warn().Err(err).Msg("engine unavailable, exact-match grading only")
		return verify.CheckExact(d, move)
	}
	defer sess.Close()
	return h.gradeWith(r.Context(), d, move, sess)
}

// gradeWith degrades to the exact-match check when the engine faults
// mid-verification, so a dying engine never turns a gradable answer
// into a server error.
func (h *Handler) gradeWith(ctx context.Context, d drill.Drill, move string, eng verify.Evaluator) (verify.Result, error) {
	res, err := verify.Check(ctx, d, move, eng, h.cfg.Limit, h.cfg.Thresholds)
	if err != nil && isEngineFault(err) {
		h.log.Warn().Err(err).Str("drill", d.ID).Msg("engine fault during grading, exact-match only")
		return verify.CheckExact(d, move)
	}
	return res, err
}

func isEngineFault(err error) bool {
	return errors.Is(err, engine.ErrTimeout) ||
		errors.Is(err, engine.ErrProtocol) ||
		errors.Is(err, engine.ErrClosed) ||
		errors.Is(err, engine.ErrUnavailable)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st, err := h.st.DrillStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Str("rid", GetRequestID(r.Context())).Msg("drill stats")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, st)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
