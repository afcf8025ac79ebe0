package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/notnil/chess"
)

// GameMeta is the identifying header data of one recorded game.
type GameMeta struct {
	ID          string
	Date        string
	White       string
	Black       string
	TimeControl string
	Result      string
	Termination string
}

// IsTimeControl reports whether the game was played at one of the given
// time controls (chess.com tags like "300" or "300+0").
func (m GameMeta) IsTimeControl(controls []string) bool {
	for _, tc := range controls {
		if m.TimeControl == tc {
			return true
		}
	}
	return false
}

// Game is a parsed game ready for walking: headers plus the main line
// as SAN moves and per-move clock annotations (-1 where absent).
type Game struct {
	Meta   GameMeta
	SANs   []string
	Clocks []time.Duration
}

// ParsePGN parses a multi-game PGN stream. Games whose movetext cannot
// be replayed are dropped with an error only if nothing parses at all.
func ParsePGN(r io.Reader) ([]Game, error) {
	parsed, err := chess.GamesFromPGN(r)
	if err != nil {
		return nil, fmt.Errorf("parse pgn: %w", err)
	}
	games := make([]Game, 0, len(parsed))
	for _, g := range parsed {
		games = append(games, fromNotnil(g))
	}
	return games, nil
}

func fromNotnil(g *chess.Game) Game {
	meta := GameMeta{
		Date:        firstTag(g, "UTCDate", "Date"),
		White:       firstTag(g, "White"),
		Black:       firstTag(g, "Black"),
		TimeControl: firstTag(g, "TimeControl"),
		Result:      firstTag(g, "Result"),
		Termination: firstTag(g, "Termination"),
	}
	meta.ID = GameID(meta.Date, meta.White, meta.Black)

	moves := g.Moves()
	positions := g.Positions()
	comments := g.Comments()

	out := Game{Meta: meta}
	out.SANs = make([]string, 0, len(moves))
	out.Clocks = make([]time.Duration, 0, len(moves))
	for i, mv := range moves {
		san := chess.AlgebraicNotation{}.Encode(positions[i], mv)
		out.SANs = append(out.SANs, san)

		clk := time.Duration(-1)
		if i < len(comments) {
			for _, c := range comments[i] {
				if d, ok := parseClock(c); ok {
					clk = d
					break
				}
			}
		}
		out.Clocks = append(out.Clocks, clk)
	}
	return out
}

// GameID derives the stable game identifier used as the drill grouping
// key: date_white_vs_black.
func GameID(date, white, black string) string {
	return strings.Trim(fmt.Sprintf("%s_%s_vs_%s", date, white, black), "_")
}

func firstTag(g *chess.Game, keys ...string) string {
	for _, k := range keys {
		if tp := g.GetTagPair(k); tp != nil && tp.Value != "" {
			return tp.Value
		}
	}
	return ""
}
