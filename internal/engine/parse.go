package engine

import (
	"strconv"
	"strings"
)

// MateScore is the centipawn magnitude assigned to forced mates.
// A mate in N maps to MateScore-N so that shorter mates compare higher;
// mate 0 (side to move is mated) maps to -MateScore.
const MateScore = 32000

// infoLine is one parsed "info ..." response line.
type infoLine struct {
	depth   int
	scoreCP int
	mate    bool
	mateIn  int
	bound   bool // lowerbound/upperbound score, not a resolved value
	hasEval bool // line carried a score token
}

// parseInfo extracts depth and score from a UCI info line.
// Returns ok=false for lines that are not info lines.
func parseInfo(line string) (infoLine, bool) {
	if !strings.HasPrefix(line, "info") {
		return infoLine{}, false
	}
	var info infoLine
	fields := strings.Fields(line)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "depth":
			if i+1 < len(fields) {
				info.depth, _ = strconv.Atoi(fields[i+1])
			}
		case "score":
			if i+2 >= len(fields) {
				return info, true
			}
			n, err := strconv.Atoi(fields[i+2])
			if err != nil {
				return info, true
			}
			switch fields[i+1] {
			case "cp":
				info.scoreCP = n
				info.hasEval = true
			case "mate":
				info.mate = true
				info.mateIn = n
				info.scoreCP = mateToCP(n)
				info.hasEval = true
			}
		case "lowerbound", "upperbound":
			info.bound = true
		}
	}
	return info, true
}

// mateToCP maps a mate distance to a large signed centipawn magnitude
// for loss comparison. Positive N: side to move mates in N.
func mateToCP(n int) int {
	if n > 0 {
		return MateScore - n
	}
	return -MateScore - n // n <= 0: side to move gets mated in |n|
}

// parseBestmove extracts the move from a terminal "bestmove" line.
// The engine reports "bestmove (none)" for terminal positions; that
// yields an empty move with ok=true.
func parseBestmove(line string) (string, bool) {
	if !strings.HasPrefix(line, "bestmove") {
		return "", false
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", false
	}
	if fields[1] == "(none)" || fields[1] == "0000" {
		return "", true
	}
	return fields[1], true
}
