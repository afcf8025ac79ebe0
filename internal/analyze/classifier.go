package analyze

import (
	"time"

	"github.com/daonin/chessdrill/internal/drill"
)

// Loss computes the mover's centipawn loss from the evaluation before
// the move (mover's perspective) and after the move (opponent's
// perspective). Negating the after score converts it back to the
// mover's perspective: loss = before - (-after). Clamped at zero, since
// engine noise can otherwise yield small negative "loss" for
// equal-strength replies.
func Loss(beforeCP, afterCP int) int {
	loss := beforeCP + afterCP
	if loss < 0 {
		return 0
	}
	return loss
}

// Classify assigns a severity to a move's evaluation loss. The second
// return is false when the move is not drill material. Ties resolve
// toward the higher severity: the severe check runs before the
// time-based one.
func (t Thresholds) Classify(lossCP int, spent time.Duration, timeKnown bool, beforeCP int) (drill.Severity, bool) {
	if t.BlowoutCP > 0 && (beforeCP > t.BlowoutCP || beforeCP < -t.BlowoutCP) {
		return 0, false
	}
	if lossCP < t.BlunderCP {
		return 0, false
	}
	if lossCP >= t.SevereCP {
		return drill.SeveritySevere, true
	}
	if timeKnown && spent > t.LongThink {
		return drill.SeverityTimed, true
	}
	return drill.SeverityMinor, true
}
