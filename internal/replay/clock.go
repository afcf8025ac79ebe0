package replay

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// clkRe matches chess.com style clock annotations like [%clk 0:04:58]
// or [%clk 0:04:58.3].
var clkRe = regexp.MustCompile(`\[%clk\s+([0-9:.]+)\]`)

// parseClock extracts the remaining clock time from a move comment.
func parseClock(comment string) (time.Duration, bool) {
	m := clkRe.FindStringSubmatch(comment)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	var frac time.Duration
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		f, err := strconv.ParseFloat("0"+raw[i:], 64)
		if err != nil {
			return 0, false
		}
		frac = time.Duration(f * float64(time.Second))
		raw = raw[:i]
	}
	parts := strings.Split(raw, ":")
	var secs int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		secs = secs*60 + n
	}
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	return time.Duration(secs)*time.Second + frac, true
}
