package analyze

import (
	"fmt"
	"time"
)

// Thresholds is the immutable severity/acceptability configuration
// shared by the classifier and the answer verifier. Passed explicitly,
// never read from ambient state, so both stay testable with varied
// values.
type Thresholds struct {
	BlunderCP    int           // minimum loss to flag a drill
	SevereCP     int           // loss for severity 3
	AcceptableCP int           // verifier tolerance for "good enough" answers
	LongThink    time.Duration // time spent above this bumps severity to 2
	FastMove     time.Duration // used for timing statistics only

	// BlowoutCP, when positive, excludes moves made in positions whose
	// absolute evaluation already exceeded it: blunders in hopeless or
	// trivially won positions make meaningless drills. Zero disables.
	BlowoutCP int
}

// DefaultThresholds returns the stock configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BlunderCP:    150,
		SevereCP:     300,
		AcceptableCP: 50,
		LongThink:    20 * time.Second,
		FastMove:     5 * time.Second,
	}
}

// Validate fails fast on configurations that would misclassify, before
// any engine process is spawned.
func (t Thresholds) Validate() error {
	if t.BlunderCP <= 0 {
		return fmt.Errorf("blunder threshold must be positive, got %d", t.BlunderCP)
	}
	if t.SevereCP < t.BlunderCP {
		return fmt.Errorf("severe threshold %d below blunder threshold %d", t.SevereCP, t.BlunderCP)
	}
	if t.AcceptableCP < 0 {
		return fmt.Errorf("acceptable threshold must not be negative, got %d", t.AcceptableCP)
	}
	if t.LongThink <= 0 {
		return fmt.Errorf("long-think threshold must be positive, got %s", t.LongThink)
	}
	if t.BlowoutCP < 0 {
		return fmt.Errorf("blowout bound must not be negative, got %d", t.BlowoutCP)
	}
	return nil
}
