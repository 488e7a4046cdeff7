package traversal

import (
	"time"

	"github.com/hazyhaar/placebot/selector"
	"github.com/hazyhaar/placebot/target"
)

// Kind tags the outcome of a cycle.
type Kind int

const (
	// Exhausted: every reachable target is complete.
	Exhausted Kind = iota
	// Success: a pixel was placed; Outcome.Wait is the server cooldown.
	Success
	// HardFailure: a recoverable error aborted the cycle.
	HardFailure
	// Fatal: the process must stop (incompatible protocol version).
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case HardFailure:
		return "hard_failure"
	case Fatal:
		return "fatal"
	default:
		return "exhausted"
	}
}

// Outcome describes one traversal cycle.
type Outcome struct {
	Kind     Kind
	Started  time.Time
	Finished time.Time

	// Ref is the last target examined (the one painted on Success, the one
	// that failed on HardFailure/Fatal).
	Ref string

	// Visited lists references in the order they were dequeued.
	Visited []string

	// Stats of the last target diffed; valid when Diffed.
	Stats  selector.Stats
	Diffed bool

	// Pick is the pixel attempted; valid when Picked.
	Pick   selector.Pick
	Picked bool

	// Wait is the server-mandated cooldown after Success.
	Wait time.Duration
	Err  error
}

// Percent returns the completion of the last diffed target, and false when
// the cycle failed before any diff.
func (o *Outcome) Percent() (float64, bool) {
	if !o.Diffed {
		return 0, false
	}
	return o.Stats.Percent(), true
}

func (o *Outcome) fail(ref string, err error) *Outcome {
	o.Ref = ref
	o.Err = err
	if target.IsFatal(err) {
		o.Kind = Fatal
	} else {
		o.Kind = HardFailure
	}
	return o
}
