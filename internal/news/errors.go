package news

import "errors"

// Sentinel errors shared across subsystems.
var (
	// ErrBlocked marks a verification/CAPTCHA page. The current attempt is
	// skipped without retrying; it never aborts sibling work.
	ErrBlocked = errors.New("provider served a verification page")

	// ErrSchedulerBusy is returned when a trigger arrives while a run is
	// already in flight. It is logged and dropped, never queued.
	ErrSchedulerBusy = errors.New("a crawl run is already in progress")
)

// OutcomeKind classifies a single provider attempt so fallback decisions are
// data rather than exception control flow.
type OutcomeKind int

// Attempt outcomes, checked in fallback chains.
const (
	OutcomeOK OutcomeKind = iota
	OutcomeEmpty
	OutcomeBlocked
	OutcomeError
)

// String implements fmt.Stringer for log fields.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeEmpty:
		return "empty"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of one fetch attempt.
type Outcome struct {
	Kind     OutcomeKind
	Articles []Article
	Err      error
}

// Ok builds a success outcome; an empty slice degrades to OutcomeEmpty.
func Ok(articles []Article) Outcome {
	if len(articles) == 0 {
		return Outcome{Kind: OutcomeEmpty}
	}
	return Outcome{Kind: OutcomeOK, Articles: articles}
}

// Blocked builds an outcome for a detected verification page.
func Blocked() Outcome {
	return Outcome{Kind: OutcomeBlocked, Err: ErrBlocked}
}

// Failed builds an outcome for an attempt error.
func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeError, Err: err}
}
