package exec

import (
	"fmt"
	"time"
)

// Violation is one failed gate condition.
type Violation struct {
	Code string
	Msg  string
}

// Decision is the outcome of the pre-submission safety gate. It never
// panics past the caller; a blocked action is a logged no-op.
type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason summarizes the first violation for logs and events.
func (d Decision) Reason() string {
	if d.Allowed || len(d.Violations) == 0 {
		return ""
	}
	v := d.Violations[0]
	return fmt.Sprintf("%s: %s", v.Code, v.Msg)
}

// gateInput is everything the gate evaluates for one submission.
type gateInput struct {
	intent      Intent
	now         time.Time
	windowStart time.Time
	windowEnd   time.Time
	committed   bool // stream already has a terminal classification
	killSwitch  bool
	configValid bool
	lockedDate  string
}

// evaluateGate is the short-circuit boolean check run immediately before
// every order submission.
func evaluateGate(in gateInput) Decision {
	d := Decision{Allowed: true}

	if in.killSwitch {
		d.add("KILL_SWITCH", "global kill switch engaged")
	}
	if !in.configValid {
		d.add("CONFIG_INVALID", "session configuration not validated for this day")
	}
	if in.committed {
		d.add("STREAM_COMMITTED", "stream already carries a terminal classification")
	}
	if in.lockedDate == "" {
		d.add("DATE_UNLOCKED", "trading date not locked")
	} else if in.intent.TradingDate != in.lockedDate {
		d.add("DATE_MISMATCH",
			fmt.Sprintf("intent date %s does not match locked date %s",
				in.intent.TradingDate, in.lockedDate))
	}
	if !in.windowStart.IsZero() && in.now.Before(in.windowStart) {
		d.add("OUTSIDE_WINDOW",
			fmt.Sprintf("now %s is before window start %s",
				in.now.Format(time.RFC3339), in.windowStart.Format(time.RFC3339)))
	}
	if !in.windowEnd.IsZero() && !in.now.Before(in.windowEnd) {
		d.add("OUTSIDE_WINDOW",
			fmt.Sprintf("now %s is past window end %s",
				in.now.Format(time.RFC3339), in.windowEnd.Format(time.RFC3339)))
	}
	if !in.intent.Complete() {
		d.add("INCOMPLETE_INTENT", "direction, entry, stop, target and qty must all be set")
	}

	return d
}
