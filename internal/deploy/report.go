package deploy

import (
	"fmt"
	"io"

	"github.com/vsixgate/vsixgate/internal/plan"
)

// Status is the outcome of one action.
type Status int

const (
	StatusApplied Status = iota
	StatusSkippedDryRun
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusSkippedDryRun:
		return "dry-run"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result records what happened to one action.
type Result struct {
	Action     plan.Action
	Status     Status
	Err        error
	BackupPath string // set when a snapshot was taken for this action
}

// Report is the authoritative record of a run. It is append-only while
// the engine executes and finalized when Apply returns.
type Report struct {
	DryRun  bool
	Results []Result
}

func (r *Report) append(res Result) {
	r.Results = append(r.Results, res)
}

// Failed returns the results whose action failed.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// OK reports whether the run completed without failed actions. A dry run
// is always OK: it reports findings, it never fails the process.
func (r *Report) OK() bool {
	return r.DryRun || len(r.Failed()) == 0
}

// Print writes a human-readable summary in the CLI's output style.
func (r *Report) Print(w io.Writer) {
	applied, skipped, failed := 0, 0, 0

	for _, res := range r.Results {
		switch res.Status {
		case StatusApplied:
			if res.Action.Op == plan.OpSkip {
				skipped++
				fmt.Fprintf(w, "  - %s\n", res.Action)
				continue
			}
			applied++
			fmt.Fprintf(w, "  ✓ %s\n", res.Action)
		case StatusSkippedDryRun:
			if res.Err != nil {
				fmt.Fprintf(w, "  ~ would fail: %s (%v)\n", res.Action, res.Err)
				continue
			}
			fmt.Fprintf(w, "  ~ would %s\n", res.Action)
		case StatusFailed:
			failed++
			fmt.Fprintf(w, "  ✗ %s: %v\n", res.Action, res.Err)
		}
	}

	fmt.Fprintln(w)
	if r.DryRun {
		fmt.Fprintf(w, "Dry run: %d actions evaluated, nothing changed.\n", len(r.Results))
		return
	}
	fmt.Fprintf(w, "Applied %d, skipped %d, failed %d.\n", applied, skipped, failed)
}
