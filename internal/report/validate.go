package report

import (
	"fmt"
	"strings"
)

// ValidationResult contains the outcome of ledger validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
}

// Validate checks that a run's batch ledger is internally consistent:
//   - sequence numbers are contiguous
//   - each batch starts at the cursor the previous one returned
//   - cumulative counts add up and never exceed the total
//   - the last cumulative count matches the run's uploaded count
func Validate(run Run) ValidationResult {
	result := ValidationResult{Passed: true}
	fail := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		result.Passed = false
	}

	if len(run.Batches) == 0 {
		if run.Uploaded != 0 {
			fail("no batches recorded but %d records uploaded", run.Uploaded)
		}
		return result
	}

	first := run.Batches[0]
	if first.Cumulative < first.Uploaded && first.Cumulative != first.Total {
		fail("batch %d: cumulative %d below batch count %d", first.Seq, first.Cumulative, first.Uploaded)
	}

	for i := 1; i < len(run.Batches); i++ {
		prev, curr := run.Batches[i-1], run.Batches[i]

		if curr.Seq != prev.Seq+1 {
			fail("batch sequence gap: %d -> %d", prev.Seq, curr.Seq)
		}
		if curr.CursorFrom != prev.CursorTo {
			fail("batch %d: starts at cursor %s, previous batch ended at %s", curr.Seq, curr.CursorFrom, prev.CursorTo)
		}

		want := min(prev.Cumulative+curr.Uploaded, curr.Total)
		if curr.Cumulative != want {
			fail("batch %d: cumulative %d, expected %d", curr.Seq, curr.Cumulative, want)
		}
	}

	for _, row := range run.Batches {
		if row.Cumulative > row.Total {
			fail("batch %d: cumulative %d exceeds total %d", row.Seq, row.Cumulative, row.Total)
		}
		if row.JobID != run.JobID {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("batch %d belongs to job %s", row.Seq, row.JobID))
		}
	}

	last := run.Batches[len(run.Batches)-1]
	if last.Cumulative != run.Uploaded {
		fail("last cumulative %d does not match uploaded %d", last.Cumulative, run.Uploaded)
	}

	return result
}

// String joins the errors for logging.
func (r ValidationResult) String() string {
	return strings.Join(r.Errors, "; ")
}
