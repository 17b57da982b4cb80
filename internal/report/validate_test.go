package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Run)
		passed bool
		errLen int
	}{
		{"consistent", func(r *Run) {}, true, 0},
		{"sequence gap", func(r *Run) { r.Batches[2].Seq = 4 }, false, 1},
		{"cursor mismatch", func(r *Run) { r.Batches[1].CursorFrom = "150" }, false, 1},
		{"cumulative drift", func(r *Run) {
			r.Batches[2].Cumulative = 449
			r.Uploaded = 449
		}, false, 1},
		{"uploaded mismatch", func(r *Run) { r.Uploaded = 400 }, false, 1},
		{"empty run with uploads", func(r *Run) { r.Batches = nil }, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := sampleRun()
			tt.mutate(&run)

			res := Validate(run)
			assert.Equal(t, tt.passed, res.Passed, res.String())
			assert.Len(t, res.Errors, tt.errLen)
		})
	}
}

func TestValidateResumedRun(t *testing.T) {
	run := sampleRun()
	run.Batches = run.Batches[1:]

	res := Validate(run)
	assert.True(t, res.Passed, res.String())
}

func TestValidateClampedTotal(t *testing.T) {
	run := Run{
		JobID:    "job-clamp",
		Total:    100,
		Uploaded: 100,
		Batches: []BatchRow{
			{JobID: "job-clamp", Seq: 1, CursorFrom: "0", CursorTo: "250", Uploaded: 150, Cumulative: 100, Total: 100},
		},
	}
	assert.True(t, Validate(run).Passed)
}
