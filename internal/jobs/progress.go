package jobs

import "github.com/vatsal3003/upscale-client/pkg/models"

// Progress is what the controller has applied from the status responses
// of the active job.
type Progress struct {
	Seq       uint64           `json:"seq"`
	Total     int              `json:"total"`
	Completed int              `json:"completed"`
	Percent   float64          `json:"percent"`
	Status    models.JobStatus `json:"-"`
}

// Apply folds the status response tagged with seq into cur. Responses whose
// seq is not newer than the last applied one are rejected. When a newer
// response would move the count or the percentage backwards, the previous
// counts are kept as a whole, so Completed never exceeds Total.
func Apply(cur Progress, seq uint64, status models.JobStatus) (Progress, bool) {
	if seq <= cur.Seq {
		return cur, false
	}

	next := Progress{
		Seq:       seq,
		Total:     status.Total,
		Completed: status.CompletedCount,
		Percent:   status.Percent(),
		Status:    status,
	}
	if next.Completed < cur.Completed || next.Percent < cur.Percent {
		next.Total = cur.Total
		next.Completed = cur.Completed
		next.Percent = cur.Percent
	}
	return next, true
}
