package publish

import "time"

// Status of one catalog entry after a run.
type Status string

const (
	StatusPublished Status = "published"
	StatusSkipped   Status = "skipped"
	StatusPlanned   Status = "planned" // dry-run only
	StatusFailed    Status = "failed"
)

// Result is the outcome for one service.
type Result struct {
	Service   string        `json:"service" yaml:"service"`
	Status    Status        `json:"status" yaml:"status"`
	Reference string        `json:"reference,omitempty" yaml:"reference,omitempty"`
	Reason    string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Report covers one run. When the run aborts it holds the entries processed
// up to the failure; entries after it never appear.
type Report struct {
	Registry string   `json:"registry" yaml:"registry"`
	Results  []Result `json:"results" yaml:"results"`
}

// Published returns how many services were pushed.
func (r *Report) Published() int {
	return r.count(StatusPublished)
}

// Skipped returns how many services had no build context.
func (r *Report) Skipped() int {
	return r.count(StatusSkipped)
}

func (r *Report) count(status Status) int {
	n := 0
	for _, result := range r.Results {
		if result.Status == status {
			n++
		}
	}
	return n
}
