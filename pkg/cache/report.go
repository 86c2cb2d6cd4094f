package cache

import "github.com/google/uuid"

// Status classifies the outcome for one instrument within a batch.
type Status string

const (
	// StatusCreated means Init persisted a new cache entry.
	StatusCreated Status = "created"
	// StatusExists means Init found the entry already cached and left it alone.
	StatusExists Status = "exists"
	// StatusMissingFields means the vendor returned fewer fields than
	// requested and nothing was persisted.
	StatusMissingFields Status = "missing_fields"
	// StatusUpdated means Update appended a delta to the entry.
	StatusUpdated Status = "updated"
	// StatusCurrent means the entry already covers the requested end date.
	StatusCurrent Status = "current"
	// StatusSkipped means the instrument was skipped by policy.
	StatusSkipped Status = "skipped"
	// StatusFailed means the fetch or store operation failed for this instrument.
	StatusFailed Status = "failed"
)

// Result is the per-instrument outcome of a batch operation.
type Result struct {
	RIC           string
	Status        Status
	MissingFields []string
	RowsWritten   int
	Err           error
}

// Report collects the per-instrument results of one batch run.
type Report struct {
	BatchID string
	Results []Result
}

func newReport() *Report {
	return &Report{
		BatchID: uuid.New().String(),
		Results: nil,
	}
}

func (r *Report) add(result Result) {
	r.Results = append(r.Results, result)
}

// Count returns how many results carry the given status.
func (r *Report) Count(status Status) int {
	count := 0

	for _, result := range r.Results {
		if result.Status == status {
			count++
		}
	}

	return count
}

// ByStatus returns the identifiers with the given status, in batch order.
func (r *Report) ByStatus(status Status) []string {
	var rics []string

	for _, result := range r.Results {
		if result.Status == status {
			rics = append(rics, result.RIC)
		}
	}

	return rics
}
