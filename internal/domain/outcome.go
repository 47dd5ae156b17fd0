package domain

import (
	"sort"
	"time"
)

// Status is the result of ingesting one plant in one cycle.
type Status string

const (
	StatusInserted      Status = "inserted"
	StatusAlreadyExists Status = "already_exists"
	StatusNoData        Status = "no_data"
	StatusFailed        Status = "failed"
)

// Statuses lists every status in reporting order.
var Statuses = []Status{StatusInserted, StatusAlreadyExists, StatusNoData, StatusFailed}

// Outcome is produced by the ingestion worker for one plant. Err is non-nil
// iff Status is StatusFailed. Reading is set when Status is StatusInserted.
type Outcome struct {
	PlantID  int64
	Source   SourceRef
	Status   Status
	Attempts int
	Err      error
	Reading  *Reading
}

// FailedOutcome builds a failed outcome for plantID.
func FailedOutcome(plantID int64, attempts int, err error) Outcome {
	return Outcome{PlantID: plantID, Status: StatusFailed, Attempts: attempts, Err: err}
}

// PlantFailure is the summary entry for a plant whose ingestion failed.
type PlantFailure struct {
	PlantID   int64  `json:"plant_id"`
	Source    string `json:"source"`
	Attempts  int    `json:"attempts"`
	Class     string `json:"class"`
	Retryable bool   `json:"retryable"`
	Error     string `json:"error"`
}

// CycleSummary aggregates the outcomes of one ingestion cycle.
type CycleSummary struct {
	CycleID    string         `json:"cycle_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Plants     int            `json:"plants"`
	Counts     map[Status]int `json:"counts"`
	Failures   []PlantFailure `json:"failures"`
}

// NewCycleSummary starts an empty summary.
func NewCycleSummary(cycleID string, startedAt time.Time) CycleSummary {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}
	return CycleSummary{
		CycleID:   cycleID,
		StartedAt: startedAt,
		Counts:    counts,
		Failures:  []PlantFailure{},
	}
}

// Record adds one outcome to the summary.
func (s *CycleSummary) Record(o Outcome) {
	s.Plants++
	s.Counts[o.Status]++
	if o.Status != StatusFailed {
		return
	}
	f := PlantFailure{
		PlantID:   o.PlantID,
		Attempts:  o.Attempts,
		Class:     ErrorClass(o.Err),
		Retryable: IsRetryable(o.Err),
	}
	if o.Source.Kind != "" {
		f.Source = o.Source.String()
	}
	if o.Err != nil {
		f.Error = o.Err.Error()
	}
	s.Failures = append(s.Failures, f)
}

// Finish stamps the end time and orders failures by plant id so summaries are
// stable regardless of worker completion order.
func (s *CycleSummary) Finish(at time.Time) {
	s.FinishedAt = at
	sort.Slice(s.Failures, func(i, j int) bool {
		return s.Failures[i].PlantID < s.Failures[j].PlantID
	})
}

// Count returns the number of outcomes with the given status.
func (s CycleSummary) Count(st Status) int {
	return s.Counts[st]
}

// Duration is the wall time the cycle took.
func (s CycleSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
