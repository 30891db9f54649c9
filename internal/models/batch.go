package models

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Batch is one upload of a tabular ticket file — the unit of
// orchestration.
type Batch struct {
	ID             uuid.UUID
	SourceFilename string

	TotalRows     int
	ProcessedRows int
	FailedRows    int

	Status   BatchStatus
	ErrorLog []string
}

// GUIDCounts maps a GUID to the number of tickets sharing it within one
// batch; built once, up-front, per spec.md §4.I.
type GUIDCounts map[string]int

func BuildGUIDCounts(tickets []*Ticket) GUIDCounts {
	counts := make(GUIDCounts, len(tickets))
	for _, t := range tickets {
		counts[t.GUID]++
	}
	return counts
}

// DuplicateDescriptions indexes tickets by normalized description text
// (length > 20) to surface probable near-duplicate submissions. This is
// a read-only diagnostic, not a scored priority factor — see SPEC_FULL.md's
// supplemented-features note.
func DuplicateDescriptions(tickets []*Ticket) map[string][]uuid.UUID {
	index := make(map[string][]uuid.UUID)
	for _, t := range tickets {
		norm := strings.ToLower(strings.TrimSpace(t.Description))
		if len(norm) <= 20 {
			continue
		}
		index[norm] = append(index[norm], t.ID)
	}
	for k, ids := range index {
		if len(ids) < 2 {
			delete(index, k)
		}
	}
	return index
}

// ProgressResult is one compact per-ticket entry in a progress
// snapshot's results list (§6 "Progress snapshot interface").
type ProgressResult struct {
	TicketID   uuid.UUID
	CSVRow     int
	Type       TicketType
	Sentiment  Sentiment
	Summary    string
	Latitude   *float64
	Longitude  *float64
	IsSpam     bool
	IsComplete bool
	Error      string
}

// ProgressSnapshot is the per-batch map read synchronously by a polling
// endpoint; it is kept consistent with the last-broadcast event on the
// same batch id.
type ProgressSnapshot struct {
	mu sync.Mutex

	BatchID   uuid.UUID
	Total     int
	Processed int
	Spam      int
	Current   int
	Status    BatchStatus
	Results   []ProgressResult
}

func NewProgressSnapshot(batchID uuid.UUID, total int) *ProgressSnapshot {
	return &ProgressSnapshot{BatchID: batchID, Total: total, Status: BatchPending}
}

func (s *ProgressSnapshot) AppendResult(r ProgressResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
	s.Processed++
	if r.IsSpam {
		s.Spam++
	}
	s.Current = r.CSVRow + 1
}

func (s *ProgressSnapshot) SetStatus(status BatchStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
}

// Snapshot returns a point-in-time copy safe to serialize.
func (s *ProgressSnapshot) Snapshot() ProgressSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]ProgressResult, len(s.Results))
	copy(results, s.Results)
	return ProgressSnapshot{
		BatchID:   s.BatchID,
		Total:     s.Total,
		Processed: s.Processed,
		Spam:      s.Spam,
		Current:   s.Current,
		Status:    s.Status,
		Results:   results,
	}
}
