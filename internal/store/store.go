// Package store defines the persistence interface the orchestrator
// consumes (§6) and an in-memory implementation adapted from the
// teacher's internal/storage/memory_storage.go for tests and demo
// wiring. The relational store itself is an out-of-scope external
// collaborator (spec.md §1).
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freedomfinance/ticketfire/internal/models"
)

// ProcessingState is one stage-transition record (§6
// insert_processing_state).
type ProcessingState struct {
	TicketID    uuid.UUID
	BatchID     uuid.UUID
	Stage       string
	Status      string
	Message     string
	ErrorDetail string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Store is the persistence interface consumed by the orchestrator.
type Store interface {
	LoadBatch(id uuid.UUID) (*models.Batch, error)
	LoadIngestedTickets(batchID uuid.UUID) ([]*models.Ticket, error) // ordered by CSVRowIndex
	LoadPIIMappings(ticketID uuid.UUID) ([]models.PIIMapping, error)

	UpsertAIAnalysis(a models.AIAnalysis) error
	InsertAssignment(a models.Assignment) error
	InsertProcessingState(s ProcessingState) error

	SavePIIMappings(ticketID uuid.UUID, mappings []models.PIIMapping) error
	UpdateTicket(t *models.Ticket) error

	Commit() error
}

// MemoryStore is an in-memory Store, guarded by a single RWMutex —
// directly grounded on the teacher's MemoryStorage (map + RWMutex,
// Store/Get/GetAll/Delete), adapted from raw request/response capture
// to the ticket/batch domain.
type MemoryStore struct {
	mu sync.RWMutex

	batches    map[uuid.UUID]*models.Batch
	tickets    map[uuid.UUID][]*models.Ticket // batchID -> tickets, ordered by CSVRowIndex
	analyses   map[uuid.UUID]models.AIAnalysis
	assignments map[uuid.UUID]models.Assignment
	mappings   map[uuid.UUID][]models.PIIMapping
	states     []ProcessingState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:     make(map[uuid.UUID]*models.Batch),
		tickets:     make(map[uuid.UUID][]*models.Ticket),
		analyses:    make(map[uuid.UUID]models.AIAnalysis),
		assignments: make(map[uuid.UUID]models.Assignment),
		mappings:    make(map[uuid.UUID][]models.PIIMapping),
	}
}

// SeedBatch registers a batch and its ingested tickets — the test/demo
// substitute for the out-of-scope ingest collaborator.
func (s *MemoryStore) SeedBatch(batch *models.Batch, tickets []*models.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
	ordered := make([]*models.Ticket, len(tickets))
	copy(ordered, tickets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CSVRowIndex < ordered[j].CSVRowIndex })
	s.tickets[batch.ID] = ordered
}

func (s *MemoryStore) LoadBatch(id uuid.UUID) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s not found", id)
	}
	return b, nil
}

func (s *MemoryStore) LoadIngestedTickets(batchID uuid.UUID) ([]*models.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tickets, ok := s.tickets[batchID]
	if !ok {
		return nil, fmt.Errorf("no ingested tickets for batch %s", batchID)
	}
	out := make([]*models.Ticket, len(tickets))
	copy(out, tickets)
	return out, nil
}

func (s *MemoryStore) LoadPIIMappings(ticketID uuid.UUID) ([]models.PIIMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mappings[ticketID], nil
}

func (s *MemoryStore) UpsertAIAnalysis(a models.AIAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[a.TicketID] = a
	return nil
}

func (s *MemoryStore) InsertAssignment(a models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.TicketID] = a
	return nil
}

func (s *MemoryStore) InsertProcessingState(st ProcessingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
	return nil
}

func (s *MemoryStore) SavePIIMappings(ticketID uuid.UUID, mappings []models.PIIMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[ticketID] = mappings
	return nil
}

func (s *MemoryStore) UpdateTicket(t *models.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for batchID, list := range s.tickets {
		for i, existing := range list {
			if existing.ID == t.ID {
				s.tickets[batchID][i] = t
				return nil
			}
		}
	}
	return fmt.Errorf("ticket %s not found", t.ID)
}

// Commit is a no-op for the in-memory store — there is no transaction
// to flush.
func (s *MemoryStore) Commit() error {
	return nil
}

func (s *MemoryStore) AnalysisFor(ticketID uuid.UUID) (models.AIAnalysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[ticketID]
	return a, ok
}

func (s *MemoryStore) AssignmentFor(ticketID uuid.UUID) (models.Assignment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[ticketID]
	return a, ok
}
