package models

import "github.com/google/uuid"

// Office is immutable during the pipeline.
type Office struct {
	ID          uuid.UUID
	Name        string // unique
	Address     string
	Coordinates *Coordinates // nil if not geocoded
}

// Manager is a human handler. CumulativeLoad is mutated only by the
// router, and only increases during a batch.
type Manager struct {
	ID       uuid.UUID
	FullName string
	Position Position
	Skills   map[string]bool // e.g. "VIP", "KZ", "ENG"
	OfficeID uuid.UUID

	InitialBacklog float64
	CumulativeLoad float64

	Active bool
}

// HasSkill reports whether the manager carries the named skill tag.
func (m *Manager) HasSkill(skill string) bool {
	return m.Skills[skill]
}

// TypeDifficulty returns the router's per-type load increment (§4.G).
func TypeDifficulty(t TicketType) float64 {
	switch t {
	case TicketFraud:
		return 1.5
	case TicketDataChange:
		return 1.3
	case TicketComplaint:
		return 1.2
	case TicketAppMalfunction:
		return 1.15
	case TicketFormalClaim:
		return 1.1
	default:
		return 1.0
	}
}
