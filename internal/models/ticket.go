package models

import (
	"time"

	"github.com/google/uuid"
)

// Address is the raw, possibly-partial address an ingested ticket
// carries. Any field may be empty.
type Address struct {
	Country string
	Region  string
	City    string
	Street  string
	House   string
}

// Coordinates is a resolved geographic point.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Ticket is the central entity. It is created by the (out-of-scope)
// ingest collaborator and mutated only by the orchestrator's stages, in
// stage order; Status is monotonic.
type Ticket struct {
	ID          uuid.UUID
	CSVRowIndex int // 0-based, unique within batch
	GUID        string

	Gender    string
	BirthDate *time.Time // nil if unparseable/absent
	Age       int        // derived; ≥ 0, future dates clamp to 0

	Segment Segment

	Description           string
	DescriptionAnonymized string
	Attachments           []string
	Address               Address

	Coordinates      *Coordinates // nil only when ResolutionStatus == unknown; unknown may still carry fallback office coordinates
	ResolutionStatus ResolutionStatus

	IsSpam      bool
	SpamProb    float64
	SpamReason  string

	Type   TicketType
	Status TicketStatus

	AnalysisID   uuid.UUID
	AssignmentID *uuid.UUID
}

// PIIMapping records one detected entity for one ticket. Created by the
// anonymizer; read by the orchestrator's rehydration step; never
// mutated.
type PIIMapping struct {
	TicketID      uuid.UUID
	Token         string
	OriginalValue []byte // opaque; "encrypted at rest" in spec terms
	Kind          string
}

// PriorityBreakdown records every weighted contribution plus extras and
// the fraud-floor flag, for persistence on AIAnalysis.
type PriorityBreakdown struct {
	SegmentScore      float64
	TypeScore         float64
	SentimentScore    float64
	AgeScore          float64
	RepeatClientScore float64

	Base float64

	ExpansionExtra float64
	YoungVIPExtra  float64
	FIFOExtra      float64

	Final         float64
	FraudFloorHit bool
}

// AIAnalysis is one-to-one with Ticket.
type AIAnalysis struct {
	TicketID uuid.UUID

	Type               TicketType
	LanguageLabel      LanguageLabel
	LanguageActual     string
	LanguageIsMixed    bool
	LanguageNote       string
	Summary            string
	AttachmentAnalysis string
	Explanation        string

	Sentiment           Sentiment
	SentimentConfidence float64

	Priority PriorityBreakdown

	NeedsDataChange      bool
	NeedsLocationRouting bool

	ClassifierLatency time.Duration
	SentimentLatency  time.Duration
	GeocoderLatency   time.Duration
}

// Assignment is one-to-one with a non-spam, successfully routed Ticket.
type Assignment struct {
	ID       uuid.UUID
	TicketID uuid.UUID

	ManagerID uuid.UUID
	OfficeID  uuid.UUID

	Explanation string

	ChosenDistanceKM float64
	ChosenOfficeName string
	Relaxations      []string
}
