package progress

import (
	"time"

	"github.com/google/uuid"
)

// Event is the §4.H bus event shape.
type Event struct {
	EventType string                 `json:"event_type"`
	Stage     string                 `json:"stage"`
	Status    string                 `json:"status"`
	TicketID  uuid.UUID              `json:"ticket_id,omitempty"`
	BatchID   uuid.UUID              `json:"batch_id,omitempty"`
	Field     string                 `json:"field,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Stage name constants emitted by the orchestrator (§4.H).
const (
	StageIngestion        = "ingestion"
	StageSpamFilter       = "spam_filter"
	StagePIIAnonymization = "pii_anonymization"
	StageLLMAnalysis      = "llm_analysis"
	StageSentimentAnalysis = "sentiment_analysis"
	StageGeocoding        = "geocoding"
	StageRouting          = "routing"
	StageEnrichment       = "enrichment"
	StagePipeline         = "pipeline"
)

func NewEvent(stage, status string, now time.Time) Event {
	return Event{EventType: stage + "/" + status, Stage: stage, Status: status, Timestamp: now.Unix()}
}
