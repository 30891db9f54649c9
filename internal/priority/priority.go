// Package priority implements the Priority Engine (§4.F): a weighted
// sum over segment/type/sentiment/age/repeat-count plus additive extras
// and a fraud floor.
package priority

import (
	"github.com/freedomfinance/ticketfire/internal/models"
)

// Weights are spec.md's authoritative values — NOT the original Python
// implementation's (segment .30, type .30, sentiment .2, age .10,
// repeat .1). See DESIGN.md's internal/priority entry: this is a plain
// spec-vs-source conflict, resolved in the spec's favor.
const (
	weightSegment      = 0.30
	weightType         = 0.25
	weightSentiment    = 0.15
	weightAge          = 0.10
	weightRepeatClient = 0.07
)

const fraudFloor = 8.0

// Input is everything Compute needs for one ticket.
type Input struct {
	Segment       models.Segment
	Type          models.TicketType
	Sentiment     models.Sentiment
	Age           int
	AgeKnown      bool
	RepeatCount   int // count of tickets sharing this ticket's GUID in the batch
	Country       string
	CSVRowIndex   int
	TotalRows     int
	IsExpansion   bool
}

func segmentScore(s models.Segment) float64 {
	switch s {
	case models.SegmentVIP:
		return 10
	case models.SegmentPriority:
		return 7
	default:
		return 3
	}
}

func typeScore(t models.TicketType) float64 {
	switch t {
	case models.TicketFraud:
		return 10
	case models.TicketFormalClaim:
		return 8
	case models.TicketComplaint:
		return 7
	case models.TicketAppMalfunction:
		return 6
	case models.TicketDataChange:
		return 5
	case models.TicketConsultation:
		return 3
	case models.TicketSpam:
		return 1
	default:
		return 3
	}
}

func sentimentScore(s models.Sentiment) float64 {
	switch s {
	case models.SentimentNegative:
		return 8
	case models.SentimentPositive:
		return 2
	default:
		return 4
	}
}

func ageScore(age int, known bool) float64 {
	if !known {
		return 4
	}
	switch {
	case age >= 55:
		return 10
	case age >= 50:
		return 8
	case age >= 40:
		return 6
	case age >= 25:
		return 4
	default:
		return 3
	}
}

func repeatClientScore(count int) float64 {
	switch {
	case count >= 4:
		return 10
	case count >= 3:
		return 8
	case count >= 2:
		return 5
	case count >= 1:
		return 4
	default:
		return 4
	}
}

// Compute runs the full §4.F formula: weighted sum → base; + extras →
// final, clamped to [1.0, 10.0], with the fraud floor applied last.
func Compute(in Input, expansionCountries map[string]bool) models.PriorityBreakdown {
	segS := segmentScore(in.Segment)
	typS := typeScore(in.Type)
	senS := sentimentScore(in.Sentiment)
	ageS := ageScore(in.Age, in.AgeKnown)
	repS := repeatClientScore(in.RepeatCount)

	base := segS*weightSegment + typS*weightType + senS*weightSentiment + ageS*weightAge + repS*weightRepeatClient

	var expansionExtra float64
	if expansionCountries[in.Country] {
		expansionExtra = 1.0
	}

	var youngVIPExtra float64
	if in.AgeKnown && in.Age < 30 && in.Segment == models.SegmentVIP {
		youngVIPExtra = 1.0
	}

	var fifoExtra float64
	if in.TotalRows > 1 {
		fifoExtra = 1.0 * (1 - float64(in.CSVRowIndex)/float64(in.TotalRows-1))
	} else {
		fifoExtra = 1.0
	}

	final := base + expansionExtra + youngVIPExtra + fifoExtra

	if final < 1.0 {
		final = 1.0
	}
	if final > 10.0 {
		final = 10.0
	}

	fraudFloorHit := false
	if in.Type == models.TicketFraud && final < fraudFloor {
		final = fraudFloor
		fraudFloorHit = true
	}

	return models.PriorityBreakdown{
		SegmentScore:      segS * weightSegment,
		TypeScore:         typS * weightType,
		SentimentScore:    senS * weightSentiment,
		AgeScore:          ageS * weightAge,
		RepeatClientScore: repS * weightRepeatClient,
		Base:              base,
		ExpansionExtra:    expansionExtra,
		YoungVIPExtra:     youngVIPExtra,
		FIFOExtra:         fifoExtra,
		Final:             final,
		FraudFloorHit:     fraudFloorHit,
	}
}

// SpamFinal is the fixed final priority for a spam-short-circuited
// ticket (§4.F "spam tickets skip this, final = 1.0").
const SpamFinal = 1.0
