package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/freedomfinance/ticketfire/internal/models"
)

func baseInput() Input {
	return Input{
		Segment:     models.SegmentMass,
		Type:        models.TicketConsultation,
		Sentiment:   models.SentimentNeutral,
		Age:         30,
		AgeKnown:    true,
		RepeatCount: 0,
		CSVRowIndex: 0,
		TotalRows:   10,
	}
}

// Property 4 — priority clamp: final always in [1.0, 10.0].
func TestCompute_AlwaysClamped(t *testing.T) {
	segments := []models.Segment{models.SegmentVIP, models.SegmentPriority, models.SegmentMass}
	types := []models.TicketType{models.TicketFraud, models.TicketFormalClaim, models.TicketComplaint, models.TicketConsultation}
	for _, seg := range segments {
		for _, typ := range types {
			in := baseInput()
			in.Segment = seg
			in.Type = typ
			in.RepeatCount = 5
			out := Compute(in, nil)
			assert.GreaterOrEqual(t, out.Final, 1.0)
			assert.LessOrEqual(t, out.Final, 10.0)
		}
	}
}

// Property 5 — fraud floor: type=fraud implies final >= 8.0.
func TestCompute_FraudFloor(t *testing.T) {
	in := baseInput()
	in.Type = models.TicketFraud
	in.Segment = models.SegmentMass
	in.Sentiment = models.SentimentPositive
	in.Age = 20
	out := Compute(in, nil)
	assert.GreaterOrEqual(t, out.Final, 8.0)
	assert.True(t, out.FraudFloorHit)
}

func TestCompute_FraudFloorNotFlaggedWhenNaturallyAboveFloor(t *testing.T) {
	in := baseInput()
	in.Type = models.TicketFraud
	in.Segment = models.SegmentVIP
	in.Sentiment = models.SentimentNegative
	in.Age = 60
	in.RepeatCount = 5
	out := Compute(in, nil)
	assert.GreaterOrEqual(t, out.Final, 8.0)
	assert.False(t, out.FraudFloorHit)
}

// Property 6 — segment ordering: VIP >= Priority >= Mass, all else
// fixed.
func TestCompute_SegmentOrdering(t *testing.T) {
	mk := func(seg models.Segment) float64 {
		in := baseInput()
		in.Segment = seg
		return Compute(in, nil).Final
	}
	vip := mk(models.SegmentVIP)
	priority := mk(models.SegmentPriority)
	mass := mk(models.SegmentMass)
	assert.GreaterOrEqual(t, vip, priority)
	assert.GreaterOrEqual(t, priority, mass)
}

func TestCompute_ExpansionExtra(t *testing.T) {
	in := baseInput()
	in.Country = "Germany"
	withExpansion := Compute(in, map[string]bool{"Germany": true})
	withoutExpansion := Compute(in, map[string]bool{})
	assert.Greater(t, withExpansion.Final, withoutExpansion.Final)
}

func TestCompute_YoungVIPExtra(t *testing.T) {
	in := baseInput()
	in.Segment = models.SegmentVIP
	in.Age = 25
	young := Compute(in, nil)
	in.Age = 40
	old := Compute(in, nil)
	assert.Greater(t, young.Final, old.Final)
}

// S6 — repeat caller: identical breakdowns except fifo decreasing
// monotonically with row index.
func TestCompute_FIFODecreasesWithRowIndex(t *testing.T) {
	in := baseInput()
	in.RepeatCount = 3
	in.TotalRows = 3

	in.CSVRowIndex = 0
	first := Compute(in, nil)
	in.CSVRowIndex = 1
	second := Compute(in, nil)
	in.CSVRowIndex = 2
	third := Compute(in, nil)

	assert.Greater(t, first.FIFOExtra, second.FIFOExtra)
	assert.Greater(t, second.FIFOExtra, third.FIFOExtra)
	assert.Equal(t, first.RepeatClientScore, second.RepeatClientScore)
}

func TestRepeatClientScore_Brackets(t *testing.T) {
	assert.Equal(t, 10.0, repeatClientScore(5))
	assert.Equal(t, 8.0, repeatClientScore(3))
	assert.Equal(t, 5.0, repeatClientScore(2))
	assert.Equal(t, 4.0, repeatClientScore(1))
}
