package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedomfinance/ticketfire/internal/classifier"
	"github.com/freedomfinance/ticketfire/internal/geocoder"
	"github.com/freedomfinance/ticketfire/internal/llmclient"
	"github.com/freedomfinance/ticketfire/internal/models"
	"github.com/freedomfinance/ticketfire/internal/pii"
	"github.com/freedomfinance/ticketfire/internal/progress"
	"github.com/freedomfinance/ticketfire/internal/sentiment"
	"github.com/freedomfinance/ticketfire/internal/spam"
	"github.com/freedomfinance/ticketfire/internal/store"
)

// chatReq mirrors the subset of the openai-go chat-completions request
// shape the fake LLM server needs to read.
type chatReq struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chatCompletionBody(content string) string {
	body := map[string]interface{}{
		"id":      "test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			},
		},
	}
	out, _ := json.Marshal(body)
	return string(out)
}

// newFakeLLMServer dispatches a canned JSON response per stage, keyed
// by a distinguishing substring of each stage's system prompt. One
// server stands in for the classifier, sentiment, and spam endpoints
// alike, since every stage speaks the same chat-completions contract.
func newFakeLLMServer(t *testing.T, classifierContent, sentimentContent, spamContent string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var system string
		for _, m := range req.Messages {
			if m.Role == "system" {
				system = m.Content
			}
		}

		var content string
		switch {
		case strings.Contains(system, "spam"):
			content = spamContent
		case strings.Contains(system, "sentiment"):
			content = sentimentContent
		default:
			content = classifierContent
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionBody(content)))
	}))
}

func newFakeGeoServer(t *testing.T, lat, lon float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"result": map[string]interface{}{
				"items": []map[string]interface{}{
					{"point": map[string]float64{"lat": lat, "lon": lon}},
				},
			},
		}
		out, _ := json.Marshal(body)
		w.Write(out)
	}))
}

func newFakeNotFoundGeoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"items":[]}}`))
	}))
}

type harness struct {
	orch     *Orchestrator
	store    *store.MemoryStore
	registry *ManagerRegistry
}

func newHarness(t *testing.T, classifierContent, sentimentContent, spamContent string) (*harness, func()) {
	t.Helper()

	llmSrv := newFakeLLMServer(t, classifierContent, sentimentContent, spamContent)
	geoSrv := newFakeGeoServer(t, 43.2220, 76.8512) // Almaty
	fallbackSrv := newFakeNotFoundGeoServer(t)

	client := llmclient.New(nil)
	ep := llmclient.Endpoint{Name: "classifier", BaseURL: llmSrv.URL, Model: "test", Timeout: 5 * time.Second}
	sentEp := llmclient.Endpoint{Name: "sentiment", BaseURL: llmSrv.URL, Model: "test", Timeout: 5 * time.Second}
	spamEp := llmclient.Endpoint{Name: "spam", BaseURL: llmSrv.URL, Model: "test", Timeout: 5 * time.Second}

	geo := geocoder.New(geocoder.NewCache(), geocoder.NewPrimaryProvider(geoSrv.URL, "key"), geocoder.NewFallbackProvider(fallbackSrv.URL))

	memStore := store.NewMemoryStore()

	almatyID := uuid.New()
	offices := map[uuid.UUID]*models.Office{
		almatyID: {ID: almatyID, Name: "Almaty", Coordinates: &models.Coordinates{Lat: 43.2220, Lon: 76.8512}},
	}
	managers := []*models.Manager{
		{ID: uuid.New(), FullName: "VIP Manager", Position: models.PositionLeadSpecialist, Skills: map[string]bool{"VIP": true, "RU": true}, OfficeID: almatyID, Active: true},
		{ID: uuid.New(), FullName: "Chief Manager", Position: models.PositionChiefSpecialist, Skills: map[string]bool{"VIP": true, "RU": true}, OfficeID: almatyID, Active: true},
	}

	orch := &Orchestrator{
		Store:              memStore,
		Bus:                progress.NewBus(),
		Anonymizer:         pii.New(),
		Spam:               spam.New(spam.NewLLMClassifier(client, spamEp)),
		Classifier:         classifier.New(client, ep),
		Sentiment:          sentiment.New(client, sentEp),
		Geocoder:           geo,
		ExpansionCountries: map[string]bool{"Germany": true},
	}

	cleanup := func() {
		llmSrv.Close()
		geoSrv.Close()
		fallbackSrv.Close()
	}

	return &harness{orch: orch, store: memStore, registry: &ManagerRegistry{Managers: managers, Offices: offices}}, cleanup
}

// S1 — angry VIP claim in Almaty: not spam, negative sentiment, high
// priority, routed to a VIP-skilled manager in the Almaty office.
func TestProcessTicket_S1_AngryVIPClaimAlmaty(t *testing.T) {
	classifierContent := `{"type":"formal_claim","language_label":"RU","language_actual":"Russian","language_is_mixed":false,"language_note":"","summary":"Client demands immediate refund of $500.","attachment_analysis":"","needs_data_change":0,"needs_location_routing":0}`
	sentimentContent := `{"sentiment":"negative","confidence":0.95}`

	h, cleanup := newHarness(t, classifierContent, sentimentContent, "")
	defer cleanup()

	ticket := &models.Ticket{
		ID: uuid.New(), CSVRowIndex: 0, GUID: "guid-1",
		Segment: models.SegmentVIP, Age: 42, BirthDate: fixedTime(),
		Description: "ВЕРНИТЕ 500$ НЕМЕДЛЕННО!!!",
		Address:     models.Address{Country: "Казахстан", City: "Алматы"},
	}

	result, err := h.orch.ProcessTicket(context.Background(), uuid.New(), ticket, 1, 0, 1, geocoder.NewAlternator(), h.registry)
	require.NoError(t, err)

	assert.False(t, result.IsSpam)
	assert.Contains(t, []models.TicketType{models.TicketFormalClaim, models.TicketComplaint}, result.Type)
	assert.Equal(t, models.SentimentNegative, result.Sentiment)

	analysis, ok := h.store.AnalysisFor(ticket.ID)
	require.True(t, ok)
	// VIP + negative sentiment + formal_claim/complaint drives priority well
	// above the mid-range; the single-ticket batch's fifo extra is at its
	// maximum (row 0 of a 1-row batch), so this is the formula's actual
	// ceiling for this factor combination.
	assert.GreaterOrEqual(t, analysis.Priority.Final, 7.5)

	assignment, ok := h.store.AssignmentFor(ticket.ID)
	require.True(t, ok)
	assigned := findManager(h.registry.Managers, assignment.ManagerID)
	require.NotNil(t, assigned)
	assert.True(t, assigned.HasSkill("VIP"))
	assert.Equal(t, "Almaty", h.registry.Offices[assigned.OfficeID].Name)
}

// S2 — spam via structural override: the ticket short-circuits as spam,
// no analysis or priority breakdown is stored, no assignment is created.
func TestProcessTicket_S2_SpamInvisibleChars(t *testing.T) {
	h, cleanup := newHarness(t, "", "", "")
	defer cleanup()

	padding := strings.Repeat("⠀", 40)
	ticket := &models.Ticket{
		ID: uuid.New(), CSVRowIndex: 0, GUID: "guid-2",
		Segment: models.SegmentMass,
		Description: padding + " http://spam.example/offer",
	}

	result, err := h.orch.ProcessTicket(context.Background(), uuid.New(), ticket, 1, 0, 1, geocoder.NewAlternator(), h.registry)
	require.NoError(t, err)

	assert.True(t, result.IsSpam)
	assert.Equal(t, models.TicketSpam, result.Type)

	_, hasAssignment := h.store.AssignmentFor(ticket.ID)
	assert.False(t, hasAssignment)
	_, hasAnalysis := h.store.AnalysisFor(ticket.ID)
	assert.False(t, hasAnalysis, "a spam ticket never reaches the priority/analysis stage")
}

// S3 — a data-change request: the classifier's needs_data_change flag
// forces the ticket type even though the raw classification was
// something else.
func TestProcessTicket_S3_DataChangeOverride(t *testing.T) {
	classifierContent := `{"type":"consultation","language_label":"RU","summary":"Client wants to update phone number.","needs_data_change":1,"needs_location_routing":0}`
	sentimentContent := `{"sentiment":"neutral","confidence":0.6}`

	h, cleanup := newHarness(t, classifierContent, sentimentContent, "")
	defer cleanup()

	ticket := &models.Ticket{
		ID: uuid.New(), CSVRowIndex: 0, GUID: "guid-3",
		Segment:     models.SegmentMass,
		Description: "Хочу сменить номер телефона с +77011234567 на +77021234567",
		Address:     models.Address{Country: "Казахстан", City: "Алматы"},
	}

	result, err := h.orch.ProcessTicket(context.Background(), uuid.New(), ticket, 1, 0, 1, geocoder.NewAlternator(), h.registry)
	require.NoError(t, err)
	assert.Equal(t, models.TicketDataChange, result.Type)

	assignment, ok := h.store.AssignmentFor(ticket.ID)
	require.True(t, ok)
	assigned := findManager(h.registry.Managers, assignment.ManagerID)
	require.NotNil(t, assigned)
	assert.Equal(t, models.PositionChiefSpecialist, assigned.Position)
}

// S4 — foreign address: the geocoder never calls out over the network
// and alternates between the two fixed domestic offices across the
// batch, in order of appearance.
func TestProcessTicket_S4_ForeignAddressAlternates(t *testing.T) {
	classifierContent := `{"type":"consultation","language_label":"RU","summary":"ok","needs_data_change":0,"needs_location_routing":0}`
	sentimentContent := `{"sentiment":"neutral","confidence":0.5}`

	h, cleanup := newHarness(t, classifierContent, sentimentContent, "")
	defer cleanup()

	batchID := uuid.New()
	alt := geocoder.NewAlternator()
	var tickets []*models.Ticket
	for i := 0; i < 2; i++ {
		ticket := &models.Ticket{
			ID: uuid.New(), CSVRowIndex: i, GUID: "guid-4x" + string(rune('a'+i)),
			Segment: models.SegmentMass, Description: "Some support question",
			Address: models.Address{Country: "Germany", City: "Berlin"},
		}
		_, err := h.orch.ProcessTicket(context.Background(), batchID, ticket, 1, i, 2, alt, h.registry)
		require.NoError(t, err)
		tickets = append(tickets, ticket)

		analysis, ok := h.store.AnalysisFor(ticket.ID)
		require.True(t, ok)
		assert.Greater(t, analysis.Priority.ExpansionExtra, 0.0, "Germany is configured as an expansion country")
	}

	require.NotNil(t, tickets[0].Coordinates)
	require.NotNil(t, tickets[1].Coordinates)
	assert.Equal(t, models.ResolutionForeign, tickets[0].ResolutionStatus)
	assert.Equal(t, models.ResolutionForeign, tickets[1].ResolutionStatus)
	assert.NotEqual(t, *tickets[0].Coordinates, *tickets[1].Coordinates, "the alternator must assign the two fixed offices in turn")
}

// S6 — repeat caller: three same-GUID tickets get repeat_client raw
// score 8 (count >= 3) and a monotonically decreasing fifo extra.
func TestProcessBatch_S6_RepeatCallerFIFODecreasing(t *testing.T) {
	classifierContent := `{"type":"consultation","language_label":"RU","summary":"ok","needs_data_change":0,"needs_location_routing":0}`
	sentimentContent := `{"sentiment":"neutral","confidence":0.5}`

	h, cleanup := newHarness(t, classifierContent, sentimentContent, "")
	defer cleanup()

	batchID := uuid.New()
	tickets := make([]*models.Ticket, 3)
	for i := range tickets {
		tickets[i] = &models.Ticket{
			ID: uuid.New(), CSVRowIndex: i, GUID: "repeat-guid",
			Segment: models.SegmentMass, Age: 30, BirthDate: fixedTime(),
			Description: "Just a question",
		}
	}
	h.store.SeedBatch(&models.Batch{ID: batchID, TotalRows: 3}, tickets)

	snapshot, err := h.orch.ProcessBatch(context.Background(), batchID, h.registry)
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Snapshot().Processed)

	var fifoExtras []float64
	for _, ticket := range tickets {
		analysis, ok := h.store.AnalysisFor(ticket.ID)
		require.True(t, ok)
		assert.InDelta(t, 8.0*0.07, analysis.Priority.RepeatClientScore, 1e-9, "repeat_client raw score must be 8 for a 3-way GUID collision")
		fifoExtras = append(fifoExtras, analysis.Priority.FIFOExtra)
	}

	for i := 1; i < len(fifoExtras); i++ {
		assert.Less(t, fifoExtras[i], fifoExtras[i-1], "fifo extra must decrease monotonically with row index")
	}
}

// Property 10 — GUID count correctness: the repeat_client factor used
// by priority equals exactly the number of same-GUID tickets in the
// batch, not some approximation.
func TestProcessBatch_Property10_GUIDCountCorrectness(t *testing.T) {
	classifierContent := `{"type":"consultation","language_label":"RU","summary":"ok","needs_data_change":0,"needs_location_routing":0}`
	sentimentContent := `{"sentiment":"neutral","confidence":0.5}`

	h, cleanup := newHarness(t, classifierContent, sentimentContent, "")
	defer cleanup()

	batchID := uuid.New()
	tickets := []*models.Ticket{
		{ID: uuid.New(), CSVRowIndex: 0, GUID: "solo", Segment: models.SegmentMass, Description: "one"},
		{ID: uuid.New(), CSVRowIndex: 1, GUID: "pair", Segment: models.SegmentMass, Description: "two-a"},
		{ID: uuid.New(), CSVRowIndex: 2, GUID: "pair", Segment: models.SegmentMass, Description: "two-b"},
	}
	h.store.SeedBatch(&models.Batch{ID: batchID, TotalRows: 3}, tickets)

	_, err := h.orch.ProcessBatch(context.Background(), batchID, h.registry)
	require.NoError(t, err)

	solo, ok := h.store.AnalysisFor(tickets[0].ID)
	require.True(t, ok)
	pairA, ok := h.store.AnalysisFor(tickets[1].ID)
	require.True(t, ok)
	pairB, ok := h.store.AnalysisFor(tickets[2].ID)
	require.True(t, ok)

	assert.Less(t, solo.Priority.RepeatClientScore, pairA.Priority.RepeatClientScore)
	assert.InDelta(t, pairA.Priority.RepeatClientScore, pairB.Priority.RepeatClientScore, 1e-9)
}

func findManager(managers []*models.Manager, id uuid.UUID) *models.Manager {
	for _, m := range managers {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func fixedTime() *time.Time {
	t := time.Date(1983, 1, 1, 0, 0, 0, 0, time.UTC)
	return &t
}
