// Package orchestrator implements the Batch Orchestrator (§4.I): the
// per-ticket stage graph, concurrent fan-out of the classifier,
// sentiment, and geocoder stages, merge, priority, routing, and
// progress publication — the hard part the rest of the pipeline exists
// to serve.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/freedomfinance/ticketfire/internal/classifier"
	"github.com/freedomfinance/ticketfire/internal/geocoder"
	"github.com/freedomfinance/ticketfire/internal/logx"
	"github.com/freedomfinance/ticketfire/internal/models"
	"github.com/freedomfinance/ticketfire/internal/pii"
	"github.com/freedomfinance/ticketfire/internal/priority"
	"github.com/freedomfinance/ticketfire/internal/progress"
	"github.com/freedomfinance/ticketfire/internal/router"
	"github.com/freedomfinance/ticketfire/internal/sentiment"
	"github.com/freedomfinance/ticketfire/internal/spam"
	"github.com/freedomfinance/ticketfire/internal/store"
)

var log = logx.Tag("orch")

// ManagerRegistry is the in-memory roster the router draws candidates
// from; cumulative load is mutated in place by Route, so the same
// instances must persist across the whole batch (§5 "no lock is
// required in the single-threaded driver").
type ManagerRegistry struct {
	Managers []*models.Manager
	Offices  map[uuid.UUID]*models.Office
}

// Orchestrator wires every stage together.
type Orchestrator struct {
	Store      store.Store
	Bus        *progress.Bus
	Anonymizer *pii.Anonymizer
	Spam       *spam.Prefilter
	Classifier *classifier.Classifier
	Sentiment  *sentiment.Classifier
	Geocoder   *geocoder.Geocoder
	ExpansionCountries map[string]bool
	UploadsDir string
}

// ProcessBatch is the entry point: process_batch(batch_id) from §4.I.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batchID uuid.UUID, registry *ManagerRegistry) (*models.ProgressSnapshot, error) {
	batch, err := o.Store.LoadBatch(batchID)
	if err != nil {
		o.Bus.Broadcast(progress.Event{EventType: "pipeline/failed", Stage: progress.StagePipeline, Status: "failed", BatchID: batchID, Message: err.Error()})
		return nil, fmt.Errorf("loading batch: %w", err)
	}

	tickets, err := o.Store.LoadIngestedTickets(batchID)
	if err != nil {
		o.Bus.Broadcast(progress.Event{EventType: "pipeline/failed", Stage: progress.StagePipeline, Status: "failed", BatchID: batchID, Message: err.Error()})
		return nil, fmt.Errorf("loading tickets: %w", err)
	}

	guidCounts := models.BuildGUIDCounts(tickets)
	alt := geocoder.NewAlternator()

	snapshot := models.NewProgressSnapshot(batchID, len(tickets))
	snapshot.SetStatus(models.BatchProcessing)
	batch.Status = models.BatchProcessing
	o.Bus.Broadcast(progress.Event{EventType: "pipeline/in_progress", Stage: progress.StagePipeline, Status: "in_progress", BatchID: batchID})

	for _, ticket := range tickets {
		o.processOneTicketSafely(ctx, ticket, batch, guidCounts, len(tickets), alt, registry, snapshot)
	}

	finalStatus := models.BatchCompleted
	if batch.FailedRows > 0 {
		finalStatus = models.BatchCompletedWithErrors
	}
	batch.Status = finalStatus
	snapshot.SetStatus(finalStatus)

	o.Bus.Broadcast(progress.Event{
		EventType: "pipeline/completed",
		Stage:     progress.StagePipeline,
		Status:    "completed",
		BatchID:   batchID,
		Data: map[string]interface{}{
			"total":    len(tickets),
			"processed": batch.ProcessedRows,
			"spam":     snapshot.Snapshot().Spam,
			"enriched": batch.ProcessedRows - snapshot.Snapshot().Spam,
		},
	})

	return snapshot, nil
}

// processOneTicketSafely is the per-ticket try/except boundary (§7):
// any uncaught panic or error is logged and recorded in the snapshot,
// never aborting the batch.
func (o *Orchestrator) processOneTicketSafely(ctx context.Context, ticket *models.Ticket, batch *models.Batch, guidCounts models.GUIDCounts, totalRows int, alt *geocoder.Alternator, registry *ManagerRegistry, snapshot *models.ProgressSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic processing ticket %s (row %d): %v", ticket.ID, ticket.CSVRowIndex, r)
			batch.FailedRows++
			batch.ErrorLog = append(batch.ErrorLog, fmt.Sprintf("row %d (ticket %s): panic: %v", ticket.CSVRowIndex, ticket.ID, r))
			snapshot.AppendResult(models.ProgressResult{
				TicketID: ticket.ID, CSVRow: ticket.CSVRowIndex, IsComplete: true,
				Error: fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	result, err := o.ProcessTicket(ctx, batch.ID, ticket, guidCounts[ticket.GUID], ticket.CSVRowIndex, totalRows, alt, registry)
	if err != nil {
		log.Printf("ticket %s (row %d) failed: %v", ticket.ID, ticket.CSVRowIndex, err)
		batch.FailedRows++
		batch.ErrorLog = append(batch.ErrorLog, fmt.Sprintf("row %d (ticket %s): %v", ticket.CSVRowIndex, ticket.ID, err))
		snapshot.AppendResult(models.ProgressResult{
			TicketID: ticket.ID, CSVRow: ticket.CSVRowIndex, IsComplete: true, Error: err.Error(),
		})
		return
	}

	batch.ProcessedRows++
	snapshot.AppendResult(result)
}

// stageOutcome carries one fan-out stage's result alongside its elapsed
// time and error — the typed result-record pattern SPEC_FULL.md's
// ambient error-handling section calls for; no stage raises across a
// ticket boundary.
type stageOutcome struct {
	classifier classifier.Result
	classifierErr error
	classifierElapsed time.Duration

	sentiment sentiment.Result
	sentimentErr error
	sentimentElapsed time.Duration

	geo geocoder.Result
	geoElapsed time.Duration
}

// ProcessTicket runs the single-ticket pipeline (steps 1-8 of §4.I) and
// returns its compact progress-snapshot entry. It is also the
// supplemented synchronous single-ticket convenience path
// (original_source/pipeline.py:process_ticket) used directly by tests
// and by ProcessBatch per ticket.
func (o *Orchestrator) ProcessTicket(ctx context.Context, batchID uuid.UUID, ticket *models.Ticket, repeatCount, csvRowIndex, totalRows int, alt *geocoder.Alternator, registry *ManagerRegistry) (models.ProgressResult, error) {
	// Step 1: spam.
	spamResult := o.Spam.Check(ctx, ticket.Description)
	o.Bus.Broadcast(progress.Event{Stage: progress.StageSpamFilter, Status: "completed", TicketID: ticket.ID, BatchID: batchID})

	if spamResult.IsSpam {
		ticket.IsSpam = true
		ticket.SpamProb = spamResult.Probability
		ticket.SpamReason = spamResult.Reason
		ticket.Type = models.TicketSpam
		ticket.Status = models.StatusEnriched

		o.Bus.Broadcast(progress.Event{Stage: progress.StageEnrichment, Status: "completed", TicketID: ticket.ID, BatchID: batchID, Data: map[string]interface{}{"skipped": true}})

		if err := o.Store.UpdateTicket(ticket); err != nil {
			return models.ProgressResult{}, fmt.Errorf("persisting spam ticket: %w", err)
		}

		return models.ProgressResult{
			TicketID: ticket.ID, CSVRow: csvRowIndex, Type: models.TicketSpam,
			IsSpam: true, IsComplete: true,
		}, nil
	}

	// Step 2: PII.
	anonymized := o.Anonymizer.Anonymize(ticket.Description)
	ticket.DescriptionAnonymized = anonymized.AnonymizedText
	ticket.Status = models.StatusPIIStripped

	mappings := make([]models.PIIMapping, 0, len(anonymized.Detections))
	for _, d := range anonymized.Detections {
		mappings = append(mappings, models.PIIMapping{TicketID: ticket.ID, Token: d.Token, OriginalValue: []byte(d.Original), Kind: d.Kind})
	}
	if err := o.Store.SavePIIMappings(ticket.ID, mappings); err != nil {
		return models.ProgressResult{}, fmt.Errorf("persisting PII mappings: %w", err)
	}
	o.Bus.Broadcast(progress.Event{Stage: progress.StagePIIAnonymization, Status: "completed", TicketID: ticket.ID, BatchID: batchID, Data: map[string]interface{}{"pii_count": len(mappings)}})

	// Step 3: fan-out {C, D, E}. An errgroup join point collects all
	// three outcomes; any individual failure is captured on that call,
	// never aborting the ticket — the idiomatic Go replacement for
	// asyncio.gather(..., return_exceptions=True).
	outcome := o.fanOut(ctx, ticket, anonymized.AnonymizedText, alt)

	// Step 4: merge.
	analysis := o.merge(batchID, ticket, outcome)

	// Step 5: rehydrate.
	analysis.Summary = pii.Rehydrate(analysis.Summary, anonymized.Detections)

	// Step 6: priority.
	age, ageKnown := ticket.Age, true
	if ticket.BirthDate == nil {
		ageKnown = false
	}
	breakdown := priority.Compute(priority.Input{
		Segment: ticket.Segment, Type: analysis.Type, Sentiment: analysis.Sentiment,
		Age: age, AgeKnown: ageKnown, RepeatCount: repeatCount,
		Country: ticket.Address.Country, CSVRowIndex: csvRowIndex, TotalRows: totalRows,
	}, o.ExpansionCountries)
	analysis.Priority = breakdown

	if err := o.Store.UpsertAIAnalysis(*analysis); err != nil {
		return models.ProgressResult{}, fmt.Errorf("persisting analysis: %w", err)
	}

	// Step 7: route.
	ticket.Status = models.StatusEnriched
	routeErr := o.route(ticket, analysis, registry)

	// Step 8: terminal event + commit.
	if err := o.Store.UpdateTicket(ticket); err != nil {
		return models.ProgressResult{}, fmt.Errorf("persisting ticket: %w", err)
	}
	if err := o.Store.Commit(); err != nil {
		return models.ProgressResult{}, fmt.Errorf("commit: %w", err)
	}

	result := models.ProgressResult{
		TicketID: ticket.ID, CSVRow: csvRowIndex, Type: analysis.Type,
		Sentiment: analysis.Sentiment, Summary: analysis.Summary, IsComplete: true,
	}
	if ticket.Coordinates != nil {
		result.Latitude = &ticket.Coordinates.Lat
		result.Longitude = &ticket.Coordinates.Lon
	}
	if routeErr != nil {
		result.Error = routeErr.Error()
	}

	o.Bus.Broadcast(progress.Event{Stage: progress.StageEnrichment, Status: "completed", TicketID: ticket.ID, BatchID: batchID})
	return result, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, ticket *models.Ticket, anonymizedText string, alt *geocoder.Alternator) stageOutcome {
	var out stageOutcome
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		res, err := o.Classifier.Classify(gctx, classifier.Request{
			AnonymizedText: anonymizedText, Age: ticket.Age, AgeKnown: ticket.BirthDate != nil,
			Attachments: ticket.Attachments, Segment: ticket.Segment, UploadsDir: o.UploadsDir,
		})
		out.classifierElapsed = time.Since(start)
		out.classifier = res
		out.classifierErr = err
		return nil // a classifier failure is captured, not propagated
	})

	g.Go(func() error {
		start := time.Now()
		res, err := o.Sentiment.Classify(gctx, anonymizedText)
		out.sentimentElapsed = time.Since(start)
		out.sentiment = res
		out.sentimentErr = err
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		out.geo = o.Geocoder.Resolve(gctx, ticket.Address, alt)
		out.geoElapsed = time.Since(start)
		return nil
	})

	_ = g.Wait() // no member returns a real error; this is a pure join point
	return out
}

func (o *Orchestrator) merge(batchID uuid.UUID, ticket *models.Ticket, outcome stageOutcome) *models.AIAnalysis {
	classifierResult := outcome.classifier
	if outcome.classifierErr != nil {
		classifierResult = classifier.SafeDefault()
		o.recordStageFailure(batchID, ticket.ID, "classifier", outcome.classifierErr)
	}

	if outcome.sentimentErr != nil {
		o.recordStageFailure(batchID, ticket.ID, "sentiment", outcome.sentimentErr)
	}

	coords := outcome.geo.Coordinates
	ticket.Coordinates = coords
	ticket.ResolutionStatus = outcome.geo.Status
	if coords == nil {
		ticket.ResolutionStatus = models.ResolutionUnknown
	}
	if ticket.ResolutionStatus == models.ResolutionUnknown {
		o.recordStageFailure(batchID, ticket.ID, "geocoder", fmt.Errorf("%s", outcome.geo.Explanation))
	}

	return &models.AIAnalysis{
		TicketID:             ticket.ID,
		Type:                 classifierResult.Type,
		LanguageLabel:        classifierResult.LanguageLabel,
		LanguageActual:       classifierResult.LanguageActual,
		LanguageIsMixed:      classifierResult.LanguageIsMixed,
		LanguageNote:         classifierResult.LanguageNote,
		Summary:              classifierResult.Summary,
		AttachmentAnalysis:   classifierResult.AttachmentAnalysis,
		Explanation:          classifierResult.Explanation,
		Sentiment:            outcome.sentiment.Sentiment,
		SentimentConfidence:  outcome.sentiment.Confidence,
		NeedsDataChange:      classifierResult.NeedsDataChange,
		NeedsLocationRouting: classifierResult.NeedsLocationRouting,
		ClassifierLatency:    outcome.classifierElapsed,
		SentimentLatency:     outcome.sentimentElapsed,
		GeocoderLatency:      outcome.geoElapsed,
	}
}

// recordStageFailure persists a processing_state row for one fan-out
// stage's failure (§4.I step 4: "record the error detail on a
// processing_state row for that stage"). It never fails the ticket
// itself — a store error here is logged, not propagated.
func (o *Orchestrator) recordStageFailure(batchID, ticketID uuid.UUID, stage string, cause error) {
	now := time.Now()
	err := o.Store.InsertProcessingState(store.ProcessingState{
		TicketID:    ticketID,
		BatchID:     batchID,
		Stage:       stage,
		Status:      "failed",
		ErrorDetail: cause.Error(),
		StartedAt:   now,
		CompletedAt: now,
	})
	if err != nil {
		log.Printf("recording processing_state failure for ticket %s stage %s: %v", ticketID, stage, err)
	}
}

func (o *Orchestrator) route(ticket *models.Ticket, analysis *models.AIAnalysis, registry *ManagerRegistry) error {
	req := router.Request{
		TicketID: ticket.ID, Coordinates: ticket.Coordinates, Segment: ticket.Segment,
		Type: analysis.Type, LanguageLabel: analysis.LanguageLabel,
	}
	assignment, err := router.Route(req, registry.Managers, registry.Offices)
	if err != nil {
		return fmt.Errorf("routing: %w", err)
	}
	ticket.AssignmentID = &assignment.ID
	ticket.Status = models.StatusRouted
	return o.Store.InsertAssignment(*assignment)
}
