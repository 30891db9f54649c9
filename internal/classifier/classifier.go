// Package classifier implements the LLM Classifier (§4.C): a single
// call returning type, language trio, summary, two routing flags, and
// an optional attachment description.
package classifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/freedomfinance/ticketfire/internal/llmclient"
	"github.com/freedomfinance/ticketfire/internal/logx"
	"github.com/freedomfinance/ticketfire/internal/models"
)

var log = logx.Tag("classifier")

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Request is the input to Classify.
type Request struct {
	AnonymizedText string
	Age            int
	AgeKnown       bool
	Attachments    []string
	Segment        models.Segment
	UploadsDir     string
}

// Result mirrors the strict-JSON output contract in §4.C.
type Result struct {
	Type                 models.TicketType
	LanguageLabel        models.LanguageLabel
	LanguageActual       string
	LanguageIsMixed      bool
	LanguageNote         string
	Summary              string
	AttachmentAnalysis   string
	NeedsDataChange      bool
	NeedsLocationRouting bool
	Explanation          string
}

type rawResponse struct {
	Type                 string `json:"type"`
	LanguageLabel        string `json:"language_label"`
	LanguageActual       string `json:"language_actual"`
	LanguageIsMixed      bool   `json:"language_is_mixed"`
	LanguageNote         string `json:"language_note"`
	Summary              string `json:"summary"`
	AttachmentAnalysis   string `json:"attachment_analysis"`
	NeedsDataChange      int    `json:"needs_data_change"`
	NeedsLocationRouting int    `json:"needs_location_routing"`
}

// SafeDefault is substituted on terminal failure (§4.C transport
// contract): type consultation, language RU, an explanatory summary.
func SafeDefault() Result {
	return Result{
		Type:          models.TicketConsultation,
		LanguageLabel: models.LanguageRU,
		Summary:       "LLM error — manual processing required",
	}
}

const maxRetryAttempts = 3

const systemPrompt = "You are a support-ticket classifier for a financial broker. Return only valid JSON matching the requested schema."

const userPromptTemplate = `Classify this anonymized customer support ticket.

TICKET TEXT:
%s

CLIENT AGE: %s
SEGMENT: %s
ATTACHMENTS: %s

Return exactly one of these types: fraud, formal_claim, complaint, app_malfunction, data_change, consultation, spam.

Language rules:
- Turkic but non-Kazakh text: label "KZ" if age > 45, else "ENG".
- Non-Turkic non-Russian text: label "ENG".
- Transliterated Cyrillic: resolve to the underlying language, then apply the rules above.
- Mixed content: classify by the language of the substantive body, ignore signatures.

Set needs_data_change=1 if the client is requesting a change to their personal/account data.
Set needs_location_routing=1 if resolving this ticket requires routing by the client's physical location.

Return ONLY valid JSON:
{
  "type": "...",
  "language_label": "RU" | "KZ" | "ENG",
  "language_actual": "...",
  "language_is_mixed": true|false,
  "language_note": "...",
  "summary": "one or two sentences describing what the client needs plus a recommended next action",
  "attachment_analysis": "..." | null,
  "needs_data_change": 0|1,
  "needs_location_routing": 0|1
}`

// Classifier runs the C stage.
type Classifier struct {
	client *llmclient.Client
	ep     llmclient.Endpoint
}

func New(client *llmclient.Client, ep llmclient.Endpoint) *Classifier {
	return &Classifier{client: client, ep: ep}
}

func (c *Classifier) Classify(ctx context.Context, req Request) (Result, error) {
	ageStr := "unknown"
	if req.AgeKnown {
		ageStr = fmt.Sprintf("%d", req.Age)
	}

	attachmentsStr := "none"
	if len(req.Attachments) > 0 {
		attachmentsStr = strings.Join(req.Attachments, ", ")
	}

	prompt := fmt.Sprintf(userPromptTemplate, req.AnonymizedText, ageStr, req.Segment, attachmentsStr)

	images, imgNote := loadImageAttachments(req.Attachments, req.UploadsDir)
	if imgNote != "" {
		prompt += "\n\n" + imgNote
	}

	raw, err := c.client.ChatJSONWithRetry(ctx, c.ep, systemPrompt, prompt, 0.1, maxRetryAttempts, images...)
	if err != nil {
		log.Printf("classifier call failed terminally, substituting safe default: %v", err)
		return SafeDefault(), err
	}

	if err := llmclient.RequireFields(raw, "type", "language_label", "summary"); err != nil {
		log.Printf("classifier response malformed, substituting safe default: %v", err)
		return SafeDefault(), err
	}

	var parsed rawResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return SafeDefault(), fmt.Errorf("decoding classifier response: %w", err)
	}

	result := Result{
		Type:                 normalizeType(parsed.Type),
		LanguageLabel:        normalizeLanguage(parsed.LanguageLabel),
		LanguageActual:       parsed.LanguageActual,
		LanguageIsMixed:      parsed.LanguageIsMixed,
		LanguageNote:         parsed.LanguageNote,
		Summary:              parsed.Summary,
		AttachmentAnalysis:   parsed.AttachmentAnalysis,
		NeedsDataChange:      parsed.NeedsDataChange != 0,
		NeedsLocationRouting: parsed.NeedsLocationRouting != 0,
	}

	return ApplyDataChangeOverride(result), nil
}

// ApplyDataChangeOverride is the §4.C post-hoc rule: if needs_data_change
// is set and the detected type isn't already data_change, force it and
// record why.
func ApplyDataChangeOverride(r Result) Result {
	if r.NeedsDataChange && r.Type != models.TicketDataChange {
		r.Explanation = strings.TrimSpace(r.Explanation + " Тип переопределён на data_change по флагу needs_data_change.")
		r.Type = models.TicketDataChange
	}
	return r
}

func normalizeType(raw string) models.TicketType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "fraud":
		return models.TicketFraud
	case "formal_claim":
		return models.TicketFormalClaim
	case "complaint":
		return models.TicketComplaint
	case "app_malfunction":
		return models.TicketAppMalfunction
	case "data_change":
		return models.TicketDataChange
	case "spam":
		return models.TicketSpam
	default:
		return models.TicketConsultation
	}
}

func normalizeLanguage(raw string) models.LanguageLabel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "KZ":
		return models.LanguageKZ
	case "ENG":
		return models.LanguageENG
	default:
		return models.LanguageRU
	}
}

// loadImageAttachments reads every image attachment found under
// uploadsDir (or, failing that, the raw filename) and returns them as
// base64 content parts for the multimodal request, plus a text note
// naming what was attached.
func loadImageAttachments(attachments []string, uploadsDir string) ([]llmclient.ImageAttachment, string) {
	var images []llmclient.ImageAttachment
	var names []string
	for _, a := range attachments {
		ext := strings.ToLower(filepath.Ext(a))
		mime, ok := imageExtensions[ext]
		if !ok {
			continue
		}
		path := filepath.Join(uploadsDir, a)
		data, err := os.ReadFile(path)
		if err != nil {
			path = a
			data, err = os.ReadFile(path)
			if err != nil {
				continue
			}
		}
		images = append(images, llmclient.ImageAttachment{MIMEType: mime, Base64: base64.StdEncoding.EncodeToString(data)})
		names = append(names, a)
	}
	if len(names) == 0 {
		return nil, ""
	}
	return images, "ATTACHMENTS (image content below): " + strings.Join(names, ", ")
}
