// Package spam implements the Spam Prefilter: structural overrides,
// then a lightweight classifier call, fail-open on transport error.
package spam

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/freedomfinance/ticketfire/internal/llmclient"
	"github.com/freedomfinance/ticketfire/internal/logx"
)

var log = logx.Tag("spam")

var (
	urlRE       = regexp.MustCompile(`https?://\S+|www\.\S+`)
	invisibleRE = regexp.MustCompile(`[\x{2800}-\x{28FF}\x{200B}-\x{200D}\x{FEFF}\x{00A0}]`)
	promoRE     = regexp.MustCompile(`(?i)sale|discount|promo|free|offer|скидк|распродаж|акци[яи]|бесплатн`)
)

// Result is the two-stage decision: {is_spam, probability, reason}.
type Result struct {
	IsSpam      bool
	Probability float64
	Reason      string
}

// Classifier is implemented by internal/classifier-adjacent code that
// makes the narrow spam/not-spam LLM call. Kept as an interface so the
// structural stage can be tested without a transport.
type Classifier interface {
	Classify(ctx context.Context, strippedText string) (isSpam bool, err error)
}

type LLMClassifier struct {
	client llmclient.Client
	ep     llmclient.Endpoint
}

func NewLLMClassifier(client *llmclient.Client, ep llmclient.Endpoint) *LLMClassifier {
	return &LLMClassifier{client: *client, ep: ep}
}

const spamSystemPrompt = "You are a spam classifier for a financial broker's support inbox. Return only valid JSON."

const spamPromptTemplate = `Classify this customer support message.

MESSAGE:
%s

Short, angry or urgent messages ("RETURN MY MONEY!!!", "ВЕРНИТЕ 500$ НЕМЕДЛЕННО!!!") are real complaints, not spam — do not classify them as spam merely because they are short or emotional.

Return ONLY valid JSON: {"verdict": "SPAM" | "NOT_SPAM"}`

type spamRawResponse struct {
	Verdict string `json:"verdict"`
}

func (c *LLMClassifier) Classify(ctx context.Context, strippedText string) (bool, error) {
	prompt := strings.ReplaceAll(spamPromptTemplate, "%s", strippedText)
	raw, err := c.client.ChatJSON(ctx, c.ep, spamSystemPrompt, prompt, 0.0)
	if err != nil {
		return false, err
	}
	if err := llmclient.RequireFields(raw, "verdict"); err != nil {
		return false, err
	}
	var parsed spamRawResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return false, fmt.Errorf("decoding spam verdict: %w", err)
	}
	answer := strings.ToUpper(strings.TrimSpace(parsed.Verdict))
	return strings.Contains(answer, "SPAM") && !strings.Contains(answer, "NOT_SPAM"), nil
}

// Prefilter runs the two-stage spam decision.
type Prefilter struct {
	classifier Classifier
}

func New(classifier Classifier) *Prefilter {
	return &Prefilter{classifier: classifier}
}

// Check runs stage 1 (structural overrides) and, only if none hit,
// stage 2 (the classifier call). Any structural hit short-circuits
// before the classifier is ever invoked — this resolves OQ-1: an empty
// body is spam regardless of attachments.
func (p *Prefilter) Check(ctx context.Context, description string) Result {
	if r, hit := structuralCheck(description); hit {
		return r
	}

	stripped := strip(description)
	if len(stripped) > 500 {
		stripped = stripped[:500]
	}

	isSpam, err := p.classifier.Classify(ctx, stripped)
	if err != nil {
		log.Printf("classifier call failed, defaulting to not-spam: %v", err)
		return Result{IsSpam: false, Probability: 0.0, Reason: "classifier error: " + err.Error()}
	}
	if isSpam {
		return Result{IsSpam: true, Probability: 0.8, Reason: "classifier verdict"}
	}
	return Result{IsSpam: false, Probability: 0.0, Reason: "classifier verdict"}
}

func structuralCheck(text string) (Result, bool) {
	if len(strings.TrimSpace(text)) < 3 {
		return Result{IsSpam: true, Probability: 1.0, Reason: "empty or near-empty body"}, true
	}

	invisibleCount := len(invisibleRE.FindAllString(text, -1))
	urlCount := len(urlRE.FindAllString(text, -1))
	promoCount := len(promoRE.FindAllString(text, -1))

	if invisibleCount > 10 && urlCount >= 1 {
		return Result{IsSpam: true, Probability: 0.99, Reason: "invisible-character padding with URL"}, true
	}
	if promoCount >= 3 && urlCount >= 1 {
		return Result{IsSpam: true, Probability: 0.95, Reason: "promotional keyword density with URL"}, true
	}
	if invisibleCount > 30 {
		return Result{IsSpam: true, Probability: 0.95, Reason: "invisible-character padding"}, true
	}
	return Result{}, false
}

func strip(text string) string {
	text = urlRE.ReplaceAllString(text, "")
	text = invisibleRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
