// Package sentiment implements the Sentiment Classifier (§4.D): a
// single, narrower call with no retry beyond one attempt.
package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/freedomfinance/ticketfire/internal/llmclient"
	"github.com/freedomfinance/ticketfire/internal/logx"
	"github.com/freedomfinance/ticketfire/internal/models"
)

var log = logx.Tag("sentiment")

const systemPrompt = "You are a sentiment analysis system. Return only valid JSON."

const userPromptTemplate = `Analyze the sentiment of this customer support ticket for a financial broker.

TICKET TEXT:
%s

Classify sentiment as exactly one of:
- "positive" — grateful, satisfied, polite inquiry
- "neutral" — factual, no strong emotion, information request
- "negative" — angry, frustrated, threatening, dissatisfied

Consider:
- Exclamation marks and ALL CAPS indicate stronger emotion
- Threats (court, complaint, prosecutor) = negative
- Polite requests (please, thank you) = positive
- Simple questions alone = neutral

Return ONLY valid JSON:
{"sentiment": "positive" | "neutral" | "negative", "confidence": 0.0-1.0}`

// Result is {sentiment, confidence}.
type Result struct {
	Sentiment  models.Sentiment
	Confidence float64
}

type rawResponse struct {
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
}

// SafeDefault is returned on any failure: {neutral, 0.0}.
func SafeDefault() Result {
	return Result{Sentiment: models.SentimentNeutral, Confidence: 0.0}
}

// Classifier runs the D stage.
type Classifier struct {
	client *llmclient.Client
	ep     llmclient.Endpoint
}

func New(client *llmclient.Client, ep llmclient.Endpoint) *Classifier {
	return &Classifier{client: client, ep: ep}
}

// Classify returns the sentiment call's result. On any failure it
// returns SafeDefault() alongside the error describing why, so a caller
// can record the failure against the stage instead of silently
// swallowing it.
func (c *Classifier) Classify(ctx context.Context, anonymizedText string) (Result, error) {
	text := anonymizedText
	if text == "" {
		text = "(empty ticket body)"
	}
	prompt := fmt.Sprintf(userPromptTemplate, text)

	raw, err := c.client.ChatJSON(ctx, c.ep, systemPrompt, prompt, 0.0)
	if err != nil {
		log.Printf("sentiment call failed, defaulting to neutral: %v", err)
		return SafeDefault(), err
	}

	if err := llmclient.RequireFields(raw, "sentiment"); err != nil {
		log.Printf("sentiment response malformed, defaulting to neutral: %v", err)
		return SafeDefault(), err
	}

	var parsed rawResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Printf("sentiment response undecodable, defaulting to neutral: %v", err)
		return SafeDefault(), err
	}

	return Result{Sentiment: normalize(parsed.Sentiment), Confidence: parsed.Confidence}, nil
}

func normalize(raw string) models.Sentiment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "positive", "позитивный":
		return models.SentimentPositive
	case "negative", "негативный":
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}
