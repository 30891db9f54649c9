// Package llmclient is the shared transport every external
// chat-completions call (classifier, sentiment, spam) goes through: an
// OpenAI-compatible client pointed at a configurable BaseURL, one
// circuit breaker per named endpoint, an exponential-backoff retry
// policy for the classifier, and cheap structural JSON validation before
// a caller commits to a full unmarshal. Every call is also wrapped in a
// genkit traced step, the same wrapping idiom the teacher's analyzer
// flows use around their own provider calls.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/firebase/genkit/go/genkit"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"

	"github.com/freedomfinance/ticketfire/internal/logx"
)

var log = logx.Tag("llmclient")

// RetryableError marks an external-service transient error (§7): a
// timeout, connection failure, or a 429/5xx response. ChatJSONWithRetry
// retries these; every other error is terminal.
type RetryableError struct {
	Err error
}

func (r *RetryableError) Error() string { return r.Err.Error() }
func (r *RetryableError) Unwrap() error { return r.Err }

func Retryable(err error) error {
	return &RetryableError{Err: err}
}

// ImageAttachment is one base64-encoded image content part to attach to
// a user message alongside its text, for models that accept multimodal
// input.
type ImageAttachment struct {
	MIMEType string
	Base64   string
}

// Endpoint describes one OpenAI-compatible chat-completions target.
type Endpoint struct {
	Name    string // breaker/log identity: "classifier", "sentiment", "spam"
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is the shared transport for every external call the pipeline
// makes to a chat-completions endpoint.
type Client struct {
	genkitApp *genkit.Genkit

	mu       map[string]*gobreaker.CircuitBreaker
}

func New(g *genkit.Genkit) *Client {
	return &Client{genkitApp: g, mu: map[string]*gobreaker.CircuitBreaker{}}
}

func (c *Client) breaker(name string) *gobreaker.CircuitBreaker {
	if b, ok := c.mu[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	c.mu[name] = b
	return b
}

func (c *Client) newHTTPClient(ep Endpoint) *openai.Client {
	client := openai.NewClient(
		option.WithAPIKey(ep.APIKey),
		option.WithBaseURL(ep.BaseURL),
	)
	return &client
}

// ChatJSON sends a single chat-completions request requiring a JSON
// object response, behind the endpoint's circuit breaker, with no
// retry. Used by the sentiment and spam stages, which spec.md limits to
// a single attempt.
func (c *Client) ChatJSON(ctx context.Context, ep Endpoint, systemPrompt, userPrompt string, temperature float64, images ...ImageAttachment) (string, error) {
	var content string
	_, err := genkit.Run(ctx, ep.Name+"-call", func() (struct{}, error) {
		body, err := c.breaker(ep.Name).Execute(func() (interface{}, error) {
			return c.doChat(ctx, ep, systemPrompt, userPrompt, temperature, images)
		})
		if err != nil {
			return struct{}{}, err
		}
		content = body.(string)
		return struct{}{}, nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// ChatJSONWithRetry is ChatJSON plus the classifier's retry policy: up
// to 3 attempts, exponential backoff starting at 1s, only for errors
// wrapped with Retryable. Non-retryable errors (4xx other than 429)
// return immediately.
func (c *Client) ChatJSONWithRetry(ctx context.Context, ep Endpoint, systemPrompt, userPrompt string, temperature float64, maxAttempts int, images ...ImageAttachment) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 1 * time.Second
	bo := backoff.WithMaxRetries(policy, uint64(maxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	var content string
	operation := func() error {
		out, err := c.ChatJSON(ctx, ep, systemPrompt, userPrompt, temperature, images...)
		if err == nil {
			content = out
			return nil
		}
		var retryable *RetryableError
		if errors.As(err, &retryable) {
			log.Printf("%s call failed, retrying: %v", ep.Name, err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return "", fmt.Errorf("%s: %w", ep.Name, err)
	}
	return content, nil
}

func (c *Client) doChat(ctx context.Context, ep Endpoint, systemPrompt, userPrompt string, temperature float64, images []ImageAttachment) (string, error) {
	callCtx := ctx
	cancel := func() {}
	if ep.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, ep.Timeout)
	}
	defer cancel()

	client := c.newHTTPClient(ep)
	resp, err := client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: ep.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			userMessage(userPrompt, images),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", classifyTransportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", Retryable(errors.New("empty choices in response"))
	}
	content := resp.Choices[0].Message.Content

	if !gjson.Valid(content) {
		return "", Retryable(fmt.Errorf("non-JSON response body"))
	}
	return content, nil
}

// userMessage builds a plain text user message, or, when images are
// present, a multi-part message with the text plus one image_url part
// per attachment carrying a data: URI — the multimodal content-part
// shape vision-capable chat-completions models expect.
func userMessage(text string, images []ImageAttachment) openai.ChatCompletionMessageParamUnion {
	if len(images) == 0 {
		return openai.UserMessage(text)
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	parts = append(parts, openai.ChatCompletionContentPartUnionParam{
		OfText: &openai.ChatCompletionContentPartTextParam{Text: text},
	})
	for _, img := range images {
		parts = append(parts, openai.ChatCompletionContentPartUnionParam{
			OfImageURL: &openai.ChatCompletionContentPartImageParam{
				ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
					URL: fmt.Sprintf("data:%s;base64,%s", img.MIMEType, img.Base64),
				},
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfArrayOfContentParts: parts,
			},
		},
	}
}

// RequireFields does a cheap structural check — are all of these keys
// present in the raw JSON — before a caller pays for a full unmarshal
// into a typed struct.
func RequireFields(raw string, fields ...string) error {
	for _, f := range fields {
		if !gjson.Get(raw, f).Exists() {
			return fmt.Errorf("response missing required field %q", f)
		}
	}
	return nil
}

// classifyTransportError maps an openai-go transport error onto the
// retryable/permanent split in spec.md §7: 429 and 5xx, timeouts, and
// connection errors are retryable; 400/401 and other 4xx are not.
func classifyTransportError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 504:
			return Retryable(err)
		default:
			return err
		}
	}
	// Timeouts and connection failures surface as context/network
	// errors, not *openai.Error — treat them as retryable.
	return Retryable(err)
}
