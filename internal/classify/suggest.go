package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/plotsync/plotsync/internal/telemetry"
	"github.com/plotsync/plotsync/internal/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(anthropic.ModelClaudeHaiku4_5)

const suggestRetryMaxElapsed = 30 * time.Second

// ErrAPIKeyRequired is returned when no Anthropic API key is available.
var ErrAPIKeyRequired = errors.New("API key required")

// Suggester asks a language model to type references that the heuristic
// could only guess at. Suggestions never replace declared or manual types.
type Suggester struct {
	model    string
	complete func(ctx context.Context, prompt string) (string, error)
}

// NewSuggester creates a suggester backed by the Anthropic API. The
// ANTHROPIC_API_KEY environment variable takes precedence over apiKey.
func NewSuggester(apiKey, model string) (*Suggester, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}
	if model == "" {
		model = DefaultModel
	}
	aiMetricsOnce.Do(initAIMetrics)

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	s := &Suggester{model: model}
	s.complete = func(ctx context.Context, prompt string) (string, error) {
		return callWithRetry(ctx, client, anthropic.Model(model), prompt)
	}
	return s, nil
}

// Suggest retypes guessed references in place and returns how many changed.
// A failed call for one reference is returned after the others are tried.
func (s *Suggester) Suggest(ctx context.Context, refs []*types.ParsedReference) (int, error) {
	changed := 0
	var errs []error
	for _, r := range refs {
		if r.Classification != types.BasisDefault && r.Classification != types.BasisTag {
			continue
		}
		answer, err := s.complete(ctx, prompt(r))
		if err != nil {
			if ctx.Err() != nil {
				return changed, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("suggest %q: %w", r.Name, err))
			continue
		}
		t, ok := parseAnswer(answer)
		if !ok {
			continue
		}
		if t != r.Type {
			changed++
		}
		r.Type = t
		r.Confidence = types.ConfidenceMedium
	}
	return changed, errors.Join(errs...)
}

// maxPromptNotes caps the note text sent with a reference, in runes.
const maxPromptNotes = 1500

func prompt(r *types.ParsedReference) string {
	var b strings.Builder
	b.WriteString("You are sorting the story bible of a novel. Decide what kind of entity the note below describes.\n")
	b.WriteString("Answer with exactly one word from: character, location, item, objective, organization.\n\n")
	fmt.Fprintf(&b, "Name: %s\n", r.Name)
	if r.Description != nil {
		fmt.Fprintf(&b, "Description: %s\n", *r.Description)
	}
	if r.Hint.Folder != "" {
		fmt.Fprintf(&b, "Folder: %s\n", r.Hint.Folder)
	}
	if len(r.Hint.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(r.Hint.Tags, ", "))
	}
	if notes := r.Attributes[types.NotesKey]; notes != "" {
		if rs := []rune(notes); len(rs) > maxPromptNotes {
			notes = string(rs[:maxPromptNotes])
		}
		fmt.Fprintf(&b, "Notes:\n%s\n", notes)
	}
	return b.String()
}

// parseAnswer takes the first word of the reply that names a type.
func parseAnswer(answer string) (types.RefType, bool) {
	for _, w := range strings.FieldsFunc(answer, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) {
		if t, ok := Lookup(w); ok {
			return t, true
		}
	}
	return "", false
}

// aiMetrics holds lazily-initialized OTel instruments for Anthropic API calls.
var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter("github.com/plotsync/plotsync/ai")
	aiMetrics.inputTokens, _ = m.Int64Counter("plotsync.ai.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("plotsync.ai.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("plotsync.ai.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func callWithRetry(ctx context.Context, client anthropic.Client, model anthropic.Model, prompt string) (string, error) {
	tracer := telemetry.Tracer("github.com/plotsync/plotsync/ai")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	modelAttr := attribute.String("plotsync.ai.model", string(model))
	span.SetAttributes(modelAttr, attribute.String("plotsync.ai.operation", "classify"))

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = suggestRetryMaxElapsed

	attempts := 0
	var text string
	err := backoff.Retry(func() error {
		attempts++
		t0 := time.Now()
		message, err := client.Messages.New(ctx, params)
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		ms := float64(time.Since(t0).Milliseconds())
		if aiMetrics.inputTokens != nil {
			aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
			aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
		}
		if len(message.Content) == 0 {
			return backoff.Permanent(fmt.Errorf("unexpected response format: no content blocks"))
		}
		content := message.Content[0]
		if content.Type != "text" {
			return backoff.Permanent(fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type))
		}
		text = content.Text
		return nil
	}, backoff.WithContext(bo, ctx))

	span.SetAttributes(attribute.Int("plotsync.ai.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
