package analyzer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/markbunyevacz/lambda-extract/internal/config"
	"github.com/markbunyevacz/lambda-extract/internal/model"
	"github.com/markbunyevacz/lambda-extract/internal/registry"
	"github.com/markbunyevacz/lambda-extract/internal/resilience"
)

// messageAPI is the slice of the SDK surface the analyzer uses, kept narrow
// so tests can substitute a fake without network access.
type messageAPI interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// ClaudeAnalyzer implements Client using the Anthropic SDK.
type ClaudeAnalyzer struct {
	messages     messageAPI
	reg          *registry.Registry
	schema       map[string]any
	model        string
	maxTokens    int64
	maxTextChars int
	limiter      *rate.Limiter
	retry        resilience.RetryConfig
}

// NewClaude creates a ClaudeAnalyzer from config. The client is constructed
// here and injected into the semantic strategy; there is no package-level
// client state.
func NewClaude(cfg config.AnalyzerConfig, reg *registry.Registry) *ClaudeAnalyzer {
	client := sdk.NewClient(option.WithAPIKey(cfg.Key))

	rpm := cfg.RequestsPerMin
	if rpm <= 0 {
		rpm = 30
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "analyze")

	return &ClaudeAnalyzer{
		messages:     &client.Messages,
		reg:          reg,
		schema:       buildResponseSchema(reg),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		maxTextChars: cfg.MaxTextChars,
		limiter:      rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		retry:        retryCfg,
	}
}

// Analyze sends the document content to the model and returns its
// structured guess. The caller bounds the call with a context deadline.
func (a *ClaudeAnalyzer) Analyze(ctx context.Context, text string, tables []model.Table, documentName string) (*Analysis, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "analyzer: rate limit wait")
	}

	prompt := a.buildPrompt(text, tables, documentName)

	msg, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*sdk.Message, error) {
		return a.messages.New(ctx, sdk.MessageNewParams{
			Model:     sdk.Model(a.model),
			MaxTokens: a.maxTokens,
			System: []sdk.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: []sdk.MessageParam{
				sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
			},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: create message")
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}

	parsed, err := parseReply(reply.String(), a.schema)
	if err != nil {
		return nil, err
	}

	usage := Usage{
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	zap.L().Debug("analyzer: document analyzed",
		zap.String("document", documentName),
		zap.Int("fields", len(parsed.Fields)),
		zap.Float64("confidence", parsed.Confidence),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
	)

	return &Analysis{
		Fields:         parsed.Fields,
		SelfConfidence: clamp01(parsed.Confidence),
		Usage:          usage,
	}, nil
}

const systemPrompt = "You are a technical datasheet analyst for building materials. " +
	"You extract product attributes from insulation datasheets and answer with a single JSON object, nothing else."

func (a *ClaudeAnalyzer) buildPrompt(text string, tables []model.Table, documentName string) string {
	var b strings.Builder

	b.WriteString("Extract the following product attributes from the datasheet below.\n\n")
	b.WriteString("Attributes (use exactly these keys; omit attributes not present in the document):\n")
	for _, f := range a.reg.Fields {
		fmt.Fprintf(&b, "- %s: %s", f.Key, f.Label)
		if f.Unit != "" {
			fmt.Fprintf(&b, " [%s]", f.Unit)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAnswer with JSON: {\"fields\": {<key>: <value>, ...}, \"confidence\": <0..1>}\n")
	b.WriteString("Report numbers as numbers without units. The confidence is your own certainty in the full answer.\n")

	fmt.Fprintf(&b, "\n## Document: %s\n\n", documentName)
	b.WriteString(truncate(text, a.maxTextChars))

	if len(tables) > 0 {
		b.WriteString("\n\n## Extracted tables\n")
		for _, t := range tables {
			fmt.Fprintf(&b, "\nPage %d:\n", t.Page)
			b.WriteString(strings.Join(t.Headers, " | "))
			b.WriteString("\n")
			for _, row := range t.Rows {
				b.WriteString(strings.Join(row, " | "))
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

// truncate cuts s to at most max bytes, backing off to a rune boundary so
// the cut never splits a multi-byte character.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
