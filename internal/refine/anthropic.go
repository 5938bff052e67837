package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sponsorscope/scope/internal/analysis"
	"github.com/sponsorscope/scope/internal/config"
)

const refineSystemPrompt = `You are an analyst reviewing an automated sponsorship-fit score for a social media creator.
Given the score card and profile stats, respond with JSON only:
{"adjusted_overall": <number>, "advisory": "<2-3 sentence advisory for a brand considering this creator>"}
Adjust the overall score by at most 5 points in either direction. Do not restate the input.`

// messageAPI is the slice of the Anthropic SDK the refiner needs; tests
// substitute a fake.
type messageAPI interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicRefiner produces the advisory via the Anthropic Messages API,
// paced by a shared rate limiter.
type AnthropicRefiner struct {
	api     messageAPI
	model   string
	limiter *rate.Limiter
}

// NewAnthropicRefiner creates a refiner from config. The API key must be set.
func NewAnthropicRefiner(cfg config.RefineConfig) *AnthropicRefiner {
	client := sdk.NewClient(option.WithAPIKey(cfg.AnthropicKey))
	pace := cfg.PacePerSec
	if pace <= 0 {
		pace = 1
	}
	return &AnthropicRefiner{
		api:     &client.Messages,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(pace), 1),
	}
}

type refineReply struct {
	AdjustedOverall float64 `json:"adjusted_overall"`
	Advisory        string  `json:"advisory"`
}

// Refine sends the score card to the model and applies its bounded
// adjustment.
func (r *AnthropicRefiner) Refine(ctx context.Context, snap *analysis.ProfileSnapshot, card *analysis.ScoreCard) (*Refinement, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "refine: pacing wait")
	}

	prompt, err := buildPrompt(snap, card)
	if err != nil {
		return nil, err
	}

	msg, err := r.api.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(r.model),
		MaxTokens: 512,
		System:    []sdk.TextBlockParam{{Text: refineSystemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	})
	if err != nil {
		return nil, eris.Wrap(err, "refine: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	reply, err := parseReply(text.String())
	if err != nil {
		zap.L().Warn("refine: unparseable model reply", zap.Error(err))
		return nil, err
	}

	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	adjusted := clampAdjusted(card.Overall, reply.AdjustedOverall)
	if adjusted != reply.AdjustedOverall {
		zap.L().Debug("refine: adjustment clamped",
			zap.Float64("proposed", reply.AdjustedOverall),
			zap.Float64("clamped", adjusted))
	}

	return &Refinement{
		AdjustedOverall: adjusted,
		Advisory:        reply.Advisory,
		Model:           string(msg.Model),
		TokensUsed:      tokens,
	}, nil
}

func buildPrompt(snap *analysis.ProfileSnapshot, card *analysis.ScoreCard) (string, error) {
	payload := map[string]any{
		"handle":    snap.Handle,
		"platform":  snap.Platform,
		"followers": snap.Followers,
		"verified":  snap.Verified,
		"overall":   card.Overall,
		"pillars":   card.Pillars,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "refine: encode prompt")
	}
	return string(encoded), nil
}

// parseReply tolerates replies wrapped in prose or code fences by extracting
// the outermost JSON object.
func parseReply(text string) (refineReply, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return refineReply{}, eris.Errorf("refine: no JSON object in reply %q", truncate(text, 80))
	}
	var reply refineReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &reply); err != nil {
		return refineReply{}, eris.Wrap(err, "refine: decode reply")
	}
	if reply.Advisory == "" {
		return refineReply{}, eris.New("refine: reply missing advisory")
	}
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
