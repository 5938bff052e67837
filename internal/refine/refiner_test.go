package refine

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/sponsorscope/scope/internal/analysis"
)

func testSnapshot() *analysis.ProfileSnapshot {
	return &analysis.ProfileSnapshot{Handle: "nike", Platform: "instagram", Followers: 500_000, Verified: true}
}

func testCard(overall float64) *analysis.ScoreCard {
	return &analysis.ScoreCard{
		Overall: overall,
		Pillars: []analysis.PillarScore{{Name: "audience", Score: overall}},
	}
}

func TestClampAdjusted(t *testing.T) {
	cases := []struct {
		name           string
		base, proposed float64
		want           float64
	}{
		{"within range", 70, 73, 73},
		{"over ceiling", 70, 80, 75},
		{"under floor", 70, 60, 65},
		{"clamped to 100", 98, 103, 100},
		{"clamped to 0", 2, -4, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clampAdjusted(tc.base, tc.proposed); got != tc.want {
				t.Errorf("clampAdjusted(%v, %v) = %v, want %v", tc.base, tc.proposed, got, tc.want)
			}
		})
	}
}

func TestStubRefiner_Bounded(t *testing.T) {
	r := NewStubRefiner()

	for _, overall := range []float64{10, 45, 55, 90} {
		ref, err := r.Refine(context.Background(), testSnapshot(), testCard(overall))
		if err != nil {
			t.Fatal(err)
		}
		if diff := ref.AdjustedOverall - overall; diff > MaxAdjustment || diff < -MaxAdjustment {
			t.Errorf("overall %v adjusted by %v, beyond bound", overall, diff)
		}
		if ref.TokensUsed <= 0 {
			t.Error("stub must report token usage for budget accounting")
		}
		if ref.Advisory == "" {
			t.Error("advisory missing")
		}
	}
}

func TestParseReply(t *testing.T) {
	reply, err := parseReply("Here you go:\n```json\n{\"adjusted_overall\": 72.5, \"advisory\": \"Solid fit.\"}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if reply.AdjustedOverall != 72.5 || reply.Advisory != "Solid fit." {
		t.Errorf("parsed %+v", reply)
	}
}

func TestParseReply_Invalid(t *testing.T) {
	for _, text := range []string{"", "no json here", "{\"adjusted_overall\": 1}"} {
		if _, err := parseReply(text); err == nil {
			t.Errorf("expected error for %q", text)
		}
	}
}

// fakeMessageAPI scripts the SDK boundary.
type fakeMessageAPI struct {
	text string
	err  error
}

func (f *fakeMessageAPI) New(context.Context, sdk.MessageNewParams, ...option.RequestOption) (*sdk.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &sdk.Message{
		Model:   "claude-haiku-4-5-20251001",
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: f.text}},
		Usage:   sdk.Usage{InputTokens: 200, OutputTokens: 90},
	}, nil
}

func newFakeRefiner(api messageAPI) *AnthropicRefiner {
	return &AnthropicRefiner{api: api, model: "claude-haiku-4-5-20251001", limiter: rate.NewLimiter(rate.Inf, 1)}
}

func TestAnthropicRefiner_AppliesAndClamps(t *testing.T) {
	r := newFakeRefiner(&fakeMessageAPI{text: `{"adjusted_overall": 90, "advisory": "Strong fit."}`})

	ref, err := r.Refine(context.Background(), testSnapshot(), testCard(70))
	if err != nil {
		t.Fatal(err)
	}
	if ref.AdjustedOverall != 75 {
		t.Errorf("adjusted = %v, want clamped 75", ref.AdjustedOverall)
	}
	if ref.TokensUsed != 290 {
		t.Errorf("tokens = %d, want 290", ref.TokensUsed)
	}
	if ref.Advisory != "Strong fit." {
		t.Errorf("advisory = %q", ref.Advisory)
	}
}

func TestAnthropicRefiner_APIError(t *testing.T) {
	r := newFakeRefiner(&fakeMessageAPI{err: errors.New("overloaded")})

	if _, err := r.Refine(context.Background(), testSnapshot(), testCard(70)); err == nil {
		t.Fatal("expected API error to propagate")
	}
}
