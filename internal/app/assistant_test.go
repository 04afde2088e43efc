package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func sampleProfile() domain.BusinessProfile {
	return domain.BusinessProfile{
		BusinessType: "Home Bakery",
		Products:     "Cakes",
		Customers:    "Neighbours",
		Goal:         "Double orders",
		Budget:       3000,
		HoursPerWeek: 2,
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		array      bool
		want       string
		wantErr    bool
	}{
		{name: "fenced array", completion: "```json\n[{\"a\":1}]\n```", array: true, want: `[{"a":1}]`},
		{name: "prose around array", completion: "Here you go: [1,2,3] hope it helps", array: true, want: "[1,2,3]"},
		{name: "object", completion: "```\n{\"pitch\":\"x\"}\n```", want: `{"pitch":"x"}`},
		{name: "no json", completion: "sorry, I cannot help", array: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.completion, tt.array)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGrowthRecommendationsFromModel(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n[" +
		`{"id":1,"action":"Post reels","description":"Short videos","tool":"Instagram","automationLevel":"🤝 AI-Assisted","timeNeeded":"1 hour/week","cost":"₹0","whyItMatters":"Reach"},` +
		`{"action":"List on Google","description":"Local search","tool":"Google","automationLevel":"👤 Manual","timeNeeded":"1 hour","cost":"₹0","whyItMatters":"Found locally"}` +
		"]\n```"}
	env := newTestEnv(func(d *Dependencies) { d.Generator = gen })

	result, err := env.svc.GrowthRecommendations(context.Background(), sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceModel, result.Source)
	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "Post reels", result.Recommendations[0].Action)
	assert.Equal(t, 2, result.Recommendations[1].ID)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Home Bakery")
	assert.Contains(t, gen.prompts[0], "₹3000")
}

func TestGrowthRecommendationsFallback(t *testing.T) {
	tests := []struct {
		name string
		gen  TextGenerator
	}{
		{name: "no generator"},
		{name: "generator error", gen: &fakeGenerator{err: errors.New("quota exceeded")}},
		{name: "garbage reply", gen: &fakeGenerator{reply: "I think you should try harder."}},
		{name: "empty array", gen: &fakeGenerator{reply: "[]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(func(d *Dependencies) { d.Generator = tt.gen })
			result, err := env.svc.GrowthRecommendations(context.Background(), sampleProfile())
			require.NoError(t, err)
			assert.Equal(t, domain.SourceFallback, result.Source)
			assert.Len(t, result.Recommendations, 5)
			assert.Equal(t, 1.0, testutil.ToFloat64(env.svc.metrics.AIFallbacks.WithLabelValues("recommendations")))
		})
	}
}

func TestFallbackRecommendationsFollowBudgetAndTime(t *testing.T) {
	limited := fallbackRecommendations(sampleProfile())
	assert.Equal(t, "Create Instagram Business Profile", limited[0].Action)
	assert.Equal(t, "₹0", limited[0].Cost)
	assert.Equal(t, "🤖 Automated", limited[0].AutomationLevel)
	assert.Equal(t, "Reach 5,000+ local customers searching for cakes", limited[0].WhyItMatters)
	assert.Equal(t, "WhatsApp Business", limited[2].Action)
	assert.Equal(t, "Share Testimonials", limited[4].Action)

	rich := sampleProfile()
	rich.Budget = 20000
	rich.HoursPerWeek = 8
	generous := fallbackRecommendations(rich)
	assert.Equal(t, "Run Instagram Ads", generous[0].Action)
	assert.Equal(t, "₹8000", generous[0].Cost)
	assert.Equal(t, "🤝 AI-Assisted", generous[0].AutomationLevel)
	assert.Equal(t, "Email Marketing", generous[2].Action)
	assert.Equal(t, "Create YouTube Videos", generous[4].Action)

	modest := sampleProfile()
	modest.Budget = 6000
	assert.Equal(t, "₹3600", fallbackRecommendations(modest)[0].Cost)

	for i, rec := range generous {
		assert.Equal(t, i+1, rec.ID)
	}
}

func TestSocialPostsFallbackUsesProducts(t *testing.T) {
	env := newTestEnv(func(d *Dependencies) { d.Generator = &fakeGenerator{reply: `[{"post":"  ","hashtags":"#x"}]`} })

	result, err := env.svc.SocialPosts(context.Background(), sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, result.Source)
	require.Len(t, result.Posts, 3)
	assert.True(t, strings.HasPrefix(result.Posts[0].Post, "✨ Fresh Cakes made with love!"))
	assert.Equal(t, "#SmallBusiness #HomeBakery #SupportLocal #MadeInIndia", result.Posts[0].Hashtags)
	assert.Contains(t, result.Posts[1].Post, "Amazing deals on cakes.")
}

func TestSocialPostsFromModel(t *testing.T) {
	env := newTestEnv(func(d *Dependencies) {
		d.Generator = &fakeGenerator{reply: `Sure! [{"post":"Fresh cakes daily","hashtags":"#Cakes"}]`}
	})
	result, err := env.svc.SocialPosts(context.Background(), sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceModel, result.Source)
	assert.Equal(t, []domain.SocialPost{{Post: "Fresh cakes daily", Hashtags: "#Cakes"}}, result.Posts)
}

func TestImprovePitch(t *testing.T) {
	env := newTestEnv(func(d *Dependencies) { d.Generator = &fakeGenerator{reply: "\"Handmade cakes, baked fresh for every celebration.\"\n"} })
	result, err := env.svc.ImprovePitch(context.Background(), "we make cakes")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceModel, result.Source)
	assert.Equal(t, "Handmade cakes, baked fresh for every celebration.", result.Pitch)

	failing := newTestEnv(func(d *Dependencies) { d.Generator = &fakeGenerator{err: errors.New("timeout")} })
	result, err = failing.svc.ImprovePitch(context.Background(), "we make cakes")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, result.Source)
	assert.Equal(t, "we make cakes", result.Pitch)

	_, err = failing.svc.ImprovePitch(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssistantValidatesProfile(t *testing.T) {
	env := newTestEnv()
	profile := sampleProfile()
	profile.Products = ""
	_, err := env.svc.GrowthRecommendations(context.Background(), profile)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
