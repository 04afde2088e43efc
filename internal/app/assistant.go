package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fundlink/fundlink-service/internal/domain"
)

const (
	budgetLimitedBelow  = 5000
	timeLimitedBelow    = 3
	maxRecommendations  = 5
	maxPitchInputLength = 4000
)

var (
	codeFencePattern  = regexp.MustCompile("```(?:json)?\\s*")
	jsonArrayPattern  = regexp.MustCompile(`\[[\s\S]*\]`)
	jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

	errNoGenerator = errors.New("text generator is not configured")
)

// extractJSON strips markdown fences from a completion and returns the
// outermost JSON array (or object when array is false).
func extractJSON(completion string, array bool) (string, error) {
	cleaned := strings.TrimSpace(codeFencePattern.ReplaceAllString(completion, ""))
	pattern := jsonObjectPattern
	if array {
		pattern = jsonArrayPattern
	}
	if match := pattern.FindString(cleaned); match != "" {
		return match, nil
	}
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}
	return "", fmt.Errorf("no JSON found in completion")
}

func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	if s.generator == nil {
		return "", errNoGenerator
	}
	return s.generator.Generate(ctx, prompt)
}

func validateProfile(profile domain.BusinessProfile) (domain.BusinessProfile, error) {
	profile.BusinessType = sanitizeText(profile.BusinessType)
	profile.Products = sanitizeText(profile.Products)
	profile.Customers = sanitizeText(profile.Customers)
	profile.Goal = sanitizeText(profile.Goal)
	if profile.BusinessType == "" {
		return profile, invalidInput("business_type is required")
	}
	if profile.Products == "" {
		return profile, invalidInput("products is required")
	}
	if profile.Budget < 0 || profile.HoursPerWeek < 0 {
		return profile, invalidInput("budget and hours_per_week cannot be negative")
	}
	return profile, nil
}

// GrowthRecommendations asks the model for five growth steps and falls back
// to a rule-based list when the model fails or returns junk.
func (s *Service) GrowthRecommendations(ctx context.Context, profile domain.BusinessProfile) (*domain.RecommendationsResult, error) {
	profile, err := validateProfile(profile)
	if err != nil {
		return nil, err
	}

	recommendations, err := s.modelRecommendations(ctx, profile)
	if err != nil {
		s.logger.Warn("using fallback recommendations", "error", err)
		s.metrics.AIFallbacks.WithLabelValues("recommendations").Inc()
		return &domain.RecommendationsResult{Recommendations: fallbackRecommendations(profile), Source: domain.SourceFallback}, nil
	}
	return &domain.RecommendationsResult{Recommendations: recommendations, Source: domain.SourceModel}, nil
}

func (s *Service) modelRecommendations(ctx context.Context, profile domain.BusinessProfile) ([]domain.Recommendation, error) {
	prompt := fmt.Sprintf(`You advise small businesses in India on growth.

Budget: ₹%d per month
Time available: %.1f hours per week
Business type: %s
Products: %s
Current customers: %s
Goal: %s

Return exactly %d recommendations as a JSON array. Every item has the fields
id (number), action, description, tool, automationLevel (one of "🤖 Automated",
"🤝 AI-Assisted", "👤 Manual"), timeNeeded (like "2 hours/week"), cost (like "₹500")
and whyItMatters.

Rules: with a budget under ₹%d suggest free tools only. With under %d hours per
week suggest automated options. Reply with the JSON array only.`,
		profile.Budget, profile.HoursPerWeek, profile.BusinessType, profile.Products,
		orDefault(profile.Customers, "not specified"), orDefault(profile.Goal, "grow sales"),
		maxRecommendations, budgetLimitedBelow, timeLimitedBelow,
	)

	completion, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(completion, true)
	if err != nil {
		return nil, err
	}
	var recommendations []domain.Recommendation
	if err := json.Unmarshal([]byte(raw), &recommendations); err != nil {
		return nil, fmt.Errorf("decode recommendations: %w", err)
	}
	if len(recommendations) == 0 {
		return nil, errors.New("model returned no recommendations")
	}
	if len(recommendations) > maxRecommendations {
		recommendations = recommendations[:maxRecommendations]
	}
	for i := range recommendations {
		if recommendations[i].ID == 0 {
			recommendations[i].ID = i + 1
		}
	}
	return recommendations, nil
}

// SocialPosts asks the model for three posts about the vendor's products.
func (s *Service) SocialPosts(ctx context.Context, profile domain.BusinessProfile) (*domain.SocialPostsResult, error) {
	profile, err := validateProfile(profile)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Write 3 Instagram posts for a %s business in India that sells "%s".
Each post is 80 to 120 words and uses emojis and hashtags.
Reply with a JSON array only, shaped like [{"post":"text","hashtags":"#Tag1 #Tag2"}].`,
		profile.BusinessType, profile.Products)

	posts, err := s.modelPosts(ctx, prompt)
	if err != nil {
		s.logger.Warn("using fallback social posts", "error", err)
		s.metrics.AIFallbacks.WithLabelValues("posts").Inc()
		return &domain.SocialPostsResult{Posts: fallbackPosts(profile), Source: domain.SourceFallback}, nil
	}
	return &domain.SocialPostsResult{Posts: posts, Source: domain.SourceModel}, nil
}

func (s *Service) modelPosts(ctx context.Context, prompt string) ([]domain.SocialPost, error) {
	completion, err := s.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	raw, err := extractJSON(completion, true)
	if err != nil {
		return nil, err
	}
	var posts []domain.SocialPost
	if err := json.Unmarshal([]byte(raw), &posts); err != nil {
		return nil, fmt.Errorf("decode posts: %w", err)
	}
	kept := posts[:0]
	for _, post := range posts {
		if strings.TrimSpace(post.Post) != "" {
			kept = append(kept, post)
		}
	}
	if len(kept) == 0 {
		return nil, errors.New("model returned no posts")
	}
	return kept, nil
}

// ImprovePitch rewrites a campaign pitch. On failure the pitch comes back unchanged.
func (s *Service) ImprovePitch(ctx context.Context, pitch string) (*domain.PitchResult, error) {
	pitch = sanitizeText(pitch)
	if pitch == "" {
		return nil, invalidInput("pitch is required")
	}
	if len(pitch) > maxPitchInputLength {
		return nil, invalidInput("pitch must be at most %d characters", maxPitchInputLength)
	}

	prompt := fmt.Sprintf(`Improve this pitch for a small Indian business. Keep it compelling and under 150 words.

%q

Reply with the improved pitch text only.`, pitch)

	completion, err := s.generate(ctx, prompt)
	improved := strings.Trim(strings.TrimSpace(completion), `"`)
	if err != nil || improved == "" {
		s.logger.Warn("returning original pitch", "error", err)
		s.metrics.AIFallbacks.WithLabelValues("pitch").Inc()
		return &domain.PitchResult{Pitch: pitch, Source: domain.SourceFallback}, nil
	}
	return &domain.PitchResult{Pitch: improved, Source: domain.SourceModel}, nil
}

func fallbackRecommendations(profile domain.BusinessProfile) []domain.Recommendation {
	budgetLimited := profile.Budget < budgetLimitedBelow
	timeLimited := profile.HoursPerWeek < timeLimitedBelow
	products := strings.ToLower(profile.Products)

	first := domain.Recommendation{
		ID:              1,
		Action:          "Run Instagram Ads",
		Description:     fmt.Sprintf("Visual platform perfect for showcasing %s", profile.Products),
		Tool:            "Meta Ads",
		AutomationLevel: "🤝 AI-Assisted",
		TimeNeeded:      "2 hours/week",
		Cost:            fmt.Sprintf("₹%d", minInt64(profile.Budget*6/10, 8000)),
		WhyItMatters:    fmt.Sprintf("Reach 5,000+ local customers searching for %s", products),
	}
	if budgetLimited {
		first.Action = "Create Instagram Business Profile"
		first.Tool = "Instagram (Free)"
		first.Cost = "₹0"
	}
	if timeLimited {
		first.AutomationLevel = "🤖 Automated"
		first.TimeNeeded = "1 hour/week"
	}

	third := domain.Recommendation{
		ID:              3,
		Action:          "WhatsApp Business",
		Description:     "Direct customer communication",
		Tool:            "WhatsApp Business",
		AutomationLevel: "🤝 AI-Assisted",
		TimeNeeded:      "1.5 hours/week",
		Cost:            "₹0",
		WhyItMatters:    "Convert 30% more inquiries into sales",
	}
	if profile.Budget > budgetLimitedBelow {
		third.Action = "Email Marketing"
		third.Tool = "Mailchimp"
		third.Cost = "₹800"
	}

	fifth := domain.Recommendation{
		ID:              5,
		Action:          "Share Testimonials",
		Description:     "Build trust through content",
		Tool:            "Instagram Stories",
		AutomationLevel: "🤝 AI-Assisted",
		TimeNeeded:      "45 min/week",
		Cost:            "₹0",
		WhyItMatters:    "Increase conversion by 80%",
	}
	if profile.HoursPerWeek > 5 {
		fifth.Action = "Create YouTube Videos"
		fifth.Tool = "YouTube"
		fifth.AutomationLevel = "👤 Manual"
		fifth.TimeNeeded = "3 hours/week"
	}

	return []domain.Recommendation{
		first,
		{
			ID:              2,
			Action:          "Use Canva for Design",
			Description:     "Create professional posts without design skills",
			Tool:            "Canva (Free)",
			AutomationLevel: "🤖 Automated",
			TimeNeeded:      "30 min/week",
			Cost:            "₹0",
			WhyItMatters:    "Professional visuals increase engagement by 300%",
		},
		third,
		{
			ID:              4,
			Action:          "Google My Business Listing",
			Description:     "Appear in local Google searches",
			Tool:            "Google My Business (Free)",
			AutomationLevel: "👤 Manual",
			TimeNeeded:      "1 hour setup + 15 min/week",
			Cost:            "₹0",
			WhyItMatters:    "70% of customers search locally before buying",
		},
		fifth,
	}
}

func fallbackPosts(profile domain.BusinessProfile) []domain.SocialPost {
	products := strings.ToLower(profile.Products)
	businessTag := strings.Join(strings.Fields(profile.BusinessType), "")
	return []domain.SocialPost{
		{
			Post:     fmt.Sprintf("✨ Fresh %s made with love! 🌟\n\nQuality you can trust, delivered to your doorstep. 🚚\n\nDM us to order! 📱", profile.Products),
			Hashtags: fmt.Sprintf("#SmallBusiness #%s #SupportLocal #MadeInIndia", businessTag),
		},
		{
			Post:     fmt.Sprintf("🎉 Special offer this week! 🎁\n\nAmazing deals on %s.\n\nTag someone! 👇", products),
			Hashtags: "#WeekendSpecial #Offers #ShopLocal #SupportSmallBusiness",
		},
		{
			Post:     fmt.Sprintf("❤️ Thank you for your support! 🙏\n\nEvery %s is made with passion. ✨", products),
			Hashtags: "#CustomerLove #ThankYou #SupportLocal #Community",
		},
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
