package domain

// BusinessProfile describes a vendor's business for the growth assistant.
type BusinessProfile struct {
	BusinessType string  `json:"business_type"`
	Products     string  `json:"products"`
	Customers    string  `json:"customers,omitempty"`
	Goal         string  `json:"goal,omitempty"`
	Budget       int64   `json:"budget"`
	HoursPerWeek float64 `json:"hours_per_week"`
}

// Recommendation is one actionable growth step.
type Recommendation struct {
	ID              int    `json:"id"`
	Action          string `json:"action"`
	Description     string `json:"description"`
	Tool            string `json:"tool"`
	AutomationLevel string `json:"automationLevel"`
	TimeNeeded      string `json:"timeNeeded"`
	Cost            string `json:"cost"`
	WhyItMatters    string `json:"whyItMatters"`
}

// SocialPost is a generated post with its hashtags.
type SocialPost struct {
	Post     string `json:"post"`
	Hashtags string `json:"hashtags"`
}

// Generated result sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// RecommendationsResult wraps recommendations with where they came from.
type RecommendationsResult struct {
	Recommendations []Recommendation `json:"recommendations"`
	Source          string           `json:"source"`
}

// SocialPostsResult wraps generated posts with where they came from.
type SocialPostsResult struct {
	Posts  []SocialPost `json:"posts"`
	Source string       `json:"source"`
}

// PitchResult is an improved pitch.
type PitchResult struct {
	Pitch  string `json:"pitch"`
	Source string `json:"source"`
}
