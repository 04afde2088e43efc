package app

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fundlink/fundlink-service/internal/domain"
	"github.com/google/uuid"
)

const (
	industryMatchScore = 40
	rangeMatchScore    = 30
	recentActiveScore  = 20
	maxJitterScore     = 10
	recentActiveWindow = 7 * 24 * time.Hour
	maxInvestorMatches = 5
)

// ListInvestors returns the investor directory.
func (s *Service) ListInvestors(ctx context.Context, user *domain.User) ([]domain.User, error) {
	if err := RequireRole(user, domain.RoleVendor, domain.RoleInvestor, domain.RoleAdmin); err != nil {
		return nil, err
	}
	investors, err := s.repo.ListUsersByRole(ctx, domain.RoleInvestor, 200)
	if err != nil {
		return nil, err
	}
	if investors == nil {
		investors = []domain.User{}
	}
	return investors, nil
}

// MatchInvestors scores investors against a campaign and returns the top five.
func (s *Service) MatchInvestors(ctx context.Context, user *domain.User, campaignID uuid.UUID) ([]domain.InvestorMatch, error) {
	campaign, err := s.ownedCampaign(ctx, user, campaignID, true)
	if err != nil {
		return nil, err
	}
	investors, err := s.repo.ListUsersByRole(ctx, domain.RoleInvestor, 500)
	if err != nil {
		return nil, err
	}

	now := s.now()
	matches := make([]domain.InvestorMatch, 0, len(investors))
	for _, investor := range investors {
		matches = append(matches, domain.InvestorMatch{
			Investor: investor,
			Score:    scoreInvestor(investor, campaign, now, s.jitter(maxJitterScore+1)),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Investor.Name < matches[j].Investor.Name
	})
	if len(matches) > maxInvestorMatches {
		matches = matches[:maxInvestorMatches]
	}
	return matches, nil
}

// scoreInvestor adds up the match signals for one investor. jitter is
// added as-is and should be in [0, 10].
func scoreInvestor(investor domain.User, campaign *domain.Campaign, now time.Time, jitter int) int {
	score := 0
	if industryMatches(investor.Industry, campaign.Category) {
		score += industryMatchScore
	}
	if need := campaign.GoalAmount - campaign.RaisedAmount; need > 0 {
		if low, high, ok := parseInvestmentRange(investor.InvestmentRange); ok && need >= low && need <= high {
			score += rangeMatchScore
		}
	}
	if investor.LastActiveAt != nil && now.Sub(*investor.LastActiveAt) < recentActiveWindow {
		score += recentActiveScore
	}
	return score + jitter
}

// industryMatches reports whether any of the investor's comma-separated
// industries appears in the campaign category.
func industryMatches(industries, category string) bool {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		return false
	}
	for _, industry := range strings.Split(industries, ",") {
		industry = strings.ToLower(strings.TrimSpace(industry))
		if industry != "" && strings.Contains(category, industry) {
			return true
		}
	}
	return false
}

// parseInvestmentRange reads "min-max", ignoring currency symbols and digit
// grouping, e.g. "₹50,000 - ₹5,00,000".
func parseInvestmentRange(raw string) (low int64, high int64, ok bool) {
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return 0, 0, false
	}
	low, okLow := parseAmount(parts[0])
	high, okHigh := parseAmount(parts[1])
	if !okLow || !okHigh || low > high {
		return 0, 0, false
	}
	return low, high, true
}

func parseAmount(raw string) (int64, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	value, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
