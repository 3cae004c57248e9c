// Package recommend scores credit cards against a user's spending profile
// and ranks them. Scores are composed from keyword-extracted card features
// and stored promotions; all sub-scores live on a 0-100 scale and are
// rounded to two decimals before weighting.
package recommend

import (
	"math"
	"time"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// Strategy selects how the total score is composed.
type Strategy string

const (
	// StrategyWeighted blends reward, feature, and promotion sub-scores.
	StrategyWeighted Strategy = "weighted"
	// StrategyROI swaps the reward sub-score for the annual-fee ROI score,
	// favouring cards whose rewards clearly outrun their fee.
	StrategyROI Strategy = "roi"
)

// Weights splits the total score between the sub-scores. They must sum to 1.
type Weights struct {
	Reward    float64
	Feature   float64
	Promotion float64
}

// DefaultWeights is the tuned production split.
func DefaultWeights() Weights {
	return Weights{Reward: 0.5, Feature: 0.3, Promotion: 0.2}
}

// Breakdown carries the total and each sub-score for one card.
type Breakdown struct {
	Total          float64 `json:"total"`
	RewardScore    float64 `json:"reward_score"`
	FeatureScore   float64 `json:"feature_score"`
	PromotionScore float64 `json:"promotion_score"`
	ROIScore       float64 `json:"roi_score"`
}

// Scorer computes card scores under a fixed strategy and weight split.
type Scorer struct {
	weights  Weights
	strategy Strategy
	now      func() time.Time
}

// NewScorer builds a scorer. Zero weights fall back to the default split and
// an empty strategy means weighted.
func NewScorer(weights Weights, strategy Strategy) *Scorer {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if strategy == "" {
		strategy = StrategyWeighted
	}
	return &Scorer{weights: weights, strategy: strategy, now: time.Now}
}

// Score computes the full breakdown for one card. Expired promotions are
// dropped before any sub-score sees them: a lapsed rate must not inflate the
// reward or ROI estimate any more than the promotion count.
func (s *Scorer) Score(card types.CreditCard, promos []types.Promotion, habits map[string]float64, monthlyAmount int, preferences []string) Breakdown {
	active := s.activePromotions(promos)
	b := Breakdown{
		RewardScore:    RewardScore(card, habits, monthlyAmount, active),
		FeatureScore:   FeatureScore(card, preferences),
		PromotionScore: PromotionScore(active),
		ROIScore:       AnnualFeeROI(card, habits, monthlyAmount, active),
	}

	primary := b.RewardScore
	if s.strategy == StrategyROI {
		primary = b.ROIScore
	}
	b.Total = round2(primary*s.weights.Reward +
		b.FeatureScore*s.weights.Feature +
		b.PromotionScore*s.weights.Promotion)
	return b
}

func (s *Scorer) activePromotions(promos []types.Promotion) []types.Promotion {
	now := s.now()
	active := make([]types.Promotion, 0, len(promos))
	for _, p := range promos {
		if p.EndDate != nil && p.EndDate.Before(now) {
			continue
		}
		active = append(active, p)
	}
	return active
}

// EstimatedMonthlyReward projects the monthly reward in currency units. Each
// spending category earns at the card's base rate unless a promotion for that
// exact category offers a better rate.
func EstimatedMonthlyReward(card types.CreditCard, habits map[string]float64, monthlyAmount int, promos []types.Promotion) float64 {
	total := 0.0
	for category, share := range habits {
		spend := float64(monthlyAmount) * share
		rate := card.BaseRewardRate
		for _, p := range promos {
			if p.Category == category && p.RewardRate > rate {
				rate = p.RewardRate
			}
		}
		total += spend * rate / 100
	}
	return total
}

// RewardScore normalises the projected monthly reward against an assumed
// best case of 5% on the whole budget.
func RewardScore(card types.CreditCard, habits map[string]float64, monthlyAmount int, promos []types.Promotion) float64 {
	maxPossible := float64(monthlyAmount) * 0.05
	if maxPossible <= 0 {
		return 0
	}
	reward := EstimatedMonthlyReward(card, habits, monthlyAmount, promos)
	return round2(math.Min(reward/maxPossible*100, 100))
}

// FeatureScore measures how many requested preference tags the card meets.
// With no preferences the score is a neutral 50.
func FeatureScore(card types.CreditCard, preferences []string) float64 {
	if len(preferences) == 0 {
		return 50.0
	}
	matched := 0
	for _, pref := range preferences {
		if preferenceMatches(card, pref) {
			matched++
		}
	}
	return round2(float64(matched) / float64(len(preferences)) * 100)
}

func preferenceMatches(card types.CreditCard, pref string) bool {
	switch pref {
	case "no_annual_fee":
		return card.FreeOfAnnualFee()
	case "airport_transfer":
		return card.Features.Bool("airport_transfer")
	case "lounge_access":
		return card.Features.Bool("lounge_access")
	case "cashback":
		return card.Features.String("reward_type") == "cashback"
	case "miles":
		return card.Features.String("reward_type") == "miles"
	default:
		return false
	}
}

// PromotionScore rewards breadth of active promotions, ten points apiece.
func PromotionScore(promos []types.Promotion) float64 {
	if len(promos) == 0 {
		return 0
	}
	return round2(math.Min(float64(len(promos))*10, 100))
}

// AnnualFeeROI scores the annual fee against the projected annual reward.
// Cards with no fee get a fixed 80: free is good, but a fee that pays for
// itself many times over can legitimately beat it. A fee the rewards never
// recoup scores zero.
func AnnualFeeROI(card types.CreditCard, habits map[string]float64, monthlyAmount int, promos []types.Promotion) float64 {
	if card.FreeOfAnnualFee() {
		return 80.0
	}
	annualSpend := float64(monthlyAmount) * 12
	if annualSpend <= 0 {
		return 0
	}
	annualReward := EstimatedMonthlyReward(card, habits, monthlyAmount, promos) * 12
	roiPct := (annualReward - float64(*card.AnnualFee)) / annualSpend * 100
	if roiPct <= 0 {
		return 0
	}
	return round2(math.Min(roiPct/5*100, 100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
