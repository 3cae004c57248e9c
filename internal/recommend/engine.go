package recommend

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// Catalog is the read surface the engine needs. With excludeAnnualFee set,
// EligibleCards must drop fee-carrying cards before scoring.
type Catalog interface {
	EligibleCards(ctx context.Context, excludeAnnualFee bool) ([]types.CreditCard, error)
	PromotionsByCard(ctx context.Context, cardID int64) ([]types.Promotion, error)
}

// Request describes one recommendation query. Spending shares need not sum
// to one; a share describes the slice of the monthly amount spent in that
// category.
type Request struct {
	SpendingHabits map[string]float64 `json:"spending_habits" validate:"required,min=1,dive,gte=0"`
	MonthlyAmount  int                `json:"monthly_amount" validate:"required,gt=0"`
	Preferences    []string           `json:"preferences"`
	Limit          int                `json:"limit" validate:"gte=0,lte=50"`
}

// Recommendation is one ranked card with its score breakdown.
type Recommendation struct {
	Rank                   int              `json:"rank"`
	Card                   types.CreditCard `json:"card"`
	Breakdown              Breakdown        `json:"breakdown"`
	EstimatedMonthlyReward float64          `json:"estimated_monthly_reward"`
	Reasons                []string         `json:"reasons"`
}

// Engine ranks cards for a request.
type Engine struct {
	catalog      Catalog
	scorer       *Scorer
	defaultLimit int
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewEngine builds an engine over catalog. A non-positive defaultLimit
// falls back to five.
func NewEngine(catalog Catalog, scorer *Scorer, defaultLimit int, logger *slog.Logger) *Engine {
	if scorer == nil {
		scorer = NewScorer(DefaultWeights(), StrategyWeighted)
	}
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog:      catalog,
		scorer:       scorer,
		defaultLimit: defaultLimit,
		validate:     validator.New(),
		logger:       logger,
	}
}

// Recommend scores all eligible cards and returns the top ranked ones.
// Cards violating a hard preference are excluded from the candidate set
// rather than scored low. Ordering is total score descending with the lower
// card id winning ties, so identical inputs always produce identical output.
func (e *Engine) Recommend(ctx context.Context, req Request) ([]Recommendation, error) {
	if err := e.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid recommend request: %w", err)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.defaultLimit
	}

	excludeFee := hasPreference(req.Preferences, "no_annual_fee")
	cards, err := e.catalog.EligibleCards(ctx, excludeFee)
	if err != nil {
		return nil, fmt.Errorf("load candidate cards: %w", err)
	}

	recs := make([]Recommendation, 0, len(cards))
	for _, card := range cards {
		promos, err := e.catalog.PromotionsByCard(ctx, card.ID)
		if err != nil {
			return nil, fmt.Errorf("load promotions of card %d: %w", card.ID, err)
		}
		breakdown := e.scorer.Score(card, promos, req.SpendingHabits, req.MonthlyAmount, req.Preferences)
		recs = append(recs, Recommendation{
			Card:                   card,
			Breakdown:              breakdown,
			EstimatedMonthlyReward: round2(EstimatedMonthlyReward(card, req.SpendingHabits, req.MonthlyAmount, promos)),
			Reasons:                buildReasons(card, promos, breakdown),
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Breakdown.Total != recs[j].Breakdown.Total {
			return recs[i].Breakdown.Total > recs[j].Breakdown.Total
		}
		return recs[i].Card.ID < recs[j].Card.ID
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	for i := range recs {
		recs[i].Rank = i + 1
	}

	e.logger.Debug("recommendation computed",
		"candidates", len(cards), "returned", len(recs), "monthly_amount", req.MonthlyAmount)
	return recs, nil
}

func hasPreference(preferences []string, tag string) bool {
	for _, p := range preferences {
		if p == tag {
			return true
		}
	}
	return false
}

func buildReasons(card types.CreditCard, promos []types.Promotion, b Breakdown) []string {
	var reasons []string
	if card.BaseRewardRate > 0 {
		reasons = append(reasons, fmt.Sprintf("基本回饋 %.1f%%", card.BaseRewardRate))
	}
	if card.FreeOfAnnualFee() {
		reasons = append(reasons, "免年費")
	}
	if n := len(promos); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d 檔進行中優惠", n))
	}
	if b.FeatureScore >= 100 {
		reasons = append(reasons, "完全符合偏好")
	}
	return reasons
}
