package types

import "time"

// Bank is an issuing institution, identified by a unique short code.
type Bank struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Website   string    `json:"website,omitempty"`
	LogoURL   string    `json:"logo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BankSeed declares the identity a crawler registers for its bank on first run.
type BankSeed struct {
	Name    string
	Code    string
	Website string
	LogoURL string
}

// FeatureMap holds extracted card features keyed by flag name. Values are
// booleans for flags and strings for tags such as reward_type.
type FeatureMap map[string]any

// Bool reports whether the named flag is present and true.
func (m FeatureMap) Bool(key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// String returns the named value if it is a string, or "".
func (m FeatureMap) String(key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// CreditCard is a product offered by a Bank.
type CreditCard struct {
	ID              int64      `json:"id"`
	BankID          int64      `json:"bank_id"`
	Name            string     `json:"name"`
	CardType        string     `json:"card_type,omitempty"`
	AnnualFee       *int       `json:"annual_fee,omitempty"`
	AnnualFeeWaiver string     `json:"annual_fee_waiver,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	ApplyURL        string     `json:"apply_url,omitempty"`
	MinIncome       *int       `json:"min_income,omitempty"`
	Features        FeatureMap `json:"features,omitempty"`
	BaseRewardRate  float64    `json:"base_reward_rate"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FreeOfAnnualFee reports whether the card is effectively free: an unknown
// fee is treated the same as a zero fee.
func (c CreditCard) FreeOfAnnualFee() bool {
	return c.AnnualFee == nil || *c.AnnualFee == 0
}

// CardUpsert carries the mutable card fields a crawler hands to the store.
type CardUpsert struct {
	Name            string
	CardType        string
	AnnualFee       *int
	AnnualFeeWaiver string
	ImageURL        string
	ApplyURL        string
	MinIncome       *int
	Features        FeatureMap
	BaseRewardRate  float64
}

// Promotion is a time-bounded offer attached to a CreditCard.
type Promotion struct {
	ID          int64      `json:"id"`
	CardID      int64      `json:"card_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	RewardType  string     `json:"reward_type,omitempty"`
	RewardRate  float64    `json:"reward_rate,omitempty"`
	RewardLimit *int       `json:"reward_limit,omitempty"`
	MinSpend    *int       `json:"min_spend,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	Terms       string     `json:"terms,omitempty"`
	SourceURL   string     `json:"source_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PromotionUpsert carries the mutable promotion fields a crawler hands to the store.
type PromotionUpsert struct {
	Title       string
	Description string
	Category    string
	RewardType  string
	RewardRate  float64
	RewardLimit *int
	MinSpend    *int
	StartDate   *time.Time
	EndDate     *time.Time
	Terms       string
	SourceURL   string
}

// RunSummary reports the outcome of one crawl run for one bank. It is
// produced by every run, including runs that found zero items, and is not
// persisted.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Bank       string        `json:"bank"`
	Cards      int           `json:"cards"`
	Promotions int           `json:"promotions"`
	Errors     []string      `json:"errors,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
