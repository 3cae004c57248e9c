// Package textextract classifies promotion copy into structured attributes.
// Every detector is keyword-driven: correctness is defined by the keyword
// tables in keywords.go and the rule ordering, not by any model.
package textextract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// Extractor runs the keyword detectors. The zero value is not usable;
// construct one with New, optionally overriding tables per bank.
type Extractor struct {
	categories       []CategoryRule
	cashbackKeywords []string
	milesKeywords    []string
	flags            []FlagRule

	rewardLimitPattern *regexp.Regexp
	minSpendPattern    *regexp.Regexp
}

// Option overrides one of the extractor's keyword tables.
type Option func(*settings)

type settings struct {
	categories         []CategoryRule
	cashbackKeywords   []string
	milesKeywords      []string
	flags              []FlagRule
	rewardLimitKeyword []string
	minSpendKeyword    []string
}

// WithCategoryRules replaces the ordered category table.
func WithCategoryRules(rules []CategoryRule) Option {
	return func(s *settings) { s.categories = rules }
}

// WithRewardLimitKeywords replaces the reward-cap context keywords.
func WithRewardLimitKeywords(keywords []string) Option {
	return func(s *settings) { s.rewardLimitKeyword = keywords }
}

// WithMinSpendKeywords replaces the minimum-spend context keywords.
func WithMinSpendKeywords(keywords []string) Option {
	return func(s *settings) { s.minSpendKeyword = keywords }
}

// WithFlagRules replaces the feature flag battery.
func WithFlagRules(rules []FlagRule) Option {
	return func(s *settings) { s.flags = rules }
}

// New builds an extractor from the default tables plus any overrides.
func New(opts ...Option) *Extractor {
	s := settings{
		categories:         DefaultCategoryRules(),
		cashbackKeywords:   DefaultCashbackKeywords(),
		milesKeywords:      DefaultMilesKeywords(),
		flags:              DefaultFlagRules(),
		rewardLimitKeyword: DefaultRewardLimitKeywords(),
		minSpendKeyword:    DefaultMinSpendKeywords(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Extractor{
		categories:         s.categories,
		cashbackKeywords:   s.cashbackKeywords,
		milesKeywords:      s.milesKeywords,
		flags:              s.flags,
		rewardLimitPattern: compileAmountPattern(s.rewardLimitKeyword),
		minSpendPattern:    compileAmountPattern(s.minSpendKeyword),
	}
}

// Category returns the first category whose keyword set matches the text,
// or "others" when nothing matches. Rule order is the tie-break policy.
func (e *Extractor) Category(text string) string {
	folded := strings.ToLower(text)
	for _, rule := range e.categories {
		if containsAny(folded, rule.Keywords) {
			return rule.Tag
		}
	}
	return CategoryOthers
}

// RewardType classifies the reward style: cashback keywords take precedence
// over miles keywords, and everything else (including empty input) is points.
func (e *Extractor) RewardType(text string) string {
	folded := strings.ToLower(text)
	if containsAny(folded, e.cashbackKeywords) {
		return RewardCashback
	}
	if containsAny(folded, e.milesKeywords) {
		return RewardMiles
	}
	return RewardPoints
}

// RewardLimit extracts the reward-cap amount, or nil when no cap is stated.
func (e *Extractor) RewardLimit(text string) *int {
	return extractAmount(e.rewardLimitPattern, text)
}

// MinSpend extracts the minimum-spend amount, or nil when none is stated.
func (e *Extractor) MinSpend(text string) *int {
	return extractAmount(e.minSpendPattern, text)
}

// Amount extracts a number adjacent to one of the supplied context keywords.
// Thousands separators and an optional currency prefix are tolerated.
func (e *Extractor) Amount(text string, contextKeywords []string) *int {
	if len(contextKeywords) == 0 {
		return nil
	}
	return extractAmount(compileAmountPattern(contextKeywords), text)
}

// Features runs the flag battery plus reward-type detection over the text.
// Flags appear in the result only when true; empty input yields an empty map.
func (e *Extractor) Features(text string) types.FeatureMap {
	if strings.TrimSpace(text) == "" {
		return types.FeatureMap{}
	}
	folded := strings.ToLower(text)
	features := types.FeatureMap{}
	for _, rule := range e.flags {
		if containsAny(folded, rule.Keywords) {
			features[rule.Key] = true
		}
	}
	features["reward_type"] = e.RewardType(text)
	return features
}

// compileAmountPattern builds a pattern matching any of the keywords followed
// by a nearby number. Up to twelve non-digit runes may sit between keyword
// and number, which covers currency prefixes (NT$) and short connecting words.
func compileAmountPattern(keywords []string) *regexp.Regexp {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(kw)))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)\D{0,12}?(\d[\d,]*)`)
}

func extractAmount(pattern *regexp.Regexp, text string) *int {
	if pattern == nil || text == "" {
		return nil
	}
	match := pattern.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return nil
	}
	raw := strings.ReplaceAll(match[1], ",", "")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}

func containsAny(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
