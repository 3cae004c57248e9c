// Package banks contains the site adapters. Each adapter knows one bank's
// page structure and nothing about persistence or scheduling; it parses
// pages into upserts and hands them to the crawl sink.
package banks

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/stonebomdic/credit-card-crawler/internal/crawler"
	"github.com/stonebomdic/credit-card-crawler/internal/fetcher"
	"github.com/stonebomdic/credit-card-crawler/internal/textextract"
	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// cardTiers maps tier keywords found in card names to the stored card type.
// Ordered from most to least premium so the first hit wins.
var cardTiers = []struct {
	keyword  string
	cardType string
}{
	{"無限卡", "infinite"},
	{"極緻卡", "world"},
	{"御璽卡", "signature"},
	{"鈦金卡", "titanium"},
	{"晶緻卡", "brilliant"},
	{"白金卡", "platinum"},
}

var (
	ratePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	datePattern = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)
)

// CTBCConfig points the adapter at the bank's card and promotion listings.
// Selectors are configuration so a site relayout is a config change, not a
// code change.
type CTBCConfig struct {
	CardsURL          string `yaml:"cards_url"`
	PromotionsURL     string `yaml:"promotions_url"`
	CardSelector      string `yaml:"card_selector"`
	CardNameSelector  string `yaml:"card_name_selector"`
	CardDescSelector  string `yaml:"card_desc_selector"`
	PromoSelector     string `yaml:"promo_selector"`
	PromoTitle        string `yaml:"promo_title_selector"`
	PromoDescSelector string `yaml:"promo_desc_selector"`
	Rendered          bool   `yaml:"rendered"`
}

func defaultCTBCConfig() CTBCConfig {
	return CTBCConfig{
		CardsURL:          "https://www.ctbcbank.com/twrbo/zh_tw/cc_index/cc_list.html",
		PromotionsURL:     "https://www.ctbcbank.com/twrbo/zh_tw/cc_index/cc_promotions.html",
		CardSelector:      ".card-item",
		CardNameSelector:  ".card-title",
		CardDescSelector:  ".card-desc",
		PromoSelector:     ".promo-item",
		PromoTitle:        ".promo-title",
		PromoDescSelector: ".promo-desc",
	}
}

// CTBC crawls CTBC Bank's credit card listings.
type CTBC struct {
	fetch   *fetcher.Client
	extract *textextract.Extractor
	cfg     CTBCConfig
	logger  *slog.Logger
}

// NewCTBC builds the adapter. Zero-value config fields fall back to the
// built-in selectors and URLs.
func NewCTBC(fetch *fetcher.Client, extract *textextract.Extractor, cfg CTBCConfig, logger *slog.Logger) *CTBC {
	defaults := defaultCTBCConfig()
	if cfg.CardsURL == "" {
		cfg.CardsURL = defaults.CardsURL
	}
	if cfg.PromotionsURL == "" {
		cfg.PromotionsURL = defaults.PromotionsURL
	}
	if cfg.CardSelector == "" {
		cfg.CardSelector = defaults.CardSelector
	}
	if cfg.CardNameSelector == "" {
		cfg.CardNameSelector = defaults.CardNameSelector
	}
	if cfg.CardDescSelector == "" {
		cfg.CardDescSelector = defaults.CardDescSelector
	}
	if cfg.PromoSelector == "" {
		cfg.PromoSelector = defaults.PromoSelector
	}
	if cfg.PromoTitle == "" {
		cfg.PromoTitle = defaults.PromoTitle
	}
	if cfg.PromoDescSelector == "" {
		cfg.PromoDescSelector = defaults.PromoDescSelector
	}
	if logger == nil {
		logger = slog.Default()
	}
	if extract == nil {
		extract = textextract.New()
	}
	return &CTBC{fetch: fetch, extract: extract, cfg: cfg, logger: logger.With("adapter", "ctbc")}
}

// Seed declares the bank identity.
func (c *CTBC) Seed() types.BankSeed {
	return types.BankSeed{
		Name:    "中國信託商業銀行",
		Code:    "ctbc",
		Website: "https://www.ctbcbank.com",
	}
}

// FetchCards pulls the card listing page and persists every parseable card.
// A card block missing its name is skipped and reported, never fatal. An
// unreachable listing page likewise only marks this source unavailable for
// the run; errors returned from here are reserved for persistence failures.
func (c *CTBC) FetchCards(ctx context.Context, sink crawler.Sink) ([]types.CreditCard, error) {
	doc, err := c.fetchPage(ctx, c.cfg.CardsURL)
	if err != nil {
		sink.ReportError("fetch_cards", err)
		return nil, nil
	}

	var cards []types.CreditCard
	doc.Find(c.cfg.CardSelector).Each(func(i int, sel *goquery.Selection) {
		upsert, err := c.parseCard(sel)
		if err != nil {
			sink.ReportError("parse_card", fmt.Errorf("block %d: %w", i, err))
			return
		}
		card, err := sink.SaveCard(ctx, upsert)
		if err != nil {
			sink.ReportError("save_card", fmt.Errorf("%s: %w", upsert.Name, err))
			return
		}
		cards = append(cards, card)
	})
	c.logger.Info("card listing parsed", "cards", len(cards))
	return cards, nil
}

// FetchPromotions pulls the promotion listing. Promotions on the listing are
// bank-wide, so they attach to the bank's first card; with no cards yet the
// run records the condition and moves on.
func (c *CTBC) FetchPromotions(ctx context.Context, sink crawler.Sink) ([]types.Promotion, error) {
	doc, err := c.fetchPage(ctx, c.cfg.PromotionsURL)
	if err != nil {
		sink.ReportError("fetch_promotions", err)
		return nil, nil
	}

	host, err := sink.FirstCard(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve host card: %w", err)
	}
	if host == nil {
		sink.ReportError("attach_promotion", fmt.Errorf("bank %s has no cards to attach promotions to", c.Seed().Code))
		return nil, nil
	}

	var promos []types.Promotion
	doc.Find(c.cfg.PromoSelector).Each(func(i int, sel *goquery.Selection) {
		upsert, err := c.parsePromotion(sel)
		if err != nil {
			sink.ReportError("parse_promotion", fmt.Errorf("block %d: %w", i, err))
			return
		}
		promo, err := sink.SavePromotion(ctx, *host, upsert)
		if err != nil {
			sink.ReportError("save_promotion", fmt.Errorf("%s: %w", upsert.Title, err))
			return
		}
		promos = append(promos, promo)
	})
	c.logger.Info("promotion listing parsed", "promotions", len(promos))
	return promos, nil
}

func (c *CTBC) fetchPage(ctx context.Context, url string) (*goquery.Document, error) {
	if c.cfg.Rendered {
		return c.fetch.FetchRendered(ctx, url)
	}
	return c.fetch.Fetch(ctx, url)
}

func (c *CTBC) parseCard(sel *goquery.Selection) (types.CardUpsert, error) {
	name := cleanText(sel.Find(c.cfg.CardNameSelector).First().Text())
	if name == "" {
		return types.CardUpsert{}, fmt.Errorf("missing card name")
	}
	desc := cleanText(sel.Find(c.cfg.CardDescSelector).Text())

	upsert := types.CardUpsert{
		Name:           name,
		CardType:       tierOf(name),
		Features:       c.extract.Features(desc),
		BaseRewardRate: firstRate(desc),
	}
	if img, ok := sel.Find("img").First().Attr("src"); ok {
		upsert.ImageURL = strings.TrimSpace(img)
	}
	if href, ok := sel.Find("a").First().Attr("href"); ok {
		upsert.ApplyURL = strings.TrimSpace(href)
	}
	return upsert, nil
}

func (c *CTBC) parsePromotion(sel *goquery.Selection) (types.PromotionUpsert, error) {
	title := cleanText(sel.Find(c.cfg.PromoTitle).First().Text())
	if title == "" {
		return types.PromotionUpsert{}, fmt.Errorf("missing promotion title")
	}
	desc := cleanText(sel.Find(c.cfg.PromoDescSelector).Text())
	combined := title + " " + desc

	upsert := types.PromotionUpsert{
		Title:       title,
		Description: desc,
		Category:    c.extract.Category(combined),
		RewardType:  c.extract.RewardType(combined),
		RewardRate:  firstRate(combined),
		RewardLimit: c.extract.RewardLimit(combined),
		MinSpend:    c.extract.MinSpend(combined),
	}
	start, end := dateRange(combined)
	upsert.StartDate = start
	upsert.EndDate = end
	if href, ok := sel.Find("a").First().Attr("href"); ok {
		upsert.SourceURL = strings.TrimSpace(href)
	}
	return upsert, nil
}

func tierOf(name string) string {
	for _, tier := range cardTiers {
		if strings.Contains(name, tier.keyword) {
			return tier.cardType
		}
	}
	return ""
}

// firstRate pulls the first percentage out of promotional copy, eg.
// "國內消費最高3.3%回饋" yields 3.3.
func firstRate(text string) float64 {
	m := ratePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	rate, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return rate
}

// dateRange extracts up to two dates from text such as
// "活動期間 2025/01/01 ~ 2025/06/30". One date is taken as the end date.
func dateRange(text string) (*time.Time, *time.Time) {
	matches := datePattern.FindAllStringSubmatch(text, 2)
	dates := make([]*time.Time, 0, 2)
	for _, m := range matches {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		dates = append(dates, &d)
	}
	switch len(dates) {
	case 0:
		return nil, nil
	case 1:
		return nil, dates[0]
	default:
		return dates[0], dates[1]
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
