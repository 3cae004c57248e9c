package banks

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stonebomdic/credit-card-crawler/internal/fetcher"
	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

const cardListingHTML = `<!DOCTYPE html>
<html><body>
<div class="card-item">
  <img src="/img/lihpao.png">
  <a href="/apply/lihpao">申請</a>
  <h3 class="card-title">中信LINE Pay御璽卡</h3>
  <p class="card-desc">國內消費最高3%回饋，行動支付加碼，海外消費回饋</p>
</div>
<div class="card-item">
  <h3 class="card-title">中信ANA無限卡</h3>
  <p class="card-desc">哩程累積，機場接送與機場貴賓室服務</p>
</div>
<div class="card-item">
  <p class="card-desc">缺少名稱的卡片</p>
</div>
</body></html>`

const promoListingHTML = `<!DOCTYPE html>
<html><body>
<div class="promo-item">
  <h3 class="promo-title">影音串流平台 10% 刷卡金回饋</h3>
  <p class="promo-desc">Netflix、Spotify 消費享回饋，每月上限 NT$300 元，活動期間 2025/01/01 ~ 2025/06/30</p>
  <a href="/promo/streaming">詳情</a>
</div>
<div class="promo-item">
  <p class="promo-desc">沒有標題的活動</p>
</div>
</body></html>`

type recordingSink struct {
	bank    types.Bank
	cards   []types.CardUpsert
	promos  []types.PromotionUpsert
	skips   []string
	nextID  int64
	hasCard bool
}

func (r *recordingSink) Bank() types.Bank { return r.bank }

func (r *recordingSink) SaveCard(_ context.Context, data types.CardUpsert) (types.CreditCard, error) {
	r.cards = append(r.cards, data)
	r.nextID++
	r.hasCard = true
	return types.CreditCard{ID: r.nextID, BankID: r.bank.ID, Name: data.Name}, nil
}

func (r *recordingSink) SavePromotion(_ context.Context, card types.CreditCard, data types.PromotionUpsert) (types.Promotion, error) {
	r.promos = append(r.promos, data)
	r.nextID++
	return types.Promotion{ID: r.nextID, CardID: card.ID, Title: data.Title}, nil
}

func (r *recordingSink) FirstCard(context.Context) (*types.CreditCard, error) {
	if !r.hasCard {
		return nil, nil
	}
	return &types.CreditCard{ID: 1, BankID: r.bank.ID, Name: "中信LINE Pay御璽卡"}, nil
}

func (r *recordingSink) ReportError(stage string, err error) {
	r.skips = append(r.skips, stage+": "+err.Error())
}

func newTestAdapter(t *testing.T, cardsURL, promosURL string) *CTBC {
	t.Helper()
	client, err := fetcher.New(fetcher.Options{
		Politeness:   fetcher.FixedPoliteness{Agent: "test-agent"},
		RetryBackoff: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("fetcher.New() error = %v", err)
	}
	return NewCTBC(client, nil, CTBCConfig{
		CardsURL:      cardsURL,
		PromotionsURL: promosURL,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCTBCFetchCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, cardListingHTML)
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL, srv.URL)
	sink := &recordingSink{bank: types.Bank{ID: 1, Code: "ctbc"}}

	cards, err := adapter.FetchCards(context.Background(), sink)
	if err != nil {
		t.Fatalf("FetchCards() error = %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("got %d cards, want 2", len(cards))
	}
	if len(sink.skips) != 1 {
		t.Fatalf("got %d parse skips, want 1 for the nameless block", len(sink.skips))
	}

	first := sink.cards[0]
	if first.Name != "中信LINE Pay御璽卡" {
		t.Errorf("first card name = %q", first.Name)
	}
	if first.CardType != "signature" {
		t.Errorf("first card type = %q, want signature", first.CardType)
	}
	if first.BaseRewardRate != 3.0 {
		t.Errorf("first card base rate = %v, want 3", first.BaseRewardRate)
	}
	if first.ImageURL != "/img/lihpao.png" {
		t.Errorf("first card image = %q", first.ImageURL)
	}
	if !first.Features.Bool("mobile_pay") {
		t.Error("first card should carry the mobile_pay feature")
	}

	second := sink.cards[1]
	if second.CardType != "infinite" {
		t.Errorf("second card type = %q, want infinite", second.CardType)
	}
	if !second.Features.Bool("lounge_access") || !second.Features.Bool("airport_transfer") {
		t.Errorf("second card features = %v, want lounge and transfer flags", second.Features)
	}
}

func TestCTBCFetchPromotions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, promoListingHTML)
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL, srv.URL)
	sink := &recordingSink{bank: types.Bank{ID: 1, Code: "ctbc"}, hasCard: true}

	promos, err := adapter.FetchPromotions(context.Background(), sink)
	if err != nil {
		t.Fatalf("FetchPromotions() error = %v", err)
	}
	if len(promos) != 1 {
		t.Fatalf("got %d promotions, want 1", len(promos))
	}
	if len(sink.skips) != 1 {
		t.Fatalf("got %d parse skips, want 1 for the titleless block", len(sink.skips))
	}

	promo := sink.promos[0]
	if promo.Category != "streaming" {
		t.Errorf("category = %q, want streaming", promo.Category)
	}
	if promo.RewardType != "cashback" {
		t.Errorf("reward type = %q, want cashback", promo.RewardType)
	}
	if promo.RewardRate != 10.0 {
		t.Errorf("reward rate = %v, want 10", promo.RewardRate)
	}
	if promo.RewardLimit == nil || *promo.RewardLimit != 300 {
		t.Errorf("reward limit = %v, want 300", promo.RewardLimit)
	}
	if promo.StartDate == nil || promo.EndDate == nil {
		t.Fatalf("date range missing: start=%v end=%v", promo.StartDate, promo.EndDate)
	}
	if got := promo.StartDate.Format("2006-01-02"); got != "2025-01-01" {
		t.Errorf("start date = %s, want 2025-01-01", got)
	}
	if got := promo.EndDate.Format("2006-01-02"); got != "2025-06-30" {
		t.Errorf("end date = %s, want 2025-06-30", got)
	}
}

func TestCTBCCardsPageFailureDoesNotAbortRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cards", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/promos", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, promoListingHTML)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL+"/cards", srv.URL+"/promos")
	sink := &recordingSink{bank: types.Bank{ID: 1, Code: "ctbc"}, hasCard: true}

	cards, err := adapter.FetchCards(context.Background(), sink)
	if err != nil {
		t.Fatalf("FetchCards() error = %v, want nil for an unreachable listing", err)
	}
	if len(cards) != 0 {
		t.Fatalf("got %d cards from a failing page, want 0", len(cards))
	}
	if len(sink.skips) != 1 || !strings.HasPrefix(sink.skips[0], "fetch_cards:") {
		t.Fatalf("skips = %v, want one fetch_cards entry", sink.skips)
	}

	// The promotion pass must still run and succeed.
	promos, err := adapter.FetchPromotions(context.Background(), sink)
	if err != nil {
		t.Fatalf("FetchPromotions() error = %v", err)
	}
	if len(promos) != 1 {
		t.Fatalf("got %d promotions after the cards failure, want 1", len(promos))
	}
}

func TestCTBCFetchPromotionsWithoutCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, promoListingHTML)
	}))
	defer srv.Close()

	adapter := newTestAdapter(t, srv.URL, srv.URL)
	sink := &recordingSink{bank: types.Bank{ID: 1, Code: "ctbc"}}

	promos, err := adapter.FetchPromotions(context.Background(), sink)
	if err != nil {
		t.Fatalf("FetchPromotions() error = %v", err)
	}
	if len(promos) != 0 {
		t.Fatalf("got %d promotions, want 0 with no cards to attach to", len(promos))
	}
	if len(sink.skips) != 1 {
		t.Fatalf("skips = %v, want the attach failure recorded", sink.skips)
	}
}
