package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stonebomdic/credit-card-crawler/internal/recommend"
	"github.com/stonebomdic/credit-card-crawler/internal/storage"
	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

type fakeCatalog struct {
	banks  []types.Bank
	cards  []types.CreditCard
	promos map[int64][]types.Promotion
}

func (f *fakeCatalog) ListBanks(context.Context) ([]types.Bank, error) {
	return f.banks, nil
}

func (f *fakeCatalog) ListCards(_ context.Context, params storage.ListParams) (storage.CardList, error) {
	items := make([]types.CreditCard, 0, len(f.cards))
	for _, c := range f.cards {
		if params.BankID > 0 && c.BankID != params.BankID {
			continue
		}
		items = append(items, c)
	}
	return storage.CardList{Items: items, Total: int64(len(items)), Page: 1, PageSize: 20, Pages: 1}, nil
}

func (f *fakeCatalog) GetCard(_ context.Context, id int64) (types.CreditCard, error) {
	for _, c := range f.cards {
		if c.ID == id {
			return c, nil
		}
	}
	return types.CreditCard{}, sql.ErrNoRows
}

func (f *fakeCatalog) PromotionsByCard(_ context.Context, cardID int64) ([]types.Promotion, error) {
	return f.promos[cardID], nil
}

func (f *fakeCatalog) ListPromotions(_ context.Context, params storage.ListParams) (storage.PromotionList, error) {
	var items []types.Promotion
	for _, promos := range f.promos {
		for _, p := range promos {
			if params.Search != "" && p.Category != params.Search {
				continue
			}
			items = append(items, p)
		}
	}
	return storage.PromotionList{Items: items, Total: int64(len(items)), Page: 1, PageSize: 20, Pages: 1}, nil
}

// EligibleCards lets the fake double as a recommendation catalog.
func (f *fakeCatalog) EligibleCards(_ context.Context, excludeAnnualFee bool) ([]types.CreditCard, error) {
	if !excludeAnnualFee {
		return f.cards, nil
	}
	var eligible []types.CreditCard
	for _, c := range f.cards {
		if c.FreeOfAnnualFee() {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}

func newTestServer() *Server {
	fee := 2000
	catalog := &fakeCatalog{
		banks: []types.Bank{{ID: 1, Name: "中國信託商業銀行", Code: "ctbc"}},
		cards: []types.CreditCard{
			{ID: 1, BankID: 1, Name: "高回饋卡", BaseRewardRate: 2.0},
			{ID: 2, BankID: 1, Name: "年費卡", BaseRewardRate: 3.0, AnnualFee: &fee},
		},
		promos: map[int64][]types.Promotion{
			1: {{ID: 1, CardID: 1, Title: "網購優惠", Category: "online_shopping", RewardRate: 5.0}},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := recommend.NewEngine(catalog, recommend.NewScorer(recommend.DefaultWeights(), recommend.StrategyWeighted), 5, logger)
	return NewServer(catalog, engine, logger)
}

func TestServerReadRoutes(t *testing.T) {
	server := newTestServer()

	assertRoute(t, server, http.MethodGet, "/health", http.StatusOK)
	assertRoute(t, server, http.MethodGet, "/api/banks", http.StatusOK)
	assertRoute(t, server, http.MethodGet, "/api/cards", http.StatusOK)
	assertRoute(t, server, http.MethodGet, "/api/cards/1", http.StatusOK)
	assertRoute(t, server, http.MethodGet, "/api/cards/1/promotions", http.StatusOK)
	assertRoute(t, server, http.MethodGet, "/api/cards/99", http.StatusNotFound)
	assertRoute(t, server, http.MethodGet, "/api/cards/not-a-number", http.StatusBadRequest)
	assertRoute(t, server, http.MethodGet, "/api/promotions", http.StatusOK)
	assertRoute(t, server, http.MethodDelete, "/api/cards", http.StatusMethodNotAllowed)
}

func TestServerGetCard(t *testing.T) {
	server := newTestServer()
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cards/1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var card types.CreditCard
	if err := json.Unmarshal(rr.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if card.Name != "高回饋卡" {
		t.Errorf("card name = %q, want 高回饋卡", card.Name)
	}
}

func TestServerRecommend(t *testing.T) {
	server := newTestServer()
	body := `{
		"spending_habits": {"online_shopping": 0.5, "dining": 0.3, "others": 0.2},
		"monthly_amount": 30000,
		"preferences": ["no_annual_fee"]
	}`
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recommend", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Recommendations []recommend.Recommendation `json:"recommendations"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp.Recommendations) != 1 {
		t.Fatalf("got %d recommendations, want 1 after the annual fee filter", len(resp.Recommendations))
	}
	top := resp.Recommendations[0]
	if top.Card.Name != "高回饋卡" || top.Rank != 1 {
		t.Errorf("top = %q rank %d, want 高回饋卡 rank 1", top.Card.Name, top.Rank)
	}
}

func TestServerRecommendRejectsBadPayloads(t *testing.T) {
	server := newTestServer()

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recommend", strings.NewReader("{not json")))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed json: status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recommend", strings.NewReader(`{"monthly_amount": 0}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid request: status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recommend", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d, want 405", rr.Code)
	}
}

func assertRoute(t *testing.T, h http.Handler, method, path string, wantStatus int) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (body=%s)", method, path, wantStatus, rr.Code, rr.Body.String())
	}
}
