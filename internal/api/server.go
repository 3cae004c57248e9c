// Package api exposes the read side over HTTP: banks, cards, promotions,
// and the recommendation endpoint. The crawler writes through its own path;
// nothing here mutates data.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stonebomdic/credit-card-crawler/internal/recommend"
	"github.com/stonebomdic/credit-card-crawler/internal/storage"
	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// Catalog is the read surface the server needs from storage.
type Catalog interface {
	ListBanks(ctx context.Context) ([]types.Bank, error)
	ListCards(ctx context.Context, params storage.ListParams) (storage.CardList, error)
	GetCard(ctx context.Context, id int64) (types.CreditCard, error)
	PromotionsByCard(ctx context.Context, cardID int64) ([]types.Promotion, error)
	ListPromotions(ctx context.Context, params storage.ListParams) (storage.PromotionList, error)
}

// Recommender ranks cards for a request.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) ([]recommend.Recommendation, error)
}

// Server routes the HTTP API.
type Server struct {
	catalog   Catalog
	recommend Recommender
	logger    *slog.Logger
	mux       *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux.
func NewServer(catalog Catalog, recommender Recommender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		catalog:   catalog,
		recommend: recommender,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/banks", s.handleBanks)
	s.mux.HandleFunc("/api/cards", s.handleCards)
	s.mux.HandleFunc("/api/cards/", s.handleCardByID)
	s.mux.HandleFunc("/api/promotions", s.handlePromotions)
	s.mux.HandleFunc("/api/recommend", s.handleRecommend)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleBanks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	banks, err := s.catalog.ListBanks(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if banks == nil {
		banks = []types.Bank{}
	}
	writeJSON(w, http.StatusOK, banks)
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	params := listParamsFromQuery(r)
	if v := r.URL.Query().Get("bank_id"); v != "" {
		bankID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid bank_id", http.StatusBadRequest)
			return
		}
		params.BankID = bankID
	}

	cards, err := s.catalog.ListCards(r.Context(), params)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleCardByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cards/"), "/")
	if trimmed == "" {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(trimmed, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "invalid card id", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		s.getCard(w, r, id)
	case len(parts) == 2 && parts[1] == "promotions":
		s.getCardPromotions(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request, id int64) {
	card, err := s.catalog.GetCard(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) getCardPromotions(w http.ResponseWriter, r *http.Request, id int64) {
	if _, err := s.catalog.GetCard(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		s.internalError(w, r, err)
		return
	}
	promos, err := s.catalog.PromotionsByCard(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if promos == nil {
		promos = []types.Promotion{}
	}
	writeJSON(w, http.StatusOK, promos)
}

func (s *Server) handlePromotions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	params := listParamsFromQuery(r)
	params.Search = r.URL.Query().Get("category")

	promos, err := s.catalog.ListPromotions(r.Context(), params)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, promos)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req recommend.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json payload: %v", err), http.StatusBadRequest)
		return
	}

	recs, err := s.recommend.Recommend(r.Context(), req)
	if err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.internalError(w, r, err)
		return
	}
	if recs == nil {
		recs = []recommend.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recs})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func listParamsFromQuery(r *http.Request) storage.ListParams {
	q := r.URL.Query()
	params := storage.ListParams{Search: q.Get("search")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		params.Page = page
	}
	if size, err := strconv.Atoi(q.Get("page_size")); err == nil {
		params.PageSize = size
	}
	return params
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
