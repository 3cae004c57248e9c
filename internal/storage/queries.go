package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

// ListParams controls pagination and filtering of listing queries.
type ListParams struct {
	Page     int
	PageSize int
	Search   string
	BankID   int64
}

func (p ListParams) normalised() ListParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 || p.PageSize > 100 {
		p.PageSize = 20
	}
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// CardList wraps a page of cards with pagination metadata.
type CardList struct {
	Items    []types.CreditCard `json:"items"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Pages    int64              `json:"pages"`
}

// PromotionList wraps a page of promotions with pagination metadata.
type PromotionList struct {
	Items    []types.Promotion `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Pages    int64             `json:"pages"`
}

// ListBanks returns all banks ordered by code.
func (s *Store) ListBanks(ctx context.Context) ([]types.Bank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bankColumns+` FROM banks ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	defer rows.Close()

	var banks []types.Bank
	for rows.Next() {
		bank, err := scanBank(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		banks = append(banks, bank)
	}
	return banks, rows.Err()
}

// ListCards returns a page of cards, optionally filtered by bank and a
// name search.
func (s *Store) ListCards(ctx context.Context, params ListParams) (CardList, error) {
	params = params.normalised()

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if params.BankID > 0 {
		args = append(args, params.BankID)
		where = append(where, fmt.Sprintf("bank_id = $%d", len(args)))
	}
	if params.Search != "" {
		args = append(args, "%"+params.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	result := CardList{Page: params.Page, PageSize: params.PageSize}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credit_cards`+clause, args...).Scan(&result.Total); err != nil {
		return CardList{}, fmt.Errorf("count cards: %w", err)
	}
	result.Pages = (result.Total + int64(params.PageSize) - 1) / int64(params.PageSize)

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT `+cardColumns+` FROM credit_cards%s ORDER BY id LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return CardList{}, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]types.CreditCard, 0, params.PageSize)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return CardList{}, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, card)
	}
	result.Items = items
	return result, rows.Err()
}

// GetCard returns one card by id. sql.ErrNoRows passes through for callers
// to map onto their not-found handling.
func (s *Store) GetCard(ctx context.Context, id int64) (types.CreditCard, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM credit_cards WHERE id = $1`, id)
	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CreditCard{}, err
		}
		return types.CreditCard{}, fmt.Errorf("get card %d: %w", id, err)
	}
	return card, nil
}

// GetBank returns one bank by id.
func (s *Store) GetBank(ctx context.Context, id int64) (types.Bank, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM banks WHERE id = $1`, id)
	bank, err := scanBank(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Bank{}, err
		}
		return types.Bank{}, fmt.Errorf("get bank %d: %w", id, err)
	}
	return bank, nil
}

// EligibleCards loads recommendation candidates. With excludeAnnualFee set,
// cards carrying a nonzero annual fee are dropped at the query level.
func (s *Store) EligibleCards(ctx context.Context, excludeAnnualFee bool) ([]types.CreditCard, error) {
	query := `SELECT ` + cardColumns + ` FROM credit_cards`
	if excludeAnnualFee {
		query += ` WHERE annual_fee IS NULL OR annual_fee = 0`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load eligible cards: %w", err)
	}
	defer rows.Close()

	var cards []types.CreditCard
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// PromotionsByCard returns all promotions attached to a card.
func (s *Store) PromotionsByCard(ctx context.Context, cardID int64) ([]types.Promotion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE card_id = $1 ORDER BY id`, cardID)
	if err != nil {
		return nil, fmt.Errorf("promotions of card %d: %w", cardID, err)
	}
	defer rows.Close()

	var promos []types.Promotion
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promotion: %w", err)
		}
		promos = append(promos, promo)
	}
	return promos, rows.Err()
}

// ListPromotions returns a page of promotions, newest first, optionally
// filtered by category via Search.
func (s *Store) ListPromotions(ctx context.Context, params ListParams) (PromotionList, error) {
	params = params.normalised()

	var (
		clause string
		args   []any
	)
	if params.Search != "" {
		clause = ` WHERE category = $1`
		args = append(args, params.Search)
	}

	result := PromotionList{Page: params.Page, PageSize: params.PageSize}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM promotions`+clause, args...).Scan(&result.Total); err != nil {
		return PromotionList{}, fmt.Errorf("count promotions: %w", err)
	}
	result.Pages = (result.Total + int64(params.PageSize) - 1) / int64(params.PageSize)

	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)
	query := fmt.Sprintf(`SELECT `+promotionColumns+` FROM promotions%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return PromotionList{}, fmt.Errorf("list promotions: %w", err)
	}
	defer rows.Close()

	items := make([]types.Promotion, 0, params.PageSize)
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return PromotionList{}, fmt.Errorf("scan promotion: %w", err)
		}
		items = append(items, promo)
	}
	result.Items = items
	return result, rows.Err()
}

// DeleteExpiredPromotions removes promotions whose end date lies strictly
// before asOf. Promotions without an end date are never touched.
func (s *Store) DeleteExpiredPromotions(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM promotions WHERE end_date IS NOT NULL AND end_date < $1`, asOf)
	if err != nil {
		return 0, fmt.Errorf("delete expired promotions: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired promotions rows affected: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBank(row rowScanner) (types.Bank, error) {
	var (
		bank    types.Bank
		website sql.NullString
		logoURL sql.NullString
	)
	if err := row.Scan(&bank.ID, &bank.Name, &bank.Code, &website, &logoURL,
		&bank.CreatedAt, &bank.UpdatedAt); err != nil {
		return types.Bank{}, err
	}
	bank.Website = website.String
	bank.LogoURL = logoURL.String
	return bank, nil
}

func scanCard(row rowScanner) (types.CreditCard, error) {
	var (
		card          types.CreditCard
		cardType      sql.NullString
		annualFee     sql.NullInt64
		feeWaiver     sql.NullString
		imageURL      sql.NullString
		applyURL      sql.NullString
		minIncome     sql.NullInt64
		featuresBytes []byte
	)
	if err := row.Scan(&card.ID, &card.BankID, &card.Name, &cardType, &annualFee,
		&feeWaiver, &imageURL, &applyURL, &minIncome, &featuresBytes,
		&card.BaseRewardRate, &card.CreatedAt, &card.UpdatedAt); err != nil {
		return types.CreditCard{}, err
	}
	card.CardType = cardType.String
	card.AnnualFeeWaiver = feeWaiver.String
	card.ImageURL = imageURL.String
	card.ApplyURL = applyURL.String
	if annualFee.Valid {
		fee := int(annualFee.Int64)
		card.AnnualFee = &fee
	}
	if minIncome.Valid {
		income := int(minIncome.Int64)
		card.MinIncome = &income
	}
	if len(featuresBytes) > 0 {
		var features types.FeatureMap
		if err := json.Unmarshal(featuresBytes, &features); err == nil {
			card.Features = features
		}
	}
	return card, nil
}

func scanPromotion(row rowScanner) (types.Promotion, error) {
	var (
		promo       types.Promotion
		description sql.NullString
		category    sql.NullString
		rewardType  sql.NullString
		rewardLimit sql.NullInt64
		minSpend    sql.NullInt64
		startDate   sql.NullTime
		endDate     sql.NullTime
		terms       sql.NullString
		sourceURL   sql.NullString
	)
	if err := row.Scan(&promo.ID, &promo.CardID, &promo.Title, &description,
		&category, &rewardType, &promo.RewardRate, &rewardLimit, &minSpend,
		&startDate, &endDate, &terms, &sourceURL,
		&promo.CreatedAt, &promo.UpdatedAt); err != nil {
		return types.Promotion{}, err
	}
	promo.Description = description.String
	promo.Category = category.String
	promo.RewardType = rewardType.String
	promo.Terms = terms.String
	promo.SourceURL = sourceURL.String
	if rewardLimit.Valid {
		limit := int(rewardLimit.Int64)
		promo.RewardLimit = &limit
	}
	if minSpend.Valid {
		spend := int(minSpend.Int64)
		promo.MinSpend = &spend
	}
	if startDate.Valid {
		start := startDate.Time
		promo.StartDate = &start
	}
	if endDate.Valid {
		end := endDate.Time
		promo.EndDate = &end
	}
	return promo, nil
}
