package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stonebomdic/credit-card-crawler/pkg/types"
)

const bankColumns = `id, name, code, website, logo_url, created_at, updated_at`

const cardColumns = `id, bank_id, name, card_type, annual_fee, annual_fee_waiver,
	image_url, apply_url, min_income, features, base_reward_rate, created_at, updated_at`

const promotionColumns = `id, card_id, title, description, category, reward_type,
	reward_rate, reward_limit, min_spend, start_date, end_date, terms, source_url,
	created_at, updated_at`

// UpsertBank resolves a bank by its unique code, creating it on first use.
// The declared identity fields are refreshed on every run.
func (s *Store) UpsertBank(ctx context.Context, seed types.BankSeed) (types.Bank, error) {
	query := `
        INSERT INTO banks (name, code, website, logo_url)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (code) DO UPDATE SET
            name = EXCLUDED.name,
            website = EXCLUDED.website,
            logo_url = EXCLUDED.logo_url,
            updated_at = NOW()
        RETURNING ` + bankColumns
	row := s.db.QueryRowContext(ctx, query,
		seed.Name, seed.Code, nullString(seed.Website), nullString(seed.LogoURL))

	bank, err := scanBank(row)
	if err != nil {
		return types.Bank{}, fmt.Errorf("upsert bank %q: %w", seed.Code, err)
	}
	return bank, nil
}

// UpsertCard creates or updates a card keyed on (bank, name).
func (s *Store) UpsertCard(ctx context.Context, bankID int64, data types.CardUpsert) (types.CreditCard, error) {
	features, err := marshalFeatures(data.Features)
	if err != nil {
		return types.CreditCard{}, fmt.Errorf("encode features for card %q: %w", data.Name, err)
	}

	query := `
        INSERT INTO credit_cards
            (bank_id, name, card_type, annual_fee, annual_fee_waiver,
             image_url, apply_url, min_income, features, base_reward_rate)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (bank_id, name) DO UPDATE SET
            card_type = EXCLUDED.card_type,
            annual_fee = EXCLUDED.annual_fee,
            annual_fee_waiver = EXCLUDED.annual_fee_waiver,
            image_url = EXCLUDED.image_url,
            apply_url = EXCLUDED.apply_url,
            min_income = EXCLUDED.min_income,
            features = EXCLUDED.features,
            base_reward_rate = EXCLUDED.base_reward_rate,
            updated_at = NOW()
        RETURNING ` + cardColumns
	row := s.db.QueryRowContext(ctx, query,
		bankID,
		data.Name,
		nullString(data.CardType),
		nullInt(data.AnnualFee),
		nullString(data.AnnualFeeWaiver),
		nullString(data.ImageURL),
		nullString(data.ApplyURL),
		nullInt(data.MinIncome),
		features,
		data.BaseRewardRate,
	)

	card, err := scanCard(row)
	if err != nil {
		return types.CreditCard{}, fmt.Errorf("upsert card %q: %w", data.Name, err)
	}
	return card, nil
}

// UpsertPromotion creates or updates a promotion keyed on (card, title).
func (s *Store) UpsertPromotion(ctx context.Context, cardID int64, data types.PromotionUpsert) (types.Promotion, error) {
	query := `
        INSERT INTO promotions
            (card_id, title, description, category, reward_type, reward_rate,
             reward_limit, min_spend, start_date, end_date, terms, source_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (card_id, title) DO UPDATE SET
            description = EXCLUDED.description,
            category = EXCLUDED.category,
            reward_type = EXCLUDED.reward_type,
            reward_rate = EXCLUDED.reward_rate,
            reward_limit = EXCLUDED.reward_limit,
            min_spend = EXCLUDED.min_spend,
            start_date = EXCLUDED.start_date,
            end_date = EXCLUDED.end_date,
            terms = EXCLUDED.terms,
            source_url = EXCLUDED.source_url,
            updated_at = NOW()
        RETURNING ` + promotionColumns
	row := s.db.QueryRowContext(ctx, query,
		cardID,
		data.Title,
		nullString(data.Description),
		nullString(data.Category),
		nullString(data.RewardType),
		data.RewardRate,
		nullInt(data.RewardLimit),
		nullInt(data.MinSpend),
		nullTime(data.StartDate),
		nullTime(data.EndDate),
		nullString(data.Terms),
		nullString(data.SourceURL),
	)

	promo, err := scanPromotion(row)
	if err != nil {
		return types.Promotion{}, fmt.Errorf("upsert promotion %q: %w", data.Title, err)
	}
	return promo, nil
}

// FirstCardByBank returns the oldest card of a bank, or nil when the bank has
// no cards yet. Adapters use it to attach bank-wide promotions.
func (s *Store) FirstCardByBank(ctx context.Context, bankID int64) (*types.CreditCard, error) {
	query := `SELECT ` + cardColumns + ` FROM credit_cards WHERE bank_id = $1 ORDER BY id LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, bankID)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("first card of bank %d: %w", bankID, err)
	}
	return &card, nil
}

func marshalFeatures(features types.FeatureMap) (any, error) {
	if len(features) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(features)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}
