package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zestbet/live-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision;
// market options are stored as a JSONB document.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	options, err := json.Marshal(m.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO markets (id, event_id, question, options, status, created_at)
		 VALUES ($1, $2, $3, $4::JSONB, $5, $6)`,
		m.ID, m.EventID, m.Question, options, string(m.Status), m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, event_id, question, options::TEXT, status, created_at
		 FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get market %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListOpenMarkets(ctx context.Context, eventID string) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, question, options::TEXT, status, created_at
		 FROM markets WHERE event_id = $1 AND status = 'open'
		 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

// UpdateMarketStatus performs the conditional open→settled/void flip.
// The WHERE clause on the prior status makes a second settlement attempt
// affect zero rows, which surfaces as ErrConflict.
func (s *PostgresStore) UpdateMarketStatus(ctx context.Context, id string, from, to model.MarketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("market %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("market %s not %s: %w", id, from, ErrConflict)
	}
	return nil
}

func (s *PostgresStore) CreateWager(ctx context.Context, w *model.Wager) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wagers (id, market_id, event_id, user_id, username, option_key,
		                     amount, odds_at_placement, potential_win, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)`,
		w.ID, w.MarketID, w.EventID, w.UserID, w.Username, w.OptionKey,
		w.Amount.String(), w.OddsAtPlacement.String(), w.PotentialWin.String(),
		string(w.Status), w.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListWagersByMarket(ctx context.Context, marketID string) ([]model.Wager, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, event_id, user_id, username, option_key,
		        amount::TEXT, odds_at_placement::TEXT, potential_win::TEXT,
		        status, created_at
		 FROM wagers WHERE market_id = $1 ORDER BY created_at`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wagers []model.Wager
	for rows.Next() {
		var w model.Wager
		var amountS, oddsS, winS, status string

		if err := rows.Scan(&w.ID, &w.MarketID, &w.EventID, &w.UserID, &w.Username,
			&w.OptionKey, &amountS, &oddsS, &winS, &status, &w.CreatedAt); err != nil {
			return nil, err
		}

		w.Amount, _ = decimal.NewFromString(amountS)
		w.OddsAtPlacement, _ = decimal.NewFromString(oddsS)
		w.PotentialWin, _ = decimal.NewFromString(winS)
		w.Status = model.WagerStatus(status)

		wagers = append(wagers, w)
	}
	return wagers, rows.Err()
}

// UpdateWagerStatus transitions a wager out of the active state exactly once.
func (s *PostgresStore) UpdateWagerStatus(ctx context.Context, id string, to model.WagerStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wagers SET status = $2 WHERE id = $1 AND status = 'active'`,
		id, string(to),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM wagers WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("wager %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("wager %s already resolved: %w", id, ErrConflict)
	}
	return nil
}

// scanMarket reads one market row, decoding the JSONB options document.
func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var options, status string

	if err := row.Scan(&m.ID, &m.EventID, &m.Question, &options, &status, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(options), &m.Options); err != nil {
		return nil, fmt.Errorf("decode options for market %s: %w", m.ID, err)
	}
	m.Status = model.MarketStatus(status)
	return &m, nil
}
