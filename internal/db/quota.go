package db

import (
	"context"
	"fmt"
)

const ledgerColumns = `usage_date, search_count, detail_count, units_consumed,
	daily_budget, exhausted, last_reset_at`

// GetOrCreateQuotaLedger returns the ledger row for the given reset-boundary
// date, creating a fresh one when the date has rolled over. Old rows are
// never mutated by a rollover; they remain as history.
func (db *DB) GetOrCreateQuotaLedger(ctx context.Context, date string, budget int) (*QuotaLedger, error) {
	var l QuotaLedger
	err := db.pool.QueryRow(ctx,
		`INSERT INTO quota_ledgers (usage_date, daily_budget)
		 VALUES ($1, $2)
		 ON CONFLICT (usage_date) DO UPDATE SET usage_date = EXCLUDED.usage_date
		 RETURNING `+ledgerColumns,
		date, budget,
	).Scan(&l.UsageDate, &l.SearchCount, &l.DetailCount, &l.UnitsConsumed,
		&l.DailyBudget, &l.Exhausted, &l.LastResetAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create quota ledger: %w", err)
	}
	return &l, nil
}

// AddQuotaUsage adds consumed units to the ledger for one operation kind.
// Consumption is additive only; within a day it never decreases.
func (db *DB) AddQuotaUsage(ctx context.Context, date string, searches, details, units int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE quota_ledgers
		 SET search_count = search_count + $1,
		     detail_count = detail_count + $2,
		     units_consumed = units_consumed + $3
		 WHERE usage_date = $4`,
		searches, details, units, date,
	)
	if err != nil {
		return fmt.Errorf("failed to add quota usage: %w", err)
	}
	return nil
}

// SetQuotaBudget rewrites the daily budget on the ledger for the date.
// Used when an operator budget override takes effect mid-day.
func (db *DB) SetQuotaBudget(ctx context.Context, date string, budget int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE quota_ledgers SET daily_budget = $1 WHERE usage_date = $2`, budget, date)
	if err != nil {
		return fmt.Errorf("failed to set quota budget: %w", err)
	}
	return nil
}

// MarkQuotaExhausted sets the exhausted flag on the ledger for the date.
func (db *DB) MarkQuotaExhausted(ctx context.Context, date string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE quota_ledgers SET exhausted = TRUE WHERE usage_date = $1`, date)
	if err != nil {
		return fmt.Errorf("failed to mark quota exhausted: %w", err)
	}
	return nil
}

// ResetQuotaLedger force-resets the ledger for the date: counters zeroed,
// exhausted flag cleared, reset timestamp refreshed. Used only by the
// staleness self-heal path.
func (db *DB) ResetQuotaLedger(ctx context.Context, date string, budget int) (*QuotaLedger, error) {
	var l QuotaLedger
	err := db.pool.QueryRow(ctx,
		`INSERT INTO quota_ledgers (usage_date, daily_budget)
		 VALUES ($1, $2)
		 ON CONFLICT (usage_date) DO UPDATE
		 SET search_count = 0, detail_count = 0, units_consumed = 0,
		     daily_budget = $2, exhausted = FALSE, last_reset_at = NOW()
		 RETURNING `+ledgerColumns,
		date, budget,
	).Scan(&l.UsageDate, &l.SearchCount, &l.DetailCount, &l.UnitsConsumed,
		&l.DailyBudget, &l.Exhausted, &l.LastResetAt)
	if err != nil {
		return nil, fmt.Errorf("failed to reset quota ledger: %w", err)
	}
	return &l, nil
}
