package dbrepository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/K2-bot/sender/internal/sender/data"
)

//go:embed sql/select_pending_affiliates.sql
var selectPendingAffiliatesQuery string

// GetPendingAffiliatesAfter returns pending affiliate rows with an id above
// the caller's watermark, in ascending id order.
func (db *DBRepository) GetPendingAffiliatesAfter(ctx context.Context, lastID int64) ([]data.Affiliate, error) {
	rows, err := db.storage.Query(ctx, selectPendingAffiliatesQuery, lastID)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending affiliates: %w", err)
	}
	return collectRows(rows, scanAffiliate)
}

//go:embed sql/select_affiliate.sql
var selectAffiliateQuery string

func (db *DBRepository) GetAffiliate(ctx context.Context, id int64) (data.Affiliate, error) {
	rows, err := db.storage.Query(ctx, selectAffiliateQuery, id)
	if err != nil {
		return data.Affiliate{}, fmt.Errorf("failed to select affiliate: %w", err)
	}
	affiliates, err := collectRows(rows, scanAffiliate)
	if err != nil {
		return data.Affiliate{}, err
	}
	if len(affiliates) == 0 {
		return data.Affiliate{}, data.ErrAffiliateNotFound
	}
	return affiliates[0], nil
}

//go:embed sql/update_affiliate_status.sql
var updateAffiliateStatusQuery string

func (db *DBRepository) SetAffiliateStatus(ctx context.Context, id int64, status data.AffiliateStatus) error {
	tag, err := db.storage.Exec(ctx, updateAffiliateStatusQuery, id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update affiliate status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrAffiliateNotFound
	}
	return nil
}

func scanAffiliate(rows pgx.Rows) (data.Affiliate, error) {
	var aff data.Affiliate
	err := rows.Scan(
		&aff.ID,
		&aff.Email,
		&aff.Name,
		&aff.PhoneID,
		&aff.Method,
		&aff.Amount,
		&aff.Status,
	)
	if err != nil {
		return data.Affiliate{}, fmt.Errorf("failed to scan affiliate: %w", err)
	}
	return aff, nil
}
