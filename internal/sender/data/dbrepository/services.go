package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/K2-bot/sender/internal/sender/data"
)

//go:embed sql/select_service_by_name.sql
var selectServiceByNameQuery string

//go:embed sql/select_service_like.sql
var selectServiceLikeQuery string

// GetServiceByName resolves a service row by exact name first, falling back
// to a substring match.
func (db *DBRepository) GetServiceByName(ctx context.Context, name string) (data.Service, error) {
	svc, err := db.queryService(ctx, selectServiceByNameQuery, name)
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, data.ErrServiceNotFound) {
		return data.Service{}, err
	}
	return db.queryService(ctx, selectServiceLikeQuery, "%"+name+"%")
}

//go:embed sql/update_service_sold_qty.sql
var updateServiceSoldQtyQuery string

// AddServiceSoldQty adjusts the sold-quantity counter by delta, clamped at
// zero in the store.
func (db *DBRepository) AddServiceSoldQty(ctx context.Context, id int64, delta int64) error {
	tag, err := db.storage.Exec(ctx, updateServiceSoldQtyQuery, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust sold quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrServiceNotFound
	}
	return nil
}

//go:embed sql/select_sold_services.sql
var selectSoldServicesQuery string

func (db *DBRepository) GetSoldServices(ctx context.Context) ([]data.Service, error) {
	rows, err := db.storage.Query(ctx, selectSoldServicesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select sold services: %w", err)
	}
	return collectRows(rows, scanService)
}

//go:embed sql/update_service_reset_sold.sql
var updateServiceResetSoldQuery string

func (db *DBRepository) ResetServiceSoldQty(ctx context.Context, id int64) error {
	_, err := db.storage.Exec(ctx, updateServiceResetSoldQuery, id)
	if err != nil {
		return fmt.Errorf("failed to reset sold quantity: %w", err)
	}
	return nil
}

//go:embed sql/select_services_by_source.sql
var selectServicesBySourceQuery string

func (db *DBRepository) GetServicesBySource(ctx context.Context, source string) ([]data.Service, error) {
	rows, err := db.storage.Query(ctx, selectServicesBySourceQuery, source)
	if err != nil {
		return nil, fmt.Errorf("failed to select services by source: %w", err)
	}
	return collectRows(rows, scanService)
}

//go:embed sql/update_service_buy_price.sql
var updateServiceBuyPriceQuery string

func (db *DBRepository) SetServiceBuyPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := db.storage.Exec(ctx, updateServiceBuyPriceQuery, id, price)
	if err != nil {
		return fmt.Errorf("failed to update buy price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrServiceNotFound
	}
	return nil
}

func (db *DBRepository) queryService(ctx context.Context, query string, arg any) (data.Service, error) {
	rows, err := db.storage.Query(ctx, query, arg)
	if err != nil {
		return data.Service{}, fmt.Errorf("failed to select service: %w", err)
	}
	services, err := collectRows(rows, scanService)
	if err != nil {
		return data.Service{}, err
	}
	if len(services) == 0 {
		return data.Service{}, data.ErrServiceNotFound
	}
	return services[0], nil
}

func scanService(rows pgx.Rows) (data.Service, error) {
	var svc data.Service
	err := rows.Scan(
		&svc.ID,
		&svc.Name,
		&svc.Source,
		&svc.SupplierServiceID,
		&svc.BuyPrice,
		&svc.SellPrice,
		&svc.PerQuantity,
		&svc.TotalSoldQty,
	)
	if err != nil {
		return data.Service{}, fmt.Errorf("failed to scan service: %w", err)
	}
	return svc, nil
}
