// Package postgres provides the PostgreSQL implementation of the
// equipment repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opsdeck/helpdesk/internal/domain"
	"github.com/opsdeck/helpdesk/internal/equipment"
)

const equipmentColumns = `id, name, asset_tag, type, location, status, serial_number, created_at, updated_at`

// Repository implements the equipment.Repository interface using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a single asset.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Equipment, error) {
	query := `SELECT ` + equipmentColumns + ` FROM equipment WHERE id = $1`

	var e domain.Equipment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.Name,
		&e.AssetTag,
		&e.Type,
		&e.Location,
		&e.Status,
		&e.SerialNumber,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, equipment.ErrNotFound
		}
		return nil, fmt.Errorf("get equipment by id: %w", err)
	}

	return &e, nil
}

// List retrieves assets matching the filter, ordered by name.
func (r *Repository) List(ctx context.Context, filter equipment.Filter) ([]domain.Equipment, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Type != nil {
		conds = append(conds, "type = "+arg(*filter.Type))
	}
	if filter.Location != nil {
		conds = append(conds, "location = "+arg(*filter.Location))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+arg(string(*filter.Status)))
	}
	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conds = append(conds, "(name ILIKE "+p+" OR asset_tag ILIKE "+p+")")
	}

	query := `SELECT ` + equipmentColumns + ` FROM equipment`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list equipment: %w", err)
	}
	defer rows.Close()

	var items []domain.Equipment
	for rows.Next() {
		var e domain.Equipment
		if err := rows.Scan(
			&e.ID,
			&e.Name,
			&e.AssetTag,
			&e.Type,
			&e.Location,
			&e.Status,
			&e.SerialNumber,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equipment: %w", err)
	}

	return items, nil
}
