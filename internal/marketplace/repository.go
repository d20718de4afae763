package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusmarket/campusmarket/internal/platform/db"
	"github.com/campusmarket/campusmarket/internal/shared"
)

// Repository abstracts item persistence.
type Repository interface {
	FindByID(ctx context.Context, id int64) (*Item, error)
	Create(ctx context.Context, item NewItem) (*Item, error)
	// MarkSold flips sold for an unsold item not owned by buyerID and reports
	// whether a row changed.
	MarkSold(ctx context.Context, id, buyerID int64, at time.Time) (bool, error)
	// Delete removes the item only when sellerID owns it.
	Delete(ctx context.Context, id, sellerID int64) (bool, error)
	ListUnsold(ctx context.Context, filter BrowseFilter) ([]Item, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]Item, error)
}

type pgRepository struct {
	pool db.Querier
}

// NewRepository constructs a PostgreSQL backed Repository.
func NewRepository(pool db.Querier) Repository {
	return &pgRepository{pool: pool}
}

const itemColumns = `id, title, description, price, category, sold, seller_id, buyer_id, sold_at, created_at`

func (r *pgRepository) FindByID(ctx context.Context, id int64) (*Item, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("marketplace: find item: %w", err)
	}
	return &item, nil
}

func (r *pgRepository) Create(ctx context.Context, item NewItem) (*Item, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO items (title, description, price, category, seller_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+itemColumns,
		item.Title, item.Description, item.Price, item.Category, item.SellerID, item.CreatedAt)
	created, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("marketplace: create item: %w", err)
	}
	return &created, nil
}

func (r *pgRepository) MarkSold(ctx context.Context, id, buyerID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE items SET sold = TRUE, buyer_id = $2, sold_at = $3
		 WHERE id = $1 AND sold = FALSE AND seller_id <> $2`,
		id, buyerID, at)
	if err != nil {
		return false, fmt.Errorf("marketplace: mark sold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgRepository) Delete(ctx context.Context, id, sellerID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1 AND seller_id = $2`, id, sellerID)
	if err != nil {
		return false, fmt.Errorf("marketplace: delete item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnsold uses a dynamic query because both filters are optional.
func (r *pgRepository) ListUnsold(ctx context.Context, filter BrowseFilter) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE sold = FALSE`
	args := []any{}

	if filter.Search != "" {
		args = append(args, filter.Search)
		n := strconv.Itoa(len(args))
		// strpos is case-sensitive and treats % and _ literally.
		query += ` AND (strpos(title, $` + n + `) > 0 OR strpos(description, $` + n + `) > 0)`
	}
	if filter.Category != CategoryAll {
		args = append(args, filter.Category)
		query += ` AND category = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	return r.list(ctx, query, args...)
}

func (r *pgRepository) ListBySeller(ctx context.Context, sellerID int64) ([]Item, error) {
	return r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE seller_id = $1 ORDER BY created_at DESC, id DESC`, sellerID)
}

func (r *pgRepository) list(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("marketplace: list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("marketplace: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row pgx.Row) (Item, error) {
	var (
		item    Item
		buyerID *int64
		soldAt  *time.Time
	)
	if err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Price, &item.Category,
		&item.Sold, &item.SellerID, &buyerID, &soldAt, &item.CreatedAt); err != nil {
		return Item{}, err
	}
	if buyerID != nil {
		item.BuyerID = *buyerID
	}
	if soldAt != nil {
		item.SoldAt = *soldAt
	}
	return item, nil
}
