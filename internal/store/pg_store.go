package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const productColumns = `id::text, title, description, code, price::text, stock, status, category, thumbnails, created_at, updated_at`

const cartColumns = `id::text, products, status, created_at, last_modified`

type PgStore struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// NewPgStore creates a new instance of Store using a PostgreSQL connection pool.
// The store takes ownership of the pool and closes it on Close.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp, now: time.Now}
}

type pgLine struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p     model.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Code, &price, &p.Stock, &p.Status,
		&p.Category, &p.Thumbnails, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("failed to decode price of product %s: %w", p.ID, err)
	}
	p.Price = d
	if p.Thumbnails == nil {
		p.Thumbnails = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func scanCart(row rowScanner) (model.Cart, error) {
	var (
		c     model.Cart
		lines []pgLine
	)
	if err := row.Scan(&c.ID, &lines, &c.Status, &c.CreatedAt, &c.LastModified); err != nil {
		return model.Cart{}, err
	}
	c.Products = make([]model.LineItem, len(lines))
	for i, l := range lines {
		c.Products[i] = model.LineItem{ProductID: l.Product, Quantity: l.Quantity}
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.LastModified = c.LastModified.UTC()
	return c, nil
}

func encodeLines(items []model.LineItem) ([]byte, error) {
	lines := make([]pgLine, len(items))
	for i, l := range items {
		lines[i] = pgLine{Product: l.ProductID, Quantity: l.Quantity}
	}
	return json.Marshal(lines)
}

func thumbnailsOf(p model.Product) []string {
	if p.Thumbnails == nil {
		return []string{}
	}
	return p.Thumbnails
}

var pgSortColumns = map[string]string{
	model.SortByPrice:     "price",
	model.SortByTitle:     "lower(title)",
	model.SortByStock:     "stock",
	model.SortByCode:      "code",
	model.SortByCreatedAt: "created_at",
}

// likePattern escapes LIKE metacharacters and wraps s for a substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

func pgWhere(q model.ProductQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.Category != "" {
		conds = append(conds, "category ILIKE "+arg(likePattern(q.Category)))
	}
	if q.Search != "" {
		p := arg(likePattern(q.Search))
		conds = append(conds, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}
	if q.MinPrice != nil {
		conds = append(conds, "price >= "+arg(q.MinPrice.String())+"::numeric")
	}
	if q.MaxPrice != nil {
		conds = append(conds, "price <= "+arg(q.MaxPrice.String())+"::numeric")
	}
	if q.Available != nil {
		if *q.Available {
			conds = append(conds, "(status AND stock > 0)")
		} else {
			conds = append(conds, "NOT (status AND stock > 0)")
		}
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *PgStore) ListProducts(ctx context.Context, q model.ProductQuery) ([]model.Product, int, error) {
	where, args := pgWhere(q)

	var total int
	if err := s.db.QueryRow(ctx, "SELECT count(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	order := " ORDER BY seq"
	if col, ok := pgSortColumns[q.SortBy]; ok {
		dir := "ASC"
		if q.Order == model.OrderDesc {
			dir = "DESC"
		}
		order = " ORDER BY " + col + " " + dir + ", seq"
	}
	sql := "SELECT " + productColumns + " FROM products" + where + order
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += " LIMIT $" + strconv.Itoa(len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sql += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()
	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

func (s *PgStore) FindProductByID(ctx context.Context, id string) (*model.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, serrors.ErrProductNotFound
	}
	p, err := scanProduct(s.db.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product %s: %w", id, err)
	}
	return &p, nil
}

func (s *PgStore) FindProductsByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return []model.Product{}, nil
	}
	rows, err := s.db.Query(ctx, "SELECT "+productColumns+" FROM products WHERE id = ANY($1::uuid[]) ORDER BY seq", valid)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer rows.Close()
	products := []model.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *PgStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	now := s.now().UTC()
	created, err := scanProduct(s.db.QueryRow(ctx,
		`INSERT INTO products (title, description, code, price, stock, status, category, thumbnails, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $9)
		 RETURNING `+productColumns,
		p.Title, p.Description, p.Code, p.Price.String(), p.Stock, p.Status, p.Category, thumbnailsOf(p), now))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, serrors.ErrDuplicateCode
		}
		return nil, fmt.Errorf("failed to insert product: %w", err)
	}
	return &created, nil
}

// UpdateProduct locks the row, applies mutate and writes it back in one transaction.
func (s *PgStore) UpdateProduct(ctx context.Context, id string, mutate ProductMutator) (*model.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, serrors.ErrProductNotFound
	}
	var updated model.Product
	txErr := s.withTransaction(ctx, func(tx pgx.Tx) error {
		current, err := scanProduct(tx.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return serrors.ErrProductNotFound
			}
			return fmt.Errorf("failed to lock product %s: %w", id, err)
		}
		if err := mutate(&current); err != nil {
			return err
		}
		updated, err = scanProduct(tx.QueryRow(ctx,
			`UPDATE products
			 SET title = $2, description = $3, code = $4, price = $5::numeric, stock = $6, status = $7,
			     category = $8, thumbnails = $9, updated_at = $10
			 WHERE id = $1
			 RETURNING `+productColumns,
			id, current.Title, current.Description, current.Code, current.Price.String(), current.Stock,
			current.Status, current.Category, thumbnailsOf(current), s.now().UTC()))
		if err != nil {
			if isUniqueViolation(err) {
				return serrors.ErrDuplicateCode
			}
			return fmt.Errorf("failed to update product %s: %w", id, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

func (s *PgStore) DeleteProduct(ctx context.Context, id string) (*model.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, serrors.ErrProductNotFound
	}
	removed, err := scanProduct(s.db.QueryRow(ctx, "DELETE FROM products WHERE id = $1 RETURNING "+productColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	return &removed, nil
}

// DecrementStock checks and applies every change in one transaction. Rows are locked in id order.
func (s *PgStore) DecrementStock(ctx context.Context, changes []model.StockChange) error {
	merged := mergeChanges(changes)
	return s.withTransaction(ctx, func(tx pgx.Tx) error {
		locking := slices.Clone(merged)
		slices.SortFunc(locking, func(a, b model.StockChange) int { return strings.Compare(a.ProductID, b.ProductID) })
		available := make(map[string]int, len(locking))
		for _, c := range locking {
			if _, err := uuid.Parse(c.ProductID); err != nil {
				continue
			}
			var stock int
			err := tx.QueryRow(ctx, "SELECT stock FROM products WHERE id = $1 FOR UPDATE", c.ProductID).Scan(&stock)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					continue
				}
				return fmt.Errorf("failed to lock product %s: %w", c.ProductID, err)
			}
			available[c.ProductID] = stock
		}

		var shortages []serrors.StockShortage
		for _, c := range merged {
			if c.Quantity > available[c.ProductID] {
				shortages = append(shortages, serrors.StockShortage{ProductID: c.ProductID, Requested: c.Quantity, Available: available[c.ProductID]})
			}
		}
		if len(shortages) > 0 {
			return &serrors.InsufficientStockError{Lines: shortages}
		}

		now := s.now().UTC()
		for _, c := range merged {
			if _, err := tx.Exec(ctx, "UPDATE products SET stock = stock - $2, updated_at = $3 WHERE id = $1", c.ProductID, c.Quantity, now); err != nil {
				return fmt.Errorf("failed to decrement stock of product %s: %w", c.ProductID, err)
			}
		}
		return nil
	})
}

func (s *PgStore) ListCarts(ctx context.Context) ([]model.Cart, error) {
	rows, err := s.db.Query(ctx, "SELECT "+cartColumns+" FROM carts ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("failed to list carts: %w", err)
	}
	defer rows.Close()
	carts := []model.Cart{}
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		carts = append(carts, c)
	}
	return carts, rows.Err()
}

func (s *PgStore) FindCartByID(ctx context.Context, id string) (*model.Cart, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, serrors.ErrCartNotFound
	}
	c, err := scanCart(s.db.QueryRow(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, serrors.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart %s: %w", id, err)
	}
	return &c, nil
}

func (s *PgStore) CreateCart(ctx context.Context) (*model.Cart, error) {
	now := s.now().UTC()
	c, err := scanCart(s.db.QueryRow(ctx,
		"INSERT INTO carts (products, status, created_at, last_modified) VALUES ('[]'::jsonb, $1, $2, $2) RETURNING "+cartColumns,
		model.CartStatusActive, now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert cart: %w", err)
	}
	return &c, nil
}

func (s *PgStore) UpdateCart(ctx context.Context, id string, mutate CartMutator) (*model.Cart, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, serrors.ErrCartNotFound
	}
	var updated model.Cart
	txErr := s.withTransaction(ctx, func(tx pgx.Tx) error {
		current, err := scanCart(tx.QueryRow(ctx, "SELECT "+cartColumns+" FROM carts WHERE id = $1 FOR UPDATE", id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return serrors.ErrCartNotFound
			}
			return fmt.Errorf("failed to lock cart %s: %w", id, err)
		}
		if err := mutate(&current); err != nil {
			return err
		}
		lines, err := encodeLines(current.Products)
		if err != nil {
			return fmt.Errorf("failed to encode cart lines: %w", err)
		}
		updated, err = scanCart(tx.QueryRow(ctx,
			"UPDATE carts SET products = $2::jsonb, status = $3, last_modified = $4 WHERE id = $1 RETURNING "+cartColumns,
			id, string(lines), current.Status, s.now().UTC()))
		if err != nil {
			return fmt.Errorf("failed to update cart %s: %w", id, err)
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return &updated, nil
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PgStore) Close(_ context.Context) error {
	s.db.Close()
	return nil
}

func (s *PgStore) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("failed to rollback transaction: %w", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
