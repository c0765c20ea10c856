package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrUserNotFound    = errors.New("order user not found")
	ErrProductNotFound = errors.New("one or more products not found")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create prices every line inside one transaction: the user and all
// referenced products must exist (soft-deleted products do not count),
// each line pays price_new when set and price_old otherwise, and the
// order row plus its items land together or not at all.
func (r *Repository) Create(ctx context.Context, input CreateOrderInput) (Order, error) {
	if len(input.Items) == 0 {
		return Order{}, ErrProductNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Order{}, fmt.Errorf("begin order tx: %w", err)
	}
	defer tx.Rollback()

	var userExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, input.UserID).Scan(&userExists); err != nil {
		return Order{}, fmt.Errorf("check order user: %w", err)
	}
	if !userExists {
		return Order{}, ErrUserNotFound
	}

	productIDs := make([]string, 0, len(input.Items))
	quantityByID := make(map[string]int, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
		quantityByID[item.ProductID] += item.Quantity
	}

	placeholders := make([]string, len(productIDs))
	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, price_old, price_new
		FROM products
		WHERE id IN (%s) AND deleted_at IS NULL
	`, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return Order{}, fmt.Errorf("query order products: %w", err)
	}
	defer rows.Close()

	type pricedProduct struct {
		title string
		price float64
	}
	productByID := make(map[string]pricedProduct, len(productIDs))
	for rows.Next() {
		var id, title string
		var priceOld float64
		var priceNew *float64
		if err := rows.Scan(&id, &title, &priceOld, &priceNew); err != nil {
			return Order{}, fmt.Errorf("scan order product: %w", err)
		}
		price := priceOld
		if priceNew != nil {
			price = *priceNew
		}
		productByID[id] = pricedProduct{title: title, price: price}
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("iterate order products: %w", err)
	}
	if len(productByID) != len(quantityByID) {
		return Order{}, ErrProductNotFound
	}

	orderID, err := uuid.NewV7()
	if err != nil {
		return Order{}, fmt.Errorf("generate order id: %w", err)
	}

	now := time.Now().UTC()
	order := Order{
		ID:        orderID.String(),
		UserID:    input.UserID,
		Tax:       taxRate,
		Status:    "pending",
		CreatedAt: now,
	}

	for id, quantity := range quantityByID {
		p := productByID[id]
		order.Items = append(order.Items, OrderItem{
			ProductID:    id,
			ProductTitle: p.title,
			Quantity:     quantity,
			Price:        p.price,
		})
		order.TotalPrice += p.price * float64(quantity)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_price, tax, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, order.ID, order.UserID, order.TotalPrice, order.Tax, order.Status, now)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		itemID, err := uuid.NewV7()
		if err != nil {
			return Order{}, fmt.Errorf("generate order item id: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)
		`, itemID.String(), order.ID, item.ProductID, item.Quantity, item.Price)
		if err != nil {
			return Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Order{}, fmt.Errorf("commit order tx: %w", err)
	}

	return order, nil
}

func (r *Repository) List(ctx context.Context, query ListQuery) (Page, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = 20
	}
	if query.PageSize > 200 {
		query.PageSize = 200
	}

	conditions := []string{"TRUE"}
	args := []any{}
	if query.UserID != "" {
		args = append(args, query.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count orders: %w", err)
	}

	args = append(args, query.PageSize, (query.Page-1)*query.PageSize)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id, total_price, tax, status, created_at
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Tax, &o.Status, &o.CreatedAt); err != nil {
			return Page{}, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate orders: %w", err)
	}

	return Page{Total: total, Page: query.Page, PageSize: query.PageSize, Results: orders}, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_price, tax, status, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Tax, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("query order: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.product_id, p.title, oi.quantity, oi.price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
	`, id)
	if err != nil {
		return Order{}, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductTitle, &item.Quantity, &item.Price); err != nil {
			return Order{}, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("iterate order items: %w", err)
	}

	return o, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id, status string) (Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		UPDATE orders SET status = $2
		WHERE id = $1
		RETURNING id, user_id, total_price, tax, status, created_at
	`, id, status).Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Tax, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("update order status: %w", err)
	}

	return o, nil
}
