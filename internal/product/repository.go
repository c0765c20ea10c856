package product

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound covers missing and soft-deleted products alike.
	ErrNotFound = errors.New("product not found")
	// ErrVariantRequired is returned when a write would leave a product
	// without a single live variant.
	ErrVariantRequired = errors.New("product requires at least one variant")
	ErrVariantNotFound = errors.New("product variant not found")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const productColumns = `id, title, description, price_old, price_new, image_url, images, unit, category_id, created_at, updated_at`
const variantColumns = `id, product_id, label, value, price`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	var images []byte
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.PriceOld, &p.PriceNew,
		&p.ImageURL, &images, &p.Unit, &p.CategoryID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Product{}, err
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return Product{}, fmt.Errorf("decode product images: %w", err)
		}
	}
	return p, nil
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

	conditions := []string{"deleted_at IS NULL"}
	args := []any{}

	if query.Q != "" {
		args = append(args, "%"+query.Q+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if query.CategoryID != "" {
		args = append(args, query.CategoryID)
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", len(args)))
	}

	where := strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count products: %w", err)
	}

	args = append(args, query.PageSize, (query.Page-1)*query.PageSize)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM products
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, productColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return Page{}, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return Page{}, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("iterate products: %w", err)
	}

	if err := r.attachVariants(ctx, products); err != nil {
		return Page{}, err
	}

	return Page{Total: total, Page: query.Page, PageSize: query.PageSize, Results: products}, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE id = $1 AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("query product: %w", err)
	}

	variants, err := r.liveVariants(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.Variants = variants

	return p, nil
}

// GetAllByIDs returns the live products matching the given ids; callers
// compare lengths to detect missing ones.
func (r *Repository) GetAllByIDs(ctx context.Context, ids []string) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM products
		WHERE id IN (%s) AND deleted_at IS NULL
	`, productColumns, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("query products by ids: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// Create inserts the product together with its variants in one
// transaction. A product without variants is not sellable and is
// rejected outright.
func (r *Repository) Create(ctx context.Context, input ProductInput) (Product, error) {
	if len(input.Variants) == 0 {
		return Product{}, ErrVariantRequired
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Product{}, fmt.Errorf("generate product id: %w", err)
	}

	now := time.Now().UTC()
	p := Product{
		ID:          id.String(),
		Title:       input.Title,
		Description: input.Description,
		PriceOld:    input.PriceOld,
		PriceNew:    input.PriceNew,
		ImageURL:    input.ImageURL,
		Images:      input.Images,
		Unit:        input.Unit,
		CategoryID:  input.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	images, err := marshalImages(input.Images)
	if err != nil {
		return Product{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, fmt.Errorf("begin product tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, title, description, price_old, price_new, image_url, images, unit, category_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, p.ID, p.Title, p.Description, p.PriceOld, p.PriceNew, p.ImageURL, images, p.Unit, p.CategoryID, now)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}

	for _, variant := range input.Variants {
		variantID, err := uuid.NewV7()
		if err != nil {
			return Product{}, fmt.Errorf("generate variant id: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_variants (id, product_id, label, value, price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, variantID.String(), p.ID, variantLabelSize, variant.Value, variant.Price, now)
		if err != nil {
			return Product{}, fmt.Errorf("insert product variant: %w", err)
		}
		p.Variants = append(p.Variants, Variant{
			ID:        variantID.String(),
			ProductID: p.ID,
			Label:     variantLabelSize,
			Value:     variant.Value,
			Price:     variant.Price,
		})
	}

	if err := tx.Commit(); err != nil {
		return Product{}, fmt.Errorf("commit product tx: %w", err)
	}

	return p, nil
}

func (r *Repository) Update(ctx context.Context, id string, input ProductInput) (Product, error) {
	images, err := marshalImages(input.Images)
	if err != nil {
		return Product{}, err
	}

	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		UPDATE products
		SET title = $2, description = $3, price_old = $4, price_new = $5, image_url = $6, images = $7, unit = $8, category_id = $9, updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+productColumns+`
	`, id, input.Title, input.Description, input.PriceOld, input.PriceNew, input.ImageURL, images, input.Unit, input.CategoryID, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}

	variants, err := r.liveVariants(ctx, id)
	if err != nil {
		return Product{}, err
	}
	p.Variants = variants

	return p, nil
}

// UpdateVariants reconciles a product's variant set in one transaction:
// patches with an id update in place, patches without an id create, and
// live variants absent from the patch set are soft-deleted. The result
// must keep at least one variant.
func (r *Repository) UpdateVariants(ctx context.Context, productID string, patches []VariantPatch) ([]Variant, error) {
	if len(patches) == 0 {
		return nil, ErrVariantRequired
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin variants tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND deleted_at IS NULL)
	`, productID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, value FROM product_variants
		WHERE product_id = $1 AND deleted_at IS NULL
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query existing variants: %w", err)
	}

	existingValueByID := make(map[string]string)
	for rows.Next() {
		var variantID, value string
		if err := rows.Scan(&variantID, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan existing variant: %w", err)
		}
		existingValueByID[variantID] = value
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate existing variants: %w", err)
	}
	rows.Close()

	patchIDs := make(map[string]bool, len(patches))
	for _, patch := range patches {
		if patch.ID != "" {
			patchIDs[patch.ID] = true
		}
	}

	now := time.Now().UTC()
	for variantID := range existingValueByID {
		if patchIDs[variantID] {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE product_variants SET deleted_at = $2
			WHERE id = $1 AND deleted_at IS NULL
		`, variantID, now)
		if err != nil {
			return nil, fmt.Errorf("soft delete variant: %w", err)
		}
	}

	existingValues := make(map[string]bool, len(existingValueByID))
	for _, value := range existingValueByID {
		existingValues[value] = true
	}

	for _, patch := range patches {
		if patch.ID != "" {
			if _, ok := existingValueByID[patch.ID]; !ok {
				return nil, ErrVariantNotFound
			}
			_, err := tx.ExecContext(ctx, `
				UPDATE product_variants SET value = $3, price = $4
				WHERE id = $1 AND product_id = $2 AND deleted_at IS NULL
			`, patch.ID, productID, patch.Value, patch.Price)
			if err != nil {
				return nil, fmt.Errorf("update variant: %w", err)
			}
			continue
		}

		if existingValues[patch.Value] {
			continue
		}
		variantID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate variant id: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO product_variants (id, product_id, label, value, price, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, variantID.String(), productID, variantLabelSize, patch.Value, patch.Price, now)
		if err != nil {
			return nil, fmt.Errorf("insert variant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit variants tx: %w", err)
	}

	return r.liveVariants(ctx, productID)
}

// Delete soft-deletes: the row survives for order history.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET deleted_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *Repository) liveVariants(ctx context.Context, productID string) ([]Variant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+variantColumns+` FROM product_variants
		WHERE product_id = $1 AND deleted_at IS NULL
		ORDER BY value ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query product variants: %w", err)
	}
	defer rows.Close()

	variants := make([]Variant, 0)
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &v.Value, &v.Price); err != nil {
			return nil, fmt.Errorf("scan product variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product variants: %w", err)
	}

	return variants, nil
}

// attachVariants loads the live variants of every listed product in one
// query and distributes them onto the slice elements.
func (r *Repository) attachVariants(ctx context.Context, products []Product) error {
	if len(products) == 0 {
		return nil
	}

	placeholders := make([]string, len(products))
	args := make([]any, len(products))
	for i, p := range products {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = p.ID
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM product_variants
		WHERE product_id IN (%s) AND deleted_at IS NULL
		ORDER BY value ASC
	`, variantColumns, strings.Join(placeholders, ", ")), args...)
	if err != nil {
		return fmt.Errorf("query listed variants: %w", err)
	}
	defer rows.Close()

	variantsByProduct := make(map[string][]Variant)
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Label, &v.Value, &v.Price); err != nil {
			return fmt.Errorf("scan listed variant: %w", err)
		}
		variantsByProduct[v.ProductID] = append(variantsByProduct[v.ProductID], v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate listed variants: %w", err)
	}

	for i := range products {
		products[i].Variants = variantsByProduct[products[i].ID]
	}

	return nil
}

func marshalImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("encode product images: %w", err)
	}
	return encoded, nil
}
