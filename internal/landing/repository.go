package landing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPageNotFound = errors.New("landing page not found")
	// ErrCardLimit is returned when an upsert would exceed the page's
	// allowed card count.
	ErrCardLimit = errors.New("card limit exceeded")
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const metadataColumns = `id, page, title, description, background_image, background_color, created_at, updated_at`
const cardColumns = `id, page, title, description, icon, content, image, background_color, numerical_order`

func scanMetadata(row interface{ Scan(...any) error }) (Metadata, error) {
	var m Metadata
	err := row.Scan(
		&m.ID, &m.Page, &m.Title, &m.Description,
		&m.BackgroundImage, &m.BackgroundColor, &m.CreatedAt, &m.UpdatedAt,
	)
	return m, err
}

func (r *Repository) GetAll(ctx context.Context) ([]PageContent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+metadataColumns+` FROM landing_metadata ORDER BY page ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query landing metadata: %w", err)
	}
	defer rows.Close()

	pages := make([]PageContent, 0)
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan landing metadata: %w", err)
		}
		pages = append(pages, PageContent{Metadata: m})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate landing metadata: %w", err)
	}

	for i := range pages {
		cards, err := r.cardsForPage(ctx, pages[i].Metadata.Page)
		if err != nil {
			return nil, err
		}
		pages[i].Cards = cards
	}

	return pages, nil
}

func (r *Repository) GetPage(ctx context.Context, page string) (PageContent, error) {
	m, err := scanMetadata(r.db.QueryRowContext(ctx, `
		SELECT `+metadataColumns+` FROM landing_metadata WHERE page = $1
	`, page))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PageContent{}, ErrPageNotFound
		}
		return PageContent{}, fmt.Errorf("query landing page: %w", err)
	}

	cards, err := r.cardsForPage(ctx, page)
	if err != nil {
		return PageContent{}, err
	}

	return PageContent{Metadata: m, Cards: cards}, nil
}

func (r *Repository) cardsForPage(ctx context.Context, page string) ([]Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM landing_cards
		WHERE page = $1
		ORDER BY numerical_order ASC
	`, page)
	if err != nil {
		return nil, fmt.Errorf("query landing cards: %w", err)
	}
	defer rows.Close()

	cards := make([]Card, 0)
	for rows.Next() {
		var c Card
		if err := rows.Scan(
			&c.ID, &c.Page, &c.Title, &c.Description, &c.Icon,
			&c.Content, &c.Image, &c.BackgroundColor, &c.NumericalOrder,
		); err != nil {
			return nil, fmt.Errorf("scan landing card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate landing cards: %w", err)
	}

	return cards, nil
}

// Upsert replaces a page's metadata and applies card create/updates in
// one transaction, enforcing the per-page card limit.
func (r *Repository) Upsert(ctx context.Context, page string, input UpsertInput) (PageContent, error) {
	limit := cardLimit(page)
	if len(input.Cards) > limit {
		return PageContent{}, fmt.Errorf("%w: maximum allowed %d", ErrCardLimit, limit)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return PageContent{}, fmt.Errorf("begin landing upsert tx: %w", err)
	}
	defer tx.Rollback()

	var existingCards int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM landing_cards WHERE page = $1
	`, page).Scan(&existingCards); err != nil {
		return PageContent{}, fmt.Errorf("count landing cards: %w", err)
	}

	newCards := 0
	for _, card := range input.Cards {
		if card.ID == "" {
			newCards++
		}
	}
	if existingCards+newCards > limit {
		return PageContent{}, fmt.Errorf("%w: existing %d, adding %d, limit %d", ErrCardLimit, existingCards, newCards, limit)
	}

	now := time.Now().UTC()

	metadataID, err := uuid.NewV7()
	if err != nil {
		return PageContent{}, fmt.Errorf("generate metadata id: %w", err)
	}
	m, err := scanMetadata(tx.QueryRowContext(ctx, `
		INSERT INTO landing_metadata (id, page, title, description, background_image, background_color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (page) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			background_image = EXCLUDED.background_image,
			background_color = EXCLUDED.background_color,
			updated_at = EXCLUDED.updated_at
		RETURNING `+metadataColumns,
		metadataID.String(), page, input.Metadata.Title, input.Metadata.Description,
		input.Metadata.BackgroundImage, input.Metadata.BackgroundColor, now))
	if err != nil {
		return PageContent{}, fmt.Errorf("upsert landing metadata: %w", err)
	}

	for _, card := range input.Cards {
		content := card.Content
		if len(content) == 0 {
			content = []byte("null")
		}

		if card.ID == "" {
			cardID, err := uuid.NewV7()
			if err != nil {
				return PageContent{}, fmt.Errorf("generate card id: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO landing_cards (id, page, title, description, icon, content, image, background_color, numerical_order)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, cardID.String(), page, card.Title, card.Description, card.Icon,
				[]byte(content), card.Image, card.BackgroundColor, card.NumericalOrder)
			if err != nil {
				return PageContent{}, fmt.Errorf("insert landing card: %w", err)
			}
			continue
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE landing_cards
			SET title = $3, description = $4, icon = $5, content = $6, image = $7, background_color = $8, numerical_order = $9
			WHERE id = $1 AND page = $2
		`, card.ID, page, card.Title, card.Description, card.Icon,
			[]byte(content), card.Image, card.BackgroundColor, card.NumericalOrder)
		if err != nil {
			return PageContent{}, fmt.Errorf("update landing card: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return PageContent{}, fmt.Errorf("update landing card rows affected: %w", err)
		}
		if affected == 0 {
			return PageContent{}, fmt.Errorf("landing card %s not found on page %s", card.ID, page)
		}
	}

	if err := tx.Commit(); err != nil {
		return PageContent{}, fmt.Errorf("commit landing upsert tx: %w", err)
	}

	cards, err := r.cardsForPage(ctx, page)
	if err != nil {
		return PageContent{}, err
	}

	return PageContent{Metadata: m, Cards: cards}, nil
}
