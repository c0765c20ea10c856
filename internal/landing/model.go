package landing

import (
	"encoding/json"
	"time"
)

// Card limits per page; the information page carries one extra slot.
const (
	pageInformation  = "information"
	defaultCardLimit = 5
	infoCardLimit    = 6
)

func cardLimit(page string) int {
	if page == pageInformation {
		return infoCardLimit
	}
	return defaultCardLimit
}

type Metadata struct {
	ID              string    `json:"id"`
	Page            string    `json:"page"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	BackgroundImage string    `json:"background_image"`
	BackgroundColor string    `json:"background_color"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Card struct {
	ID              string          `json:"id"`
	Page            string          `json:"page"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Icon            string          `json:"icon"`
	Content         json.RawMessage `json:"content"`
	Image           string          `json:"image"`
	BackgroundColor string          `json:"background_color"`
	NumericalOrder  int             `json:"numerical_order"`
}

type PageContent struct {
	Metadata Metadata `json:"metadata"`
	Cards    []Card   `json:"cards"`
}

type MetadataInput struct {
	Title           string
	Description     string
	BackgroundImage string
	BackgroundColor string
}

// CardInput with an empty ID creates a new card; otherwise it updates
// the existing one in place.
type CardInput struct {
	ID              string
	Title           string
	Description     string
	Icon            string
	Content         json.RawMessage
	Image           string
	BackgroundColor string
	NumericalOrder  int
}

type UpsertInput struct {
	Metadata MetadataInput
	Cards    []CardInput
}
