package order

import "time"

// taxRate is the flat rate applied to every order.
const taxRate = 0.1

type Order struct {
	ID         string      `json:"id"`
	UserID     string      `json:"user_id"`
	TotalPrice float64     `json:"total_price"`
	Tax        float64     `json:"tax"`
	Status     string      `json:"status"`
	Items      []OrderItem `json:"items,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

type OrderItem struct {
	ProductID    string  `json:"product_id"`
	ProductTitle string  `json:"product_title"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
}

type CreateOrderInput struct {
	UserID string
	Items  []CreateOrderItem
}

type CreateOrderItem struct {
	ProductID string
	Quantity  int
}

type ListQuery struct {
	UserID   string
	Page     int
	PageSize int
}

type Page struct {
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Results  []Order `json:"results"`
}
