package orders

import "time"

type Order struct {
	ID         string
	UserID     string
	Status     Status
	TotalCents int64
	Lines      []OrderLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type OrderLine struct {
	ID             string
	OrderID        string
	ProductID      string
	ProductName    string
	UnitPriceCents int64 // harga di-copy saat order dibuat
	Qty            int
}

func (l OrderLine) SubtotalCents() int64 { return l.UnitPriceCents * int64(l.Qty) }

// LinesTotal recomputes the total from the lines; always equals TotalCents.
func (o Order) LinesTotal() int64 {
	var sum int64
	for _, l := range o.Lines {
		sum += l.SubtotalCents()
	}
	return sum
}

type LineInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"quantity"`
}

type OrderSummary struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Status     Status    `json:"status"`
	TotalCents int64     `json:"total_price"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type OrderLineView struct {
	ID             string `json:"id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	UnitPriceCents int64  `json:"price"`
	Qty            int    `json:"quantity"`
}

type OrderDetail struct {
	OrderSummary
	Items []OrderLineView `json:"items"`
}

type ListQuery struct {
	Status string
	Page   int
	Size   int
}

type Page[T any] struct {
	Items         []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"total_elements"`
	TotalPages    int `json:"total_pages"`
}

func (o Order) Summary() OrderSummary {
	return OrderSummary{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func (o Order) Detail() OrderDetail {
	items := make([]OrderLineView, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, OrderLineView{
			ID:             l.ID,
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			UnitPriceCents: l.UnitPriceCents,
			Qty:            l.Qty,
		})
	}
	return OrderDetail{OrderSummary: o.Summary(), Items: items}
}
