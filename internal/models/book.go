package models

// BookStatus describes the physical state of a catalog entry.
type BookStatus string

const (
	BookStatusActive  BookStatus = "active"
	BookStatusLost    BookStatus = "lost"
	BookStatusDamaged BookStatus = "damaged"
)

// Valid reports whether the status is one of the known values.
func (s BookStatus) Valid() bool {
	switch s {
	case BookStatusActive, BookStatusLost, BookStatusDamaged:
		return true
	}
	return false
}

// Grade bounds accepted by the catalog.
const (
	MinGrade = 1
	MaxGrade = 12
)

// Book is a catalog entry. AvailableQuantity always stays within [0, Quantity].
type Book struct {
	ID                int64      `db:"id" json:"id"`
	Barcode           string     `db:"barcode" json:"barcode"`
	Title             string     `db:"title" json:"title"`
	Category          string     `db:"category" json:"category"`
	Subject           string     `db:"subject" json:"subject"`
	Grades            []int      `db:"-" json:"grades"`
	Quantity          int        `db:"quantity" json:"quantity"`
	AvailableQuantity int        `db:"available_quantity" json:"available_quantity"`
	Price             float64    `db:"price" json:"price"`
	Status            BookStatus `db:"status" json:"status"`
}

// OnLoan returns how many copies are currently out.
func (b Book) OnLoan() int {
	return b.Quantity - b.AvailableQuantity
}

// RiskSnapshot exposes the fields the risk rules inspect.
func (b *Book) RiskSnapshot() *RiskSnapshot {
	if b == nil {
		return nil
	}
	quantity := b.Quantity
	available := b.AvailableQuantity
	price := b.Price
	return &RiskSnapshot{
		Quantity:          &quantity,
		AvailableQuantity: &available,
		Price:             &price,
		Status:            string(b.Status),
	}
}

// BookFilter narrows catalog listings.
type BookFilter struct {
	Search   string
	Category string
	Subject  string
	Grade    int
	Status   BookStatus
	Page     int
	PageSize int
}
