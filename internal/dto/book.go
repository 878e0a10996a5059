package dto

// CreateBookRequest registers a catalog entry. Available copies start equal to quantity.
type CreateBookRequest struct {
	Barcode  string  `json:"barcode" validate:"required,max=64"`
	Title    string  `json:"title" validate:"required,max=255"`
	Category string  `json:"category" validate:"max=100"`
	Subject  string  `json:"subject" validate:"max=100"`
	Grades   []int   `json:"grades" validate:"required,min=1,dive,min=1,max=12"`
	Quantity int     `json:"quantity" validate:"min=0"`
	Price    float64 `json:"price" validate:"min=0"`
	Status   string  `json:"status" validate:"omitempty,oneof=active lost damaged"`
}

// UpdateBookRequest patches a catalog entry. Nil fields are left unchanged.
type UpdateBookRequest struct {
	Barcode  *string  `json:"barcode" validate:"omitempty,min=1,max=64"`
	Title    *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Category *string  `json:"category" validate:"omitempty,max=100"`
	Subject  *string  `json:"subject" validate:"omitempty,max=100"`
	Grades   []int    `json:"grades" validate:"omitempty,dive,min=1,max=12"`
	Quantity *int     `json:"quantity" validate:"omitempty,min=0"`
	Price    *float64 `json:"price" validate:"omitempty,min=0"`
	Status   *string  `json:"status" validate:"omitempty,oneof=active lost damaged"`
}
