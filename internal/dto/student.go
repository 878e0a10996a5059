package dto

// CreateStudentRequest registers a borrower.
type CreateStudentRequest struct {
	StudentID string  `json:"studentId" validate:"required,max=64"`
	Name      string  `json:"name" validate:"required,max=255"`
	Class     string  `json:"class" validate:"max=64"`
	Contact   *string `json:"contact" validate:"omitempty,max=255"`
}

// UpdateStudentRequest patches a borrower. Nil fields are left unchanged.
type UpdateStudentRequest struct {
	StudentID *string `json:"studentId" validate:"omitempty,min=1,max=64"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=255"`
	Class     *string `json:"class" validate:"omitempty,max=64"`
	Contact   *string `json:"contact" validate:"omitempty,max=255"`
}
