package models

// Student is a borrower registered with the library.
type Student struct {
	ID        int64   `db:"id" json:"id"`
	StudentID string  `db:"student_code" json:"student_id"`
	Name      string  `db:"name" json:"name"`
	Class     string  `db:"class_name" json:"class"`
	Contact   *string `db:"contact" json:"contact,omitempty"`
}

// RiskSnapshot returns an empty snapshot; no rule inspects student fields.
func (s *Student) RiskSnapshot() *RiskSnapshot {
	if s == nil {
		return nil
	}
	return &RiskSnapshot{}
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Class    string
	Page     int
	PageSize int
}
