package dto

// ImportRowError describes a rejected CSV row. Line is 1-based and counts the header.
type ImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportReport summarises a CSV import.
type ImportReport struct {
	Entity   string           `json:"entity"`
	Total    int              `json:"total"`
	Imported int              `json:"imported"`
	Failed   int              `json:"failed"`
	Errors   []ImportRowError `json:"errors,omitempty"`
}
