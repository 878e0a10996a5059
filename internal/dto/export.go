package dto

import "time"

// ExportRequest selects the dataset and output format of an export.
type ExportRequest struct {
	Resource string `json:"resource" validate:"required,oneof=books students transactions debts audit"`
	Format   string `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportResult points at a generated export through a signed, expiring download URL.
type ExportResult struct {
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	Rows      int       `json:"rows"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
