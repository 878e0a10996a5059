package service

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
	"github.com/noah-isme/sma-library-api/pkg/storage"
)

func newExportFixture(t *testing.T) (*library, *ExportService, *storage.LocalStorage) {
	t.Helper()
	lib := newLibrary()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	svc := NewExportService(ExportSources{
		Books:        memBooks{lib.store},
		Students:     memStudents{lib.store},
		Transactions: memLedger{lib.store},
		Debts:        memDebts{lib.store},
		Audit:        memAudit{lib.store},
	}, store, storage.NewSignedURLSigner("secret", time.Hour), ExportConfig{APIPrefix: "/api/v1/"}, nil, nil)
	return lib, svc, store
}

func tokenOf(t *testing.T, rawURL string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/exports/download", parsed.Path)
	return parsed.Query().Get("token")
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	lib, svc, _ := newExportFixture(t)
	lib.store.seedBook(models.Book{Barcode: "001", Title: "Atlas, World", Grades: []int{7, 8}, Quantity: 3, AvailableQuantity: 2, Price: 12.5})

	result, err := svc.Generate(context.Background(), dto.ExportRequest{Resource: "books", Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rows)
	assert.True(t, strings.HasPrefix(result.Filename, "books_"))
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	download, err := svc.Open(context.Background(), tokenOf(t, result.URL))
	require.NoError(t, err)
	defer download.Body.Close()
	assert.Equal(t, result.Filename, download.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)

	body, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "ID,Barcode,Title,Category,Subject,Grades,Quantity,Available,Price,Status", lines[0])
	assert.Equal(t, `1,001,"Atlas, World",,,7 8,3,2,12.50,active`, lines[1])
}

func TestExportServicePDF(t *testing.T) {
	lib, svc, _ := newExportFixture(t)
	lib.store.seedStudent(models.Student{StudentID: "S1", Name: "Amina"})

	result, err := svc.Generate(context.Background(), dto.ExportRequest{Resource: "students", Format: "pdf"})
	require.NoError(t, err)

	download, err := svc.Open(context.Background(), tokenOf(t, result.URL))
	require.NoError(t, err)
	defer download.Body.Close()
	body, err := io.ReadAll(download.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))
	assert.Equal(t, "application/pdf", download.ContentType)
}

func TestExportServiceRejectsBadRequests(t *testing.T) {
	_, svc, _ := newExportFixture(t)

	_, err := svc.Generate(context.Background(), dto.ExportRequest{Resource: "grades", Format: "csv"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Generate(context.Background(), dto.ExportRequest{Resource: "books", Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Open(context.Background(), "garbage")
	assert.ErrorIs(t, err, appErrors.ErrInvalidCapability)
}

func TestExportServiceMissingFile(t *testing.T) {
	_, svc, store := newExportFixture(t)

	result, err := svc.Generate(context.Background(), dto.ExportRequest{Resource: "audit", Format: "csv"})
	require.NoError(t, err)
	assert.Zero(t, result.Rows)

	token := tokenOf(t, result.URL)
	_, key, _, err := svc.signer.Parse(token)
	require.NoError(t, err)
	require.NoError(t, store.Delete(context.Background(), key))

	_, err = svc.Open(context.Background(), token)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
