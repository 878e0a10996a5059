package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

func TestImportBooksWithAliasedHeaders(t *testing.T) {
	lib := newLibrary()
	svc := NewImportService(lib.books, lib.students, NewMetricsService(), nil)

	csv := "\ufeffBook No,Book Title,Category,Grade Level,Quantity Purchased,Quantity Donated,Cost\n" +
		"001,Strange Happenings,English,\"Grade 7, 8\",10,5,850\n" +
		"\n" +
		"002,Missing Grade,English,,1,0,100\n" +
		"001,Duplicate,English,7,1,0,100\n" +
		"003,Bad Count,English,7,many,0,100\n"

	report, err := svc.ImportBooks(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, "books", report.Entity)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 3, report.Failed)

	lines := make([]int, 0, len(report.Errors))
	for _, rowErr := range report.Errors {
		lines = append(lines, rowErr.Line)
	}
	assert.Equal(t, []int{4, 5, 6}, lines)
	assert.Equal(t, "barcode already used", report.Errors[1].Message)

	book := lib.store.book(1)
	assert.Equal(t, "Strange Happenings", book.Title)
	assert.Equal(t, []int{7, 8}, book.Grades)
	assert.Equal(t, 15, book.Quantity)
	assert.Equal(t, 15, book.AvailableQuantity)
	assert.Equal(t, "English", book.Subject)
	assert.Equal(t, 850.0, book.Price)
}

func TestImportBooksRequiresColumns(t *testing.T) {
	lib := newLibrary()
	svc := NewImportService(lib.books, lib.students, nil, nil)

	_, err := svc.ImportBooks(context.Background(), strings.NewReader("title,grade\nAtlas,7\n"))
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Contains(t, err.Error(), "barcode")

	_, err = svc.ImportBooks(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestImportStudents(t *testing.T) {
	lib := newLibrary()
	svc := NewImportService(lib.books, lib.students, nil, nil)

	csv := "Registration Number,Student Name,Stream,Phone\n" +
		"REG-1,Amina Yusuf,7B,0712000000\n" +
		"REG-2,,7B,\n"

	report, err := svc.ImportStudents(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 3, report.Errors[0].Line)

	students, _, err := lib.students.List(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "REG-1", students[0].StudentID)
	assert.Equal(t, "7B", students[0].Class)
	require.NotNil(t, students[0].Contact)
}

func TestParseGrades(t *testing.T) {
	grades, err := parseGrades("Form 1 & 2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, grades)

	_, err = parseGrades("Grade 13")
	assert.Error(t, err)

	_, err = parseGrades("all")
	assert.Error(t, err)
}

func TestImportBooksPrefersQuantityColumn(t *testing.T) {
	lib := newLibrary()
	svc := NewImportService(lib.books, lib.students, nil, nil)

	csv := "barcode,title,grades,qty,purchased,price,status\n001,Atlas,9,4,10,\"$1,200\",Damaged\n"
	report, err := svc.ImportBooks(context.Background(), strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported, report.Errors)

	book := lib.store.book(1)
	assert.Equal(t, 4, book.Quantity)
	assert.Equal(t, 1200.0, book.Price)
	assert.Equal(t, models.BookStatusDamaged, book.Status)
}
