package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

// importField names a target attribute of an imported row.
type importField string

const (
	fieldBarcode   importField = "barcode"
	fieldTitle     importField = "title"
	fieldCategory  importField = "category"
	fieldSubject   importField = "subject"
	fieldGrades    importField = "grades"
	fieldQuantity  importField = "quantity"
	fieldPurchased importField = "purchased"
	fieldDonated   importField = "donated"
	fieldPrice     importField = "price"
	fieldStatus    importField = "status"

	fieldStudentID importField = "student_id"
	fieldName      importField = "name"
	fieldClass     importField = "class"
	fieldContact   importField = "contact"
)

// Header aliases, matched after lower-casing and dropping non-alphanumerics.
var (
	bookColumnAliases = map[importField][]string{
		fieldBarcode:   {"barcode", "bookno", "booknumber", "accessionno", "accessionnumber", "isbn"},
		fieldTitle:     {"title", "booktitle", "bookname"},
		fieldCategory:  {"category", "genre", "section"},
		fieldSubject:   {"subject", "course"},
		fieldGrades:    {"grades", "grade", "gradelevel", "level", "form"},
		fieldQuantity:  {"quantity", "qty", "totalquantity", "copies", "totalcopies"},
		fieldPurchased: {"quantitypurchased", "purchased"},
		fieldDonated:   {"quantitydonated", "donated"},
		fieldPrice:     {"price", "cost", "unitprice", "replacementcost"},
		fieldStatus:    {"status", "condition"},
	}
	studentColumnAliases = map[importField][]string{
		fieldStudentID: {"registrationnumber", "registrationno", "regno", "studentid", "admissionnumber", "admissionno", "studentcode"},
		fieldName:      {"name", "studentname", "fullname"},
		fieldClass:     {"class", "classname", "stream"},
		fieldContact:   {"contact", "phone", "phonenumber", "email", "guardiancontact"},
	}

	bookRequiredColumns    = []importField{fieldBarcode, fieldTitle}
	studentRequiredColumns = []importField{fieldStudentID, fieldName}
)

var digitRun = regexp.MustCompile(`\d+`)

// ImportRow is the typed result of parsing one CSV record: either a value or the reason it
// was rejected.
type ImportRow[T any] struct {
	Line  int
	Value T
	Err   error
}

// columnMap resolves a header record against an alias table.
type columnMap map[importField]int

func normalizeHeader(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(raw, "\ufeff") {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func mapColumns(header []string, aliases map[importField][]string, required []importField) (columnMap, error) {
	lookup := make(map[string]importField)
	for field, names := range aliases {
		for _, name := range names {
			lookup[name] = field
		}
	}
	cols := columnMap{}
	for i, raw := range header {
		field, ok := lookup[normalizeHeader(raw)]
		if !ok {
			continue
		}
		if _, seen := cols[field]; !seen {
			cols[field] = i
		}
	}
	var missing []string
	for _, field := range required {
		if _, ok := cols[field]; !ok {
			missing = append(missing, string(field))
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, appErrors.Clone(appErrors.ErrValidation, "missing required columns: "+strings.Join(missing, ", "))
	}
	return cols, nil
}

func (c columnMap) value(record []string, field importField) string {
	idx, ok := c[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func (c columnMap) has(field importField) bool {
	_, ok := c[field]
	return ok
}

// parseGrades extracts every number from free text such as "Grade 7" or "7, 8 & 9".
func parseGrades(raw string) ([]int, error) {
	var grades []int
	for _, match := range digitRun.FindAllString(raw, -1) {
		grade, err := strconv.Atoi(match)
		if err != nil || grade < models.MinGrade || grade > models.MaxGrade {
			return nil, fmt.Errorf("grade %q out of range %d-%d", match, models.MinGrade, models.MaxGrade)
		}
		grades = append(grades, grade)
	}
	if len(grades) == 0 {
		return nil, fmt.Errorf("grade is required")
	}
	return grades, nil
}

func parseCount(raw string, field importField) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", field)
	}
	return n, nil
}

// parseBookRecord converts one catalog CSV record. Without a quantity column, purchased and
// donated copies are summed.
func parseBookRecord(cols columnMap, line int, record []string) ImportRow[dto.CreateBookRequest] {
	row := ImportRow[dto.CreateBookRequest]{Line: line}
	req := dto.CreateBookRequest{
		Barcode:  cols.value(record, fieldBarcode),
		Title:    cols.value(record, fieldTitle),
		Category: cols.value(record, fieldCategory),
		Subject:  cols.value(record, fieldSubject),
		Status:   strings.ToLower(cols.value(record, fieldStatus)),
	}
	if req.Barcode == "" || req.Title == "" {
		row.Err = fmt.Errorf("barcode and title are required")
		return row
	}
	if req.Subject == "" {
		req.Subject = req.Category
	}

	grades, err := parseGrades(cols.value(record, fieldGrades))
	if err != nil {
		row.Err = err
		return row
	}
	req.Grades = grades

	if cols.has(fieldQuantity) {
		req.Quantity, err = parseCount(cols.value(record, fieldQuantity), fieldQuantity)
	} else {
		var purchased, donated int
		purchased, err = parseCount(cols.value(record, fieldPurchased), fieldPurchased)
		if err == nil {
			donated, err = parseCount(cols.value(record, fieldDonated), fieldDonated)
		}
		req.Quantity = purchased + donated
	}
	if err != nil {
		row.Err = err
		return row
	}

	if raw := strings.TrimPrefix(cols.value(record, fieldPrice), "$"); raw != "" {
		price, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil || price < 0 {
			row.Err = fmt.Errorf("price must be a non-negative number")
			return row
		}
		req.Price = price
	}
	if req.Status != "" && !models.BookStatus(req.Status).Valid() {
		row.Err = fmt.Errorf("unknown status %q", req.Status)
		return row
	}
	row.Value = req
	return row
}

// parseStudentRecord converts one student CSV record.
func parseStudentRecord(cols columnMap, line int, record []string) ImportRow[dto.CreateStudentRequest] {
	row := ImportRow[dto.CreateStudentRequest]{Line: line}
	req := dto.CreateStudentRequest{
		StudentID: cols.value(record, fieldStudentID),
		Name:      cols.value(record, fieldName),
		Class:     cols.value(record, fieldClass),
	}
	if contact := cols.value(record, fieldContact); contact != "" {
		req.Contact = &contact
	}
	if req.StudentID == "" || req.Name == "" {
		row.Err = fmt.Errorf("registration number and name are required")
		return row
	}
	row.Value = req
	return row
}

type bookCreator interface {
	Create(ctx context.Context, req dto.CreateBookRequest) (*models.Book, error)
}

type studentCreator interface {
	Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error)
}

// ImportService loads books and students from CSV files through the regular create paths.
type ImportService struct {
	books    bookCreator
	students studentCreator
	metrics  *MetricsService
	logger   *zap.Logger
	maxRows  int
}

// NewImportService constructs the import service.
func NewImportService(books bookCreator, students studentCreator, metrics *MetricsService, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{books: books, students: students, metrics: metrics, logger: logger, maxRows: 5000}
}

// ImportBooks creates one book per valid row. Invalid rows are reported, not fatal.
func (s *ImportService) ImportBooks(ctx context.Context, r io.Reader) (*dto.ImportReport, error) {
	return runImport(ctx, s, "books", r, bookColumnAliases, bookRequiredColumns, parseBookRecord,
		func(ctx context.Context, req dto.CreateBookRequest) error {
			_, err := s.books.Create(ctx, req)
			return err
		})
}

// ImportStudents creates one student per valid row.
func (s *ImportService) ImportStudents(ctx context.Context, r io.Reader) (*dto.ImportReport, error) {
	return runImport(ctx, s, "students", r, studentColumnAliases, studentRequiredColumns, parseStudentRecord,
		func(ctx context.Context, req dto.CreateStudentRequest) error {
			_, err := s.students.Create(ctx, req)
			return err
		})
}

func runImport[T any](
	ctx context.Context,
	s *ImportService,
	entity string,
	r io.Reader,
	aliases map[importField][]string,
	required []importField,
	parse func(columnMap, int, []string) ImportRow[T],
	create func(context.Context, T) error,
) (*dto.ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "csv file is empty")
		}
		return nil, validationError(err, "unreadable csv header")
	}
	cols, err := mapColumns(header, aliases, required)
	if err != nil {
		return nil, err
	}

	report := &dto.ImportReport{Entity: entity}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, validationError(err, "malformed csv")
		}
		// the reader skips empty lines, so ask it where the record started
		line, _ := reader.FieldPos(0)
		if blankRecord(record) {
			continue
		}
		report.Total++
		if report.Total > s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("csv exceeds %d rows", s.maxRows))
		}

		row := parse(cols, line, record)
		if row.Err == nil {
			row.Err = create(ctx, row.Value)
		}
		if row.Err != nil {
			report.Failed++
			report.Errors = append(report.Errors, dto.ImportRowError{Line: row.Line, Message: importMessage(row.Err)})
			s.metrics.RecordImportRow(entity, false)
			continue
		}
		report.Imported++
		s.metrics.RecordImportRow(entity, true)
	}

	s.logger.Info("csv import finished", zap.String("entity", entity), zap.Int("imported", report.Imported), zap.Int("failed", report.Failed))
	return report, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func importMessage(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
