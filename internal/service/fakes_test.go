package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/sma-library-api/internal/models"
)

// memStore is an in-memory stand-in for the SQL repositories. WithinTx restores the previous
// state when fn fails.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	books    map[int64]models.Book
	students map[int64]models.Student
	txns     map[int64]models.Transaction
	debts    map[int64]models.BadDebt
	audits   []models.AuditLog

	failAdjust     error
	failDebtCreate error
	failAudit      error
	adjustCalls    []int
}

func newMemStore() *memStore {
	return &memStore{
		books:    map[int64]models.Book{},
		students: map[int64]models.Student{},
		txns:     map[int64]models.Transaction{},
		debts:    map[int64]models.BadDebt{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memSnapshot struct {
	books    map[int64]models.Book
	students map[int64]models.Student
	txns     map[int64]models.Transaction
	debts    map[int64]models.BadDebt
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	snap := memSnapshot{copyMap(m.books), copyMap(m.students), copyMap(m.txns), copyMap(m.debts)}
	m.mu.Unlock()
	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.books, m.students, m.txns, m.debts = snap.books, snap.students, snap.txns, snap.debts
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) seedBook(b models.Book) models.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.id()
	if b.Status == "" {
		b.Status = models.BookStatusActive
	}
	if b.Grades == nil {
		b.Grades = []int{7}
	}
	m.books[b.ID] = b
	return b
}

func (m *memStore) seedStudent(s models.Student) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.students[s.ID] = s
	return s
}

func (m *memStore) book(id int64) models.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id]
}

func (m *memStore) txnsByAction(action models.TransactionAction) []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, t := range m.txns {
		if t.Action == action {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) auditLogs() []models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AuditLog(nil), m.audits...)
}

// memBooks implements the catalog interfaces.
type memBooks struct{ *memStore }

func (b memBooks) List(_ context.Context, filter models.BookFilter) ([]models.Book, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var all []models.Book
	for _, book := range b.books {
		all = append(all, book)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pageOf(all, filter.Page, filter.PageSize), len(all), nil
}

func (b memBooks) FindByID(_ context.Context, id int64) (*models.Book, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	book, ok := b.books[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	book.Grades = append([]int(nil), book.Grades...)
	return &book, nil
}

func (b memBooks) FindByReference(_ context.Context, ref string) (*models.Book, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, book := range b.books {
		if book.Barcode == ref || strings.EqualFold(book.Title, ref) {
			return &book, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (b memBooks) ExistsByBarcode(_ context.Context, barcode string, excludeID int64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, book := range b.books {
		if book.Barcode == barcode && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (b memBooks) Create(_ context.Context, book *models.Book) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	book.ID = b.id()
	b.books[book.ID] = *book
	return nil
}

func (b memBooks) Update(_ context.Context, book *models.Book) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.books[book.ID]; !ok {
		return sql.ErrNoRows
	}
	b.books[book.ID] = *book
	return nil
}

func (b memBooks) Delete(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.books[id]; !ok {
		return sql.ErrNoRows
	}
	delete(b.books, id)
	return nil
}

func (b memBooks) AdjustAvailability(_ context.Context, id int64, delta int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAdjust != nil {
		return 0, b.failAdjust
	}
	book, ok := b.books[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	b.adjustCalls = append(b.adjustCalls, delta)
	book.AvailableQuantity = clampAvailable(book.AvailableQuantity+delta, book.Quantity)
	b.books[id] = book
	return book.AvailableQuantity, nil
}

func (b memBooks) Totals(_ context.Context) (models.CatalogTotals, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var totals models.CatalogTotals
	for _, book := range b.books {
		totals.Titles++
		totals.Copies += book.Quantity
		totals.Available += book.AvailableQuantity
	}
	return totals, nil
}

// memStudents implements the student interfaces.
type memStudents struct{ *memStore }

func (s memStudents) List(_ context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Student
	for _, st := range s.students {
		all = append(all, st)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pageOf(all, filter.Page, filter.PageSize), len(all), nil
}

func (s memStudents) FindByID(_ context.Context, id int64) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &st, nil
}

func (s memStudents) FindByCode(_ context.Context, code string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.StudentID == code {
			return &st, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s memStudents) ExistsByCode(_ context.Context, code string, excludeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.students {
		if st.StudentID == code && id != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s memStudents) Create(_ context.Context, st *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = s.id()
	s.students[st.ID] = *st
	return nil
}

func (s memStudents) Update(_ context.Context, st *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[st.ID]; !ok {
		return sql.ErrNoRows
	}
	s.students[st.ID] = *st
	return nil
}

func (s memStudents) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.students, id)
	return nil
}

// memLedger implements the transaction interfaces.
type memLedger struct{ *memStore }

func (l memLedger) List(_ context.Context, filter models.TransactionFilter) ([]models.TransactionDetail, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var all []models.TransactionDetail
	for _, t := range l.txns {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		detail := models.TransactionDetail{Transaction: t, BookTitle: models.UnknownBookTitle, StudentName: models.UnknownStudentName}
		if b, ok := l.books[t.BookID]; ok {
			detail.BookTitle = b.Title
		}
		if s, ok := l.students[t.StudentID]; ok {
			detail.StudentName = s.Name
		}
		all = append(all, detail)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return pageOf(all, filter.Page, filter.PageSize), len(all), nil
}

func (l memLedger) FindByID(_ context.Context, id int64) (*models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txns[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (l memLedger) FindActiveLoan(_ context.Context, bookID, studentID int64) (*models.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var found *models.Transaction
	for _, t := range l.txns {
		if t.BookID != bookID || t.Status != models.TransactionActive {
			continue
		}
		if studentID > 0 && t.StudentID != studentID {
			continue
		}
		if found == nil || t.ID < found.ID {
			candidate := t
			found = &candidate
		}
	}
	if found == nil {
		return nil, sql.ErrNoRows
	}
	return found, nil
}

func (l memLedger) Create(_ context.Context, t *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.ID = l.id()
	l.txns[t.ID] = *t
	return nil
}

func (l memLedger) Update(_ context.Context, t *models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.txns[t.ID]; !ok {
		return sql.ErrNoRows
	}
	l.txns[t.ID] = *t
	return nil
}

func (l memLedger) CountActive(_ context.Context, now time.Time) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	active, overdue := 0, 0
	for _, t := range l.txns {
		if t.Status != models.TransactionActive {
			continue
		}
		active++
		if t.IsOverdue(now) {
			overdue++
		}
	}
	return active, overdue, nil
}

func (l memLedger) TopBorrowed(_ context.Context, limit int) ([]models.TopBook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := map[int64]int{}
	for _, t := range l.txns {
		if t.Action != models.ActionReturn {
			counts[t.BookID]++
		}
	}
	var top []models.TopBook
	for id, n := range counts {
		title := models.UnknownBookTitle
		if b, ok := l.books[id]; ok {
			title = b.Title
		}
		top = append(top, models.TopBook{BookID: id, Title: title, Borrows: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Borrows != top[j].Borrows {
			return top[i].Borrows > top[j].Borrows
		}
		return top[i].BookID < top[j].BookID
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

// memDebts implements the debt interfaces.
type memDebts struct{ *memStore }

func (d memDebts) List(_ context.Context, filter models.BadDebtFilter) ([]models.BadDebtDetail, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var all []models.BadDebtDetail
	for _, debt := range d.debts {
		if filter.Status != "" && debt.Status != filter.Status {
			continue
		}
		all = append(all, models.BadDebtDetail{BadDebt: debt, BookTitle: d.books[debt.BookID].Title, StudentName: d.students[debt.StudentID].Name})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pageOf(all, filter.Page, filter.PageSize), len(all), nil
}

func (d memDebts) FindByID(_ context.Context, id int64) (*models.BadDebt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	debt, ok := d.debts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &debt, nil
}

func (d memDebts) ExistsForTransaction(_ context.Context, transactionID int64) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, debt := range d.debts {
		if debt.TransactionID == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (d memDebts) Create(_ context.Context, debt *models.BadDebt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failDebtCreate != nil {
		return d.failDebtCreate
	}
	debt.ID = d.id()
	d.debts[debt.ID] = *debt
	return nil
}

func (d memDebts) Update(_ context.Context, debt *models.BadDebt) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.debts[debt.ID]; !ok {
		return sql.ErrNoRows
	}
	d.debts[debt.ID] = *debt
	return nil
}

func (d memDebts) PendingTotals(_ context.Context) (models.DebtTotals, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var totals models.DebtTotals
	for _, debt := range d.debts {
		if debt.Status == models.DebtPending {
			totals.Count++
			totals.Amount += debt.Amount
		}
	}
	return totals, nil
}

// memAudit implements the audit store.
type memAudit struct{ *memStore }

func (a memAudit) Create(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAudit != nil {
		return a.failAudit
	}
	log.ID = a.id()
	a.audits = append(a.audits, *log)
	return nil
}

func (a memAudit) List(_ context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var all []models.AuditLog
	for i := len(a.audits) - 1; i >= 0; i-- {
		log := a.audits[i]
		if filter.RiskLevel != "" && log.RiskLevel != filter.RiskLevel {
			continue
		}
		all = append(all, log)
	}
	return pageOf(all, filter.Page, filter.PageSize), len(all), nil
}

func pageOf[T any](all []T, page, size int) []T {
	_, size, offset := models.NormalizePage(page, size)
	if offset >= len(all) {
		return []T{}
	}
	end := offset + size
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// library wires real services over one memStore.
type library struct {
	store       *memStore
	audit       *AuditService
	books       *BookService
	students    *StudentService
	circulation *CirculationService
	debts       *DebtService
	now         time.Time
}

func newLibrary() *library {
	store := newMemStore()
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	locks := NewBookLocks()

	audit := NewAuditService(memAudit{store}, nil, WithAuditClock(clock))
	lib := &library{store: store, audit: audit, now: now}
	lib.books = NewBookService(memBooks{store}, store, audit, nil, nil, WithBookLocks(locks))
	lib.students = NewStudentService(memStudents{store}, audit, nil, nil)
	lib.circulation = NewCirculationService(CirculationStores{
		Books:    memBooks{store},
		Students: memStudents{store},
		Ledger:   memLedger{store},
		Debts:    memDebts{store},
	}, store, audit, nil, nil, WithCirculationClock(clock), WithCirculationLocks(locks))
	lib.debts = NewDebtService(memDebts{store}, memLedger{store}, memBooks{store}, store, audit, nil, nil, WithDebtClock(clock))
	return lib
}
