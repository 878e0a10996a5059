package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-library-api/internal/models"
)

const studentColumns = "s.id, s.student_code, s.name, COALESCE(s.class_name, '') AS class_name, s.contact"

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching the provided filters ordered by name.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	q := conn(ctx, r.db)
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Class != "" {
		conditions = append(conditions, "s.class_name = ?")
		args = append(args, filter.Class)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(s.name) LIKE ? OR LOWER(s.student_code) LIKE ?)")
		like := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, like, like)
	}
	where := strings.Join(conditions, " AND ")
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM students s WHERE %s ORDER BY s.name ASC, s.id ASC LIMIT %d OFFSET %d", studentColumns, where, size, offset)
	var students []models.Student
	if err := q.SelectContext(ctx, &students, q.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := q.GetContext(ctx, &total, q.Rebind("SELECT COUNT(*) FROM students s WHERE "+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by primary key.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	q := conn(ctx, r.db)
	var student models.Student
	if err := q.GetContext(ctx, &student, q.Rebind("SELECT "+studentColumns+" FROM students s WHERE s.id = ?"), id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByCode fetches a student by the school registration number.
func (r *StudentRepository) FindByCode(ctx context.Context, code string) (*models.Student, error) {
	q := conn(ctx, r.db)
	var student models.Student
	if err := q.GetContext(ctx, &student, q.Rebind("SELECT "+studentColumns+" FROM students s WHERE s.student_code = ?"), code); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByCode checks if a registration number is taken, optionally excluding an ID.
func (r *StudentRepository) ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error) {
	q := conn(ctx, r.db)
	query := "SELECT 1 FROM students WHERE student_code = ?"
	args := []interface{}{code}
	if excludeID > 0 {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}
	var exists int
	if err := q.GetContext(ctx, &exists, q.Rebind(query+" LIMIT 1"), args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student code: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	const query = `INSERT INTO students (student_code, name, class_name, contact)
        VALUES (:student_code, :name, :class_name, :contact) RETURNING id`
	id, err := insertReturningID(ctx, conn(ctx, r.db), query, student)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	student.ID = id
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET student_code = :student_code, name = :name, class_name = :class_name, contact = :contact WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, conn(ctx, r.db), query, student)
	if err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a student. Ledger rows keep their student_id.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	q := conn(ctx, r.db)
	res, err := q.ExecContext(ctx, q.Rebind("DELETE FROM students WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
