package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-library-api/internal/dto"
	"github.com/noah-isme/sma-library-api/internal/models"
	appErrors "github.com/noah-isme/sma-library-api/pkg/errors"
)

type studentFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Student, error)
	FindByCode(ctx context.Context, code string) (*models.Student, error)
}

type studentRepository interface {
	studentFinder
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	ExistsByCode(ctx context.Context, code string, excludeID int64) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id int64) error
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	return students, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id int64) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

// Create registers a student. Student codes are unique.
func (s *StudentService) Create(ctx context.Context, req dto.CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	student := &models.Student{
		StudentID: strings.TrimSpace(req.StudentID),
		Name:      strings.TrimSpace(req.Name),
		Class:     strings.TrimSpace(req.Class),
		Contact:   trimOptional(req.Contact),
	}
	if student.StudentID == "" || student.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id and name are required")
	}

	exists, err := s.repo.ExistsByCode(ctx, student.StudentID, 0)
	if err != nil {
		return nil, internalError(err, "failed to validate student id")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student id already registered")
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, internalError(err, "failed to create student")
	}
	s.audit.Record(ctx, AuditChange{Action: models.AuditCreate, Resource: models.ResourceStudent, ResourceID: student.ID, Next: student})
	return student, nil
}

// Update patches a student.
func (s *StudentService) Update(ctx context.Context, id int64, req dto.UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid student payload")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	before := *current
	updated := *current

	if req.StudentID != nil {
		code := strings.TrimSpace(*req.StudentID)
		if code == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student id cannot be blank")
		}
		if code != current.StudentID {
			exists, err := s.repo.ExistsByCode(ctx, code, id)
			if err != nil {
				return nil, internalError(err, "failed to validate student id")
			}
			if exists {
				return nil, appErrors.Clone(appErrors.ErrConflict, "student id already registered")
			}
		}
		updated.StudentID = code
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "name cannot be blank")
		}
		updated.Name = name
	}
	if req.Class != nil {
		updated.Class = strings.TrimSpace(*req.Class)
	}
	if req.Contact != nil {
		updated.Contact = trimOptional(req.Contact)
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, lookupError(err, "student not found", "failed to update student")
	}
	s.audit.Record(ctx, AuditChange{Action: models.AuditUpdate, Resource: models.ResourceStudent, ResourceID: id, Previous: &before, Next: &updated})
	return &updated, nil
}

// Delete removes a student. Existing ledger rows fall back to a placeholder name.
func (s *StudentService) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "student not found", "failed to load student")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return lookupError(err, "student not found", "failed to delete student")
	}
	s.audit.Record(ctx, AuditChange{Action: models.AuditDelete, Resource: models.ResourceStudent, ResourceID: id, Previous: current})
	return nil
}

// resolveStudent loads a student by id or by student code.
func resolveStudent(ctx context.Context, repo studentFinder, id int64, code string) (*models.Student, error) {
	var (
		student *models.Student
		err     error
	)
	switch {
	case id > 0:
		student, err = repo.FindByID(ctx, id)
	case strings.TrimSpace(code) != "":
		student, err = repo.FindByCode(ctx, strings.TrimSpace(code))
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id or code is required")
	}
	if err != nil {
		return nil, lookupError(err, "student not found", "failed to load student")
	}
	return student, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
