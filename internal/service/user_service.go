package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
}

// UserService provisions and manages operator accounts.
type UserService struct {
	repo      userRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
	hashCost  int
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns a page of operators.
func (s *UserService) List(ctx context.Context, q dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	filter := models.UserFilter{
		Active:    q.Active,
		Search:    strings.TrimSpace(q.Search),
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}
	if role := strings.ToUpper(strings.TrimSpace(q.Role)); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a new operator. Emails are unique case-insensitively.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, actor Actor) (*models.User, error) {
	req.Role = models.UserRole(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	email := req.Email

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		MRCode:       mrCodeFor(req.Role, req.MRCode),
		Active:       active,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	recordEntityAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserCreate, entityUser, user.ID, map[string]interface{}{
		"email": user.Email, "role": user.Role, "mr_code": user.MRCode,
	})
	return user, nil
}

// Update changes profile, role and status of an operator.
func (s *UserService) Update(ctx context.Context, id string, req dto.UpdateUserRequest, actor Actor) (*models.User, error) {
	req.Role = models.UserRole(strings.ToUpper(strings.TrimSpace(string(req.Role))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.ID == actor.ID && (req.Role != user.Role || (req.Active != nil && !*req.Active)) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change your own role or status")
	}

	before := map[string]interface{}{"role": user.Role, "active": user.Active, "mr_code": user.MRCode}
	user.FullName = strings.TrimSpace(req.FullName)
	user.Role = req.Role
	user.MRCode = mrCodeFor(req.Role, req.MRCode)
	if req.Active != nil {
		user.Active = *req.Active
	}
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	recordEntityAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserUpdate, entityUser, user.ID, map[string]interface{}{
		"before": before,
		"after":  map[string]interface{}{"role": user.Role, "active": user.Active, "mr_code": user.MRCode},
	})
	return user, nil
}

// Deactivate disables an operator and ends their sessions.
func (s *UserService) Deactivate(ctx context.Context, id string, actor Actor) error {
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot deactivate your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}
	recordEntityAudit(ctx, s.audit, s.logger, actor, models.AuditActionUserDeactivate, entityUser, user.ID, map[string]interface{}{
		"was_active": user.Active,
	})
	return nil
}

func mrCodeFor(role models.UserRole, code string) *string {
	if role != models.RoleMR {
		return nil
	}
	return strPtr(strings.ToUpper(strings.TrimSpace(code)))
}
