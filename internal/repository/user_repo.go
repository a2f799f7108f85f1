package repository

import (
	"context"
	"strings"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserFilter struct {
	Scopes []Scope
	Search string
	Role   string
	Page   int
	Limit  int
}

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context, filter UserFilter) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListAssignments(ctx context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error)
	CreateAssignment(ctx context.Context, assignment *model.UserRoleAssignment) error
	DeleteAssignment(ctx context.Context, userID, assignmentID uuid.UUID) (int64, error)
	FindAssignment(ctx context.Context, userID, roleID uuid.UUID, companyID *uuid.UUID) (*model.UserRoleAssignment, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID, scopes ...Scope) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Scopes(scopes...).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	query := GetDB(ctx, r.db).Model(&model.User{}).Scopes(filter.Scopes...)
	if filter.Role != "" {
		query = query.Where("system_role = ?", filter.Role)
	}
	if filter.Search != "" {
		p := likePattern(strings.ToLower(filter.Search))
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", p, p)
	}

	query = query.Session(&gorm.Session{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Scopes(paginate(filter.Page, filter.Limit)).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("RoleAssignments").Save(user).Error
}

func (r *userRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.User{}).Error
}

// ListAssignments loads a user's role assignments with each role's permissions
func (r *userRepository) ListAssignments(ctx context.Context, userID uuid.UUID) ([]model.UserRoleAssignment, error) {
	var assignments []model.UserRoleAssignment
	if err := GetDB(ctx, r.db).
		Preload("Role.Permissions").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *userRepository) CreateAssignment(ctx context.Context, assignment *model.UserRoleAssignment) error {
	return GetDB(ctx, r.db).Create(assignment).Error
}

func (r *userRepository) DeleteAssignment(ctx context.Context, userID, assignmentID uuid.UUID) (int64, error) {
	res := GetDB(ctx, r.db).Where("id = ? AND user_id = ?", assignmentID, userID).Delete(&model.UserRoleAssignment{})
	return res.RowsAffected, res.Error
}

func (r *userRepository) FindAssignment(ctx context.Context, userID, roleID uuid.UUID, companyID *uuid.UUID) (*model.UserRoleAssignment, error) {
	var a model.UserRoleAssignment
	query := GetDB(ctx, r.db).Where("user_id = ? AND role_id = ?", userID, roleID)
	if companyID == nil {
		query = query.Where("company_id IS NULL")
	} else {
		query = query.Where("company_id = ?", *companyID)
	}
	if err := query.First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}
