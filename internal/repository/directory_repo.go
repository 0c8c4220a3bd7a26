package repository

import (
	"context"
	"errors"

	"github.com/procurahub/procurement-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// DirectoryRepository - интерфейс справочника пользователей и подразделений.
// Учетные записи и роли ведет внешний сервис идентификации, здесь только чтение.
type DirectoryRepository interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	ListActiveUsersByRole(ctx context.Context, roles ...models.Role) ([]models.User, error)
	GetDepartment(ctx context.Context, departmentID string) (*models.Department, error)
	ListDepartmentsByHead(ctx context.Context, userID string) ([]models.Department, error)
	DepartmentExists(ctx context.Context, departmentID string) (bool, error)
}

// PostgresDirectoryRepository - реализация DirectoryRepository для базы данных.
type PostgresDirectoryRepository struct {
	DB DBTX
}

// NewPostgresDirectoryRepository создает новый экземпляр PostgresDirectoryRepository.
func NewPostgresDirectoryRepository(db DBTX) *PostgresDirectoryRepository {
	return &PostgresDirectoryRepository{DB: db}
}

// GetUser возвращает пользователя по идентификатору.
func (r *PostgresDirectoryRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.DB.QueryRow(ctx, `
		SELECT id, email, full_name, role, is_active, created_at FROM users WHERE id = $1
	`, userID).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("user not found")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListActiveUsersByRole возвращает активных пользователей указанных ролей.
func (r *PostgresDirectoryRepository) ListActiveUsersByRole(ctx context.Context, roles ...models.Role) ([]models.User, error) {
	roleNames := make([]string, 0, len(roles))
	for _, role := range roles {
		roleNames = append(roleNames, string(role))
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, email, full_name, role, is_active, created_at
		FROM users WHERE role = ANY($1) AND is_active
	`, pq.Array(roleNames))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(
			&user.ID,
			&user.Email,
			&user.FullName,
			&user.Role,
			&user.IsActive,
			&user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetDepartment возвращает подразделение по идентификатору.
func (r *PostgresDirectoryRepository) GetDepartment(ctx context.Context, departmentID string) (*models.Department, error) {
	var department models.Department
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, head_of_department_id, created_at FROM departments WHERE id = $1
	`, departmentID).Scan(
		&department.ID,
		&department.Name,
		&department.HeadOfDepartmentID,
		&department.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("department not found")
	}
	if err != nil {
		return nil, err
	}
	return &department, nil
}

// ListDepartmentsByHead возвращает подразделения, которыми руководит пользователь.
func (r *PostgresDirectoryRepository) ListDepartmentsByHead(ctx context.Context, userID string) ([]models.Department, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, head_of_department_id, created_at
		FROM departments WHERE head_of_department_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var departments []models.Department
	for rows.Next() {
		var department models.Department
		if err := rows.Scan(
			&department.ID,
			&department.Name,
			&department.HeadOfDepartmentID,
			&department.CreatedAt); err != nil {
			return nil, err
		}
		departments = append(departments, department)
	}
	return departments, rows.Err()
}

// DepartmentExists проверяет, существует ли подразделение.
func (r *PostgresDirectoryRepository) DepartmentExists(ctx context.Context, departmentID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM departments WHERE id = $1)`, departmentID).Scan(&exists)
	return exists, err
}
