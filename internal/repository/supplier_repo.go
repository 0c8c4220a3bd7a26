package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/procurahub/procurement-service/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SupplierRepository - интерфейс для работы с профилями поставщиков.
type SupplierRepository interface {
	Get(ctx context.Context, supplierID string) (*models.SupplierProfile, error)
	GetByUser(ctx context.Context, userID string) (*models.SupplierProfile, error)
	ListByIDs(ctx context.Context, supplierIDs []string) ([]models.SupplierProfile, error)
	SelectByCategory(ctx context.Context, category string, limit int) ([]models.SupplierProfile, error)
	RecordInvitation(ctx context.Context, supplierID string, invitedAt time.Time) error
	AddAwardedValue(ctx context.Context, supplierID string, amount decimal.Decimal) error
}

// PostgresSupplierRepository - реализация SupplierRepository для базы данных.
type PostgresSupplierRepository struct {
	DB DBTX
}

// NewPostgresSupplierRepository создает новый экземпляр PostgresSupplierRepository.
func NewPostgresSupplierRepository(db DBTX) *PostgresSupplierRepository {
	return &PostgresSupplierRepository{DB: db}
}

const supplierColumns = `id, user_id, supplier_number, company_name, contact_email, contact_phone,
	address, preferred_currency, invitations_sent, last_invited_at, total_awarded_value, created_at`

func scanSupplier(row pgx.Row) (*models.SupplierProfile, error) {
	var supplier models.SupplierProfile
	err := row.Scan(
		&supplier.ID,
		&supplier.UserID,
		&supplier.SupplierNumber,
		&supplier.CompanyName,
		&supplier.ContactEmail,
		&supplier.ContactPhone,
		&supplier.Address,
		&supplier.PreferredCurrency,
		&supplier.InvitationsSent,
		&supplier.LastInvitedAt,
		&supplier.TotalAwardedValue,
		&supplier.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &supplier, nil
}

// Get возвращает профиль поставщика по идентификатору.
func (r *PostgresSupplierRepository) Get(ctx context.Context, supplierID string) (*models.SupplierProfile, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+supplierColumns+` FROM supplier_profiles WHERE id = $1`, supplierID)
	supplier, err := scanSupplier(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("supplier not found")
	}
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

// GetByUser возвращает профиль поставщика по пользователю.
func (r *PostgresSupplierRepository) GetByUser(ctx context.Context, userID string) (*models.SupplierProfile, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+supplierColumns+` FROM supplier_profiles WHERE user_id = $1`, userID)
	supplier, err := scanSupplier(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("supplier profile not found")
	}
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

func (r *PostgresSupplierRepository) listSuppliers(ctx context.Context, query string, args ...any) ([]models.SupplierProfile, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suppliers []models.SupplierProfile
	for rows.Next() {
		supplier, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, *supplier)
	}
	return suppliers, rows.Err()
}

// ListByIDs возвращает профили по списку идентификаторов.
func (r *PostgresSupplierRepository) ListByIDs(ctx context.Context, supplierIDs []string) ([]models.SupplierProfile, error) {
	return r.listSuppliers(ctx, `
		SELECT `+supplierColumns+` FROM supplier_profiles WHERE id = ANY($1)
	`, pq.Array(supplierIDs))
}

// SelectByCategory возвращает поставщиков категории в справедливом порядке:
// меньше приглашений - раньше, при равенстве раньше тот, кого дольше не звали;
// никогда не приглашенные идут первыми. Порядок детерминирован.
func (r *PostgresSupplierRepository) SelectByCategory(ctx context.Context, category string, limit int) ([]models.SupplierProfile, error) {
	query := `
		SELECT ` + supplierColumns + ` FROM supplier_profiles
		WHERE EXISTS (
			SELECT 1 FROM supplier_categories
			WHERE supplier_categories.supplier_id = supplier_profiles.id
			AND supplier_categories.name = $1
		)
		ORDER BY invitations_sent ASC, last_invited_at ASC NULLS FIRST, supplier_number ASC`
	if limit > 0 {
		return r.listSuppliers(ctx, query+` LIMIT $2`, category, limit)
	}
	return r.listSuppliers(ctx, query, category)
}

// RecordInvitation увеличивает счетчик приглашений и отмечает время последнего.
func (r *PostgresSupplierRepository) RecordInvitation(ctx context.Context, supplierID string, invitedAt time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE supplier_profiles SET invitations_sent = invitations_sent + 1, last_invited_at = $2
		WHERE id = $1
	`, supplierID, invitedAt)
	if err != nil {
		return fmt.Errorf("failed to record invitation: %w", err)
	}
	return nil
}

// AddAwardedValue прибавляет присужденную сумму к накопленному объему поставщика.
func (r *PostgresSupplierRepository) AddAwardedValue(ctx context.Context, supplierID string, amount decimal.Decimal) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE supplier_profiles SET total_awarded_value = total_awarded_value + $2
		WHERE id = $1
	`, supplierID, amount)
	if err != nil {
		return fmt.Errorf("failed to add awarded value: %w", err)
	}
	return nil
}
