package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/procurahub/procurement-service/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RFQRepository - интерфейс для работы с RFQ, приглашениями и документами RFQ.
type RFQRepository interface {
	Create(ctx context.Context, rfq *models.RFQ) error
	Get(ctx context.Context, rfqID string) (*models.RFQ, error)
	GetForUpdate(ctx context.Context, rfqID string) (*models.RFQ, error)
	List(ctx context.Context) ([]models.RFQ, error)
	ListWithPendingFinanceApprovals(ctx context.Context) ([]models.RFQ, error)
	Update(ctx context.Context, rfq *models.RFQ) error
	SetNumber(ctx context.Context, rfqID, rfqNumber string) error
	SetResponseLocked(ctx context.Context, rfqID string, locked bool) error
	CloseExpired(ctx context.Context, now time.Time) (int64, error)

	CreateInvitation(ctx context.Context, invitation *models.Invitation) error
	GetInvitation(ctx context.Context, rfqID, supplierID string) (*models.Invitation, error)
	ListInvitations(ctx context.Context, rfqID string) ([]models.Invitation, error)
	ListInvitationsBySupplier(ctx context.Context, supplierID string) ([]models.Invitation, error)
	MarkInvitationResponded(ctx context.Context, invitationID string, respondedAt time.Time) error
	AwardInvitations(ctx context.Context, rfqID, winnerSupplierID string, awardedAt time.Time) error

	AddDocument(ctx context.Context, document *models.RFQDocument) error
	ListDocuments(ctx context.Context, rfqID string) ([]models.RFQDocument, error)
}

// PostgresRFQRepository - реализация RFQRepository для базы данных.
type PostgresRFQRepository struct {
	DB DBTX
}

// NewPostgresRFQRepository создает новый экземпляр PostgresRFQRepository.
func NewPostgresRFQRepository(db DBTX) *PostgresRFQRepository {
	return &PostgresRFQRepository{DB: db}
}

const rfqColumns = `id, seq, rfq_number, title, description, category, budget, currency,
	deadline, status, response_locked, created_by_id, created_at, updated_at`

func scanRFQ(row pgx.Row) (*models.RFQ, error) {
	var rfq models.RFQ
	err := row.Scan(
		&rfq.ID,
		&rfq.Seq,
		&rfq.RFQNumber,
		&rfq.Title,
		&rfq.Description,
		&rfq.Category,
		&rfq.Budget,
		&rfq.Currency,
		&rfq.Deadline,
		&rfq.Status,
		&rfq.ResponseLocked,
		&rfq.CreatedByID,
		&rfq.CreatedAt,
		&rfq.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rfq, nil
}

// Create вставляет новый RFQ и заполняет Seq из последовательности.
func (r *PostgresRFQRepository) Create(ctx context.Context, rfq *models.RFQ) error {
	if rfq.ID == "" {
		rfq.ID = uuid.New().String()
	}
	err := r.DB.QueryRow(ctx, `
		INSERT INTO rfqs (id, rfq_number, title, description, category, budget, currency,
			deadline, status, response_locked, created_by_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq
	`,
		rfq.ID,
		rfq.RFQNumber,
		rfq.Title,
		rfq.Description,
		rfq.Category,
		rfq.Budget,
		rfq.Currency,
		rfq.Deadline,
		rfq.Status,
		rfq.ResponseLocked,
		rfq.CreatedByID,
		rfq.CreatedAt).Scan(&rfq.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert rfq: %w", err)
	}
	return nil
}

// Get возвращает RFQ по идентификатору.
func (r *PostgresRFQRepository) Get(ctx context.Context, rfqID string) (*models.RFQ, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id = $1`, rfqID)
	rfq, err := scanRFQ(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("rfq not found")
	}
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// GetForUpdate читает RFQ с блокировкой строки, чтобы сериализовать присуждение.
func (r *PostgresRFQRepository) GetForUpdate(ctx context.Context, rfqID string) (*models.RFQ, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+rfqColumns+` FROM rfqs WHERE id = $1 FOR UPDATE`, rfqID)
	rfq, err := scanRFQ(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("rfq not found")
	}
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

func (r *PostgresRFQRepository) listRFQs(ctx context.Context, query string, args ...any) ([]models.RFQ, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rfqs []models.RFQ
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			return nil, err
		}
		rfqs = append(rfqs, *rfq)
	}
	return rfqs, rows.Err()
}

// List возвращает все RFQ, новые первыми.
func (r *PostgresRFQRepository) List(ctx context.Context) ([]models.RFQ, error) {
	return r.listRFQs(ctx, `SELECT `+rfqColumns+` FROM rfqs ORDER BY created_at DESC`)
}

// ListWithPendingFinanceApprovals возвращает RFQ с котировками, ожидающими финансового одобрения.
func (r *PostgresRFQRepository) ListWithPendingFinanceApprovals(ctx context.Context) ([]models.RFQ, error) {
	return r.listRFQs(ctx, `
		SELECT `+rfqColumns+` FROM rfqs
		WHERE EXISTS (
			SELECT 1 FROM rfq_quotations
			WHERE rfq_quotations.rfq_id = rfqs.id AND rfq_quotations.status = $1
		)
		ORDER BY created_at DESC
	`, models.QuotationPendingFinanceApproval)
}

// Update сохраняет изменяемые поля RFQ.
func (r *PostgresRFQRepository) Update(ctx context.Context, rfq *models.RFQ) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE rfqs SET title = $2, description = $3, category = $4, budget = $5, currency = $6,
			deadline = $7, status = $8, response_locked = $9, updated_at = now()
		WHERE id = $1
	`,
		rfq.ID,
		rfq.Title,
		rfq.Description,
		rfq.Category,
		rfq.Budget,
		rfq.Currency,
		rfq.Deadline,
		rfq.Status,
		rfq.ResponseLocked)
	if err != nil {
		return fmt.Errorf("failed to update rfq: %w", err)
	}
	return nil
}

// SetNumber записывает человекочитаемый номер RFQ.
func (r *PostgresRFQRepository) SetNumber(ctx context.Context, rfqID, rfqNumber string) error {
	_, err := r.DB.Exec(ctx, `UPDATE rfqs SET rfq_number = $2 WHERE id = $1`, rfqID, rfqNumber)
	if err != nil {
		return fmt.Errorf("failed to set rfq number: %w", err)
	}
	return nil
}

// SetResponseLocked переключает эмбарго на просмотр котировок.
func (r *PostgresRFQRepository) SetResponseLocked(ctx context.Context, rfqID string, locked bool) error {
	_, err := r.DB.Exec(ctx, `UPDATE rfqs SET response_locked = $2 WHERE id = $1`, rfqID, locked)
	if err != nil {
		return fmt.Errorf("failed to set response lock: %w", err)
	}
	return nil
}

// CloseExpired закрывает открытые RFQ с истекшим дедлайном и снимает эмбарго.
// Повторный вызов не меняет состояние.
func (r *PostgresRFQRepository) CloseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, `
		UPDATE rfqs SET status = $1, response_locked = FALSE, updated_at = $2
		WHERE status = $3 AND deadline <= $2
	`, models.RFQClosed, now, models.RFQOpen)
	if err != nil {
		return 0, fmt.Errorf("failed to close expired rfqs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateInvitation вставляет приглашение; дубликат пары (RFQ, поставщик) дает ConflictError.
func (r *PostgresRFQRepository) CreateInvitation(ctx context.Context, invitation *models.Invitation) error {
	if invitation.ID == "" {
		invitation.ID = uuid.New().String()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO rfq_invitations (id, rfq_id, supplier_id, invited_at, responded_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		invitation.ID,
		invitation.RFQID,
		invitation.SupplierID,
		invitation.InvitedAt,
		invitation.RespondedAt,
		invitation.Status)
	if isUniqueViolation(err) {
		return models.NewConflictError("supplier is already invited to this rfq")
	}
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

// GetInvitation возвращает приглашение пары (RFQ, поставщик).
func (r *PostgresRFQRepository) GetInvitation(ctx context.Context, rfqID, supplierID string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := r.DB.QueryRow(ctx, `
		SELECT id, rfq_id, supplier_id, invited_at, responded_at, status
		FROM rfq_invitations WHERE rfq_id = $1 AND supplier_id = $2
	`, rfqID, supplierID).Scan(
		&invitation.ID,
		&invitation.RFQID,
		&invitation.SupplierID,
		&invitation.InvitedAt,
		&invitation.RespondedAt,
		&invitation.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("invitation not found")
	}
	if err != nil {
		return nil, err
	}
	return &invitation, nil
}

func (r *PostgresRFQRepository) listInvitations(ctx context.Context, query string, args ...any) ([]models.Invitation, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []models.Invitation
	for rows.Next() {
		var invitation models.Invitation
		if err := rows.Scan(
			&invitation.ID,
			&invitation.RFQID,
			&invitation.SupplierID,
			&invitation.InvitedAt,
			&invitation.RespondedAt,
			&invitation.Status); err != nil {
			return nil, err
		}
		invitations = append(invitations, invitation)
	}
	return invitations, rows.Err()
}

// ListInvitations возвращает приглашения RFQ.
func (r *PostgresRFQRepository) ListInvitations(ctx context.Context, rfqID string) ([]models.Invitation, error) {
	return r.listInvitations(ctx, `
		SELECT id, rfq_id, supplier_id, invited_at, responded_at, status
		FROM rfq_invitations WHERE rfq_id = $1 ORDER BY invited_at
	`, rfqID)
}

// ListInvitationsBySupplier возвращает приглашения поставщика.
func (r *PostgresRFQRepository) ListInvitationsBySupplier(ctx context.Context, supplierID string) ([]models.Invitation, error) {
	return r.listInvitations(ctx, `
		SELECT id, rfq_id, supplier_id, invited_at, responded_at, status
		FROM rfq_invitations WHERE supplier_id = $1 ORDER BY invited_at DESC
	`, supplierID)
}

// MarkInvitationResponded отмечает приглашение отвеченным.
func (r *PostgresRFQRepository) MarkInvitationResponded(ctx context.Context, invitationID string, respondedAt time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE rfq_invitations SET status = $2, responded_at = $3 WHERE id = $1
	`, invitationID, models.InvitationResponded, respondedAt)
	if err != nil {
		return fmt.Errorf("failed to mark invitation responded: %w", err)
	}
	return nil
}

// AwardInvitations отмечает приглашение победителя и переводит остальные в not_selected.
func (r *PostgresRFQRepository) AwardInvitations(ctx context.Context, rfqID, winnerSupplierID string, awardedAt time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE rfq_invitations SET status = $3, responded_at = COALESCE(responded_at, $4)
		WHERE rfq_id = $1 AND supplier_id = $2
	`, rfqID, winnerSupplierID, models.InvitationAwarded, awardedAt)
	if err != nil {
		return fmt.Errorf("failed to mark winning invitation: %w", err)
	}
	_, err = r.DB.Exec(ctx, `
		UPDATE rfq_invitations SET status = $3
		WHERE rfq_id = $1 AND supplier_id <> $2
	`, rfqID, winnerSupplierID, models.InvitationNotSelected)
	if err != nil {
		return fmt.Errorf("failed to mark losing invitations: %w", err)
	}
	return nil
}

// AddDocument сохраняет ссылку на документ RFQ.
func (r *PostgresRFQRepository) AddDocument(ctx context.Context, document *models.RFQDocument) error {
	if document.ID == "" {
		document.ID = uuid.New().String()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO rfq_documents (id, rfq_id, file_path, original_filename, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		document.ID,
		document.RFQID,
		document.FilePath,
		document.OriginalFilename,
		document.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rfq document: %w", err)
	}
	return nil
}

// ListDocuments возвращает документы RFQ.
func (r *PostgresRFQRepository) ListDocuments(ctx context.Context, rfqID string) ([]models.RFQDocument, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, rfq_id, file_path, original_filename, uploaded_at
		FROM rfq_documents WHERE rfq_id = $1 ORDER BY uploaded_at
	`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []models.RFQDocument
	for rows.Next() {
		var document models.RFQDocument
		if err := rows.Scan(
			&document.ID,
			&document.RFQID,
			&document.FilePath,
			&document.OriginalFilename,
			&document.UploadedAt); err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, rows.Err()
}
