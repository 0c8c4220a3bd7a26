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

// RequestRepository - интерфейс для работы с заявками на закупку.
type RequestRepository interface {
	Create(ctx context.Context, request *models.PurchaseRequest) error
	Get(ctx context.Context, requestID string) (*models.PurchaseRequest, error)
	List(ctx context.Context) ([]models.PurchaseRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]models.PurchaseRequest, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]models.PurchaseRequest, error)
	Update(ctx context.Context, request *models.PurchaseRequest) error
	CompleteByRFQ(ctx context.Context, rfqID string, completedAt time.Time) error
	AddDocument(ctx context.Context, document *models.RequestDocument) error
	ListDocuments(ctx context.Context, requestID string) ([]models.RequestDocument, error)
}

// PostgresRequestRepository - реализация RequestRepository для базы данных.
type PostgresRequestRepository struct {
	DB DBTX
}

// NewPostgresRequestRepository создает новый экземпляр PostgresRequestRepository.
func NewPostgresRequestRepository(db DBTX) *PostgresRequestRepository {
	return &PostgresRequestRepository{DB: db}
}

const requestColumns = `id, title, description, justification, category, department_id, needed_by,
	budget, currency, finance_budget_amount, finance_budget_currency, status,
	procurement_notes, hod_notes, hod_rejection_reason, procurement_rejection_reason,
	requester_id, hod_reviewer_id, procurement_reviewer_id, rfq_id,
	created_at, updated_at, hod_reviewed_at, procurement_reviewed_at, rfq_invited_at`

func scanRequest(row pgx.Row) (*models.PurchaseRequest, error) {
	var request models.PurchaseRequest
	err := row.Scan(
		&request.ID,
		&request.Title,
		&request.Description,
		&request.Justification,
		&request.Category,
		&request.DepartmentID,
		&request.NeededBy,
		&request.ProposedBudgetAmount,
		&request.ProposedBudgetCurrency,
		&request.FinanceBudgetAmount,
		&request.FinanceBudgetCurrency,
		&request.Status,
		&request.ProcurementNotes,
		&request.HODNotes,
		&request.HODRejectionReason,
		&request.ProcurementRejectionReason,
		&request.RequesterID,
		&request.HODReviewerID,
		&request.ProcurementReviewerID,
		&request.RFQID,
		&request.CreatedAt,
		&request.UpdatedAt,
		&request.HODReviewedAt,
		&request.ProcurementReviewedAt,
		&request.RFQInvitedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Create вставляет новую заявку.
func (r *PostgresRequestRepository) Create(ctx context.Context, request *models.PurchaseRequest) error {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO purchase_requests (id, title, description, justification, category, department_id,
			needed_by, budget, currency, status, requester_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		request.ID,
		request.Title,
		request.Description,
		request.Justification,
		request.Category,
		request.DepartmentID,
		request.NeededBy,
		request.ProposedBudgetAmount,
		request.ProposedBudgetCurrency,
		request.Status,
		request.RequesterID,
		request.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert purchase request: %w", err)
	}
	return nil
}

// Get возвращает заявку по идентификатору.
func (r *PostgresRequestRepository) Get(ctx context.Context, requestID string) (*models.PurchaseRequest, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1`, requestID)
	request, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("request not found")
	}
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (r *PostgresRequestRepository) list(ctx context.Context, query string, args ...any) ([]models.PurchaseRequest, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.PurchaseRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}

// List возвращает все заявки, новые первыми.
func (r *PostgresRequestRepository) List(ctx context.Context) ([]models.PurchaseRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM purchase_requests ORDER BY created_at DESC`)
}

// ListByRequester возвращает заявки, поданные пользователем.
func (r *PostgresRequestRepository) ListByRequester(ctx context.Context, requesterID string) ([]models.PurchaseRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE requester_id = $1 ORDER BY created_at DESC`, requesterID)
}

// ListByDepartment возвращает заявки подразделения.
func (r *PostgresRequestRepository) ListByDepartment(ctx context.Context, departmentID string) ([]models.PurchaseRequest, error) {
	return r.list(ctx, `SELECT `+requestColumns+` FROM purchase_requests WHERE department_id = $1 ORDER BY created_at DESC`, departmentID)
}

// Update сохраняет изменяемые поля заявки.
func (r *PostgresRequestRepository) Update(ctx context.Context, request *models.PurchaseRequest) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE purchase_requests SET
			title = $2, description = $3, justification = $4, category = $5, department_id = $6,
			needed_by = $7, budget = $8, currency = $9, status = $10,
			procurement_notes = $11, hod_notes = $12, hod_rejection_reason = $13,
			procurement_rejection_reason = $14, hod_reviewer_id = $15, procurement_reviewer_id = $16,
			rfq_id = $17, updated_at = now(), hod_reviewed_at = $18, procurement_reviewed_at = $19,
			rfq_invited_at = $20
		WHERE id = $1
	`,
		request.ID,
		request.Title,
		request.Description,
		request.Justification,
		request.Category,
		request.DepartmentID,
		request.NeededBy,
		request.ProposedBudgetAmount,
		request.ProposedBudgetCurrency,
		request.Status,
		request.ProcurementNotes,
		request.HODNotes,
		request.HODRejectionReason,
		request.ProcurementRejectionReason,
		request.HODReviewerID,
		request.ProcurementReviewerID,
		request.RFQID,
		request.HODReviewedAt,
		request.ProcurementReviewedAt,
		request.RFQInvitedAt)
	if err != nil {
		return fmt.Errorf("failed to update purchase request: %w", err)
	}
	return nil
}

// CompleteByRFQ завершает заявку, породившую RFQ; повторный вызов ничего не меняет.
func (r *PostgresRequestRepository) CompleteByRFQ(ctx context.Context, rfqID string, completedAt time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE purchase_requests SET status = $1, updated_at = $2
		WHERE rfq_id = $3 AND status <> $1
	`, models.RequestCompleted, completedAt, rfqID)
	if err != nil {
		return fmt.Errorf("failed to complete request for rfq: %w", err)
	}
	return nil
}

// AddDocument сохраняет ссылку на приложенный документ.
func (r *PostgresRequestRepository) AddDocument(ctx context.Context, document *models.RequestDocument) error {
	if document.ID == "" {
		document.ID = uuid.New().String()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO request_documents (id, request_id, file_path, original_filename, uploaded_by_id, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		document.ID,
		document.RequestID,
		document.FilePath,
		document.OriginalFilename,
		document.UploadedByID,
		document.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert request document: %w", err)
	}
	return nil
}

// ListDocuments возвращает документы заявки.
func (r *PostgresRequestRepository) ListDocuments(ctx context.Context, requestID string) ([]models.RequestDocument, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, request_id, file_path, original_filename, uploaded_by_id, uploaded_at
		FROM request_documents WHERE request_id = $1 ORDER BY uploaded_at
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []models.RequestDocument
	for rows.Next() {
		var document models.RequestDocument
		if err := rows.Scan(
			&document.ID,
			&document.RequestID,
			&document.FilePath,
			&document.OriginalFilename,
			&document.UploadedByID,
			&document.UploadedAt); err != nil {
			return nil, err
		}
		documents = append(documents, document)
	}
	return documents, rows.Err()
}
