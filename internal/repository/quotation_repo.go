package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/procurahub/procurement-service/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QuotationRepository - интерфейс для работы с котировками.
type QuotationRepository interface {
	Create(ctx context.Context, quotation *models.Quotation) error
	Get(ctx context.Context, rfqID, quotationID string) (*models.Quotation, error)
	ListByRFQ(ctx context.Context, rfqID string) ([]models.Quotation, error)
	ExistsForSupplier(ctx context.Context, rfqID, supplierID string) (bool, error)
	WinnerExists(ctx context.Context, rfqID, exceptQuotationID string) (bool, error)
	Update(ctx context.Context, quotation *models.Quotation) error
	RejectSiblings(ctx context.Context, rfqID, winnerQuotationID string) error
	ListPurchaseOrders(ctx context.Context) ([]models.PurchaseOrder, error)
}

// PostgresQuotationRepository - реализация QuotationRepository для базы данных.
type PostgresQuotationRepository struct {
	DB DBTX
}

// NewPostgresQuotationRepository создает новый экземпляр PostgresQuotationRepository.
func NewPostgresQuotationRepository(db DBTX) *PostgresQuotationRepository {
	return &PostgresQuotationRepository{DB: db}
}

const quotationColumns = `id, rfq_id, supplier_id, supplier_user_id, amount, currency,
	tax_type, tax_amount, notes, document_path, original_filename, status, submitted_at,
	approved_at, approved_by_id, budget_override_justification,
	finance_approval_requested_at, finance_approval_requested_by_id,
	delivery_status, delivered_at, delivery_note_path, delivery_note_filename, marked_delivered_by_id`

func scanQuotation(row pgx.Row) (*models.Quotation, error) {
	var quotation models.Quotation
	err := row.Scan(
		&quotation.ID,
		&quotation.RFQID,
		&quotation.SupplierID,
		&quotation.SupplierUserID,
		&quotation.Amount,
		&quotation.Currency,
		&quotation.TaxType,
		&quotation.TaxAmount,
		&quotation.Notes,
		&quotation.DocumentPath,
		&quotation.OriginalFilename,
		&quotation.Status,
		&quotation.SubmittedAt,
		&quotation.ApprovedAt,
		&quotation.ApprovedByID,
		&quotation.BudgetOverrideJustification,
		&quotation.FinanceApprovalRequestedAt,
		&quotation.FinanceApprovalRequestedByID,
		&quotation.DeliveryStatus,
		&quotation.DeliveredAt,
		&quotation.DeliveryNotePath,
		&quotation.DeliveryNoteFilename,
		&quotation.MarkedDeliveredByID,
	)
	if err != nil {
		return nil, err
	}
	return &quotation, nil
}

// Create вставляет котировку; дубликат пары (RFQ, поставщик) дает ConflictError.
func (r *PostgresQuotationRepository) Create(ctx context.Context, quotation *models.Quotation) error {
	if quotation.ID == "" {
		quotation.ID = uuid.New().String()
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO rfq_quotations (id, rfq_id, supplier_id, supplier_user_id, amount, currency,
			tax_type, tax_amount, notes, document_path, original_filename, status, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		quotation.ID,
		quotation.RFQID,
		quotation.SupplierID,
		quotation.SupplierUserID,
		quotation.Amount,
		quotation.Currency,
		quotation.TaxType,
		quotation.TaxAmount,
		quotation.Notes,
		quotation.DocumentPath,
		quotation.OriginalFilename,
		quotation.Status,
		quotation.SubmittedAt)
	if isUniqueViolation(err) {
		return models.NewConflictError("quotation already submitted for this rfq")
	}
	if err != nil {
		return fmt.Errorf("failed to insert quotation: %w", err)
	}
	return nil
}

// Get возвращает котировку RFQ по идентификатору.
func (r *PostgresQuotationRepository) Get(ctx context.Context, rfqID, quotationID string) (*models.Quotation, error) {
	row := r.DB.QueryRow(ctx, `
		SELECT `+quotationColumns+` FROM rfq_quotations WHERE id = $1 AND rfq_id = $2
	`, quotationID, rfqID)
	quotation, err := scanQuotation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("quotation not found")
	}
	if err != nil {
		return nil, err
	}
	return quotation, nil
}

// ListByRFQ возвращает котировки RFQ в порядке подачи.
func (r *PostgresQuotationRepository) ListByRFQ(ctx context.Context, rfqID string) ([]models.Quotation, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+quotationColumns+` FROM rfq_quotations WHERE rfq_id = $1 ORDER BY submitted_at
	`, rfqID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotations []models.Quotation
	for rows.Next() {
		quotation, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		quotations = append(quotations, *quotation)
	}
	return quotations, rows.Err()
}

// ExistsForSupplier проверяет, подал ли поставщик котировку по RFQ.
func (r *PostgresQuotationRepository) ExistsForSupplier(ctx context.Context, rfqID, supplierID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM rfq_quotations WHERE rfq_id = $1 AND supplier_id = $2)
	`, rfqID, supplierID).Scan(&exists)
	return exists, err
}

// WinnerExists проверяет, присужден ли RFQ другой котировке.
func (r *PostgresQuotationRepository) WinnerExists(ctx context.Context, rfqID, exceptQuotationID string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM rfq_quotations
			WHERE rfq_id = $1 AND status = $2 AND id <> $3
		)
	`, rfqID, models.QuotationApproved, exceptQuotationID).Scan(&exists)
	return exists, err
}

// Update сохраняет изменяемые поля котировки.
func (r *PostgresQuotationRepository) Update(ctx context.Context, quotation *models.Quotation) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE rfq_quotations SET
			status = $2, approved_at = $3, approved_by_id = $4,
			budget_override_justification = $5,
			finance_approval_requested_at = $6, finance_approval_requested_by_id = $7,
			delivery_status = $8, delivered_at = $9, delivery_note_path = $10,
			delivery_note_filename = $11, marked_delivered_by_id = $12
		WHERE id = $1
	`,
		quotation.ID,
		quotation.Status,
		quotation.ApprovedAt,
		quotation.ApprovedByID,
		quotation.BudgetOverrideJustification,
		quotation.FinanceApprovalRequestedAt,
		quotation.FinanceApprovalRequestedByID,
		quotation.DeliveryStatus,
		quotation.DeliveredAt,
		quotation.DeliveryNotePath,
		quotation.DeliveryNoteFilename,
		quotation.MarkedDeliveredByID)
	if err != nil {
		return fmt.Errorf("failed to update quotation: %w", err)
	}
	return nil
}

// RejectSiblings отклоняет остальные котировки RFQ и чистит их метаданные одобрения.
// Уже отклоненные не затрагиваются.
func (r *PostgresQuotationRepository) RejectSiblings(ctx context.Context, rfqID, winnerQuotationID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE rfq_quotations SET status = $3, approved_at = NULL, approved_by_id = NULL
		WHERE rfq_id = $1 AND id <> $2 AND status <> $3
	`, rfqID, winnerQuotationID, models.QuotationRejected)
	if err != nil {
		return fmt.Errorf("failed to reject sibling quotations: %w", err)
	}
	return nil
}

// ListPurchaseOrders возвращает заказы на закупку по присужденным котировкам.
func (r *PostgresQuotationRepository) ListPurchaseOrders(ctx context.Context) ([]models.PurchaseOrder, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT q.id, q.seq, s.id, s.company_name, s.supplier_number, q.amount, q.currency,
			r.id, r.rfq_number, r.title, q.approved_at, q.submitted_at
		FROM rfq_quotations q
		JOIN supplier_profiles s ON s.id = q.supplier_id
		JOIN rfqs r ON r.id = q.rfq_id
		WHERE q.status = $1
		ORDER BY q.approved_at DESC NULLS LAST, q.submitted_at DESC
	`, models.QuotationApproved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.PurchaseOrder
	for rows.Next() {
		var order models.PurchaseOrder
		if err := rows.Scan(
			&order.QuotationID,
			&order.QuotationSeq,
			&order.SupplierID,
			&order.SupplierName,
			&order.SupplierNumber,
			&order.Amount,
			&order.Currency,
			&order.RFQID,
			&order.RFQNumber,
			&order.RFQTitle,
			&order.ApprovedAt,
			&order.SubmittedAt); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
