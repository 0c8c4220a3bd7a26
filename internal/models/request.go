package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus - статус заявки на закупку.
type RequestStatus string

const (
	RequestPendingHOD            RequestStatus = "pending_hod"             // Ожидает проверки руководителя подразделения
	RequestRejectedByHOD         RequestStatus = "rejected_by_hod"         // Отклонена руководителем
	RequestPendingProcurement    RequestStatus = "pending_procurement"     // После одобрения руководителем
	RequestRejectedByProcurement RequestStatus = "rejected_by_procurement" // Отклонена закупками
	RequestRFQIssued             RequestStatus = "rfq_issued"              // Бюджет назначен, RFQ создан или готов к созданию
	RequestCompleted             RequestStatus = "completed"               // RFQ присужден, цикл завершен

	// Устаревшие статусы финансового этапа: читаются из исторических данных,
	// новые переходы в них невозможны.
	RequestPendingFinance    RequestStatus = "pending_finance_approval"
	RequestRejectedByFinance RequestStatus = "rejected_by_finance"
	RequestFinanceApproved   RequestStatus = "finance_approved"
)

// Terminal сообщает, завершен ли жизненный цикл заявки.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestRejectedByHOD, RequestRejectedByProcurement, RequestRejectedByFinance, RequestCompleted:
		return true
	}
	return false
}

// PurchaseRequest представляет заявку на закупку.
type PurchaseRequest struct {
	ID                          string          `json:"id"`
	Title                       string          `json:"title"`
	Description                 string          `json:"description"`
	Justification               string          `json:"justification"`
	Category                    string          `json:"category"`
	DepartmentID                *string         `json:"departmentId"`
	NeededBy                    time.Time       `json:"neededBy"`
	ProposedBudgetAmount        decimal.Decimal `json:"proposedBudgetAmount"`
	ProposedBudgetCurrency      string          `json:"proposedBudgetCurrency"`
	FinanceBudgetAmount         *decimal.Decimal `json:"financeBudgetAmount,omitempty"`  // устаревшее поле
	FinanceBudgetCurrency       *string          `json:"financeBudgetCurrency,omitempty"` // устаревшее поле
	Status                      RequestStatus   `json:"status"`
	ProcurementNotes            *string         `json:"procurementNotes"`
	HODNotes                    *string         `json:"hodNotes"`
	HODRejectionReason          *string         `json:"hodRejectionReason"`
	ProcurementRejectionReason  *string         `json:"procurementRejectionReason"`
	RequesterID                 *string         `json:"requesterId"`
	HODReviewerID               *string         `json:"hodReviewerId"`
	ProcurementReviewerID       *string         `json:"procurementReviewerId"`
	RFQID                       *string         `json:"rfqId"`
	CreatedAt                   time.Time       `json:"createdAt"`
	UpdatedAt                   *time.Time      `json:"-"`
	HODReviewedAt               *time.Time      `json:"hodReviewedAt"`
	ProcurementReviewedAt       *time.Time      `json:"procurementReviewedAt"`
	RFQInvitedAt                *time.Time      `json:"rfqInvitedAt"`
}

// RequestCreate представляет структуру запроса для создания заявки.
type RequestCreate struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Justification string   `json:"justification"`
	Category     string    `json:"category"`
	DepartmentID string    `json:"departmentId"`
	NeededBy     time.Time `json:"neededBy"`
}

// RequestUpdate представляет частичное обновление редактируемых полей заявки.
type RequestUpdate struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Justification    *string    `json:"justification"`
	Category         *string    `json:"category"`
	DepartmentID     *string    `json:"departmentId"`
	NeededBy         *time.Time `json:"neededBy"`
	ProcurementNotes *string    `json:"procurementNotes"`
}

// HODReview представляет решение руководителя подразделения с необязательными правками.
type HODReview struct {
	RequestUpdate
	HODNotes string `json:"hodNotes"`
}

// ProcurementReview представляет решение закупок: назначение бюджета и правки.
type ProcurementReview struct {
	RequestUpdate
	BudgetAmount   decimal.Decimal `json:"budgetAmount"`
	BudgetCurrency string          `json:"budgetCurrency"`
	Notes          string          `json:"notes"`
}

// SupplierInvite представляет запрос на рассылку приглашений по заявке.
type SupplierInvite struct {
	SupplierIDs []string  `json:"supplierIds"`
	RFQDeadline time.Time `json:"rfqDeadline"`
	Notes       string    `json:"notes"`
}

// RequestDocument - ссылка на приложенный к заявке документ (байты хранит внешний сервис).
type RequestDocument struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"requestId"`
	FilePath         string    `json:"filePath"`
	OriginalFilename string    `json:"originalFilename"`
	UploadedByID     *string   `json:"uploadedById"`
	UploadedAt       time.Time `json:"uploadedAt"`
}
