package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotationStatus - статус котировки поставщика.
type QuotationStatus string

const (
	QuotationDraft                  QuotationStatus = "draft"
	QuotationSubmitted              QuotationStatus = "submitted"
	QuotationPendingFinanceApproval QuotationStatus = "pending_finance_approval"
	QuotationApproved               QuotationStatus = "approved"
	QuotationRejected               QuotationStatus = "rejected"
)

// Decided сообщает, принято ли по котировке окончательное решение.
func (s QuotationStatus) Decided() bool {
	return s == QuotationApproved || s == QuotationRejected
}

// TaxType - вид налога в котировке.
type TaxType string

const (
	TaxVAT TaxType = "VAT"
	TaxTOT TaxType = "TOT"
)

// Quotation представляет ценовое предложение поставщика по RFQ.
type Quotation struct {
	ID                           string           `json:"id"`
	RFQID                        string           `json:"rfqId"`
	SupplierID                   string           `json:"supplierId"`
	SupplierUserID               string           `json:"supplierUserId"`
	Amount                       decimal.Decimal  `json:"amount"`
	Currency                     string           `json:"currency"`
	TaxType                      *TaxType         `json:"taxType"`
	TaxAmount                    *decimal.Decimal `json:"taxAmount"`
	Notes                        *string          `json:"notes"`
	DocumentPath                 *string          `json:"documentPath"`
	OriginalFilename             *string          `json:"originalFilename"`
	Status                       QuotationStatus  `json:"status"`
	SubmittedAt                  time.Time        `json:"submittedAt"`
	ApprovedAt                   *time.Time       `json:"approvedAt"`
	ApprovedByID                 *string          `json:"approvedById"`
	BudgetOverrideJustification  *string          `json:"budgetOverrideJustification"`
	FinanceApprovalRequestedAt   *time.Time       `json:"financeApprovalRequestedAt"`
	FinanceApprovalRequestedByID *string          `json:"financeApprovalRequestedById"`
	DeliveryStatus               *string          `json:"deliveryStatus"`
	DeliveredAt                  *time.Time       `json:"deliveredAt"`
	DeliveryNotePath             *string          `json:"deliveryNotePath"`
	DeliveryNoteFilename         *string          `json:"deliveryNoteFilename"`
	MarkedDeliveredByID          *string          `json:"markedDeliveredById"`
}

// QuotationSubmit представляет структуру запроса для подачи котировки.
type QuotationSubmit struct {
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	TaxType          *TaxType         `json:"taxType"`
	TaxAmount        *decimal.Decimal `json:"taxAmount"`
	Notes            string           `json:"notes"`
	DocumentPath     string           `json:"documentPath"`
	OriginalFilename string           `json:"originalFilename"`
}

// DeliveryConfirmation представляет подтверждение поставки по присужденной котировке.
type DeliveryConfirmation struct {
	DeliveredAt  time.Time `json:"deliveredAt"`
	NotePath     string    `json:"notePath"`
	NoteFilename string    `json:"noteFilename"`
}

// PurchaseOrder - представление заказа на закупку по присужденной котировке.
type PurchaseOrder struct {
	QuotationID    string          `json:"quotationId"`
	QuotationSeq   int64           `json:"-"`
	PONumber       string          `json:"poNumber"`
	SupplierID     string          `json:"supplierId"`
	SupplierName   string          `json:"supplierName"`
	SupplierNumber string          `json:"supplierNumber"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	RFQID          string          `json:"rfqId"`
	RFQNumber      string          `json:"rfqNumber"`
	RFQTitle       string          `json:"rfqTitle"`
	ApprovedAt     *time.Time      `json:"approvedAt"`
	SubmittedAt    time.Time       `json:"submittedAt"`
}
