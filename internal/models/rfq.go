package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RFQStatus - статус запроса котировок.
type RFQStatus string

const (
	RFQDraft   RFQStatus = "draft"   // Создан сотрудником закупок, ждет утверждения
	RFQOpen    RFQStatus = "open"    // Открыт для котировок
	RFQClosed  RFQStatus = "closed"  // Дедлайн прошел без присуждения
	RFQAwarded RFQStatus = "awarded" // Победитель выбран
)

// RFQ представляет запрос котировок, разосланный поставщикам.
type RFQ struct {
	ID             string          `json:"id"`
	Seq            int64           `json:"-"`
	RFQNumber      string          `json:"rfqNumber"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Budget         decimal.Decimal `json:"budget"`
	Currency       string          `json:"currency"`
	Deadline       time.Time       `json:"deadline"`
	Status         RFQStatus       `json:"status"`
	ResponseLocked bool            `json:"responseLocked"`
	CreatedByID    *string         `json:"createdById"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"-"`
}

// InvitationStatus - статус приглашения поставщика.
type InvitationStatus string

const (
	InvitationInvited     InvitationStatus = "invited"
	InvitationResponded   InvitationStatus = "responded"
	InvitationAwarded     InvitationStatus = "awarded"
	InvitationNotSelected InvitationStatus = "not_selected"
)

// Invitation связывает RFQ и поставщика; ровно одно приглашение на пару (RFQ, поставщик).
type Invitation struct {
	ID          string           `json:"id"`
	RFQID       string           `json:"rfqId"`
	SupplierID  string           `json:"supplierId"`
	InvitedAt   time.Time        `json:"invitedAt"`
	RespondedAt *time.Time       `json:"respondedAt"`
	Status      InvitationStatus `json:"status"`
}

// RFQDocument - ссылка на приложенный к RFQ документ.
type RFQDocument struct {
	ID               string    `json:"id"`
	RFQID            string    `json:"rfqId"`
	FilePath         string    `json:"filePath"`
	OriginalFilename string    `json:"originalFilename"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// RFQCreate представляет структуру запроса для создания RFQ напрямую.
type RFQCreate struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Budget      decimal.Decimal `json:"budget"`
	Currency    string          `json:"currency"`
	Deadline    time.Time       `json:"deadline"`
	SupplierIDs []string        `json:"supplierIds"`
}

// RFQUpdate представляет частичное обновление RFQ.
type RFQUpdate struct {
	Description *string          `json:"description"`
	Budget      *decimal.Decimal `json:"budget"`
	Deadline    *time.Time       `json:"deadline"`
}

// RFQDetail - RFQ вместе с котировками, приглашениями и документами,
// уже отфильтрованными по правилам видимости для запросившей роли.
type RFQDetail struct {
	RFQ
	Quotations  []Quotation   `json:"quotations"`
	Invitations []Invitation  `json:"invitations"`
	Documents   []RFQDocument `json:"documents"`
}
