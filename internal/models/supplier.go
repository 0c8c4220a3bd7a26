package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupplierProfile представляет профиль поставщика.
// Счетчики справедливости (InvitationsSent, LastInvitedAt, TotalAwardedValue)
// меняются только менеджером приглашений и протоколом присуждения.
type SupplierProfile struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	SupplierNumber    string          `json:"supplierNumber"`
	CompanyName       string          `json:"companyName"`
	ContactEmail      string          `json:"contactEmail"`
	ContactPhone      *string         `json:"contactPhone"`
	Address           *string         `json:"address"`
	PreferredCurrency *string         `json:"preferredCurrency"`
	InvitationsSent   int             `json:"invitationsSent"`
	LastInvitedAt     *time.Time      `json:"lastInvitedAt"`
	TotalAwardedValue decimal.Decimal `json:"totalAwardedValue"`
	Categories        []string        `json:"categories"`
	CreatedAt         time.Time       `json:"createdAt"`
}
