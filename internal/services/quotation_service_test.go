package services

import (
	"testing"
	"time"

	"github.com/procurahub/procurement-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitQuotationLocksRFQ(t *testing.T) {
	env := newTestEnv()
	rfq := env.openRFQ()

	quotation := env.submitQuotation(env.supplierUserA, rfq.ID, 45000)
	assert.Equal(t, models.QuotationSubmitted, quotation.Status)
	assert.Equal(t, "sup-a", quotation.SupplierID)

	stored, err := env.store.RFQs().Get(testCtx, rfq.ID)
	require.NoError(t, err)
	assert.True(t, stored.ResponseLocked)

	invitation, err := env.store.RFQs().GetInvitation(testCtx, rfq.ID, "sup-a")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationResponded, invitation.Status)
	assert.NotNil(t, invitation.RespondedAt)

	// Вторая котировка не сбрасывает эмбарго.
	env.submitQuotation(env.supplierUserB, rfq.ID, 47000)
	stored, err = env.store.RFQs().Get(testCtx, rfq.ID)
	require.NoError(t, err)
	assert.True(t, stored.ResponseLocked)
}

func TestSubmitQuotationDuplicate(t *testing.T) {
	env := newTestEnv()
	rfq := env.openRFQ()
	env.submitQuotation(env.supplierUserA, rfq.ID, 45000)

	_, err := env.quotations.Submit(testCtx, env.supplierUserA, rfq.ID, models.QuotationSubmit{
		Amount: decimal.NewFromInt(44000),
	})
	assert.True(t, models.IsConflict(err))
}

func TestSubmitQuotationUninvited(t *testing.T) {
	env := newTestEnv()
	rfq, err := env.rfqs.Create(testCtx, env.procurement, models.RFQCreate{
		Title:       "Laptops",
		Description: "10 developer laptops",
		Category:    "it",
		Budget:      decimal.NewFromInt(50000),
		Deadline:    env.clock.Now().AddDate(0, 0, 7),
		SupplierIDs: []string{"sup-a"},
	})
	require.NoError(t, err)

	_, err = env.quotations.Submit(testCtx, env.supplierUserB, rfq.ID, models.QuotationSubmit{
		Amount: decimal.NewFromInt(44000),
	})
	assert.True(t, models.IsForbidden(err))
}

func TestSubmitQuotationAfterDeadline(t *testing.T) {
	env := newTestEnv()
	rfq := env.openRFQ()
	env.clock.Advance(8 * 24 * time.Hour)

	// Sweep перед подачей закрывает RFQ, подача отклоняется.
	_, err := env.quotations.Submit(testCtx, env.supplierUserA, rfq.ID, models.QuotationSubmit{
		Amount: decimal.NewFromInt(44000),
	})
	assert.True(t, models.IsInvalidState(err))
}

func TestSubmitQuotationValidation(t *testing.T) {
	env := newTestEnv()
	rfq := env.openRFQ()

	_, err := env.quotations.Submit(testCtx, env.supplierUserA, rfq.ID, models.QuotationSubmit{
		Amount: decimal.Zero,
	})
	assert.True(t, models.IsValidation(err))

	badTax := models.TaxType("GST")
	_, err = env.quotations.Submit(testCtx, env.supplierUserA, rfq.ID, models.QuotationSubmit{
		Amount:  decimal.NewFromInt(44000),
		TaxType: &badTax,
	})
	assert.True(t, models.IsValidation(err))

	_, err = env.quotations.Submit(testCtx, env.procurement, rfq.ID, models.QuotationSubmit{
		Amount: decimal.NewFromInt(44000),
	})
	assert.True(t, models.IsForbidden(err))
}

func TestRequestBudgetOverride(t *testing.T) {
	env := newTestEnv()
	rfq := env.openRFQ()
	quotation := env.submitQuotation(env.supplierUserA, rfq.ID, 60000)

	pending, err := env.quotations.RequestBudgetOverride(testCtx, env.procurement, rfq.ID, quotation.ID, "only supplier in range")
	require.NoError(t, err)
	assert.Equal(t, models.QuotationPendingFinanceApproval, pending.Status)
	require.NotNil(t, pending.BudgetOverrideJustification)
	assert.Equal(t, "only supplier in range", *pending.BudgetOverrideJustification)
	require.NotNil(t, pending.FinanceApprovalRequestedByID)
	assert.Equal(t, env.procurement.ID, *pending.FinanceApprovalRequestedByID)
	assert.NotNil(t, pending.FinanceApprovalRequestedAt)

	// Повторный запрос конфликтует.
	_, err = env.quotations.RequestBudgetOverride(testCtx, env.procurement, rfq.ID, quotation.ID, "again")
	assert.True(t, models.IsConflict(err))
}

func TestRequestBudgetOverrideValidation(t *testing.T) {
	env := newTestEnv()
	rfq := env.openRFQ()
	quotation := env.submitQuotation(env.supplierUserA, rfq.ID, 60000)

	_, err := env.quotations.RequestBudgetOverride(testCtx, env.procurement, rfq.ID, quotation.ID, "")
	assert.True(t, models.IsValidation(err))

	_, err = env.quotations.RequestBudgetOverride(testCtx, env.officer, rfq.ID, quotation.ID, "over budget")
	assert.True(t, models.IsForbidden(err))
}

// awardSetup доводит заявку до открытого RFQ с двумя поданными котировками.
func awardSetup(t *testing.T, env *testEnv) (requestID string, rfqID string, winner, loser *models.Quotation) {
	t.Helper()
	request := env.approvedRequest()
	rfq, err := env.requests.InviteSuppliers(testCtx, env.procurement, request.ID, models.SupplierInvite{
		SupplierIDs: []string{"sup-a", "sup-b"},
		RFQDeadline: env.clock.Now().AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	winner = env.submitQuotation(env.supplierUserA, rfq.ID, 45000)
	loser = env.submitQuotation(env.supplierUserB, rfq.ID, 47000)
	return request.ID, rfq.ID, winner, loser
}

func TestApproveCascade(t *testing.T) {
	env := newTestEnv()
	requestID, rfqID, winner, loser := awardSetup(t, env)

	awarded, err := env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.QuotationApproved, awarded.Status)
	require.NotNil(t, awarded.ApprovedByID)
	assert.Equal(t, env.procurement.ID, *awarded.ApprovedByID)
	assert.NotNil(t, awarded.ApprovedAt)

	// Проигравшая котировка отклонена с очисткой метаданных одобрения.
	rejected, err := env.store.Quotations().Get(testCtx, rfqID, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationRejected, rejected.Status)
	assert.Nil(t, rejected.ApprovedAt)
	assert.Nil(t, rejected.ApprovedByID)

	// Приглашения переведены в awarded / not_selected.
	winnerInvitation, err := env.store.RFQs().GetInvitation(testCtx, rfqID, "sup-a")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationAwarded, winnerInvitation.Status)
	loserInvitation, err := env.store.RFQs().GetInvitation(testCtx, rfqID, "sup-b")
	require.NoError(t, err)
	assert.Equal(t, models.InvitationNotSelected, loserInvitation.Status)

	// RFQ присужден, сумма засчитана поставщику, заявка завершена.
	rfq, err := env.store.RFQs().Get(testCtx, rfqID)
	require.NoError(t, err)
	assert.Equal(t, models.RFQAwarded, rfq.Status)

	supplier, err := env.store.Suppliers().Get(testCtx, "sup-a")
	require.NoError(t, err)
	assert.True(t, supplier.TotalAwardedValue.Equal(decimal.NewFromInt(45000)))

	request, err := env.store.Requests().Get(testCtx, requestID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, request.Status)
}

func TestApproveSecondQuotationConflicts(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, loser := awardSetup(t, env)

	_, err := env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	require.NoError(t, err)

	_, err = env.quotations.Approve(testCtx, env.procurement, rfqID, loser.ID, "")
	assert.True(t, models.IsConflict(err))

	// Повторное решение по победителю тоже конфликт.
	_, err = env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	assert.True(t, models.IsConflict(err))
}

func TestApprovePendingFinanceRequiresFinanceRole(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, _ := awardSetup(t, env)

	_, err := env.quotations.RequestBudgetOverride(testCtx, env.procurement, rfqID, winner.ID, "best available offer")
	require.NoError(t, err)

	_, err = env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	assert.True(t, models.IsForbidden(err))

	awarded, err := env.quotations.Approve(testCtx, env.finance, rfqID, winner.ID, "approved within revised ceiling")
	require.NoError(t, err)
	assert.Equal(t, models.QuotationApproved, awarded.Status)
	require.NotNil(t, awarded.BudgetOverrideJustification)
	assert.Equal(t,
		"best available offer\n\n[Finance Approval]: approved within revised ceiling",
		*awarded.BudgetOverrideJustification)
}

func TestApproveWithOverrideRequiresFinanceRole(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, _ := awardSetup(t, env)

	_, err := env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "direct override")
	assert.True(t, models.IsForbidden(err))

	awarded, err := env.quotations.Approve(testCtx, env.finance, rfqID, winner.ID, "direct override")
	require.NoError(t, err)
	require.NotNil(t, awarded.BudgetOverrideJustification)
	assert.Equal(t, "direct override", *awarded.BudgetOverrideJustification)
}

func TestRejectQuotation(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, loser := awardSetup(t, env)

	rejected, err := env.quotations.Reject(testCtx, env.procurement, rfqID, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationRejected, rejected.Status)

	// Отклонение не трогает остальные котировки и RFQ.
	other, err := env.store.Quotations().Get(testCtx, rfqID, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationSubmitted, other.Status)
	rfq, err := env.store.RFQs().Get(testCtx, rfqID)
	require.NoError(t, err)
	assert.Equal(t, models.RFQOpen, rfq.Status)

	_, err = env.quotations.Reject(testCtx, env.procurement, rfqID, loser.ID)
	assert.True(t, models.IsConflict(err))
}

func TestRejectPendingFinanceRequiresFinanceRole(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, _ := awardSetup(t, env)

	_, err := env.quotations.RequestBudgetOverride(testCtx, env.procurement, rfqID, winner.ID, "over budget")
	require.NoError(t, err)

	_, err = env.quotations.Reject(testCtx, env.procurement, rfqID, winner.ID)
	assert.True(t, models.IsForbidden(err))

	rejected, err := env.quotations.Reject(testCtx, env.finance, rfqID, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotationRejected, rejected.Status)
}

func TestMarkDelivered(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, _ := awardSetup(t, env)
	_, err := env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	require.NoError(t, err)

	deliveredAt := env.clock.Now().Add(48 * time.Hour)
	delivered, err := env.quotations.MarkDelivered(testCtx, env.procurement, rfqID, winner.ID, models.DeliveryConfirmation{
		DeliveredAt:  deliveredAt,
		NotePath:     "/files/note.pdf",
		NoteFilename: "note.pdf",
	})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveryStatus)
	assert.Equal(t, "delivered", *delivered.DeliveryStatus)
	require.NotNil(t, delivered.MarkedDeliveredByID)
	assert.Equal(t, env.procurement.ID, *delivered.MarkedDeliveredByID)
}

func TestMarkDeliveredValidation(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, loser := awardSetup(t, env)
	_, err := env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	require.NoError(t, err)

	// Без накладной не принимается.
	_, err = env.quotations.MarkDelivered(testCtx, env.procurement, rfqID, winner.ID, models.DeliveryConfirmation{
		DeliveredAt: env.clock.Now().Add(time.Hour),
	})
	assert.True(t, models.IsValidation(err))

	// Дата поставки не раньше даты присуждения.
	_, err = env.quotations.MarkDelivered(testCtx, env.procurement, rfqID, winner.ID, models.DeliveryConfirmation{
		DeliveredAt:  env.clock.Now().Add(-time.Hour),
		NotePath:     "/files/note.pdf",
		NoteFilename: "note.pdf",
	})
	assert.True(t, models.IsValidation(err))

	// Только присужденная котировка может быть поставлена.
	_, err = env.quotations.MarkDelivered(testCtx, env.procurement, rfqID, loser.ID, models.DeliveryConfirmation{
		DeliveredAt:  env.clock.Now().Add(time.Hour),
		NotePath:     "/files/note.pdf",
		NoteFilename: "note.pdf",
	})
	assert.True(t, models.IsInvalidState(err))
}

func TestListPurchaseOrders(t *testing.T) {
	env := newTestEnv()
	_, rfqID, winner, _ := awardSetup(t, env)
	_, err := env.quotations.Approve(testCtx, env.procurement, rfqID, winner.ID, "")
	require.NoError(t, err)

	_, err = env.quotations.ListPurchaseOrders(testCtx, env.supplierUserA)
	assert.True(t, models.IsForbidden(err))

	orders, err := env.quotations.ListPurchaseOrders(testCtx, env.procurement)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "PO00001_082026", orders[0].PONumber)
	assert.Equal(t, "SUP001", orders[0].SupplierNumber)
	assert.True(t, orders[0].Amount.Equal(decimal.NewFromInt(45000)))
}
