package services

import (
	"context"
	"fmt"
	"log"

	"github.com/procurahub/procurement-service/internal/clock"
	"github.com/procurahub/procurement-service/internal/models"
	"github.com/procurahub/procurement-service/internal/notification"
	"github.com/procurahub/procurement-service/internal/repository"
)

// QuotationService управляет подачей котировок и протоколом присуждения.
// На один RFQ присуждается не более одной котировки.
type QuotationService struct {
	store    repository.Store
	clock    clock.Clock
	notifier notification.Notifier
	logger   *log.Logger
	requests *RequestService
}

// NewQuotationService создает новый экземпляр QuotationService.
func NewQuotationService(store repository.Store, clk clock.Clock, notifier notification.Notifier, logger *log.Logger, requests *RequestService) *QuotationService {
	return &QuotationService{
		store:    store,
		clock:    clk,
		notifier: notifier,
		logger:   logger,
		requests: requests,
	}
}

func (s *QuotationService) sweep(ctx context.Context) error {
	closed, err := s.store.RFQs().CloseExpired(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	if closed > 0 {
		s.logger.Printf("closed %d expired rfq(s)", closed)
	}
	return nil
}

// supplierProfile возвращает профиль поставщика для пользователя-поставщика.
// Пользователь без профиля не допускается к операциям поставщика.
func (s *QuotationService) supplierProfile(ctx context.Context, actor *models.User) (*models.SupplierProfile, error) {
	profile, err := s.store.Suppliers().GetByUser(ctx, actor.ID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewForbiddenError("supplier profile not found")
		}
		return nil, err
	}
	return profile, nil
}

// Submit подает котировку поставщика по открытому RFQ. Первая поданная
// котировка включает эмбарго на просмотр котировок до дедлайна.
func (s *QuotationService) Submit(ctx context.Context, actor *models.User, rfqID string, in models.QuotationSubmit) (*models.Quotation, error) {
	if actor.Role != models.RoleSupplier {
		return nil, models.NewForbiddenError("only suppliers can submit quotations")
	}
	if !in.Amount.IsPositive() {
		return nil, models.NewValidationError("quotation amount must be positive")
	}
	if in.TaxType != nil && *in.TaxType != models.TaxVAT && *in.TaxType != models.TaxTOT {
		return nil, models.NewValidationError("tax type must be VAT or TOT")
	}
	if in.TaxAmount != nil && in.TaxAmount.IsNegative() {
		return nil, models.NewValidationError("tax amount cannot be negative")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	profile, err := s.supplierProfile(ctx, actor)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	currency := in.Currency
	if currency == "" && profile.PreferredCurrency != nil {
		currency = *profile.PreferredCurrency
	}

	quotation := &models.Quotation{
		RFQID:          rfqID,
		SupplierID:     profile.ID,
		SupplierUserID: actor.ID,
		Amount:         in.Amount,
		Currency:       currency,
		TaxType:        in.TaxType,
		TaxAmount:      in.TaxAmount,
		Status:         models.QuotationSubmitted,
		SubmittedAt:    now,
	}
	if in.Notes != "" {
		quotation.Notes = &in.Notes
	}
	if in.DocumentPath != "" {
		quotation.DocumentPath = &in.DocumentPath
	}
	if in.OriginalFilename != "" {
		quotation.OriginalFilename = &in.OriginalFilename
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		// Блокировка строки RFQ сериализует включение эмбарго.
		rfq, err := tx.RFQs().GetForUpdate(ctx, rfqID)
		if err != nil {
			return err
		}
		if rfq.Status != models.RFQOpen {
			return models.NewInvalidStateError("rfq is not open for quotations")
		}
		if quotation.Currency == "" {
			quotation.Currency = rfq.Currency
		}

		invitation, err := tx.RFQs().GetInvitation(ctx, rfqID, profile.ID)
		if err != nil {
			if models.IsNotFound(err) {
				return models.NewForbiddenError("supplier is not invited to this rfq")
			}
			return err
		}

		if err := tx.Quotations().Create(ctx, quotation); err != nil {
			return err
		}
		if err := tx.RFQs().MarkInvitationResponded(ctx, invitation.ID, now); err != nil {
			return err
		}
		if !rfq.ResponseLocked {
			return tx.RFQs().SetResponseLocked(ctx, rfqID, true)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyRole(ctx, "New quotation received",
		fmt.Sprintf("Supplier %s submitted a quotation for rfq %s.", profile.CompanyName, rfqID),
		models.RoleProcurement)
	return quotation, nil
}

// RequestBudgetOverride переводит котировку сверх бюджета на финансовое одобрение.
func (s *QuotationService) RequestBudgetOverride(ctx context.Context, actor *models.User, rfqID, quotationID, justification string) (*models.Quotation, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can request a budget override")
	}
	if justification == "" {
		return nil, models.NewValidationError("justification is required")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	var quotation *models.Quotation
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		quotation, err = tx.Quotations().Get(ctx, rfqID, quotationID)
		if err != nil {
			return err
		}
		switch quotation.Status {
		case models.QuotationSubmitted:
		case models.QuotationPendingFinanceApproval:
			return models.NewConflictError("finance approval has already been requested")
		case models.QuotationApproved, models.QuotationRejected:
			return models.NewConflictError("quotation has already been decided")
		default:
			return models.NewInvalidStateError("quotation cannot be sent for finance approval")
		}

		now := s.clock.Now()
		quotation.Status = models.QuotationPendingFinanceApproval
		quotation.BudgetOverrideJustification = &justification
		quotation.FinanceApprovalRequestedAt = &now
		quotation.FinanceApprovalRequestedByID = &actor.ID
		return tx.Quotations().Update(ctx, quotation)
	})
	if err != nil {
		return nil, err
	}

	s.notifyRole(ctx, "Budget override awaiting finance approval",
		fmt.Sprintf("A quotation above budget on rfq %s needs finance approval.", rfqID),
		models.RoleFinance)
	return quotation, nil
}

// Approve присуждает RFQ котировке. Весь каскад выполняется в одной транзакции:
// победитель одобряется, остальные котировки отклоняются, приглашения и RFQ
// переводятся в присужденное состояние, сумма засчитывается поставщику,
// породившая заявка завершается.
func (s *QuotationService) Approve(ctx context.Context, actor *models.User, rfqID, quotationID, overrideJustification string) (*models.Quotation, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleFinance, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("access denied")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	var winner *models.Quotation
	var winnerProfile *models.SupplierProfile
	var losers []models.SupplierProfile
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		// Блокировка строки RFQ сериализует конкурирующие присуждения.
		rfq, err := tx.RFQs().GetForUpdate(ctx, rfqID)
		if err != nil {
			return err
		}

		winner, err = tx.Quotations().Get(ctx, rfqID, quotationID)
		if err != nil {
			return err
		}
		switch winner.Status {
		case models.QuotationSubmitted:
			// Одобрение сверх бюджета минует финансовый этап только для финансов.
			if overrideJustification != "" && !actor.HasRole(models.RoleFinance, models.RoleSuperAdmin) {
				return models.NewForbiddenError("budget override approval requires the finance role")
			}
		case models.QuotationPendingFinanceApproval:
			if !actor.HasRole(models.RoleFinance, models.RoleSuperAdmin) {
				return models.NewForbiddenError("quotation is awaiting finance approval")
			}
		case models.QuotationApproved, models.QuotationRejected:
			return models.NewConflictError("quotation has already been decided")
		default:
			return models.NewInvalidStateError("quotation cannot be approved")
		}

		exists, err := tx.Quotations().WinnerExists(ctx, rfqID, quotationID)
		if err != nil {
			return err
		}
		if exists {
			return models.NewConflictError("rfq has already been awarded to another quotation")
		}

		now := s.clock.Now()
		winner.Status = models.QuotationApproved
		winner.ApprovedAt = &now
		winner.ApprovedByID = &actor.ID
		if overrideJustification != "" {
			if winner.BudgetOverrideJustification != nil && *winner.BudgetOverrideJustification != "" {
				combined := *winner.BudgetOverrideJustification + "\n\n[Finance Approval]: " + overrideJustification
				winner.BudgetOverrideJustification = &combined
			} else {
				winner.BudgetOverrideJustification = &overrideJustification
			}
		}
		if err := tx.Quotations().Update(ctx, winner); err != nil {
			return err
		}

		if err := tx.Quotations().RejectSiblings(ctx, rfqID, quotationID); err != nil {
			return err
		}
		if err := tx.RFQs().AwardInvitations(ctx, rfqID, winner.SupplierID, now); err != nil {
			return err
		}

		rfq.Status = models.RFQAwarded
		rfq.ResponseLocked = false
		if err := tx.RFQs().Update(ctx, rfq); err != nil {
			return err
		}
		if err := tx.Suppliers().AddAwardedValue(ctx, winner.SupplierID, winner.Amount); err != nil {
			return err
		}
		if err := s.requests.completeForRFQ(ctx, tx, rfqID, now); err != nil {
			return err
		}

		// Адресаты уведомлений собираются внутри транзакции,
		// сами уведомления уходят после фиксации.
		winnerProfile, err = tx.Suppliers().Get(ctx, winner.SupplierID)
		if err != nil {
			return err
		}
		quotations, err := tx.Quotations().ListByRFQ(ctx, rfqID)
		if err != nil {
			return err
		}
		for _, quotation := range quotations {
			if quotation.SupplierID == winner.SupplierID {
				continue
			}
			loser, err := tx.Suppliers().Get(ctx, quotation.SupplierID)
			if err != nil {
				return err
			}
			losers = append(losers, *loser)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifySupplier(ctx, winnerProfile, "Quotation awarded",
		fmt.Sprintf("Congratulations, your quotation for rfq %s has been awarded.", rfqID))
	for i := range losers {
		s.notifySupplier(ctx, &losers[i], "Quotation not selected",
			fmt.Sprintf("Your quotation for rfq %s was not selected.", rfqID))
	}
	return winner, nil
}

// Reject отклоняет котировку без влияния на остальные котировки RFQ.
func (s *QuotationService) Reject(ctx context.Context, actor *models.User, rfqID, quotationID string) (*models.Quotation, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleFinance, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("access denied")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	var quotation *models.Quotation
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		quotation, err = tx.Quotations().Get(ctx, rfqID, quotationID)
		if err != nil {
			return err
		}
		switch quotation.Status {
		case models.QuotationSubmitted:
		case models.QuotationPendingFinanceApproval:
			if !actor.HasRole(models.RoleFinance, models.RoleSuperAdmin) {
				return models.NewForbiddenError("quotation is awaiting finance approval")
			}
		case models.QuotationApproved, models.QuotationRejected:
			return models.NewConflictError("quotation has already been decided")
		default:
			return models.NewInvalidStateError("quotation cannot be rejected")
		}

		quotation.Status = models.QuotationRejected
		return tx.Quotations().Update(ctx, quotation)
	})
	if err != nil {
		return nil, err
	}

	if profile, err := s.store.Suppliers().Get(ctx, quotation.SupplierID); err == nil {
		s.notifySupplier(ctx, profile, "Quotation rejected",
			fmt.Sprintf("Your quotation for rfq %s was rejected.", rfqID))
	}
	return quotation, nil
}

// MarkDelivered подтверждает поставку по присужденной котировке.
// Требуется накладная и дата поставки после даты присуждения.
func (s *QuotationService) MarkDelivered(ctx context.Context, actor *models.User, rfqID, quotationID string, in models.DeliveryConfirmation) (*models.Quotation, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can confirm deliveries")
	}
	if in.NotePath == "" || in.NoteFilename == "" {
		return nil, models.NewValidationError("delivery note document is required")
	}
	if in.DeliveredAt.IsZero() {
		return nil, models.NewValidationError("delivery date is required")
	}

	var quotation *models.Quotation
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		quotation, err = tx.Quotations().Get(ctx, rfqID, quotationID)
		if err != nil {
			return err
		}
		if quotation.Status != models.QuotationApproved {
			return models.NewInvalidStateError("only awarded quotations can be marked as delivered")
		}
		if quotation.ApprovedAt != nil && !in.DeliveredAt.After(*quotation.ApprovedAt) {
			return models.NewValidationError("delivery date must be after the award date")
		}

		delivered := "delivered"
		quotation.DeliveryStatus = &delivered
		quotation.DeliveredAt = &in.DeliveredAt
		quotation.DeliveryNotePath = &in.NotePath
		quotation.DeliveryNoteFilename = &in.NoteFilename
		quotation.MarkedDeliveredByID = &actor.ID
		return tx.Quotations().Update(ctx, quotation)
	})
	if err != nil {
		return nil, err
	}
	return quotation, nil
}

// ListPurchaseOrders возвращает заказы на закупку по всем присужденным котировкам.
func (s *QuotationService) ListPurchaseOrders(ctx context.Context, actor *models.User) ([]models.PurchaseOrder, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleFinance, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("access denied")
	}

	orders, err := s.store.Quotations().ListPurchaseOrders(ctx)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		issuedAt := orders[i].SubmittedAt
		if orders[i].ApprovedAt != nil {
			issuedAt = *orders[i].ApprovedAt
		}
		orders[i].PONumber = PONumber(orders[i].QuotationSeq, issuedAt)
	}
	return orders, nil
}

// notifySupplier уведомляет поставщика; ошибка доставки только логируется.
func (s *QuotationService) notifySupplier(ctx context.Context, profile *models.SupplierProfile, subject, body string) {
	if profile == nil || profile.ContactEmail == "" {
		return
	}
	if err := s.notifier.Send(ctx, []string{profile.ContactEmail}, subject, body, ""); err != nil {
		s.logger.Printf("failed to notify supplier %s: %v", profile.SupplierNumber, err)
	}
}

// notifyRole уведомляет всех активных пользователей указанных ролей.
func (s *QuotationService) notifyRole(ctx context.Context, subject, body string, roles ...models.Role) {
	users, err := s.store.Directory().ListActiveUsersByRole(ctx, roles...)
	if err != nil {
		s.logger.Printf("failed to load recipients for notification: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}
	recipients := make([]string, 0, len(users))
	for _, user := range users {
		recipients = append(recipients, user.Email)
	}
	if err := s.notifier.Send(ctx, recipients, subject, body, ""); err != nil {
		s.logger.Printf("failed to notify %v: %v", roles, err)
	}
}
