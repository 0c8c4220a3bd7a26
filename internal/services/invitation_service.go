package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/procurahub/procurement-service/internal/clock"
	"github.com/procurahub/procurement-service/internal/models"
	"github.com/procurahub/procurement-service/internal/notification"
	"github.com/procurahub/procurement-service/internal/repository"
)

// InvitationService управляет приглашениями поставщиков и справедливым отбором.
type InvitationService struct {
	store     repository.Store
	clock     clock.Clock
	notifier  notification.Notifier
	logger    *log.Logger
	batchSize int
}

// NewInvitationService создает новый экземпляр InvitationService.
func NewInvitationService(store repository.Store, clk clock.Clock, notifier notification.Notifier, logger *log.Logger, batchSize int) *InvitationService {
	return &InvitationService{
		store:     store,
		clock:     clk,
		notifier:  notifier,
		logger:    logger,
		batchSize: batchSize,
	}
}

// SelectSuppliers возвращает поставщиков категории в справедливом порядке.
// При limit <= 0 берется размер пачки из конфигурации.
func (s *InvitationService) SelectSuppliers(ctx context.Context, category string, limit int) ([]models.SupplierProfile, error) {
	if category == "" {
		return nil, models.NewValidationError("category is required")
	}
	if limit <= 0 {
		limit = s.batchSize
	}
	return s.store.Suppliers().SelectByCategory(ctx, category, limit)
}

// CreateInvitations создает приглашения для поставщиков, которые еще не приглашены
// к этому RFQ, и обновляет их счетчики справедливости. Возвращает число созданных
// приглашений. Store должен быть привязан к транзакции вызывающей операции.
func (s *InvitationService) CreateInvitations(ctx context.Context, store repository.Store, rfq *models.RFQ, suppliers []models.SupplierProfile, sendNotifications bool) (int, error) {
	now := s.clock.Now()
	created := 0
	for i := range suppliers {
		supplier := &suppliers[i]

		if _, err := store.RFQs().GetInvitation(ctx, rfq.ID, supplier.ID); err == nil {
			continue
		} else if !models.IsNotFound(err) {
			return created, err
		}

		invitation := &models.Invitation{
			RFQID:      rfq.ID,
			SupplierID: supplier.ID,
			InvitedAt:  now,
			Status:     models.InvitationInvited,
		}
		if err := store.RFQs().CreateInvitation(ctx, invitation); err != nil {
			// Гонка с параллельным приглашением того же поставщика.
			if models.IsConflict(err) {
				continue
			}
			return created, err
		}
		if err := store.Suppliers().RecordInvitation(ctx, supplier.ID, now); err != nil {
			return created, err
		}
		created++

		if sendNotifications {
			s.sendInvitationNotice(ctx, rfq, supplier)
		}
	}
	return created, nil
}

// ResolveInvitees возвращает профили приглашаемых поставщиков. Явный список
// идентификаторов проверяется на существование; без списка поставщики
// отбираются по категории в справедливом порядке.
func (s *InvitationService) ResolveInvitees(ctx context.Context, store repository.Store, category string, supplierIDs []string) ([]models.SupplierProfile, error) {
	if len(supplierIDs) == 0 {
		return store.Suppliers().SelectByCategory(ctx, category, s.batchSize)
	}

	suppliers, err := store.Suppliers().ListByIDs(ctx, supplierIDs)
	if err != nil {
		return nil, err
	}
	if len(suppliers) != len(supplierIDs) {
		found := make(map[string]bool, len(suppliers))
		for _, supplier := range suppliers {
			found[supplier.ID] = true
		}
		var missing []string
		for _, id := range supplierIDs {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, models.NewNotFoundError("supplier(s) not found: " + strings.Join(missing, ", "))
	}
	return suppliers, nil
}

// sendInvitationNotice отправляет поставщику уведомление о приглашении.
// Ошибка доставки логируется и не прерывает операцию.
func (s *InvitationService) sendInvitationNotice(ctx context.Context, rfq *models.RFQ, supplier *models.SupplierProfile) {
	subject := fmt.Sprintf("Invitation to quote: %s (%s)", rfq.Title, rfq.RFQNumber)
	body := fmt.Sprintf(
		"Dear %s,\n\nYou have been invited to submit a quotation for %s (%s).\nCategory: %s\nDeadline: %s\n",
		supplier.CompanyName,
		rfq.Title,
		rfq.RFQNumber,
		rfq.Category,
		rfq.Deadline.Format("02 Jan 2006 15:04"),
	)
	if err := s.notifier.Send(ctx, []string{supplier.ContactEmail}, subject, body, ""); err != nil {
		s.logger.Printf("failed to send invitation notification to %s: %v", supplier.ContactEmail, err)
	}
}
