package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/procurahub/procurement-service/internal/clock"
	"github.com/procurahub/procurement-service/internal/models"
	"github.com/procurahub/procurement-service/internal/notification"
	"github.com/procurahub/procurement-service/internal/repository"

	"github.com/shopspring/decimal"
)

// DeadlinePassed - единственная проверка истечения дедлайна RFQ.
// Дедлайн, равный текущему моменту, считается истекшим.
func DeadlinePassed(deadline, now time.Time) bool {
	return !deadline.After(now)
}

// RFQNumber строит человекочитаемый номер RFQ вида RFQ007_082026.
func RFQNumber(seq int64, createdAt time.Time) string {
	return fmt.Sprintf("RFQ%03d_%s", seq, createdAt.Format("012006"))
}

// PONumber строит номер заказа на закупку вида PO00007_082026.
func PONumber(seq int64, issuedAt time.Time) string {
	return fmt.Sprintf("PO%05d_%s", seq, issuedAt.Format("012006"))
}

// RFQService управляет жизненным циклом RFQ: создание, утверждение черновиков,
// просмотр с маскированием по ролям и закрытие по дедлайну.
type RFQService struct {
	store       repository.Store
	clock       clock.Clock
	notifier    notification.Notifier
	logger      *log.Logger
	invitations *InvitationService
	currency    string
}

// NewRFQService создает новый экземпляр RFQService.
func NewRFQService(store repository.Store, clk clock.Clock, notifier notification.Notifier, logger *log.Logger, invitations *InvitationService, currency string) *RFQService {
	return &RFQService{
		store:       store,
		clock:       clk,
		notifier:    notifier,
		logger:      logger,
		invitations: invitations,
		currency:    currency,
	}
}

// CloseExpiredRFQs закрывает открытые RFQ с истекшим дедлайном и снимает эмбарго.
// Операция идемпотентна и вызывается перед каждым обращением к RFQ.
func (s *RFQService) CloseExpiredRFQs(ctx context.Context) (int64, error) {
	closed, err := s.store.RFQs().CloseExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		s.logger.Printf("closed %d expired rfq(s)", closed)
	}
	return closed, nil
}

func (s *RFQService) sweep(ctx context.Context) error {
	_, err := s.CloseExpiredRFQs(ctx)
	return err
}

// Create создает RFQ. Сотрудник отдела закупок получает черновик без приглашений,
// менеджер закупок - открытый RFQ с немедленной рассылкой приглашений.
func (s *RFQService) Create(ctx context.Context, actor *models.User, in models.RFQCreate) (*models.RFQ, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleProcurementOfficer, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement staff can create rfqs")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if in.Title == "" || in.Description == "" || in.Category == "" {
		return nil, models.NewValidationError("title, description and category are required")
	}
	if !in.Budget.IsPositive() {
		return nil, models.NewValidationError("budget must be positive")
	}

	// Дедлайн в прошлом допустим: ближайший sweep сразу закроет такой RFQ.
	currency := in.Currency
	if currency == "" {
		currency = s.currency
	}
	status := models.RFQOpen
	if actor.Role == models.RoleProcurementOfficer {
		status = models.RFQDraft
	}

	rfq := &models.RFQ{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Budget:      in.Budget,
		Currency:    currency,
		Deadline:    in.Deadline,
		Status:      status,
		CreatedByID: &actor.ID,
		CreatedAt:   now,
	}

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.RFQs().Create(ctx, rfq); err != nil {
			return err
		}
		rfq.RFQNumber = RFQNumber(rfq.Seq, now)
		if err := tx.RFQs().SetNumber(ctx, rfq.ID, rfq.RFQNumber); err != nil {
			return err
		}
		if rfq.Status != models.RFQOpen {
			return nil
		}
		suppliers, err := s.invitations.ResolveInvitees(ctx, tx, rfq.Category, in.SupplierIDs)
		if err != nil {
			return err
		}
		_, err = s.invitations.CreateInvitations(ctx, tx, rfq, suppliers, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// ApproveDraft переводит черновик в открытый RFQ и рассылает приглашения.
func (s *RFQService) ApproveDraft(ctx context.Context, actor *models.User, rfqID string, supplierIDs []string) (*models.RFQ, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can approve draft rfqs")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	var rfq *models.RFQ
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		rfq, err = tx.RFQs().GetForUpdate(ctx, rfqID)
		if err != nil {
			return err
		}
		if rfq.Status != models.RFQDraft {
			return models.NewInvalidStateError("only draft rfqs can be approved")
		}
		if DeadlinePassed(rfq.Deadline, s.clock.Now()) {
			return models.NewValidationError("rfq deadline has already passed")
		}

		rfq.Status = models.RFQOpen
		if err := tx.RFQs().Update(ctx, rfq); err != nil {
			return err
		}
		suppliers, err := s.invitations.ResolveInvitees(ctx, tx, rfq.Category, supplierIDs)
		if err != nil {
			return err
		}
		_, err = s.invitations.CreateInvitations(ctx, tx, rfq, suppliers, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// Get возвращает RFQ с котировками, приглашениями и документами,
// отфильтрованными по правилам видимости роли.
func (s *RFQService) Get(ctx context.Context, actor *models.User, rfqID string) (*models.RFQDetail, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	rfq, err := s.store.RFQs().Get(ctx, rfqID)
	if err != nil {
		return nil, err
	}

	// Истекшее эмбарго снимается лениво, тем же правилом, что и в закрытии.
	if rfq.ResponseLocked && DeadlinePassed(rfq.Deadline, s.clock.Now()) {
		if err := s.store.RFQs().SetResponseLocked(ctx, rfq.ID, false); err != nil {
			return nil, err
		}
		rfq.ResponseLocked = false
	}

	documents, err := s.store.RFQs().ListDocuments(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	detail := &models.RFQDetail{RFQ: *rfq, Documents: documents}

	if actor.Role == models.RoleSupplier {
		return s.maskForSupplier(ctx, actor, detail)
	}
	if !actor.HasRole(models.RoleRequester, models.RoleHeadOfDepartment, models.RoleProcurement,
		models.RoleProcurementOfficer, models.RoleFinance, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("access denied")
	}

	detail.Invitations, err = s.store.RFQs().ListInvitations(ctx, rfqID)
	if err != nil {
		return nil, err
	}
	// До снятия эмбарго котировки не видны даже персоналу закупок.
	if !detail.ResponseLocked {
		detail.Quotations, err = s.store.Quotations().ListByRFQ(ctx, rfqID)
		if err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// maskForSupplier обрезает RFQ до того, что дозволено видеть поставщику:
// только свое приглашение, свою котировку и нулевой бюджет.
func (s *RFQService) maskForSupplier(ctx context.Context, actor *models.User, detail *models.RFQDetail) (*models.RFQDetail, error) {
	profile, err := s.store.Suppliers().GetByUser(ctx, actor.ID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewForbiddenError("supplier profile not found")
		}
		return nil, err
	}
	invitation, err := s.store.RFQs().GetInvitation(ctx, detail.ID, profile.ID)
	if err != nil {
		if models.IsNotFound(err) {
			return nil, models.NewForbiddenError("supplier is not invited to this rfq")
		}
		return nil, err
	}

	detail.Budget = decimal.Zero
	detail.Invitations = []models.Invitation{*invitation}

	quotations, err := s.store.Quotations().ListByRFQ(ctx, detail.ID)
	if err != nil {
		return nil, err
	}
	detail.Quotations = nil
	for _, quotation := range quotations {
		if quotation.SupplierID == profile.ID {
			detail.Quotations = append(detail.Quotations, quotation)
		}
	}
	return detail, nil
}

// List возвращает все RFQ для персонала; поставщики видят только свои приглашения.
func (s *RFQService) List(ctx context.Context, actor *models.User) ([]models.RFQ, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	if actor.Role == models.RoleSupplier {
		profile, err := s.store.Suppliers().GetByUser(ctx, actor.ID)
		if err != nil {
			if models.IsNotFound(err) {
				return nil, models.NewForbiddenError("supplier profile not found")
			}
			return nil, err
		}
		invitations, err := s.store.RFQs().ListInvitationsBySupplier(ctx, profile.ID)
		if err != nil {
			return nil, err
		}
		var rfqs []models.RFQ
		for _, invitation := range invitations {
			rfq, err := s.store.RFQs().Get(ctx, invitation.RFQID)
			if err != nil {
				return nil, err
			}
			rfq.Budget = decimal.Zero
			rfqs = append(rfqs, *rfq)
		}
		return rfqs, nil
	}

	if !actor.HasRole(models.RoleRequester, models.RoleHeadOfDepartment, models.RoleProcurement,
		models.RoleProcurementOfficer, models.RoleFinance, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("access denied")
	}
	return s.store.RFQs().List(ctx)
}

// ListPendingFinanceApprovals возвращает RFQ с котировками, ожидающими
// финансового одобрения сверх бюджета.
func (s *RFQService) ListPendingFinanceApprovals(ctx context.Context, actor *models.User) ([]models.RFQ, error) {
	if !actor.HasRole(models.RoleFinance, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only finance can view pending approvals")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}
	return s.store.RFQs().ListWithPendingFinanceApprovals(ctx)
}

// Update меняет редактируемые поля RFQ, пока он в черновике или открыт.
func (s *RFQService) Update(ctx context.Context, actor *models.User, rfqID string, in models.RFQUpdate) (*models.RFQ, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can update rfqs")
	}
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}

	var rfq *models.RFQ
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		rfq, err = tx.RFQs().GetForUpdate(ctx, rfqID)
		if err != nil {
			return err
		}
		if rfq.Status != models.RFQDraft && rfq.Status != models.RFQOpen {
			return models.NewInvalidStateError("rfq can no longer be edited")
		}

		if in.Description != nil {
			rfq.Description = *in.Description
		}
		if in.Budget != nil {
			if !in.Budget.IsPositive() {
				return models.NewValidationError("budget must be positive")
			}
			rfq.Budget = *in.Budget
		}
		if in.Deadline != nil {
			if DeadlinePassed(*in.Deadline, s.clock.Now()) {
				return models.NewValidationError("deadline must be in the future")
			}
			rfq.Deadline = *in.Deadline
		}
		return tx.RFQs().Update(ctx, rfq)
	})
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// AttachDocument сохраняет ссылку на документ RFQ; байты хранит внешний сервис.
func (s *RFQService) AttachDocument(ctx context.Context, actor *models.User, rfqID, filePath, originalFilename string) (*models.RFQDocument, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleProcurementOfficer, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement staff can attach rfq documents")
	}
	if filePath == "" || originalFilename == "" {
		return nil, models.NewValidationError("file path and filename are required")
	}
	if _, err := s.store.RFQs().Get(ctx, rfqID); err != nil {
		return nil, err
	}

	document := &models.RFQDocument{
		RFQID:            rfqID,
		FilePath:         filePath,
		OriginalFilename: originalFilename,
		UploadedAt:       s.clock.Now(),
	}
	if err := s.store.RFQs().AddDocument(ctx, document); err != nil {
		return nil, err
	}
	return document, nil
}
