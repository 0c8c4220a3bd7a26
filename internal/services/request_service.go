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

// RequestService управляет жизненным циклом заявки на закупку:
// подача, проверка руководителем, проверка закупками и рассылка приглашений.
type RequestService struct {
	store       repository.Store
	clock       clock.Clock
	notifier    notification.Notifier
	logger      *log.Logger
	invitations *InvitationService
	currency    string
}

// NewRequestService создает новый экземпляр RequestService.
func NewRequestService(store repository.Store, clk clock.Clock, notifier notification.Notifier, logger *log.Logger, invitations *InvitationService, currency string) *RequestService {
	return &RequestService{
		store:       store,
		clock:       clk,
		notifier:    notifier,
		logger:      logger,
		invitations: invitations,
		currency:    currency,
	}
}

// Submit создает заявку в статусе pending_hod. Бюджет на этом этапе нулевой,
// его назначают закупки при одобрении.
func (s *RequestService) Submit(ctx context.Context, actor *models.User, in models.RequestCreate) (*models.PurchaseRequest, error) {
	if !actor.HasRole(models.RoleRequester, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only requesters can submit purchase requests")
	}
	if in.Title == "" || in.Description == "" || in.Justification == "" || in.Category == "" {
		return nil, models.NewValidationError("title, description, justification and category are required")
	}
	if in.NeededBy.IsZero() {
		return nil, models.NewValidationError("needed by date is required")
	}
	if in.DepartmentID == "" {
		return nil, models.NewValidationError("department is required")
	}
	exists, err := s.store.Directory().DepartmentExists(ctx, in.DepartmentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NewValidationError("department does not exist")
	}

	request := &models.PurchaseRequest{
		Title:                  in.Title,
		Description:            in.Description,
		Justification:          in.Justification,
		Category:               in.Category,
		DepartmentID:           &in.DepartmentID,
		NeededBy:               in.NeededBy,
		ProposedBudgetAmount:   decimal.Zero,
		ProposedBudgetCurrency: s.currency,
		Status:                 models.RequestPendingHOD,
		RequesterID:            &actor.ID,
		CreatedAt:              s.clock.Now(),
	}
	if err := s.store.Requests().Create(ctx, request); err != nil {
		return nil, err
	}

	s.notifyHOD(ctx, request, "New purchase request",
		fmt.Sprintf("Request %q awaits your review.", request.Title))
	return request, nil
}

// Get возвращает заявку с проверкой видимости: податель видит только свои,
// руководитель - заявки своего подразделения, персонал - все.
func (s *RequestService) Get(ctx context.Context, actor *models.User, requestID string) (*models.PurchaseRequest, error) {
	request, err := s.store.Requests().Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.checkReadAccess(ctx, actor, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (s *RequestService) checkReadAccess(ctx context.Context, actor *models.User, request *models.PurchaseRequest) error {
	switch actor.Role {
	case models.RoleProcurement, models.RoleProcurementOfficer, models.RoleFinance, models.RoleSuperAdmin:
		return nil
	case models.RoleRequester:
		if request.RequesterID != nil && *request.RequesterID == actor.ID {
			return nil
		}
	case models.RoleHeadOfDepartment:
		if request.DepartmentID == nil {
			break
		}
		department, err := s.store.Directory().GetDepartment(ctx, *request.DepartmentID)
		if err != nil {
			return err
		}
		if department.HeadOfDepartmentID != nil && *department.HeadOfDepartmentID == actor.ID {
			return nil
		}
	}
	return models.NewForbiddenError("access denied")
}

// List возвращает заявки, доступные роли: податель - свои, руководитель -
// заявки своих подразделений, персонал - все.
func (s *RequestService) List(ctx context.Context, actor *models.User) ([]models.PurchaseRequest, error) {
	switch actor.Role {
	case models.RoleProcurement, models.RoleProcurementOfficer, models.RoleFinance, models.RoleSuperAdmin:
		return s.store.Requests().List(ctx)
	case models.RoleRequester:
		return s.store.Requests().ListByRequester(ctx, actor.ID)
	case models.RoleHeadOfDepartment:
		departments, err := s.store.Directory().ListDepartmentsByHead(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		var requests []models.PurchaseRequest
		for _, department := range departments {
			departmentRequests, err := s.store.Requests().ListByDepartment(ctx, department.ID)
			if err != nil {
				return nil, err
			}
			requests = append(requests, departmentRequests...)
		}
		return requests, nil
	}
	return nil, models.NewForbiddenError("access denied")
}

// applyUpdates переносит непустые поля правки в заявку.
// Новое подразделение проверяется на существование.
func (s *RequestService) applyUpdates(ctx context.Context, request *models.PurchaseRequest, in models.RequestUpdate) error {
	if in.DepartmentID != nil {
		exists, err := s.store.Directory().DepartmentExists(ctx, *in.DepartmentID)
		if err != nil {
			return err
		}
		if !exists {
			return models.NewValidationError("department does not exist")
		}
		request.DepartmentID = in.DepartmentID
	}
	if in.Title != nil {
		request.Title = *in.Title
	}
	if in.Description != nil {
		request.Description = *in.Description
	}
	if in.Justification != nil {
		request.Justification = *in.Justification
	}
	if in.Category != nil {
		request.Category = *in.Category
	}
	if in.NeededBy != nil {
		request.NeededBy = *in.NeededBy
	}
	if in.ProcurementNotes != nil {
		request.ProcurementNotes = in.ProcurementNotes
	}
	return nil
}

// Update меняет редактируемые поля заявки с учетом роли и этапа согласования.
func (s *RequestService) Update(ctx context.Context, actor *models.User, requestID string, in models.RequestUpdate) (*models.PurchaseRequest, error) {
	var request *models.PurchaseRequest
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		request, err = tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status.Terminal() {
			return models.NewInvalidStateError("request can no longer be edited")
		}

		switch actor.Role {
		case models.RoleSuperAdmin:
		case models.RoleRequester:
			if request.RequesterID == nil || *request.RequesterID != actor.ID {
				return models.NewForbiddenError("access denied")
			}
			if request.Status != models.RequestPendingHOD && request.Status != models.RequestPendingProcurement {
				return models.NewForbiddenError("request can no longer be edited by the requester")
			}
		case models.RoleHeadOfDepartment:
			if request.Status != models.RequestPendingHOD {
				return models.NewForbiddenError("request is no longer at the department review stage")
			}
			if err := s.requireDepartmentHead(ctx, tx, actor, request); err != nil {
				return err
			}
		case models.RoleProcurement, models.RoleProcurementOfficer:
			if request.Status != models.RequestPendingProcurement {
				return models.NewForbiddenError("request is not at the procurement review stage")
			}
		default:
			return models.NewForbiddenError("access denied")
		}

		if err := s.applyUpdates(ctx, request, in); err != nil {
			return err
		}
		return tx.Requests().Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// requireDepartmentHead проверяет, что actor руководит подразделением заявки.
func (s *RequestService) requireDepartmentHead(ctx context.Context, store repository.Store, actor *models.User, request *models.PurchaseRequest) error {
	if actor.Role == models.RoleSuperAdmin {
		return nil
	}
	if request.DepartmentID == nil {
		return models.NewForbiddenError("request has no department")
	}
	department, err := store.Directory().GetDepartment(ctx, *request.DepartmentID)
	if err != nil {
		return err
	}
	if department.HeadOfDepartmentID == nil || *department.HeadOfDepartmentID != actor.ID {
		return models.NewForbiddenError("only the head of the request department can review it")
	}
	return nil
}

// HODApprove одобряет заявку руководителем и передает ее закупкам.
func (s *RequestService) HODApprove(ctx context.Context, actor *models.User, requestID string, in models.HODReview) (*models.PurchaseRequest, error) {
	if !actor.HasRole(models.RoleHeadOfDepartment, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only heads of department can review at this stage")
	}

	var request *models.PurchaseRequest
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		request, err = tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != models.RequestPendingHOD {
			return models.NewInvalidStateError("request is not awaiting department review")
		}
		if err := s.requireDepartmentHead(ctx, tx, actor, request); err != nil {
			return err
		}
		if err := s.applyUpdates(ctx, request, in.RequestUpdate); err != nil {
			return err
		}

		now := s.clock.Now()
		request.Status = models.RequestPendingProcurement
		request.HODReviewerID = &actor.ID
		request.HODReviewedAt = &now
		request.HODRejectionReason = nil
		if in.HODNotes != "" {
			request.HODNotes = &in.HODNotes
		}
		return tx.Requests().Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, request, "Purchase request approved by your head of department",
		fmt.Sprintf("Request %q has moved to procurement review.", request.Title))
	s.notifyRole(ctx, "Purchase request awaiting procurement review",
		fmt.Sprintf("Request %q was approved by the head of department.", request.Title),
		models.RoleProcurement)
	return request, nil
}

// HODReject отклоняет заявку руководителем; статус терминальный.
func (s *RequestService) HODReject(ctx context.Context, actor *models.User, requestID, reason string) (*models.PurchaseRequest, error) {
	if !actor.HasRole(models.RoleHeadOfDepartment, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only heads of department can review at this stage")
	}
	if reason == "" {
		return nil, models.NewValidationError("rejection reason is required")
	}

	var request *models.PurchaseRequest
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		request, err = tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != models.RequestPendingHOD {
			return models.NewInvalidStateError("request is not awaiting department review")
		}
		if err := s.requireDepartmentHead(ctx, tx, actor, request); err != nil {
			return err
		}

		now := s.clock.Now()
		request.Status = models.RequestRejectedByHOD
		request.HODReviewerID = &actor.ID
		request.HODReviewedAt = &now
		request.HODRejectionReason = &reason
		return tx.Requests().Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, request, "Purchase request rejected",
		fmt.Sprintf("Request %q was rejected by the head of department: %s", request.Title, reason))
	return request, nil
}

// ProcurementApprove одобряет заявку закупками: назначает бюджет
// и переводит заявку в rfq_issued.
func (s *RequestService) ProcurementApprove(ctx context.Context, actor *models.User, requestID string, in models.ProcurementReview) (*models.PurchaseRequest, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can review at this stage")
	}
	if !in.BudgetAmount.IsPositive() {
		return nil, models.NewValidationError("budget amount must be positive")
	}

	var request *models.PurchaseRequest
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		request, err = tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != models.RequestPendingProcurement {
			return models.NewInvalidStateError("request is not awaiting procurement review")
		}
		if err := s.applyUpdates(ctx, request, in.RequestUpdate); err != nil {
			return err
		}

		now := s.clock.Now()
		request.ProposedBudgetAmount = in.BudgetAmount
		if in.BudgetCurrency != "" {
			request.ProposedBudgetCurrency = in.BudgetCurrency
		} else if request.ProposedBudgetCurrency == "" {
			request.ProposedBudgetCurrency = s.currency
		}
		if in.Notes != "" {
			request.ProcurementNotes = &in.Notes
		}
		request.Status = models.RequestRFQIssued
		request.ProcurementReviewerID = &actor.ID
		request.ProcurementReviewedAt = &now
		request.ProcurementRejectionReason = nil
		return tx.Requests().Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, request, "Purchase request approved by procurement",
		fmt.Sprintf("Request %q was approved with a budget of %s %s.",
			request.Title, request.ProposedBudgetAmount, request.ProposedBudgetCurrency))
	return request, nil
}

// ProcurementReject отклоняет заявку закупками; статус терминальный.
func (s *RequestService) ProcurementReject(ctx context.Context, actor *models.User, requestID, reason string) (*models.PurchaseRequest, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can review at this stage")
	}
	if reason == "" {
		return nil, models.NewValidationError("rejection reason is required")
	}

	var request *models.PurchaseRequest
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		request, err = tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != models.RequestPendingProcurement {
			return models.NewInvalidStateError("request is not awaiting procurement review")
		}

		now := s.clock.Now()
		request.Status = models.RequestRejectedByProcurement
		request.ProcurementReviewerID = &actor.ID
		request.ProcurementReviewedAt = &now
		request.ProcurementRejectionReason = &reason
		return tx.Requests().Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, request, "Purchase request rejected",
		fmt.Sprintf("Request %q was rejected by procurement: %s", request.Title, reason))
	return request, nil
}

// InviteSuppliers создает (или переоткрывает) RFQ заявки и рассылает приглашения
// выбранным поставщикам. Заявка должна уже нести бюджет закупок.
func (s *RequestService) InviteSuppliers(ctx context.Context, actor *models.User, requestID string, in models.SupplierInvite) (*models.RFQ, error) {
	if !actor.HasRole(models.RoleProcurement, models.RoleSuperAdmin) {
		return nil, models.NewForbiddenError("only procurement managers can invite suppliers")
	}
	if len(in.SupplierIDs) == 0 {
		return nil, models.NewValidationError("at least one supplier is required")
	}
	if _, err := s.store.RFQs().CloseExpired(ctx, s.clock.Now()); err != nil {
		return nil, err
	}
	if DeadlinePassed(in.RFQDeadline, s.clock.Now()) {
		return nil, models.NewValidationError("rfq deadline must be in the future")
	}

	var rfq *models.RFQ
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		request, err := tx.Requests().Get(ctx, requestID)
		if err != nil {
			return err
		}
		if request.Status != models.RequestRFQIssued && request.Status != models.RequestFinanceApproved {
			return models.NewInvalidStateError("request does not carry an approved budget yet")
		}

		suppliers, err := s.invitations.ResolveInvitees(ctx, tx, request.Category, in.SupplierIDs)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		budget := request.ProposedBudgetAmount
		currency := request.ProposedBudgetCurrency
		// Исторические заявки несут бюджет финансового этапа.
		if request.FinanceBudgetAmount != nil {
			budget = *request.FinanceBudgetAmount
			if request.FinanceBudgetCurrency != nil {
				currency = *request.FinanceBudgetCurrency
			}
		}

		if request.RFQID != nil {
			rfq, err = tx.RFQs().GetForUpdate(ctx, *request.RFQID)
			if err != nil {
				return err
			}
			if rfq.Status == models.RFQAwarded {
				return models.NewInvalidStateError("rfq has already been awarded")
			}
			rfq.Status = models.RFQOpen
			rfq.Deadline = in.RFQDeadline
			rfq.Budget = budget
			rfq.Currency = currency
			if err := tx.RFQs().Update(ctx, rfq); err != nil {
				return err
			}
		} else {
			rfq = &models.RFQ{
				Title:       request.Title,
				Description: request.Description,
				Category:    request.Category,
				Budget:      budget,
				Currency:    currency,
				Deadline:    in.RFQDeadline,
				Status:      models.RFQOpen,
				CreatedByID: &actor.ID,
				CreatedAt:   now,
			}
			if err := tx.RFQs().Create(ctx, rfq); err != nil {
				return err
			}
			rfq.RFQNumber = RFQNumber(rfq.Seq, now)
			if err := tx.RFQs().SetNumber(ctx, rfq.ID, rfq.RFQNumber); err != nil {
				return err
			}
			request.RFQID = &rfq.ID
		}

		created, err := s.invitations.CreateInvitations(ctx, tx, rfq, suppliers, true)
		if err != nil {
			return err
		}
		if created == 0 {
			return models.NewConflictError("all selected suppliers are already invited to this rfq")
		}

		request.Status = models.RequestRFQIssued
		request.RFQInvitedAt = &now
		if in.Notes != "" {
			request.ProcurementNotes = &in.Notes
		}
		return tx.Requests().Update(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return rfq, nil
}

// AttachDocument сохраняет ссылку на документ заявки; байты хранит внешний сервис.
func (s *RequestService) AttachDocument(ctx context.Context, actor *models.User, requestID, filePath, originalFilename string) (*models.RequestDocument, error) {
	if filePath == "" || originalFilename == "" {
		return nil, models.NewValidationError("file path and filename are required")
	}
	request, err := s.store.Requests().Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.checkReadAccess(ctx, actor, request); err != nil {
		return nil, err
	}

	document := &models.RequestDocument{
		RequestID:        requestID,
		FilePath:         filePath,
		OriginalFilename: originalFilename,
		UploadedByID:     &actor.ID,
		UploadedAt:       s.clock.Now(),
	}
	if err := s.store.Requests().AddDocument(ctx, document); err != nil {
		return nil, err
	}
	return document, nil
}

// ListDocuments возвращает документы заявки с проверкой видимости.
func (s *RequestService) ListDocuments(ctx context.Context, actor *models.User, requestID string) ([]models.RequestDocument, error) {
	request, err := s.store.Requests().Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.checkReadAccess(ctx, actor, request); err != nil {
		return nil, err
	}
	return s.store.Requests().ListDocuments(ctx, requestID)
}

// completeForRFQ завершает заявку, породившую RFQ. Единственный переход,
// который запускается извне машины состояний заявки: протоколом присуждения.
func (s *RequestService) completeForRFQ(ctx context.Context, store repository.Store, rfqID string, completedAt time.Time) error {
	return store.Requests().CompleteByRFQ(ctx, rfqID, completedAt)
}

// notifyRequester уведомляет подателя заявки; ошибка доставки только логируется.
func (s *RequestService) notifyRequester(ctx context.Context, request *models.PurchaseRequest, subject, body string) {
	if request.RequesterID == nil {
		return
	}
	requester, err := s.store.Directory().GetUser(ctx, *request.RequesterID)
	if err != nil {
		s.logger.Printf("failed to load requester for notification: %v", err)
		return
	}
	if err := s.notifier.Send(ctx, []string{requester.Email}, subject, body, ""); err != nil {
		s.logger.Printf("failed to notify requester: %v", err)
	}
}

// notifyHOD уведомляет руководителя подразделения заявки.
func (s *RequestService) notifyHOD(ctx context.Context, request *models.PurchaseRequest, subject, body string) {
	if request.DepartmentID == nil {
		return
	}
	department, err := s.store.Directory().GetDepartment(ctx, *request.DepartmentID)
	if err != nil || department.HeadOfDepartmentID == nil {
		return
	}
	head, err := s.store.Directory().GetUser(ctx, *department.HeadOfDepartmentID)
	if err != nil {
		s.logger.Printf("failed to load head of department for notification: %v", err)
		return
	}
	if err := s.notifier.Send(ctx, []string{head.Email}, subject, body, ""); err != nil {
		s.logger.Printf("failed to notify head of department: %v", err)
	}
}

// notifyRole уведомляет всех активных пользователей указанных ролей.
func (s *RequestService) notifyRole(ctx context.Context, subject, body string, roles ...models.Role) {
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
