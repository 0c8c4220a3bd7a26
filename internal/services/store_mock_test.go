package services

import (
	"context"
	"sort"
	"time"

	"github.com/procurahub/procurement-service/internal/models"
	"github.com/procurahub/procurement-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeClock - управляемые часы для тестов.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingNotifier запоминает отправленные уведомления.
type recordingNotifier struct {
	sent []sentNotification
	fail bool
}

type sentNotification struct {
	Recipients []string
	Subject    string
}

func (n *recordingNotifier) Send(_ context.Context, recipients []string, subject, _, _ string) error {
	if n.fail {
		return context.DeadlineExceeded
	}
	n.sent = append(n.sent, sentNotification{Recipients: recipients, Subject: subject})
	return nil
}

// memoryStore - реализация repository.Store в памяти для тестов сервисов.
type memoryStore struct {
	users            map[string]models.User
	departments      map[string]models.Department
	suppliers        map[string]models.SupplierProfile
	requests         map[string]models.PurchaseRequest
	requestDocuments map[string][]models.RequestDocument
	rfqs             map[string]models.RFQ
	rfqSeq           int64
	invitations      map[string]models.Invitation
	rfqDocuments     map[string][]models.RFQDocument
	quotations       map[string]models.Quotation
	quotationSeq     int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:            make(map[string]models.User),
		departments:      make(map[string]models.Department),
		suppliers:        make(map[string]models.SupplierProfile),
		requests:         make(map[string]models.PurchaseRequest),
		requestDocuments: make(map[string][]models.RequestDocument),
		rfqs:             make(map[string]models.RFQ),
		invitations:      make(map[string]models.Invitation),
		rfqDocuments:     make(map[string][]models.RFQDocument),
		quotations:       make(map[string]models.Quotation),
	}
}

func (s *memoryStore) Requests() repository.RequestRepository     { return (*memoryRequests)(s) }
func (s *memoryStore) RFQs() repository.RFQRepository             { return (*memoryRFQs)(s) }
func (s *memoryStore) Quotations() repository.QuotationRepository { return (*memoryQuotations)(s) }
func (s *memoryStore) Suppliers() repository.SupplierRepository   { return (*memorySuppliers)(s) }
func (s *memoryStore) Directory() repository.DirectoryRepository  { return (*memoryDirectory)(s) }

func (s *memoryStore) WithinTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(s)
}

type memoryRequests memoryStore

func (r *memoryRequests) Create(_ context.Context, request *models.PurchaseRequest) error {
	if request.ID == "" {
		request.ID = uuid.New().String()
	}
	r.requests[request.ID] = *request
	return nil
}

func (r *memoryRequests) Get(_ context.Context, requestID string) (*models.PurchaseRequest, error) {
	request, ok := r.requests[requestID]
	if !ok {
		return nil, models.NewNotFoundError("request not found")
	}
	return &request, nil
}

func (r *memoryRequests) List(_ context.Context) ([]models.PurchaseRequest, error) {
	var requests []models.PurchaseRequest
	for _, request := range r.requests {
		requests = append(requests, request)
	}
	return requests, nil
}

func (r *memoryRequests) ListByRequester(_ context.Context, requesterID string) ([]models.PurchaseRequest, error) {
	var requests []models.PurchaseRequest
	for _, request := range r.requests {
		if request.RequesterID != nil && *request.RequesterID == requesterID {
			requests = append(requests, request)
		}
	}
	return requests, nil
}

func (r *memoryRequests) ListByDepartment(_ context.Context, departmentID string) ([]models.PurchaseRequest, error) {
	var requests []models.PurchaseRequest
	for _, request := range r.requests {
		if request.DepartmentID != nil && *request.DepartmentID == departmentID {
			requests = append(requests, request)
		}
	}
	return requests, nil
}

func (r *memoryRequests) Update(_ context.Context, request *models.PurchaseRequest) error {
	r.requests[request.ID] = *request
	return nil
}

func (r *memoryRequests) CompleteByRFQ(_ context.Context, rfqID string, _ time.Time) error {
	for id, request := range r.requests {
		if request.RFQID != nil && *request.RFQID == rfqID && request.Status != models.RequestCompleted {
			request.Status = models.RequestCompleted
			r.requests[id] = request
		}
	}
	return nil
}

func (r *memoryRequests) AddDocument(_ context.Context, document *models.RequestDocument) error {
	if document.ID == "" {
		document.ID = uuid.New().String()
	}
	r.requestDocuments[document.RequestID] = append(r.requestDocuments[document.RequestID], *document)
	return nil
}

func (r *memoryRequests) ListDocuments(_ context.Context, requestID string) ([]models.RequestDocument, error) {
	return r.requestDocuments[requestID], nil
}

type memoryRFQs memoryStore

func (r *memoryRFQs) Create(_ context.Context, rfq *models.RFQ) error {
	if rfq.ID == "" {
		rfq.ID = uuid.New().String()
	}
	r.rfqSeq++
	rfq.Seq = r.rfqSeq
	r.rfqs[rfq.ID] = *rfq
	return nil
}

func (r *memoryRFQs) Get(_ context.Context, rfqID string) (*models.RFQ, error) {
	rfq, ok := r.rfqs[rfqID]
	if !ok {
		return nil, models.NewNotFoundError("rfq not found")
	}
	return &rfq, nil
}

func (r *memoryRFQs) GetForUpdate(ctx context.Context, rfqID string) (*models.RFQ, error) {
	return r.Get(ctx, rfqID)
}

func (r *memoryRFQs) List(_ context.Context) ([]models.RFQ, error) {
	var rfqs []models.RFQ
	for _, rfq := range r.rfqs {
		rfqs = append(rfqs, rfq)
	}
	return rfqs, nil
}

func (r *memoryRFQs) ListWithPendingFinanceApprovals(_ context.Context) ([]models.RFQ, error) {
	var rfqs []models.RFQ
	for _, rfq := range r.rfqs {
		for _, quotation := range r.quotations {
			if quotation.RFQID == rfq.ID && quotation.Status == models.QuotationPendingFinanceApproval {
				rfqs = append(rfqs, rfq)
				break
			}
		}
	}
	return rfqs, nil
}

func (r *memoryRFQs) Update(_ context.Context, rfq *models.RFQ) error {
	r.rfqs[rfq.ID] = *rfq
	return nil
}

func (r *memoryRFQs) SetNumber(_ context.Context, rfqID, rfqNumber string) error {
	rfq := r.rfqs[rfqID]
	rfq.RFQNumber = rfqNumber
	r.rfqs[rfqID] = rfq
	return nil
}

func (r *memoryRFQs) SetResponseLocked(_ context.Context, rfqID string, locked bool) error {
	rfq := r.rfqs[rfqID]
	rfq.ResponseLocked = locked
	r.rfqs[rfqID] = rfq
	return nil
}

func (r *memoryRFQs) CloseExpired(_ context.Context, now time.Time) (int64, error) {
	var closed int64
	for id, rfq := range r.rfqs {
		if rfq.Status == models.RFQOpen && !rfq.Deadline.After(now) {
			rfq.Status = models.RFQClosed
			rfq.ResponseLocked = false
			r.rfqs[id] = rfq
			closed++
		}
	}
	return closed, nil
}

func invitationKey(rfqID, supplierID string) string { return rfqID + "|" + supplierID }

func (r *memoryRFQs) CreateInvitation(_ context.Context, invitation *models.Invitation) error {
	key := invitationKey(invitation.RFQID, invitation.SupplierID)
	if _, ok := r.invitations[key]; ok {
		return models.NewConflictError("supplier is already invited to this rfq")
	}
	if invitation.ID == "" {
		invitation.ID = uuid.New().String()
	}
	r.invitations[key] = *invitation
	return nil
}

func (r *memoryRFQs) GetInvitation(_ context.Context, rfqID, supplierID string) (*models.Invitation, error) {
	invitation, ok := r.invitations[invitationKey(rfqID, supplierID)]
	if !ok {
		return nil, models.NewNotFoundError("invitation not found")
	}
	return &invitation, nil
}

func (r *memoryRFQs) ListInvitations(_ context.Context, rfqID string) ([]models.Invitation, error) {
	var invitations []models.Invitation
	for _, invitation := range r.invitations {
		if invitation.RFQID == rfqID {
			invitations = append(invitations, invitation)
		}
	}
	return invitations, nil
}

func (r *memoryRFQs) ListInvitationsBySupplier(_ context.Context, supplierID string) ([]models.Invitation, error) {
	var invitations []models.Invitation
	for _, invitation := range r.invitations {
		if invitation.SupplierID == supplierID {
			invitations = append(invitations, invitation)
		}
	}
	return invitations, nil
}

func (r *memoryRFQs) MarkInvitationResponded(_ context.Context, invitationID string, respondedAt time.Time) error {
	for key, invitation := range r.invitations {
		if invitation.ID == invitationID {
			invitation.Status = models.InvitationResponded
			invitation.RespondedAt = &respondedAt
			r.invitations[key] = invitation
		}
	}
	return nil
}

func (r *memoryRFQs) AwardInvitations(_ context.Context, rfqID, winnerSupplierID string, awardedAt time.Time) error {
	for key, invitation := range r.invitations {
		if invitation.RFQID != rfqID {
			continue
		}
		if invitation.SupplierID == winnerSupplierID {
			invitation.Status = models.InvitationAwarded
			if invitation.RespondedAt == nil {
				invitation.RespondedAt = &awardedAt
			}
		} else {
			invitation.Status = models.InvitationNotSelected
		}
		r.invitations[key] = invitation
	}
	return nil
}

func (r *memoryRFQs) AddDocument(_ context.Context, document *models.RFQDocument) error {
	if document.ID == "" {
		document.ID = uuid.New().String()
	}
	r.rfqDocuments[document.RFQID] = append(r.rfqDocuments[document.RFQID], *document)
	return nil
}

func (r *memoryRFQs) ListDocuments(_ context.Context, rfqID string) ([]models.RFQDocument, error) {
	return r.rfqDocuments[rfqID], nil
}

type memoryQuotations memoryStore

func (r *memoryQuotations) Create(_ context.Context, quotation *models.Quotation) error {
	for _, existing := range r.quotations {
		if existing.RFQID == quotation.RFQID && existing.SupplierID == quotation.SupplierID {
			return models.NewConflictError("quotation already submitted for this rfq")
		}
	}
	if quotation.ID == "" {
		quotation.ID = uuid.New().String()
	}
	r.quotationSeq++
	r.quotations[quotation.ID] = *quotation
	return nil
}

func (r *memoryQuotations) Get(_ context.Context, rfqID, quotationID string) (*models.Quotation, error) {
	quotation, ok := r.quotations[quotationID]
	if !ok || quotation.RFQID != rfqID {
		return nil, models.NewNotFoundError("quotation not found")
	}
	return &quotation, nil
}

func (r *memoryQuotations) ListByRFQ(_ context.Context, rfqID string) ([]models.Quotation, error) {
	var quotations []models.Quotation
	for _, quotation := range r.quotations {
		if quotation.RFQID == rfqID {
			quotations = append(quotations, quotation)
		}
	}
	sort.Slice(quotations, func(i, j int) bool {
		return quotations[i].SubmittedAt.Before(quotations[j].SubmittedAt)
	})
	return quotations, nil
}

func (r *memoryQuotations) ExistsForSupplier(_ context.Context, rfqID, supplierID string) (bool, error) {
	for _, quotation := range r.quotations {
		if quotation.RFQID == rfqID && quotation.SupplierID == supplierID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryQuotations) WinnerExists(_ context.Context, rfqID, exceptQuotationID string) (bool, error) {
	for _, quotation := range r.quotations {
		if quotation.RFQID == rfqID && quotation.Status == models.QuotationApproved && quotation.ID != exceptQuotationID {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryQuotations) Update(_ context.Context, quotation *models.Quotation) error {
	r.quotations[quotation.ID] = *quotation
	return nil
}

func (r *memoryQuotations) RejectSiblings(_ context.Context, rfqID, winnerQuotationID string) error {
	for id, quotation := range r.quotations {
		if quotation.RFQID != rfqID || quotation.ID == winnerQuotationID || quotation.Status == models.QuotationRejected {
			continue
		}
		quotation.Status = models.QuotationRejected
		quotation.ApprovedAt = nil
		quotation.ApprovedByID = nil
		r.quotations[id] = quotation
	}
	return nil
}

func (r *memoryQuotations) ListPurchaseOrders(_ context.Context) ([]models.PurchaseOrder, error) {
	var orders []models.PurchaseOrder
	seq := int64(0)
	for _, quotation := range r.quotations {
		if quotation.Status != models.QuotationApproved {
			continue
		}
		seq++
		supplier := r.suppliers[quotation.SupplierID]
		rfq := r.rfqs[quotation.RFQID]
		orders = append(orders, models.PurchaseOrder{
			QuotationID:    quotation.ID,
			QuotationSeq:   seq,
			SupplierID:     supplier.ID,
			SupplierName:   supplier.CompanyName,
			SupplierNumber: supplier.SupplierNumber,
			Amount:         quotation.Amount,
			Currency:       quotation.Currency,
			RFQID:          rfq.ID,
			RFQNumber:      rfq.RFQNumber,
			RFQTitle:       rfq.Title,
			ApprovedAt:     quotation.ApprovedAt,
			SubmittedAt:    quotation.SubmittedAt,
		})
	}
	return orders, nil
}

type memorySuppliers memoryStore

func (r *memorySuppliers) Get(_ context.Context, supplierID string) (*models.SupplierProfile, error) {
	supplier, ok := r.suppliers[supplierID]
	if !ok {
		return nil, models.NewNotFoundError("supplier not found")
	}
	return &supplier, nil
}

func (r *memorySuppliers) GetByUser(_ context.Context, userID string) (*models.SupplierProfile, error) {
	for _, supplier := range r.suppliers {
		if supplier.UserID == userID {
			profile := supplier
			return &profile, nil
		}
	}
	return nil, models.NewNotFoundError("supplier profile not found")
}

func (r *memorySuppliers) ListByIDs(_ context.Context, supplierIDs []string) ([]models.SupplierProfile, error) {
	var suppliers []models.SupplierProfile
	for _, id := range supplierIDs {
		if supplier, ok := r.suppliers[id]; ok {
			suppliers = append(suppliers, supplier)
		}
	}
	return suppliers, nil
}

func (r *memorySuppliers) SelectByCategory(_ context.Context, category string, limit int) ([]models.SupplierProfile, error) {
	var suppliers []models.SupplierProfile
	for _, supplier := range r.suppliers {
		for _, name := range supplier.Categories {
			if name == category {
				suppliers = append(suppliers, supplier)
				break
			}
		}
	}
	sort.Slice(suppliers, func(i, j int) bool {
		a, b := suppliers[i], suppliers[j]
		if a.InvitationsSent != b.InvitationsSent {
			return a.InvitationsSent < b.InvitationsSent
		}
		switch {
		case a.LastInvitedAt == nil && b.LastInvitedAt != nil:
			return true
		case a.LastInvitedAt != nil && b.LastInvitedAt == nil:
			return false
		case a.LastInvitedAt != nil && b.LastInvitedAt != nil && !a.LastInvitedAt.Equal(*b.LastInvitedAt):
			return a.LastInvitedAt.Before(*b.LastInvitedAt)
		}
		return a.SupplierNumber < b.SupplierNumber
	})
	if limit > 0 && len(suppliers) > limit {
		suppliers = suppliers[:limit]
	}
	return suppliers, nil
}

func (r *memorySuppliers) RecordInvitation(_ context.Context, supplierID string, invitedAt time.Time) error {
	supplier := r.suppliers[supplierID]
	supplier.InvitationsSent++
	supplier.LastInvitedAt = &invitedAt
	r.suppliers[supplierID] = supplier
	return nil
}

func (r *memorySuppliers) AddAwardedValue(_ context.Context, supplierID string, amount decimal.Decimal) error {
	supplier := r.suppliers[supplierID]
	supplier.TotalAwardedValue = supplier.TotalAwardedValue.Add(amount)
	r.suppliers[supplierID] = supplier
	return nil
}

type memoryDirectory memoryStore

func (r *memoryDirectory) GetUser(_ context.Context, userID string) (*models.User, error) {
	user, ok := r.users[userID]
	if !ok {
		return nil, models.NewNotFoundError("user not found")
	}
	return &user, nil
}

func (r *memoryDirectory) ListActiveUsersByRole(_ context.Context, roles ...models.Role) ([]models.User, error) {
	var users []models.User
	for _, user := range r.users {
		if !user.IsActive {
			continue
		}
		for _, role := range roles {
			if user.Role == role {
				users = append(users, user)
				break
			}
		}
	}
	return users, nil
}

func (r *memoryDirectory) GetDepartment(_ context.Context, departmentID string) (*models.Department, error) {
	department, ok := r.departments[departmentID]
	if !ok {
		return nil, models.NewNotFoundError("department not found")
	}
	return &department, nil
}

func (r *memoryDirectory) ListDepartmentsByHead(_ context.Context, userID string) ([]models.Department, error) {
	var departments []models.Department
	for _, department := range r.departments {
		if department.HeadOfDepartmentID != nil && *department.HeadOfDepartmentID == userID {
			departments = append(departments, department)
		}
	}
	return departments, nil
}

func (r *memoryDirectory) DepartmentExists(_ context.Context, departmentID string) (bool, error) {
	_, ok := r.departments[departmentID]
	return ok, nil
}
