package services

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/procurahub/procurement-service/internal/models"

	"github.com/shopspring/decimal"
)

var testCtx = context.Background()

var testStart = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

// testEnv - собранный набор сервисов поверх стора в памяти.
type testEnv struct {
	store       *memoryStore
	clock       *fakeClock
	notifier    *recordingNotifier
	invitations *InvitationService
	requests    *RequestService
	rfqs        *RFQService
	quotations  *QuotationService

	requester   *models.User
	hod         *models.User
	otherHOD    *models.User
	procurement *models.User
	officer     *models.User
	finance     *models.User
	admin       *models.User

	supplierUserA *models.User
	supplierUserB *models.User
	supplierUserC *models.User
}

func newTestEnv() *testEnv {
	store := newMemoryStore()
	clk := &fakeClock{now: testStart}
	notifier := &recordingNotifier{}
	logger := log.New(io.Discard, "", 0)

	env := &testEnv{
		store:    store,
		clock:    clk,
		notifier: notifier,
	}
	env.invitations = NewInvitationService(store, clk, notifier, logger, 25)
	env.requests = NewRequestService(store, clk, notifier, logger, env.invitations, "ZMW")
	env.rfqs = NewRFQService(store, clk, notifier, logger, env.invitations, "ZMW")
	env.quotations = NewQuotationService(store, clk, notifier, logger, env.requests)

	env.requester = env.addUser("u-requester", models.RoleRequester)
	env.hod = env.addUser("u-hod", models.RoleHeadOfDepartment)
	env.otherHOD = env.addUser("u-hod-2", models.RoleHeadOfDepartment)
	env.procurement = env.addUser("u-procurement", models.RoleProcurement)
	env.officer = env.addUser("u-officer", models.RoleProcurementOfficer)
	env.finance = env.addUser("u-finance", models.RoleFinance)
	env.admin = env.addUser("u-admin", models.RoleSuperAdmin)

	store.departments["dept-it"] = models.Department{
		ID:                 "dept-it",
		Name:               "IT",
		HeadOfDepartmentID: &env.hod.ID,
		CreatedAt:          testStart,
	}
	store.departments["dept-hr"] = models.Department{
		ID:                 "dept-hr",
		Name:               "HR",
		HeadOfDepartmentID: &env.otherHOD.ID,
		CreatedAt:          testStart,
	}

	env.supplierUserA = env.addUser("u-supplier-a", models.RoleSupplier)
	env.supplierUserB = env.addUser("u-supplier-b", models.RoleSupplier)
	env.supplierUserC = env.addUser("u-supplier-c", models.RoleSupplier)
	env.addSupplier("sup-a", env.supplierUserA.ID, "SUP001", "Acme Computing", "it")
	env.addSupplier("sup-b", env.supplierUserB.ID, "SUP002", "Bolt Traders", "it")
	env.addSupplier("sup-c", env.supplierUserC.ID, "SUP003", "Copper Supplies", "it")

	return env
}

func (e *testEnv) addUser(id string, role models.Role) *models.User {
	user := models.User{
		ID:        id,
		Email:     id + "@example.com",
		FullName:  id,
		Role:      role,
		IsActive:  true,
		CreatedAt: testStart,
	}
	e.store.users[id] = user
	return &user
}

func (e *testEnv) addSupplier(id, userID, number, name string, categories ...string) {
	e.store.suppliers[id] = models.SupplierProfile{
		ID:                id,
		UserID:            userID,
		SupplierNumber:    number,
		CompanyName:       name,
		ContactEmail:      number + "@suppliers.example.com",
		TotalAwardedValue: decimal.Zero,
		Categories:        categories,
		CreatedAt:         testStart,
	}
}

// submitRequest проводит заявку через подачу.
func (e *testEnv) submitRequest() *models.PurchaseRequest {
	request, err := e.requests.Submit(testCtx, e.requester, models.RequestCreate{
		Title:         "Laptops",
		Description:   "10 developer laptops",
		Justification: "Team expansion",
		Category:      "it",
		DepartmentID:  "dept-it",
		NeededBy:      testStart.AddDate(0, 1, 0),
	})
	if err != nil {
		panic(err)
	}
	return request
}

// approvedRequest проводит заявку до назначенного бюджета (rfq_issued).
func (e *testEnv) approvedRequest() *models.PurchaseRequest {
	request := e.submitRequest()
	request, err := e.requests.HODApprove(testCtx, e.hod, request.ID, models.HODReview{})
	if err != nil {
		panic(err)
	}
	request, err = e.requests.ProcurementApprove(testCtx, e.procurement, request.ID, models.ProcurementReview{
		BudgetAmount:   decimal.NewFromInt(50000),
		BudgetCurrency: "ZMW",
	})
	if err != nil {
		panic(err)
	}
	return request
}

// openRFQ создает открытый RFQ с приглашениями всех трех поставщиков.
func (e *testEnv) openRFQ() *models.RFQ {
	rfq, err := e.rfqs.Create(testCtx, e.procurement, models.RFQCreate{
		Title:       "Laptops",
		Description: "10 developer laptops",
		Category:    "it",
		Budget:      decimal.NewFromInt(50000),
		Currency:    "ZMW",
		Deadline:    e.clock.Now().AddDate(0, 0, 7),
		SupplierIDs: []string{"sup-a", "sup-b", "sup-c"},
	})
	if err != nil {
		panic(err)
	}
	return rfq
}

// submitQuotation подает котировку от имени пользователя-поставщика.
func (e *testEnv) submitQuotation(user *models.User, rfqID string, amount int64) *models.Quotation {
	quotation, err := e.quotations.Submit(testCtx, user, rfqID, models.QuotationSubmit{
		Amount:   decimal.NewFromInt(amount),
		Currency: "ZMW",
	})
	if err != nil {
		panic(err)
	}
	return quotation
}
