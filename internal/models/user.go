package models

import "time"

// Role - роль пользователя в закупочном цикле.
type Role string

const (
	RoleRequester          Role = "requester"
	RoleHeadOfDepartment   Role = "head_of_department"
	RoleProcurement        Role = "procurement"
	RoleProcurementOfficer Role = "procurement_officer"
	RoleFinance            Role = "finance"
	RoleSuperAdmin         Role = "superadmin"
	RoleSupplier           Role = "supplier"
)

// User представляет участника процесса, роль выдается внешним сервисом идентификации.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasRole проверяет, входит ли роль пользователя в список допустимых.
func (u User) HasRole(roles ...Role) bool {
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// Department представляет подразделение с назначенным руководителем.
type Department struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	HeadOfDepartmentID *string   `json:"headOfDepartmentId"`
	CreatedAt          time.Time `json:"createdAt"`
}
