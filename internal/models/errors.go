package models

import "errors"

// ErrorKind классифицирует доменную ошибку.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"    // некорректные или отсутствующие входные данные
	KindNotFound     ErrorKind = "not_found"     // сущность не найдена
	KindForbidden    ErrorKind = "forbidden"     // роль не допускает операцию
	KindInvalidState ErrorKind = "invalid_state" // сущность не в том состоянии
	KindConflict     ErrorKind = "conflict"      // нарушение инварианта, решение уже принято
)

// DomainError описывает ошибку доменного уровня с видом и сообщением.
type DomainError struct {
	Kind    ErrorKind `json:"-"`
	Message string    `json:"reason"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewValidationError создает ошибку валидации входных данных.
func NewValidationError(message string) *DomainError {
	return &DomainError{Kind: KindValidation, Message: message}
}

// NewNotFoundError создает ошибку отсутствия сущности.
func NewNotFoundError(message string) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: message}
}

// NewForbiddenError создает ошибку недостатка прав.
func NewForbiddenError(message string) *DomainError {
	return &DomainError{Kind: KindForbidden, Message: message}
}

// NewInvalidStateError создает ошибку недопустимого перехода состояния.
func NewInvalidStateError(message string) *DomainError {
	return &DomainError{Kind: KindInvalidState, Message: message}
}

// NewConflictError создает ошибку нарушения инварианта.
func NewConflictError(message string) *DomainError {
	return &DomainError{Kind: KindConflict, Message: message}
}

// IsKind проверяет, относится ли ошибка к указанному виду.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}

func IsValidation(err error) bool   { return IsKind(err, KindValidation) }
func IsNotFound(err error) bool     { return IsKind(err, KindNotFound) }
func IsForbidden(err error) bool    { return IsKind(err, KindForbidden) }
func IsInvalidState(err error) bool { return IsKind(err, KindInvalidState) }
func IsConflict(err error) bool     { return IsKind(err, KindConflict) }
