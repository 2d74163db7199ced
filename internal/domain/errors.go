package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка отрицательного срока действия услуги.
	ErrServiceDaysInvalid = errors.New("service_days must be non-negative")
	// Ошибка отсутствующего значения инвайт-кода.
	ErrCodeValueRequired = errors.New("invite code value is required")
	// Ошибка отсутствующей привязки кода к аккаунту.
	ErrCodeAccountRequired = errors.New("invite code account_id is required")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при попытке создать заказ с занятым ID.
	ErrOrderExists = errors.New("order already exists")
	// ErrAccountNotFound возвращается, если аккаунт не найден в репозитории.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUserNotFound возвращается, если профиль пользователя не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrCodeNotFound возвращается, если инвайт-код не найден.
	ErrCodeNotFound = errors.New("invite code not found")
	// ErrReservationNotFound возвращается, если к заказу нет записи очереди.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrEmailUnresolved — email покупателя не удалось разрешить ни из одного источника.
	// Ошибка данных: повтор бессмыслен.
	ErrEmailUnresolved = errors.New("buyer email is unresolved")
	// ErrAccountIneligible — целевой аккаунт закрыт, забанен или без учётных данных.
	// Ошибка данных: повтор бессмыслен.
	ErrAccountIneligible = errors.New("account is ineligible")
	// ErrCredentialsMissing — у аккаунта нет действующих учётных данных для синхронизации.
	ErrCredentialsMissing = errors.New("account credentials are missing")
	// ErrNoCapacity — нет ни одного подходящего места; временная ситуация,
	// новая ёмкость может появиться позже.
	ErrNoCapacity = errors.New("no eligible seat available")
)

// ErrorKind — явная классификация ошибки внешнего сервиса, выставляемая в точке вызова.
type ErrorKind string

const (
	ErrKindRateLimited  ErrorKind = "rate_limited"
	ErrKindForbidden    ErrorKind = "forbidden"
	ErrKindUnauthorized ErrorKind = "unauthorized"
	ErrKindUnavailable  ErrorKind = "unavailable"
	ErrKindInvalid      ErrorKind = "invalid"
	ErrKindNotFound     ErrorKind = "not_found"
)

// StatusError — структурная ошибка внешнего account-sync сервиса.
// Несёт статус и kind, чтобы классификация retry никогда не зависела
// от сравнения подстрок сообщения.
type StatusError struct {
	Code int
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: status %d (%s): %v", e.Op, e.Code, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: status %d (%s)", e.Op, e.Code, e.Kind)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError создаёт StatusError, выводя kind из статуса.
func NewStatusError(op string, code int, err error) *StatusError {
	return &StatusError{Code: code, Kind: kindFromCode(code), Op: op, Err: err}
}

func kindFromCode(code int) ErrorKind {
	switch {
	case code == 401:
		return ErrKindUnauthorized
	case code == 403:
		return ErrKindForbidden
	case code == 404:
		return ErrKindNotFound
	case code == 429:
		return ErrKindRateLimited
	case code >= 500:
		return ErrKindUnavailable
	default:
		return ErrKindInvalid
	}
}

// AsStatusError извлекает StatusError из цепочки ошибок.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
