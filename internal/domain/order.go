package domain

import "time"

// OrderStatus описывает жизненный цикл заказа в движке фулфилмента.
type OrderStatus string

const (
	// OrderStatusUnprocessed — заказ оплачен, но обработка ещё не начиналась.
	OrderStatusUnprocessed OrderStatus = "unprocessed"
	// OrderStatusProcessing — заказ в данный момент обрабатывается воркером.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusRetrying — попытка не удалась из-за временной ошибки, заказ ждёт повтор.
	OrderStatusRetrying OrderStatus = "retrying"
	// OrderStatusFulfilled — приглашение отправлено, заказ исполнен. Терминальный статус.
	OrderStatusFulfilled OrderStatus = "fulfilled"
	// OrderStatusFailed — заказ не исполнен и автоматических повторов больше не будет.
	OrderStatusFailed OrderStatus = "failed"
)

// Terminal сообщает, является ли статус поглощающим: из него нет автоматических переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusFailed
}

// ActionSchemaVersion — текущая версия схемы FulfillmentAction в хранилище.
const ActionSchemaVersion = 1

// FulfillmentAction — типизированное состояние обработки, сохраняемое вместе с заказом.
// Переживает рестарты процесса: счётчик попыток и nextRetryAt читаются на каждом свипе.
type FulfillmentAction struct {
	SchemaVersion int        `json:"v"`
	Attempts      int        `json:"attempts"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	StopRetry     bool       `json:"stop_retry,omitempty"`
	AlertSentAt   *time.Time `json:"alert_sent_at,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// Normalize приводит payload из хранилища к актуальной схеме.
// Частично заполненным blob'ам из старых записей не доверяем.
func (a *FulfillmentAction) Normalize() {
	if a.SchemaVersion == 0 {
		a.SchemaVersion = ActionSchemaVersion
	}
	if a.Attempts < 0 {
		a.Attempts = 0
	}
}

// Order представляет оплаченную покупку места в разделяемом аккаунте, ожидающую исполнения.
type Order struct {
	ID     string
	UserID string
	// Email покупателя; может быть пустым — тогда он разрешается лениво
	// из резервации или профиля пользователя.
	Email string
	// AccountID — аккаунт, к которому заказ привязан на момент оплаты.
	// После успешного исполнения указывает на фактически выделенный аккаунт.
	AccountID string
	// Variant влияет на вычисляемый лимит занятости аккаунта.
	Variant string
	// ServiceDays — оплаченный срок действия места в днях.
	ServiceDays int
	Status      OrderStatus
	Action      FulfillmentAction
	PaidAt      time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProcessingStaleAfter — возраст записи в processing, после которого считаем,
// что процесс упал посреди попытки и заказ можно поднять заново.
const ProcessingStaleAfter = 10 * time.Minute

// Due сообщает, подлежит ли заказ обработке в данный момент.
func (o *Order) Due(now time.Time) bool {
	switch o.Status {
	case OrderStatusUnprocessed:
		return true
	case OrderStatusRetrying:
		if o.Action.StopRetry {
			return false
		}
		return o.Action.NextRetryAt == nil || !o.Action.NextRetryAt.After(now)
	case OrderStatusProcessing:
		// Восстановление после падения: шаги до приглашения идемпотентны,
		// а резервация кода привязана к заказу и переживает повтор.
		return now.Sub(o.UpdatedAt) > ProcessingStaleAfter
	default:
		return false
	}
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.ID == "" {
		errs = append(errs, ErrOrderIDRequired)
	}
	if o.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if o.ServiceDays < 0 {
		errs = append(errs, ErrServiceDaysInvalid)
	}

	return errs
}
