package domain

import "time"

// InviteCode — расходуемый грант, связывающий один аккаунт максимум с одним заказом.
type InviteCode struct {
	Code      string
	AccountID string
	// ReservedBy — идентификатор заказа, зарезервировавшего код; пустая строка — код свободен.
	ReservedBy string
	// Redeemed выставляется после успешной отправки приглашения.
	Redeemed  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailableFor сообщает, может ли код быть выделен под указанный заказ.
// Код, зарезервированный другим заказом, из кандидатов исключается;
// собственная резервация повторную попытку не блокирует.
func (c *InviteCode) AvailableFor(orderID string) bool {
	if c.Redeemed {
		return false
	}
	return c.ReservedBy == "" || c.ReservedBy == orderID
}

// Validate проверяет ключевые поля кода.
func (c *InviteCode) Validate() []error {
	var errs []error

	if c.Code == "" {
		errs = append(errs, ErrCodeValueRequired)
	}
	if c.AccountID == "" {
		errs = append(errs, ErrCodeAccountRequired)
	}

	return errs
}
