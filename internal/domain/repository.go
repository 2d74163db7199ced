package domain

import "time"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если запись с таким ID уже существует.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// ListDue возвращает до limit заказов, подлежащих обработке на момент now:
	// unprocessed либо retrying с истёкшим next_retry_at и без stop_retry.
	ListDue(now time.Time, limit int) ([]Order, error)
	// Save перезаписывает заказ. Запись должна стать видимой до возврата из метода.
	Save(order Order) error
}

// AccountRepository описывает требования к хранилищу разделяемых аккаунтов.
type AccountRepository interface {
	// Get возвращает аккаунт или ErrAccountNotFound, если его нет.
	Get(id string) (Account, error)
	// List возвращает все известные аккаунты.
	List() ([]Account, error)
	// Save перезаписывает аккаунт (снимки занятости после синхронизации).
	Save(account Account) error
}

// CodeRepository описывает требования к хранилищу инвайт-кодов.
type CodeRepository interface {
	// Get возвращает код или ErrCodeNotFound.
	Get(code string) (InviteCode, error)
	// ListAvailable возвращает непогашенные коды, свободные либо зарезервированные
	// под указанный заказ.
	ListAvailable(orderID string) ([]InviteCode, error)
	// Save перезаписывает код (резервация и погашение).
	Save(code InviteCode) error
}

// UserRepository описывает требования к хранилищу профилей пользователей.
type UserRepository interface {
	// Get возвращает профиль или ErrUserNotFound.
	Get(id string) (User, error)
	// SetCurrentAccount обновляет обратную ссылку пользователя на занятый аккаунт.
	SetCurrentAccount(userID, accountID string) error
}

// ReservationRepository хранит записи очереди покупки.
type ReservationRepository interface {
	// GetByOrder возвращает резервацию заказа или ErrReservationNotFound.
	GetByOrder(orderID string) (Reservation, error)
	// Put сохраняет резервацию.
	Put(reservation Reservation) error
}
