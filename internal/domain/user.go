package domain

import "time"

// User — профиль покупателя, связанный с заказами.
type User struct {
	ID    string
	Email string
	// CurrentAccountID — обратная ссылка на аккаунт, в котором пользователь
	// занимает место; обновляется после успешного исполнения заказа.
	CurrentAccountID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Reservation — запись очереди покупки, хранящая email, указанный при оформлении.
// При разрешении адреса покупателя имеет приоритет над профилем пользователя.
type Reservation struct {
	OrderID   string
	Email     string
	CreatedAt time.Time
}
