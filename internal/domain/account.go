package domain

import "time"

// Account описывает разделяемый аккаунт с ограниченным числом мест.
type Account struct {
	ID    string
	Email string
	// MemberCount — подтверждённые участники аккаунта.
	MemberCount int
	// InviteCount — отправленные, но ещё не принятые приглашения.
	InviteCount int
	// MaxSeats — вместимость аккаунта.
	MaxSeats int
	// ExpiresAt — момент, после которого аккаунт перестаёт действовать.
	ExpiresAt time.Time
	// Open — аккаунт открыт для новых участников.
	Open bool
	// Banned — аккаунт заблокирован провайдером.
	Banned bool
	// HasCredentials — есть действующие учётные данные для синхронизации.
	HasCredentials bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Occupancy возвращает занятость аккаунта: участники плюс висящие приглашения.
// Приглашения учитываются намеренно: гонка с подтверждением у провайдера
// может только завысить занятость, но никогда не занизить.
func (a *Account) Occupancy() int {
	return a.MemberCount + a.InviteCount
}

// Eligible сообщает, пригоден ли аккаунт для выделения нового места.
func (a *Account) Eligible() bool {
	return a.Open && !a.Banned && a.HasCredentials
}

// CreatedOn сообщает, создан ли аккаунт в ту же календарную дату (UTC), что и day.
func (a *Account) CreatedOn(day time.Time) bool {
	y1, m1, d1 := a.CreatedAt.UTC().Date()
	y2, m2, d2 := day.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
