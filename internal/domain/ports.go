package domain

import "context"

// AccountSyncService описывает взаимодействие с внешним сервисом разделяемых аккаунтов.
// Каждый метод может вернуть *StatusError со статусом 401/403/429/5xx,
// который потребляется классификатором retry-политики.
type AccountSyncService interface {
	// SyncMemberCount сверяет число участников аккаунта с провайдером.
	SyncMemberCount(ctx context.Context, accountID string) (int, error)
	// SyncInviteCount сверяет число висящих приглашений.
	SyncInviteCount(ctx context.Context, accountID string) (int, error)
	// ListMembers возвращает email-адреса текущих участников.
	ListMembers(ctx context.Context, accountID string) ([]string, error)
	// ListInvites возвращает email-адреса с неподтверждёнными приглашениями.
	ListInvites(ctx context.Context, accountID string) ([]string, error)
	// Invite отправляет приглашение на email в указанный аккаунт.
	Invite(ctx context.Context, accountID, email string) error
}

// Notifier отправляет оповещения оператору. Fire-and-forget:
// ошибка доставки никогда не должна прерывать фулфилмент.
type Notifier interface {
	Notify(subject, body string) error
}

// FeatureFlags позволяет выключать части системы без изменения состояния.
type FeatureFlags interface {
	IsEnabled(name string) bool
}
