// Package accountsync содержит реализации domain.AccountSyncService.
package accountsync

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// MockService — конфигурируемая заглушка AccountSyncService для тестов
// и локальной разработки.
type MockService struct {
	mu sync.Mutex

	Members map[string][]string
	Invites map[string][]string

	SyncMembersErr error
	SyncInvitesErr error
	ListMembersErr error
	ListInvitesErr error
	// InviteErrs выдаются по одной на каждый вызов Invite; после исчерпания
	// очереди используется InviteErr.
	InviteErrs []error
	InviteErr  error

	SyncMembersCalls int
	SyncInvitesCalls int
	ListMembersCalls int
	ListInvitesCalls int
	InviteCalls      int
	Invited          []string
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Members: make(map[string][]string),
		Invites: make(map[string][]string),
	}
}

// SyncMemberCount возвращает число участников аккаунта из заданного состояния.
func (m *MockService) SyncMemberCount(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncMembersCalls++
	if m.SyncMembersErr != nil {
		return 0, m.SyncMembersErr
	}
	return len(m.Members[accountID]), nil
}

// SyncInviteCount возвращает число висящих приглашений.
func (m *MockService) SyncInviteCount(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SyncInvitesCalls++
	if m.SyncInvitesErr != nil {
		return 0, m.SyncInvitesErr
	}
	return len(m.Invites[accountID]), nil
}

// ListMembers возвращает участников аккаунта.
func (m *MockService) ListMembers(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListMembersCalls++
	if m.ListMembersErr != nil {
		return nil, m.ListMembersErr
	}
	return append([]string(nil), m.Members[accountID]...), nil
}

// ListInvites возвращает адреса с неподтверждёнными приглашениями.
func (m *MockService) ListInvites(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListInvitesCalls++
	if m.ListInvitesErr != nil {
		return nil, m.ListInvitesErr
	}
	return append([]string(nil), m.Invites[accountID]...), nil
}

// Invite регистрирует приглашение либо возвращает очередную настроенную ошибку.
func (m *MockService) Invite(_ context.Context, accountID, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InviteCalls++

	if len(m.InviteErrs) > 0 {
		err := m.InviteErrs[0]
		m.InviteErrs = m.InviteErrs[1:]
		if err != nil {
			return err
		}
	} else if m.InviteErr != nil {
		return m.InviteErr
	}

	m.Invites[accountID] = append(m.Invites[accountID], email)
	m.Invited = append(m.Invited, email)
	return nil
}

var _ domain.AccountSyncService = (*MockService)(nil)
