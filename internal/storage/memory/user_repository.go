package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// userRepositoryInMemory — in-memory реализация UserRepository.
type userRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.User
}

// NewUserRepository возвращает in-memory репозиторий профилей пользователей.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{
		items: make(map[string]domain.User),
	}
}

// Get возвращает профиль или ErrUserNotFound.
func (r *userRepositoryInMemory) Get(id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// Put сохраняет профиль (для фикстур и локальной разработки).
func (r *userRepositoryInMemory) Put(user domain.User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[user.ID] = user
}

// SetCurrentAccount обновляет обратную ссылку пользователя на занятый аккаунт.
func (r *userRepositoryInMemory) SetCurrentAccount(userID, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.items[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	user.CurrentAccountID = accountID
	user.UpdatedAt = time.Now().UTC()
	r.items[userID] = user
	return nil
}

var _ domain.UserRepository = (*userRepositoryInMemory)(nil)
