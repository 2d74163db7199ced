package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// accountRepositoryInMemory — in-memory реализация AccountRepository.
type accountRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Account
}

// NewAccountRepository возвращает in-memory репозиторий аккаунтов.
func NewAccountRepository() domain.AccountRepository {
	return &accountRepositoryInMemory{
		items: make(map[string]domain.Account),
	}
}

// Get возвращает аккаунт или ErrAccountNotFound.
func (r *accountRepositoryInMemory) Get(id string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.items[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

// List возвращает все аккаунты, отсортированные по ID.
func (r *accountRepositoryInMemory) List() ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Account, 0, len(r.items))
	for _, account := range r.items {
		result = append(result, account)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// Save перезаписывает аккаунт (или создаёт новый — для тестовых фикстур).
func (r *accountRepositoryInMemory) Save(account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[account.ID] = account
	return nil
}

var _ domain.AccountRepository = (*accountRepositoryInMemory)(nil)
