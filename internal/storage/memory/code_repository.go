package memory

import (
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// codeRepositoryInMemory — in-memory реализация CodeRepository.
type codeRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.InviteCode
}

// NewCodeRepository возвращает in-memory репозиторий инвайт-кодов.
func NewCodeRepository() domain.CodeRepository {
	return &codeRepositoryInMemory{
		items: make(map[string]domain.InviteCode),
	}
}

// Get возвращает код или ErrCodeNotFound.
func (r *codeRepositoryInMemory) Get(code string) (domain.InviteCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[code]
	if !ok {
		return domain.InviteCode{}, domain.ErrCodeNotFound
	}
	return item, nil
}

// ListAvailable возвращает непогашенные коды, свободные либо зарезервированные под orderID.
func (r *codeRepositoryInMemory) ListAvailable(orderID string) ([]domain.InviteCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.InviteCode, 0, len(r.items))
	for _, code := range r.items {
		if !code.AvailableFor(orderID) {
			continue
		}
		result = append(result, code)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

// Save перезаписывает код.
func (r *codeRepositoryInMemory) Save(code domain.InviteCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[code.Code] = code
	return nil
}

var _ domain.CodeRepository = (*codeRepositoryInMemory)(nil)
