package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// reservationRepositoryInMemory — in-memory реализация ReservationRepository.
type reservationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Reservation
}

// NewReservationRepository возвращает in-memory репозиторий записей очереди.
func NewReservationRepository() domain.ReservationRepository {
	return &reservationRepositoryInMemory{
		items: make(map[string]domain.Reservation),
	}
}

// GetByOrder возвращает резервацию заказа или ErrReservationNotFound.
func (r *reservationRepositoryInMemory) GetByOrder(orderID string) (domain.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, ok := r.items[orderID]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return reservation, nil
}

// Put сохраняет резервацию по ключу заказа.
func (r *reservationRepositoryInMemory) Put(reservation domain.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[reservation.OrderID] = reservation
	return nil
}

var _ domain.ReservationRepository = (*reservationRepositoryInMemory)(nil)
