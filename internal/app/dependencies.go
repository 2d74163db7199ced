package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/accountsync"
	"github.com/vladislavdragonenkov/ofs/internal/domain"
	"github.com/vladislavdragonenkov/ofs/internal/lock"
	"github.com/vladislavdragonenkov/ofs/internal/storage/memory"
	"github.com/vladislavdragonenkov/ofs/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Orders       domain.OrderRepository
	Accounts     domain.AccountRepository
	Codes        domain.CodeRepository
	Users        domain.UserRepository
	Reservations domain.ReservationRepository
	Sync         domain.AccountSyncService
	Locks        *lock.Manager
	Logger       *log.Entry

	// Store заполнен только при работе поверх PostgreSQL; nil для памяти.
	Store *postgres.Store
}

// NewDependencies создаёт in-memory зависимости приложения.
// NOTE: В production окружении account sync должен быть заменён на реальный
// клиент провайдера аккаунтов.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Orders:       memory.NewOrderRepository(),
		Accounts:     memory.NewAccountRepository(),
		Codes:        memory.NewCodeRepository(),
		Users:        memory.NewUserRepository(),
		Reservations: memory.NewReservationRepository(),
		Sync:         accountsync.NewMockService(),
		Locks:        lock.NewManager(),
		Logger:       logger,
	}
}

// NewPostgresDependencies создаёт зависимости поверх PostgreSQL.
// Закрытие подключения остаётся на вызывающем через Close.
func NewPostgresDependencies(ctx context.Context, dsn string, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}

	return &Dependencies{
		Orders:       postgres.NewOrderRepository(store),
		Accounts:     postgres.NewAccountRepository(store),
		Codes:        postgres.NewCodeRepository(store),
		Users:        postgres.NewUserRepository(store),
		Reservations: postgres.NewReservationRepository(store),
		Sync:         accountsync.NewMockService(),
		Locks:        lock.NewManager(),
		Logger:       logger,
		Store:        store,
	}, nil
}

// Close освобождает ресурсы зависимостей.
func (d *Dependencies) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
