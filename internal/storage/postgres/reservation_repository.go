package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

type reservationRepository struct {
	db *sql.DB
}

// NewReservationRepository создаёт PostgreSQL-реализацию ReservationRepository.
func NewReservationRepository(store *Store) domain.ReservationRepository {
	return &reservationRepository{db: store.DB()}
}

func (r *reservationRepository) GetByOrder(orderID string) (domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var reservation domain.Reservation
	err := r.db.QueryRowContext(ctx, `
		SELECT order_id, email, created_at
		FROM reservations
		WHERE order_id = $1
	`, orderID).Scan(&reservation.OrderID, &reservation.Email, &reservation.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}

	return reservation, nil
}

func (r *reservationRepository) Put(reservation domain.Reservation) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reservations (order_id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO UPDATE SET email = EXCLUDED.email
	`, reservation.OrderID, reservation.Email, reservation.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert reservation: %w", err)
	}

	return nil
}

var _ domain.ReservationRepository = (*reservationRepository)(nil)
