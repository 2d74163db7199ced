package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	action, err := marshalAction(order.Action)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, email, account_id, variant, service_days,
			status, action, paid_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		order.ID, order.UserID, nullString(order.Email), nullString(order.AccountID),
		order.Variant, order.ServiceDays, string(order.Status), action,
		order.PaidAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, account_id, variant, service_days,
		       status, action, paid_at, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	return order, nil
}

// ListDue выбирает заказы, подлежащие обработке: unprocessed либо retrying
// с истёкшим next_retry_at и без stop_retry. Старые оплаты первыми.
func (r *orderRepository) ListDue(now time.Time, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, email, account_id, variant, service_days,
		       status, action, paid_at, created_at, updated_at
		FROM orders
		WHERE status = 'unprocessed'
		   OR (status = 'retrying'
		       AND COALESCE((action->>'stop_retry')::bool, false) = false
		       AND COALESCE((action->>'next_retry_at')::timestamptz, 'epoch'::timestamptz) <= $1)
		   OR (status = 'processing' AND updated_at < $1 - make_interval(secs => $3))
		ORDER BY paid_at ASC, id ASC
		LIMIT $2
	`, now, limit, domain.ProcessingStaleAfter.Seconds())
	if err != nil {
		return nil, fmt.Errorf("select due orders: %w", err)
	}
	defer rows.Close()

	var result []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due order: %w", err)
		}
		result = append(result, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due orders: %w", err)
	}

	return result, nil
}

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	action, err := marshalAction(order.Action)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET email = $2, account_id = $3, status = $4, action = $5, updated_at = $6
		WHERE id = $1
	`,
		order.ID, nullString(order.Email), nullString(order.AccountID),
		string(order.Status), action, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
		email  sql.NullString
		accID  sql.NullString
		action []byte
	)

	if err := row.Scan(
		&order.ID, &order.UserID, &email, &accID, &order.Variant, &order.ServiceDays,
		&status, &action, &order.PaidAt, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.Email = email.String
	order.AccountID = accID.String

	if len(action) > 0 {
		if err := json.Unmarshal(action, &order.Action); err != nil {
			return domain.Order{}, fmt.Errorf("decode order action: %w", err)
		}
	}
	order.Action.Normalize()

	return order, nil
}

func marshalAction(action domain.FulfillmentAction) ([]byte, error) {
	action.Normalize()
	data, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("encode order action: %w", err)
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation распознаёт нарушение уникального ограничения (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
