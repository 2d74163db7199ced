package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

type codeRepository struct {
	db *sql.DB
}

// NewCodeRepository создаёт PostgreSQL-реализацию CodeRepository.
func NewCodeRepository(store *Store) domain.CodeRepository {
	return &codeRepository{db: store.DB()}
}

func (r *codeRepository) Get(code string) (domain.InviteCode, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT code, account_id, reserved_by, redeemed, created_at, updated_at
		FROM invite_codes
		WHERE code = $1
	`, code)

	item, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.InviteCode{}, domain.ErrCodeNotFound
		}
		return domain.InviteCode{}, fmt.Errorf("select invite code: %w", err)
	}

	return item, nil
}

// ListAvailable возвращает непогашенные коды, свободные либо зарезервированные под orderID.
func (r *codeRepository) ListAvailable(orderID string) ([]domain.InviteCode, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT code, account_id, reserved_by, redeemed, created_at, updated_at
		FROM invite_codes
		WHERE redeemed = false AND (reserved_by IS NULL OR reserved_by = $1)
		ORDER BY code ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("select available codes: %w", err)
	}
	defer rows.Close()

	var result []domain.InviteCode
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite code: %w", err)
		}
		result = append(result, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invite codes: %w", err)
	}

	return result, nil
}

func (r *codeRepository) Save(code domain.InviteCode) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE invite_codes
		SET reserved_by = $2, redeemed = $3, updated_at = $4
		WHERE code = $1
	`,
		code.Code, nullString(code.ReservedBy), code.Redeemed, code.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update invite code: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invite code rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCodeNotFound
	}

	return nil
}

func scanCode(row rowScanner) (domain.InviteCode, error) {
	var (
		code       domain.InviteCode
		reservedBy sql.NullString
	)
	if err := row.Scan(
		&code.Code, &code.AccountID, &reservedBy, &code.Redeemed,
		&code.CreatedAt, &code.UpdatedAt,
	); err != nil {
		return domain.InviteCode{}, err
	}
	code.ReservedBy = reservedBy.String
	return code, nil
}

var _ domain.CodeRepository = (*codeRepository)(nil)
