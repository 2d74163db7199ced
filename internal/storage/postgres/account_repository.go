package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository создаёт PostgreSQL-реализацию AccountRepository.
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{db: store.DB()}
}

func (r *accountRepository) Get(id string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, member_count, invite_count, max_seats, expires_at,
		       open, banned, has_credentials, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id)

	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}

	return account, nil
}

func (r *accountRepository) List() ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, member_count, invite_count, max_seats, expires_at,
		       open, banned, has_credentials, created_at, updated_at
		FROM accounts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var result []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return result, nil
}

func (r *accountRepository) Save(account domain.Account) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET email = $2, member_count = $3, invite_count = $4, max_seats = $5,
		    expires_at = $6, open = $7, banned = $8, has_credentials = $9, updated_at = $10
		WHERE id = $1
	`,
		account.ID, account.Email, account.MemberCount, account.InviteCount,
		account.MaxSeats, account.ExpiresAt, account.Open, account.Banned,
		account.HasCredentials, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var account domain.Account
	if err := row.Scan(
		&account.ID, &account.Email, &account.MemberCount, &account.InviteCount,
		&account.MaxSeats, &account.ExpiresAt, &account.Open, &account.Banned,
		&account.HasCredentials, &account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

var _ domain.AccountRepository = (*accountRepository)(nil)
