package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Get(id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		user      domain.User
		email     sql.NullString
		accountID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, current_account_id, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &email, &accountID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}

	user.Email = email.String
	user.CurrentAccountID = accountID.String
	return user, nil
}

func (r *userRepository) SetCurrentAccount(userID, accountID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET current_account_id = $2, updated_at = $3
		WHERE id = $1
	`, userID, nullString(accountID), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user current account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrUserNotFound
	}

	return nil
}

var _ domain.UserRepository = (*userRepository)(nil)
