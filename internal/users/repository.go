package users

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopkit/orders-api/internal/database"
	"github.com/shopkit/orders-api/internal/domain"
)

// password_hash is deliberately absent: it never leaves the store on reads.
var userColumns = []string{
	"user_id", "username", "email", "first_name", "last_name",
	"phone", "address", "is_active", "created_at", "updated_at",
}

var selectUsers = "SELECT " + strings.Join(userColumns, ", ") + " FROM users"

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpdateFields carries the optional columns of a partial update. A nil
// pointer leaves the stored value untouched.
type UpdateFields struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *string
	Email     *string
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, last_name, phone, address, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING user_id, created_at, updated_at
	`, user.Username, user.Email, user.PasswordHash, user.FirstName,
		user.LastName, user.Phone, user.Address, user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	return database.ClassifyError(err)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUsers+" ORDER BY created_at DESC")
	if err != nil {
		return nil, database.ClassifyError(err)
	}
	defer func() { _ = rows.Close() }()

	users := []domain.User{}
	for rows.Next() {
		var user domain.User
		if err := scanUser(rows, &user); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, database.ClassifyError(err)
	}

	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user := &domain.User{}
	row := r.db.QueryRowContext(ctx, selectUsers+" WHERE user_id = $1", id)
	if err := scanUser(row, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update applies a coalesce merge: only supplied fields change, everything
// else keeps its stored value. The statement both updates and fetches, so a
// request with no fields set still returns the current row.
func (r *UserRepository) Update(ctx context.Context, id int64, fields UpdateFields) (*domain.User, error) {
	query, args := database.NewUpdate("users").
		Coalesce("first_name", fields.FirstName).
		Coalesce("last_name", fields.LastName).
		Coalesce("phone", fields.Phone).
		Coalesce("address", fields.Address).
		Coalesce("email", fields.Email).
		SetExpr("updated_at", "CURRENT_TIMESTAMP").
		Where("user_id", id).
		Returning(userColumns...).
		Build()

	user := &domain.User{}
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := scanUser(row, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes the user; the store cascades to the user's orders.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE user_id = $1", id)
	if err != nil {
		return database.ClassifyError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return database.ErrNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, user *domain.User) error {
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName,
		&user.Phone, &user.Address, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	return database.ClassifyError(err)
}
