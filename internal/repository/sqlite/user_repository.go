package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"update-user-service/internal/domain"
	"update-user-service/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	first_name TEXT NULL,
	last_name TEXT NULL,
	email TEXT NULL,
	password TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// UserRepository is a local stand-in for the managed store. Update keeps the
// managed store's upsert semantics: an unknown username creates the row.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

type column struct {
	name      string
	attribute string
	value     *string
}

func (r *UserRepository) Update(ctx context.Context, username string, fields domain.UserFields) (domain.UpdateResult, error) {
	columns := []column{{name: "password", attribute: "password", value: &fields.PasswordHash}}
	for _, c := range []column{
		{name: "first_name", attribute: "firstName", value: fields.FirstName},
		{name: "last_name", attribute: "lastName", value: fields.LastName},
		{name: "email", attribute: "email", value: fields.Email},
	} {
		if c.value != nil {
			columns = append(columns, c)
		}
	}

	names := []string{"username", "updated_at"}
	args := []any{username, time.Now().UTC()}
	sets := []string{"updated_at = excluded.updated_at"}
	returning := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.name)
		args = append(args, *c.value)
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c.name, c.name))
		returning = append(returning, c.name)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	query := fmt.Sprintf(`
INSERT INTO users (%s)
VALUES (%s)
ON CONFLICT(username) DO UPDATE SET %s
RETURNING %s`,
		strings.Join(names, ", "),
		placeholders,
		strings.Join(sets, ", "),
		strings.Join(returning, ", "),
	)

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(dest...); err != nil {
		return domain.UpdateResult{}, fmt.Errorf("%w: upsert user %s: %w", repository.ErrStorage, username, err)
	}

	attrs := make(map[string]any, len(columns))
	for i, c := range columns {
		if values[i].Valid {
			attrs[c.attribute] = values[i].String
		}
	}
	return domain.UpdateResult{Attributes: attrs}, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT username, first_name, last_name, email, password
FROM users
WHERE username = ?`,
		username,
	)
	return scanUser(row)
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user                       domain.User
		firstName, lastName, email sql.NullString
	)
	if err := row.Scan(
		&user.Username,
		&firstName,
		&lastName,
		&email,
		&user.Password,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.FirstName = nullableString(firstName)
	user.LastName = nullableString(lastName)
	user.Email = nullableString(email)
	return &user, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
