package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/auth-session-api/internal/model"
)

// UserRepo persists users, roles and user_roles.
type UserRepo struct{ DB DBTX }

func NewUserRepo(db DBTX) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail lower-cases and trims an address so lookups and the unique
// index agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a user and returns it with its store-assigned ID.  The
// password must already be hashed.
func (r *UserRepo) Create(ctx context.Context, u model.NewUser) (model.User, error) {
	now := time.Now().UTC()
	email := NormalizeEmail(u.Email)
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, password, username, first_name, last_name, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?)`,
		email, u.PasswordHash, nullString(u.Username), nullString(u.FirstName), nullString(u.LastName), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			if violatesColumn(err, "username") {
				return model.User{}, ErrUsernameTaken
			}
			return model.User{}, ErrEmailExists
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:           uint64(id),
		Email:        email,
		PasswordHash: u.PasswordHash,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// FindByEmail fetches a user by normalized email.  It returns ErrNotFound
// when no row matches.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var (
		u                     model.User
		username, first, last sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password, username, first_name, last_name, created_at, updated_at
		 FROM users WHERE email = ? LIMIT 1`,
		NormalizeEmail(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &username, &first, &last, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	u.Username, u.FirstName, u.LastName = username.String, first.String, last.String
	return &u, nil
}

// AttachRole links a user to a role, creating the role row when it does not
// exist yet.  Linking the same role twice is a no-op.
func (r *UserRepo) AttachRole(ctx context.Context, userID uint64, role string) error {
	roleID, err := r.ensureRole(ctx, role)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID)
	if err != nil && !isUniqueViolation(err) {
		return fmt.Errorf("attach role %s: %w", role, err)
	}
	return nil
}

func (r *UserRepo) ensureRole(ctx context.Context, role string) (uint64, error) {
	var id uint64
	err := r.DB.QueryRowContext(ctx, "SELECT id FROM roles WHERE role = ? LIMIT 1", role).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find role %s: %w", role, err)
	}

	res, err := r.DB.ExecContext(ctx, "INSERT INTO roles (role) VALUES (?)", role)
	if err != nil {
		if isUniqueViolation(err) {
			// created concurrently; read the winner's row
			err = r.DB.QueryRowContext(ctx, "SELECT id FROM roles WHERE role = ? LIMIT 1", role).Scan(&id)
			return id, err
		}
		return 0, fmt.Errorf("create role %s: %w", role, err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// Roles returns the user's role names in alphabetical order.
func (r *UserRepo) Roles(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT ro.role FROM roles ro
		 JOIN user_roles ur ON ur.role_id = ro.id
		 WHERE ur.user_id = ? ORDER BY ro.role`, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		roles = append(roles, name)
	}
	return roles, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
