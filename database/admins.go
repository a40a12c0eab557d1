package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"backoffice-svc/models"

	"golang.org/x/crypto/bcrypt"
)

// Admin is a back-office operator allowed to sign in.
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type AdminDirectory interface {
	FindAdmin(ctx context.Context, email string) (*Admin, error)
	UpsertAdmin(ctx context.Context, email, password, role string) error
}

type PostgresAdmins struct {
	db *sql.DB
}

func NewPostgresAdmins(db *sql.DB) *PostgresAdmins {
	return &PostgresAdmins{db: db}
}

func (a *PostgresAdmins) FindAdmin(ctx context.Context, email string) (*Admin, error) {
	var adm Admin
	var id int64
	err := a.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, role, created_at FROM admin_users WHERE email = $1",
		strings.ToLower(email),
	).Scan(&id, &adm.Email, &adm.PasswordHash, &adm.Role, &adm.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("admin %s: %w", email, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load admin: %w", err)
	}
	adm.ID = fmt.Sprintf("admin-%d", id)
	return &adm, nil
}

func (a *PostgresAdmins) UpsertAdmin(ctx context.Context, email, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO admin_users (email, password_hash, role) VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role`,
		strings.ToLower(email), string(hash), role)
	if err != nil {
		return fmt.Errorf("failed to upsert admin: %w", err)
	}
	return nil
}

// MemoryAdmins backs sign-in when the service runs without a database.
type MemoryAdmins struct {
	mu     sync.RWMutex
	admins map[string]Admin
}

func NewMemoryAdmins() *MemoryAdmins {
	return &MemoryAdmins{admins: make(map[string]Admin)}
}

func (a *MemoryAdmins) FindAdmin(_ context.Context, email string) (*Admin, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	adm, ok := a.admins[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("admin %s: %w", email, models.ErrNotFound)
	}
	return &adm, nil
}

func (a *MemoryAdmins) UpsertAdmin(_ context.Context, email, password, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	key := strings.ToLower(email)
	adm, ok := a.admins[key]
	if !ok {
		adm = Admin{ID: fmt.Sprintf("admin-%d", len(a.admins)+1), Email: key, CreatedAt: time.Now().UTC()}
	}
	adm.PasswordHash = string(hash)
	adm.Role = role
	a.admins[key] = adm
	return nil
}
