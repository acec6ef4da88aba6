package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/pkg/database"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// ClientRepository persists clients.
type ClientRepository struct {
	db database.DBTX
}

// NewClientRepository creates a client repository.
func NewClientRepository(db database.DBTX) *ClientRepository {
	return &ClientRepository{db: db}
}

func (r *ClientRepository) findOne(ctx context.Context, where, key string, args ...any) (*domain.Client, error) {
	query := `
		SELECT id, tenant_id, name, email, phone, created_at
		FROM clients
		WHERE ` + where + `
		ORDER BY created_at
		LIMIT 1`

	var c domain.Client
	err := r.db.QueryRow(ctx, query, args...).Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("client", key)
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// GetByID implements repository.ClientRepository.
func (r *ClientRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Client, error) {
	return r.findOne(ctx, "tenant_id = $1 AND id = $2", id, tenantID, id)
}

// FindByEmail matches a normalized email.
func (r *ClientRepository) FindByEmail(ctx context.Context, tenantID, email string) (*domain.Client, error) {
	return r.findOne(ctx, "tenant_id = $1 AND email = $2", email, tenantID, email)
}

// FindByPhone matches normalized phone digits.
func (r *ClientRepository) FindByPhone(ctx context.Context, tenantID, phone string) (*domain.Client, error) {
	return r.findOne(ctx, "tenant_id = $1 AND phone = $2", phone, tenantID, phone)
}

// Create inserts a client.
func (r *ClientRepository) Create(ctx context.Context, c *domain.Client) error {
	query := `
		INSERT INTO clients (id, tenant_id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.Exec(ctx, query, c.ID, c.TenantID, c.Name, c.Email, c.Phone, c.CreatedAt); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}
