package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/courierpay/payment-engine/internal/domain"
	"github.com/courierpay/payment-engine/internal/domain/ports"
)

// AccountRepository implements ports.AccountRepository using PostgreSQL
type AccountRepository struct {
	db ports.DBPort
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db ports.DBPort) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) executor(tx ports.DBTX) ports.DBTX {
	if tx != nil {
		return tx
	}
	return r.db.GetDB()
}

// GetByEmail resolves a payer by email
func (r *AccountRepository) GetByEmail(ctx context.Context, tx ports.DBTX, email string) (*domain.Account, error) {
	return r.getByColumn(ctx, tx, "email", email)
}

// GetByID loads an account by id
func (r *AccountRepository) GetByID(ctx context.Context, tx ports.DBTX, id string) (*domain.Account, error) {
	return r.getByColumn(ctx, tx, "id", id)
}

func (r *AccountRepository) getByColumn(ctx context.Context, tx ports.DBTX, column, value string) (*domain.Account, error) {
	exec := r.executor(tx)

	query := `
		SELECT id, name, email, role, gateway_account_id, created_at
		FROM accounts
		WHERE ` + column + ` = $1`

	var (
		a           domain.Account
		role        string
		gatewayAcct pgtype.Text
	)

	err := exec.QueryRow(ctx, query, value).Scan(
		&a.ID, &a.Name, &a.Email, &role, &gatewayAcct, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewDomainError(domain.ErrorCodeAccountNotFound, "account not found").
				WithDetail(column, value)
		}
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query account", err)
	}

	a.Role = domain.AccountRole(role)
	a.GatewayAccountID = gatewayAcct.String

	return &a, nil
}
