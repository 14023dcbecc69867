package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/escrow-payments/internal/domain/payee"
	"github.com/escrow-payments/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const payeeColumns = `id, user_id, country, COALESCE(preferred_currency, ''), COALESCE(stripe_account_id, ''),
			onboarding_completed, charges_enabled, payouts_enabled, account_status, created_at, updated_at`

// PayeeRepository implements the payee.Repository interface for PostgreSQL
type PayeeRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewPayeeRepository(logger *slog.Logger, db *persistence.PostgresDB) payee.Repository {
	return &PayeeRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *PayeeRepository) WithTx(tx pgx.Tx) payee.Repository {
	return &PayeeRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *PayeeRepository) GetByID(ctx context.Context, id uuid.UUID) (*payee.Payee, error) {
	query := `SELECT ` + payeeColumns + ` FROM payees WHERE id = $1`
	return r.getOne(ctx, query, id, id.String())
}

func (r *PayeeRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*payee.Payee, error) {
	query := `SELECT ` + payeeColumns + ` FROM payees WHERE user_id = $1`
	return r.getOne(ctx, query, userID, userID.String())
}

func (r *PayeeRepository) GetByStripeAccountID(ctx context.Context, accountID string) (*payee.Payee, error) {
	query := `SELECT ` + payeeColumns + ` FROM payees WHERE stripe_account_id = $1`
	return r.getOne(ctx, query, accountID, accountID)
}

func (r *PayeeRepository) getOne(ctx context.Context, query string, arg interface{}, key string) (*payee.Payee, error) {
	var (
		p             payee.Payee
		accountStatus string
	)
	err := r.querier.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.UserID,
		&p.Country,
		&p.PreferredCurrency,
		&p.StripeAccountID,
		&p.OnboardingCompleted,
		&p.ChargesEnabled,
		&p.PayoutsEnabled,
		&accountStatus,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payee.ErrPayeeNotFound{Key: key}
		}
		r.logger.Error("Failed to get payee", "key", key, "error", err)
		return nil, fmt.Errorf("failed to get payee: %w", err)
	}
	p.AccountStatus = payee.AccountStatus(accountStatus)

	return &p, nil
}

// UpdateCapabilities mirrors the connected account flags onto the payee owning accountID
func (r *PayeeRepository) UpdateCapabilities(ctx context.Context, accountID string, caps payee.Capabilities) error {
	query := `
		UPDATE payees
		SET onboarding_completed = $1, charges_enabled = $2, payouts_enabled = $3, account_status = $4, updated_at = NOW()
		WHERE stripe_account_id = $5
	`

	result, err := r.querier.Exec(ctx, query,
		caps.OnboardingCompleted,
		caps.ChargesEnabled,
		caps.PayoutsEnabled,
		string(caps.AccountStatus),
		accountID,
	)
	if err != nil {
		r.logger.Error("Failed to update payee capabilities", "account_id", accountID, "error", err)
		return fmt.Errorf("failed to update payee capabilities: %w", err)
	}

	if result.RowsAffected() == 0 {
		return payee.ErrPayeeNotFound{Key: accountID}
	}

	return nil
}
