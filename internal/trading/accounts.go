package trading

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "virtual-trader/internal/errors"
	"virtual-trader/internal/logging"
	"virtual-trader/internal/models"
	"virtual-trader/internal/store"
)

// Accounts manages virtual trading accounts.
type Accounts struct {
	store          store.Store
	defaultBalance decimal.Decimal
	logger         zerolog.Logger
}

// NewAccounts creates an account service. New and reset accounts without
// an explicit balance are funded with defaultBalance.
func NewAccounts(st store.Store, defaultBalance decimal.Decimal, logger zerolog.Logger) *Accounts {
	return &Accounts{
		store:          st,
		defaultBalance: defaultBalance,
		logger:         logging.WithComponent(logger, "accounts"),
	}
}

func (a *Accounts) balanceOrDefault(balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsZero() {
		return a.defaultBalance, nil
	}
	if balance.IsNegative() {
		return balance, apperrors.NewValidationError("balance", balance.String(), "balance must be positive")
	}
	return balance, nil
}

// Create opens an account for userID.
func (a *Accounts) Create(ctx context.Context, userID string, balance decimal.Decimal) (*models.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewValidationError("userId", userID, "user is required")
	}
	balance, err := a.balanceOrDefault(balance)
	if err != nil {
		return nil, err
	}

	account := models.NewAccount(userID, balance)
	if err := a.store.Accounts().Create(ctx, account); err != nil {
		return nil, err
	}
	a.logger.Info().Str("user_id", userID).Str("balance", balance.String()).Msg("Account created")
	return account, nil
}

// Get returns the account for userID.
func (a *Accounts) Get(ctx context.Context, userID string) (*models.Account, error) {
	return a.store.Accounts().Get(ctx, userID)
}

// GetOrCreate returns the user's account, opening one with the default
// balance on first use.
func (a *Accounts) GetOrCreate(ctx context.Context, userID string) (*models.Account, error) {
	account, err := a.Get(ctx, userID)
	if err == nil || !apperrors.Is(err, apperrors.ErrAccountNotFound) {
		return account, err
	}
	account, err = a.Create(ctx, userID, decimal.Zero)
	if apperrors.Is(err, apperrors.ErrAccountExists) {
		return a.Get(ctx, userID)
	}
	return account, err
}

// Reset restores the balance, zeroes the counters and closes every
// holding. The trade log and the level are kept.
func (a *Accounts) Reset(ctx context.Context, userID string, balance decimal.Decimal) (*models.Account, error) {
	balance, err := a.balanceOrDefault(balance)
	if err != nil {
		return nil, err
	}

	var account *models.Account
	err = a.store.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		if _, err := repos.Accounts.Get(ctx, userID); err != nil {
			return err
		}
		if err := repos.Holdings.DeleteAll(ctx, userID); err != nil {
			return apperrors.NewTransactionAbortError("delete holdings", err)
		}
		if err := repos.Accounts.Reset(ctx, userID, balance); err != nil {
			return apperrors.NewTransactionAbortError("reset account", err)
		}
		account, err = repos.Accounts.Get(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("user_id", userID).Str("balance", balance.String()).Msg("Account reset")
	return account, nil
}
