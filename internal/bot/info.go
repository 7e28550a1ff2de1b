package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/tippay/tip_bot/internal/credentials"
	"github.com/tippay/tip_bot/internal/spsp"
)

func (d *Dispatcher) handleInfo(ctx context.Context, req Request) (Response, *Error) {
	creds, err := d.store.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return ephemeral(msgNotRegistered), newError(ErrorNotRegistered, "not_registered", nil)
		}
		return ephemeral(msgGenericFailure), newError(ErrorUpstream, "credential_store_error", err)
	}

	// Balance trouble degrades to a placeholder; the account address is
	// still worth showing.
	balance := "unable to determine your balance right now"
	account, accErr := d.payments.Account(ctx, creds)
	if accErr != nil {
		d.logger.Warn("balance fetch failed", "user", req.UserID, "error", accErr)
	} else {
		balance = formatBalance(account)
	}

	text := fmt.Sprintf("Your payment address: %s\nBalance: %s", creds.Address(), balance)
	return ephemeral(text), nil
}

func formatBalance(account spsp.Account) string {
	text := account.Balance.String()
	if account.CurrencySymbol != "" {
		return account.CurrencySymbol + text
	}
	if account.CurrencyCode != "" {
		return text + " " + account.CurrencyCode
	}
	return text
}
