package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tippay/tip_bot/internal/command"
	"github.com/tippay/tip_bot/internal/credentials"
	"github.com/tippay/tip_bot/internal/slack"
)

// addressFieldLabel matches the workspace profile field holding payment
// addresses when no field id is configured.
var addressFieldLabel = regexp.MustCompile(`(?i)^spsp\s*address$`)

func (d *Dispatcher) handleSend(ctx context.Context, req Request, cmd command.Send) (Response, *Error) {
	if !cmd.Amount.IsPositive() {
		text := fmt.Sprintf("I can't send %s. The amount has to be more than zero.", cmd.Amount)
		return ephemeral(text), newError(ErrorValidation, "non_positive_amount", nil)
	}

	senderCreds, err := d.store.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return ephemeral(msgNotRegistered), newError(ErrorNotRegistered, "sender_not_registered", nil)
		}
		return ephemeral(msgGenericFailure), newError(ErrorUpstream, "credential_store_error", err)
	}

	address, profileName, lookupErr := d.recipientProfile(ctx, cmd.RecipientID)

	// The mention label the sender typed wins; bare <@U…> mentions fall back
	// to the recipient's profile name, then to the raw id.
	recipientName := cmd.RecipientName
	if recipientName == "" {
		recipientName = profileName
	}
	if recipientName == "" {
		recipientName = cmd.RecipientID
	}

	if lookupErr != nil || address == "" {
		d.nudge(ctx, cmd.RecipientID, req.UserName)
		text := fmt.Sprintf("Looks like @%s hasn't linked a payment account yet, so I can't pay them. I've sent them a nudge to sign up.", recipientName)
		return ephemeral(text), newError(ErrorRecipientUnresolved, "recipient_address_missing", lookupErr)
	}

	d.runner.Go(jobName("send", req), func(jobCtx context.Context) error {
		return d.executeSend(jobCtx, req, cmd, senderCreds, address, recipientName)
	}, func(jobCtx context.Context) {
		d.respond(jobCtx, req.ResponseURL, slack.ResponseEphemeral, msgPaymentPanic)
	})

	ack := fmt.Sprintf("Paying %s to @%s…", cmd.Amount, recipientName)
	return ephemeral(ack), nil
}

// executeSend runs the deferred quote, resolve and pay sequence. Each step
// reports its own failure to the response URL; only the final recipient
// notification is allowed to fail silently, since the payment already
// happened by then.
func (d *Dispatcher) executeSend(ctx context.Context, req Request, cmd command.Send, senderCreds credentials.Credentials, address, recipientName string) (jobErr error) {
	started := time.Now()
	defer func() {
		d.recorder.ObserveLatency("send.execute", time.Since(started), map[string]string{"outcome": outcomeLabel(jobErr)})
	}()

	quote, err := d.payments.Quote(ctx, senderCreds, address, cmd.Amount)
	if err != nil {
		if credentialsRejected(err) {
			text := "Your payment account rejected my credentials. Please `register` again to refresh them."
			d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
			return newError(ErrorUpstream, "credentials_rejected", err)
		}
		text := fmt.Sprintf("Sorry, I couldn't get a quote for paying @%s. Please try again later.", recipientName)
		d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
		return newError(ErrorUpstream, "quote_failed", err)
	}

	dest, err := d.payments.ParseDestination(ctx, senderCreds, address)
	if err != nil {
		text := fmt.Sprintf("Sorry, I couldn't resolve @%s's payment address (%s).", recipientName, address)
		d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
		return newError(ErrorUpstream, "destination_resolution_failed", err)
	}

	if err := d.payments.Pay(ctx, senderCreds, newID(), quote, dest, cmd.Note); err != nil {
		text := fmt.Sprintf("Sorry, the payment to @%s didn't go through. Please try again later.", recipientName)
		d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
		return newError(ErrorUpstream, "payment_failed", err)
	}

	confirmation := fmt.Sprintf("@%s paid @%s %s (debited %s)",
		req.UserName, recipientName,
		formatAmount(quote.DestinationAmount, dest.CurrencySymbol),
		quote.SourceAmount,
	)
	d.respond(ctx, req.ResponseURL, slack.ResponseInChannel, confirmation)

	dm := fmt.Sprintf("@%s just paid you %s!", req.UserName, formatAmount(quote.DestinationAmount, dest.CurrencySymbol))
	if cmd.Note != "" {
		dm += "\n> " + cmd.Note
	}
	if err := d.chat.PostMessage(ctx, cmd.RecipientID, dm); err != nil {
		d.logger.Warn("recipient notification failed", "recipient", cmd.RecipientID, "error", err)
	}
	return nil
}

// recipientProfile reads the payment address and display name from the
// recipient's profile. An empty address with nil error means the field exists
// but is unset.
func (d *Dispatcher) recipientProfile(ctx context.Context, userID string) (address, name string, err error) {
	fieldID, err := d.addressFieldID(ctx)
	if err != nil {
		return "", "", err
	}
	if fieldID == "" {
		return "", "", errors.New("workspace has no payment address profile field")
	}

	profile, err := d.chat.UserProfile(ctx, userID)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(profile.Fields[fieldID].Value), profile.Name(), nil
}

// addressFieldID returns the configured field id, or discovers it from the
// team profile by label and caches the result for the process lifetime.
func (d *Dispatcher) addressFieldID(ctx context.Context) (string, error) {
	if d.fieldID != "" {
		return d.fieldID, nil
	}

	d.fieldMu.RLock()
	cached := d.resolvedField
	d.fieldMu.RUnlock()
	if cached != "" {
		return cached, nil
	}

	defs, err := d.chat.TeamProfile(ctx)
	if err != nil {
		return "", err
	}
	for _, def := range defs {
		if addressFieldLabel.MatchString(strings.TrimSpace(def.Label)) {
			d.fieldMu.Lock()
			d.resolvedField = def.ID
			d.fieldMu.Unlock()
			return def.ID, nil
		}
	}
	return "", nil
}

// nudge invites an unregistered recipient to sign up. Best-effort: a delivery
// failure is logged and never surfaced to the sender.
func (d *Dispatcher) nudge(ctx context.Context, recipientID, senderName string) {
	text := fmt.Sprintf("@%s just tried to pay you! Link a payment account with `register you@wallet.example <password>` so you can receive it.", senderName)
	if err := d.chat.PostMessage(ctx, recipientID, text); err != nil {
		d.logger.Warn("nudge delivery failed", "recipient", recipientID, "error", err)
	}
}

func formatAmount(amount decimal.Decimal, symbol string) string {
	if symbol == "" {
		return amount.String()
	}
	return symbol + amount.String()
}
