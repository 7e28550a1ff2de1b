package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tippay/tip_bot/internal/command"
	"github.com/tippay/tip_bot/internal/credentials"
	"github.com/tippay/tip_bot/internal/metrics"
	"github.com/tippay/tip_bot/internal/slack"
	"github.com/tippay/tip_bot/internal/spsp"
)

// CredentialStore is the storage surface the dispatcher needs.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (credentials.Credentials, error)
	Upsert(ctx context.Context, userID string, creds credentials.Credentials) error
}

// ChatClient is the messaging platform surface the dispatcher needs.
type ChatClient interface {
	PostMessage(ctx context.Context, channel, text string) error
	UserProfile(ctx context.Context, userID string) (slack.Profile, error)
	TeamProfile(ctx context.Context) ([]slack.FieldDef, error)
	SetProfileField(ctx context.Context, userID, fieldID, value string) error
	PostResponse(ctx context.Context, responseURL string, msg slack.ResponseMessage) error
}

// PaymentClient is the payment network surface the dispatcher needs.
type PaymentClient interface {
	Account(ctx context.Context, creds credentials.Credentials) (spsp.Account, error)
	Quote(ctx context.Context, creds credentials.Credentials, destination string, destinationAmount decimal.Decimal) (spsp.Quote, error)
	ParseDestination(ctx context.Context, creds credentials.Credentials, destination string) (spsp.Destination, error)
	Pay(ctx context.Context, creds credentials.Credentials, paymentID string, quote spsp.Quote, dest spsp.Destination, note string) error
	Provision(ctx context.Context, host, username, password, inviteCode string) (credentials.Credentials, error)
}

// Request is one inbound slash command, already past boundary verification.
type Request struct {
	UserID      string
	UserName    string
	ChannelID   string
	Text        string
	ResponseURL string

	// RequestID carries the delivery correlation id into dispatch and
	// deferred job logs. Optional; empty outside the HTTP path.
	RequestID string
}

// Response is the synchronous reply returned within the webhook window.
// Follow-up messages for deferred work go through the response URL instead.
type Response struct {
	Type string
	Text string
}

const (
	msgNotRegistered  = "You don't have a payment account linked yet. Try `register you@wallet.example <password>`, or `help` for all options."
	msgGenericFailure = "Sorry, something went wrong on my end. Please try again later."
	msgPaymentPanic   = "Sorry, something went wrong while sending your payment. Please check your balance before retrying."
	msgProfileHint    = " I couldn't update the payment address on your profile, so please set it there yourself to receive payments."

	helpText = "Here's what I can do:\n" +
		"• `@user 5.00 [message]` pays a teammate\n" +
		"• `register you@wallet.example <password>` links an existing payment account\n" +
		"• `register <invite link>` creates a brand-new hosted account\n" +
		"• `info` shows your payment address and balance\n" +
		"Anything else shows this message."
)

// Config carries the dispatcher knobs that come from the environment.
type Config struct {
	// AddressFieldID pins the profile field holding payment addresses. When
	// empty the field is discovered from the team profile by label.
	AddressFieldID string
}

// Dispatcher turns parsed commands into collaborator call sequences and
// user-facing responses.
type Dispatcher struct {
	store    CredentialStore
	chat     ChatClient
	payments PaymentClient
	runner   *Runner
	logger   *slog.Logger
	recorder metrics.Recorder
	validate *validator.Validate
	fieldID  string

	fieldMu       sync.RWMutex
	resolvedField string
}

func NewDispatcher(store CredentialStore, chat ChatClient, payments PaymentClient, runner *Runner, logger *slog.Logger, recorder metrics.Recorder, cfg Config) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("bot: credential store must not be nil")
	}
	if chat == nil {
		return nil, errors.New("bot: chat client must not be nil")
	}
	if payments == nil {
		return nil, errors.New("bot: payment client must not be nil")
	}
	if runner == nil {
		return nil, errors.New("bot: runner must not be nil")
	}
	if logger == nil {
		return nil, errors.New("bot: logger must not be nil")
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		store:    store,
		chat:     chat,
		payments: payments,
		runner:   runner,
		logger:   logger,
		recorder: recorder,
		validate: validator.New(),
		fieldID:  strings.TrimSpace(cfg.AddressFieldID),
	}, nil
}

// Dispatch classifies the command text and runs the matching workflow. The
// returned response is always user-presentable; workflow errors surface here
// only for logging and metrics.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	started := time.Now()
	cmd := command.Parse(req.Text)
	name := cmd.Name()

	var res Response
	var cmdErr *Error
	switch c := cmd.(type) {
	case command.Send:
		res, cmdErr = d.handleSend(ctx, req, c)
	case command.Register:
		res, cmdErr = d.handleRegister(ctx, req, c)
	case command.Info:
		res, cmdErr = d.handleInfo(ctx, req)
	default:
		res = ephemeral(helpText)
	}

	attrs := []any{"command", name, "user", req.UserID}
	if req.RequestID != "" {
		attrs = append(attrs, "request_id", req.RequestID)
	}

	outcome := "ok"
	if cmdErr != nil {
		outcome = strings.ToLower(string(cmdErr.Code))
		attrs = append(attrs, "code", cmdErr.Code, "reason", cmdErr.Reason, "error", cmdErr.Err)
		d.logger.Warn("command failed", attrs...)
	} else {
		d.logger.Info("command handled", attrs...)
	}

	labels := map[string]string{"outcome": outcome}
	d.recorder.IncCounter(name, labels)
	d.recorder.ObserveLatency(name, time.Since(started), labels)

	if res.Text == "" {
		res = ephemeral(msgGenericFailure)
	}
	return res
}

// respond posts a follow-up to the slash command response URL. Delivery
// failures are logged; there is nowhere else to send them.
func (d *Dispatcher) respond(ctx context.Context, responseURL, responseType, text string) {
	if responseURL == "" {
		return
	}
	msg := slack.ResponseMessage{ResponseType: responseType, Text: text}
	if err := d.chat.PostResponse(ctx, responseURL, msg); err != nil {
		switch upstreamStatus(err) {
		case http.StatusNotFound, http.StatusGone:
			// Response URLs stop working half an hour after the command; a
			// follow-up that ran late has nowhere to go.
			d.logger.Warn("follow-up window expired", "error", err)
		default:
			d.logger.Error("follow-up delivery failed", "error", err)
		}
	}
}

func ephemeral(text string) Response {
	return Response{Type: slack.ResponseEphemeral, Text: text}
}

// jobName tags a deferred job with the originating request id so runner log
// lines correlate with the access log.
func jobName(base string, req Request) string {
	if req.RequestID == "" {
		return base
	}
	return base + ":" + req.RequestID
}

// newID generates payment ids and provisioned account passwords. Package
// variable so tests can pin it.
var newID = func() string {
	return uuid.NewString()
}
