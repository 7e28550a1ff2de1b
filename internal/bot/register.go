package bot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tippay/tip_bot/internal/command"
	"github.com/tippay/tip_bot/internal/credentials"
	"github.com/tippay/tip_bot/internal/slack"
)

// registration is the normalized form of a register command. Exactly one of
// the two shapes is populated: account credentials, or an invite to provision.
type registration struct {
	invite     bool
	endpoint   string
	identifier string
	host       string
	inviteCode string
}

type accountInput struct {
	Endpoint   string `validate:"required,url"`
	Identifier string `validate:"required,excludesall=@/"`
	Secret     string `validate:"required"`
}

type inviteInput struct {
	Host string `validate:"required,hostname|hostname_port"`
	Code string `validate:"required"`
}

func (d *Dispatcher) handleRegister(ctx context.Context, req Request, cmd command.Register) (Response, *Error) {
	reg, parseErr := parseRegistration(cmd)
	if parseErr != nil {
		text := fmt.Sprintf("I couldn't register that: %s. Try `register you@wallet.example <password>` or `register <invite link>`.", parseErr)
		return ephemeral(text), newError(ErrorValidation, "malformed_registration", parseErr)
	}

	if reg.invite {
		return d.startProvision(ctx, req, reg)
	}

	creds := credentials.Credentials{
		Endpoint:   reg.endpoint,
		Identifier: reg.identifier,
		Secret:     cmd.Secret,
	}
	input := accountInput{Endpoint: creds.Endpoint, Identifier: creds.Identifier, Secret: creds.Secret}
	if err := d.validate.Struct(input); err != nil {
		text := "That doesn't look like a valid account. Try `register you@wallet.example <password>`."
		return ephemeral(text), newError(ErrorValidation, "invalid_registration", err)
	}

	if err := d.store.Upsert(ctx, req.UserID, creds); err != nil {
		return ephemeral(msgGenericFailure), newError(ErrorUpstream, "credential_store_error", err)
	}

	hint := ""
	if err := d.setOwnAddress(ctx, req.UserID, creds.Address()); err != nil {
		d.logger.Warn("profile address update failed", "user", req.UserID, "error", err)
		hint = msgProfileHint
	}
	text := fmt.Sprintf("You're registered as %s.%s", creds.Address(), hint)
	return ephemeral(text), nil
}

// startProvision acknowledges immediately and creates the hosted account out
// of band. Nothing is stored unless provisioning succeeds.
func (d *Dispatcher) startProvision(ctx context.Context, req Request, reg registration) (Response, *Error) {
	input := inviteInput{Host: reg.host, Code: reg.inviteCode}
	if err := d.validate.Struct(input); err != nil {
		text := "That invite link doesn't look right. It should be an https link from your wallet host."
		return ephemeral(text), newError(ErrorValidation, "invalid_invite", err)
	}

	d.runner.Go(jobName("register", req), func(jobCtx context.Context) error {
		return d.executeProvision(jobCtx, req, reg)
	}, func(jobCtx context.Context) {
		d.respond(jobCtx, req.ResponseURL, slack.ResponseEphemeral, msgGenericFailure)
	})

	text := fmt.Sprintf("Registering you at %s…", reg.host)
	return ephemeral(text), nil
}

func (d *Dispatcher) executeProvision(ctx context.Context, req Request, reg registration) (jobErr error) {
	started := time.Now()
	defer func() {
		d.recorder.ObserveLatency("register.execute", time.Since(started), map[string]string{"outcome": outcomeLabel(jobErr)})
	}()

	username := accountUsername(req)
	password := newID()

	creds, err := d.payments.Provision(ctx, reg.host, username, password, reg.inviteCode)
	if err != nil {
		text := fmt.Sprintf("Sorry, I couldn't create an account for you at %s. Double-check the invite link or ask for a new one.", reg.host)
		d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
		return newError(ErrorUpstream, "provision_failed", err)
	}

	if err := d.store.Upsert(ctx, req.UserID, creds); err != nil {
		// The account exists upstream but the record was lost. Hand the user
		// their password so the account is not orphaned.
		text := fmt.Sprintf("Your account %s was created, but I couldn't save it. Run `register %s %s` to link it.", creds.Address(), creds.Address(), password)
		d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
		return newError(ErrorUpstream, "credential_store_error", err)
	}

	hint := ""
	if err := d.setOwnAddress(ctx, req.UserID, creds.Address()); err != nil {
		d.logger.Warn("profile address update failed", "user", req.UserID, "error", err)
		hint = msgProfileHint
	}
	text := fmt.Sprintf("All set! Your new account is %s.%s", creds.Address(), hint)
	d.respond(ctx, req.ResponseURL, slack.ResponseEphemeral, text)
	return nil
}

// setOwnAddress writes the registered address into the user's profile field
// so teammates can pay them.
func (d *Dispatcher) setOwnAddress(ctx context.Context, userID, address string) error {
	fieldID, err := d.addressFieldID(ctx)
	if err != nil {
		return err
	}
	if fieldID == "" {
		return fmt.Errorf("workspace has no payment address profile field")
	}
	return d.chat.SetProfileField(ctx, userID, fieldID, address)
}

// parseRegistration classifies the locator into its account or invite shape.
//
//	you@wallet.example + secret   -> endpoint https://wallet.example/api
//	https://…/users/you + secret  -> endpoint from the URL, trailing segment
//	                                 is the account name
//	https://…/<code>, no secret   -> invite: provision a new account
func parseRegistration(cmd command.Register) (registration, error) {
	locator := strings.TrimPrefix(strings.TrimSpace(cmd.Locator), "mailto:")
	if locator == "" {
		return registration{}, fmt.Errorf("there's no account in there")
	}

	if u, err := url.Parse(locator); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return parseLocatorURL(u, cmd.Secret)
	}

	if name, host, ok := strings.Cut(locator, "@"); ok && name != "" && host != "" && !strings.Contains(host, "@") {
		if cmd.Secret == "" {
			return registration{}, fmt.Errorf("the password is missing")
		}
		return registration{
			endpoint:   "https://" + host + "/api",
			identifier: name,
		}, nil
	}

	return registration{}, fmt.Errorf("%q is not an address, account URL or invite link", locator)
}

func parseLocatorURL(u *url.URL, secret string) (registration, error) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]

	if secret == "" {
		if last == "" {
			return registration{}, fmt.Errorf("the invite link is missing its code")
		}
		return registration{invite: true, host: u.Host, inviteCode: last}, nil
	}

	if last == "" {
		return registration{}, fmt.Errorf("the account URL is missing the account name")
	}
	parent := segments[:len(segments)-1]
	// Account APIs address users under a users/ collection; the endpoint is
	// the API root above it.
	if len(parent) > 0 && parent[len(parent)-1] == "users" {
		parent = parent[:len(parent)-1]
	}
	endpoint := u.Scheme + "://" + u.Host
	if len(parent) > 0 {
		endpoint += "/" + strings.Join(parent, "/")
	}
	return registration{endpoint: endpoint, identifier: last}, nil
}

// accountUsername derives a hosted account name from the chat identity.
func accountUsername(req Request) string {
	name := strings.ToLower(strings.TrimSpace(req.UserName))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, name)
	if cleaned != "" {
		return cleaned
	}
	return strings.ToLower(req.UserID)
}
