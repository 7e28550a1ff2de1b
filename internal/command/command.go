package command

import "github.com/shopspring/decimal"

// Command is a parsed chat command. Parsing yields exactly one of the concrete
// types below; dispatch type-switches on it.
type Command interface {
	// Name identifies the workflow for logs and metrics.
	Name() string
	isCommand()
}

// Send asks the bot to pay another chat user.
type Send struct {
	RecipientID   string
	RecipientName string
	Amount        decimal.Decimal
	Note          string
}

// Register links (or provisions) a payment account for the requesting user.
// Locator is an account URL, a user@host address, or an invite link. Secret is
// empty for the invite variant; the register workflow validates that.
type Register struct {
	Locator string
	Secret  string
}

// Info asks for the requesting user's balance and account details.
type Info struct{}

// Help asks for usage text. It is also the fallback for unparseable input.
type Help struct{}

func (Send) Name() string     { return "send" }
func (Register) Name() string { return "register" }
func (Info) Name() string     { return "info" }
func (Help) Name() string     { return "help" }

func (Send) isCommand()     {}
func (Register) isCommand() {}
func (Info) isCommand()     {}
func (Help) isCommand()     {}
