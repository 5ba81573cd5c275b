package sms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	twilio "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/tartampluch/smart-village/internal/config"
)

// Notifier delivers one text message.
type Notifier interface {
	// Send returns the provider's message id.
	Send(ctx context.Context, to, body string) (string, error)
	// TestMode reports whether messages are only logged.
	TestMode() bool
}

// TwilioConfig holds the Twilio credentials and the sender number.
type TwilioConfig struct {
	AccountSid string
	AuthToken  string
	FromNumber string
}

// TwilioNotifier sends messages through the Twilio REST API.
type TwilioNotifier struct {
	from   string
	client *twilio.RestClient
}

// NewTwilioNotifier validates the configuration and builds the REST client.
func NewTwilioNotifier(cfg TwilioConfig) (*TwilioNotifier, error) {
	if cfg.AccountSid == "" || cfg.AuthToken == "" || cfg.FromNumber == "" {
		return nil, errors.New(config.ErrNotifierConfig)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSid,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{from: cfg.FromNumber, client: client}, nil
}

// Send creates the message. The Twilio client is not context aware, so the call runs
// in a goroutine and Send returns early when ctx is done.
func (n *TwilioNotifier) Send(ctx context.Context, to, body string) (string, error) {
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(n.from)
	params.SetBody(body)

	type result struct {
		sid string
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		msg, err := n.client.Api.CreateMessage(params)
		var sid string
		if err == nil && msg != nil && msg.Sid != nil {
			sid = *msg.Sid
		}
		resCh <- result{sid: sid, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resCh:
		if res.err != nil {
			return "", fmt.Errorf("%s: %w", config.ErrSMSSend, res.err)
		}
		return res.sid, nil
	}
}

func (n *TwilioNotifier) TestMode() bool { return false }

// ConsoleNotifier logs messages instead of sending them.
type ConsoleNotifier struct {
	seq atomic.Int64
}

func (n *ConsoleNotifier) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := n.seq.Add(1)
	slog.Info(config.MsgSMSTestMode,
		config.LogKeyComponent, config.CompSMS,
		config.LogKeyValue, to,
		config.LogKeySizeBytes, len(body),
	)
	return fmt.Sprintf("test-%d", id), nil
}

func (n *ConsoleNotifier) TestMode() bool { return true }
