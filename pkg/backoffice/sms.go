package backoffice

import (
	"context"
	"errors"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/ardelia/frontdesk/pkg/errorsx"
)

type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// SMSClient sends one-time codes through the Twilio Messages API. Callers
// dispatch it fire-and-forget; delivery failures surface only in logs.
type SMSClient struct {
	cfg    SMSConfig
	client messageCreator
}

func NewSMSClient(cfg SMSConfig) *SMSClient {
	return &SMSClient{cfg: cfg}
}

func (c *SMSClient) Send(ctx context.Context, to, body string) error {
	_ = ctx
	if strings.TrimSpace(to) == "" {
		return errorsx.Wrap(errors.New("destination number required"), errorsx.ReasonSMSDispatch)
	}
	if strings.TrimSpace(body) == "" {
		return errorsx.Wrap(errors.New("message body required"), errorsx.ReasonSMSDispatch)
	}
	if c.cfg.AccountSID == "" || c.cfg.AuthToken == "" || c.cfg.FromNumber == "" {
		return errorsx.Wrap(errors.New("missing twilio sms credentials"), errorsx.ReasonSMSDispatch)
	}
	client := c.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: c.cfg.AccountSID,
			Password: c.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.cfg.FromNumber)
	params.SetBody(body)
	_, err := client.CreateMessage(params)
	return errorsx.Wrap(err, errorsx.ReasonSMSDispatch)
}
