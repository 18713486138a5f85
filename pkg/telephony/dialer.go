package telephony

import (
	"context"
	"errors"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/ardelia/frontdesk/pkg/errorsx"
)

type callCreator interface {
	CreateCall(params *api.CreateCallParams) (*api.ApiV2010Call, error)
}

// OutboundDialer places outbound calls that land on the voice webhook, so an
// outbound leg runs through the same session flow as an inbound one.
type OutboundDialer struct {
	cfg    Config
	client callCreator
}

func NewOutboundDialer(cfg Config) *OutboundDialer {
	return &OutboundDialer{cfg: cfg.withDefaults()}
}

// Dial creates the call and returns its SID. An empty voiceURL falls back to
// the configured webhook.
func (d *OutboundDialer) Dial(ctx context.Context, to, from, voiceURL string) (string, error) {
	_ = ctx
	if to == "" || from == "" {
		return "", errors.New("to/from required")
	}
	if d.cfg.AccountSID == "" || d.cfg.AuthToken == "" {
		return "", errors.New("missing telephony credentials")
	}
	if voiceURL == "" {
		voiceURL = webhookURL(d.cfg)
	}
	client := d.client
	if client == nil {
		rest := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: d.cfg.AccountSID,
			Password: d.cfg.AuthToken,
		})
		client = rest.Api
	}
	params := &api.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetUrl(voiceURL)
	resp, err := client.CreateCall(params)
	if err != nil {
		return "", errorsx.Wrap(err, errorsx.ReasonTransportSend)
	}
	if resp == nil || resp.Sid == nil {
		return "", errors.New("missing call sid")
	}
	return *resp.Sid, nil
}
