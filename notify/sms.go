package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"inventory_watch/config"
	"inventory_watch/models"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

type Deps struct {
	API *resty.Client
}

// SMSNotifier posts to the Twilio Messages REST endpoint.
type SMSNotifier struct {
	cfg     config.NotifyConfig
	client  *resty.Client
	baseURL string
	now     func() time.Time
}

func NewSMSNotifier(cfg config.NotifyConfig, client *resty.Client) *SMSNotifier {
	return &SMSNotifier{
		cfg:     cfg,
		client:  client,
		baseURL: twilioBaseURL,
		now:     time.Now,
	}
}

func (n *SMSNotifier) Name() string { return "sms" }

func (n *SMSNotifier) NotifyNew(ctx context.Context, vehicles []models.LedgerEntry) error {
	if len(vehicles) == 0 {
		return nil
	}
	return n.send(ctx, FormatSMS(vehicles, n.now()))
}

func (n *SMSNotifier) NotifyNoMatches(ctx context.Context, info NoMatches) error {
	return n.send(ctx, FormatNoMatches(info, n.now()))
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (n *SMSNotifier) send(ctx context.Context, body string) error {
	var out twilioMessage
	res, err := n.client.R().
		SetContext(ctx).
		SetBasicAuth(n.cfg.TwilioAccountSID, n.cfg.TwilioAuthToken).
		SetFormData(map[string]string{
			"From": n.cfg.TwilioFrom,
			"To":   n.cfg.TwilioTo,
			"Body": body,
		}).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("%s/Accounts/%s/Messages.json", n.baseURL, n.cfg.TwilioAccountSID))
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("send sms: status %d: %s", res.StatusCode(), out.Message)
	}
	return nil
}
