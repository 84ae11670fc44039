package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"parkwise/internal/logger"
)

var ErrNotifierNotConfigured = errors.New("notifier not configured")

const defaultPhoneRegion = "VN"

// Mailer delivers one email.
type Mailer interface {
	SendEmail(toEmail, toName, subject, plainText, html string) error
}

// Texter delivers one SMS.
type Texter interface {
	SendSMS(toNumber, body string) error
}

type SendgridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
	log    *logger.Logger
}

// NewSendgridMailer returns nil when the API key or sender address is missing.
func NewSendgridMailer(apiKey, fromEmail, fromName string, log *logger.Logger) *SendgridMailer {
	if apiKey == "" || fromEmail == "" {
		log.Warn("SENDGRID_API_KEY or SENDGRID_FROM_EMAIL not set, booking emails disabled")
		return nil
	}
	if fromName == "" {
		fromName = "ParkWise"
	}
	return &SendgridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromEmail),
		log:    log,
	}
}

func (m *SendgridMailer) SendEmail(toEmail, toName, subject, plainText, html string) error {
	if m == nil {
		return ErrNotifierNotConfigured
	}
	message := mail.NewSingleEmail(m.from, subject, mail.NewEmail(toName, toEmail), plainText, html)

	response, err := m.client.Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s failed: %w", toEmail, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	m.log.Info("email sent", "to", toEmail, "subject", subject, "status", response.StatusCode)
	return nil
}

type TwilioTexter struct {
	client *twilio.RestClient
	from   string
	log    *logger.Logger
}

// NewTwilioTexter returns nil unless the account SID, auth token and sender number are all set.
func NewTwilioTexter(accountSID, authToken, fromNumber string, log *logger.Logger) *TwilioTexter {
	if accountSID == "" || authToken == "" || fromNumber == "" {
		log.Warn("Twilio credentials not set, booking SMS disabled")
		return nil
	}
	return &TwilioTexter{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username:   accountSID,
			Password:   authToken,
			AccountSid: accountSID,
		}),
		from: fromNumber,
		log:  log,
	}
}

func (t *TwilioTexter) SendSMS(toNumber, body string) error {
	if t == nil {
		return ErrNotifierNotConfigured
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s failed: %w", toNumber, err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	t.log.Info("sms sent", "to", toNumber, "sid", sid)
	return nil
}

// ToE164 formats a phone number as E.164, reading local numbers as
// Vietnamese. Numbers that do not parse or are not valid yield "".
func ToE164(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	num, err := phonenumbers.Parse(phone, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return ""
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}
