package alerts

import (
	"errors"
	"fmt"

	"soundsense/utils"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender delivers alert messages over SMS. When credentials are not
// configured every send fails per-contact; the detection pipeline itself is
// unaffected.
type TwilioSender struct {
	client     *twilio.RestClient
	from       string
	configured bool
}

// NewTwilioSenderFromEnv builds a sender from TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewTwilioSenderFromEnv() *TwilioSender {
	sid := utils.GetEnv("TWILIO_ACCOUNT_SID", "")
	token := utils.GetEnv("TWILIO_AUTH_TOKEN", "")
	from := utils.GetEnv("TWILIO_FROM_NUMBER", "")

	if sid == "" || token == "" || from == "" {
		return &TwilioSender{}
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: sid,
		Password: token,
	})

	return &TwilioSender{client: client, from: from, configured: true}
}

// Configured reports whether the platform messaging capability is available.
func (s *TwilioSender) Configured() bool {
	return s.configured
}

// Send delivers one message to one phone number.
func (s *TwilioSender) Send(phone, text string) error {
	if !s.configured {
		return errors.New("messaging is not configured")
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.from)
	params.SetBody(text)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}
