package mailer

import (
	"github.com/stayflow/guestgate/pkg/logger"
)

// DevMailer logs access codes instead of sending them. Used when no
// MailerSend key is configured.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendGuestAccess(email, code, magicLink string) error {
	logger.Info("📧 [DEV MAIL] Guest Access Email",
		"to", email,
		"code", code,
		"magic_link", magicLink,
	)
	return nil
}

var _ Service = (*DevMailer)(nil)
