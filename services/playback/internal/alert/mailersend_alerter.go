package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"
)

type MailerSendAlerter struct {
	client   *mailersend.Mailersend
	from     mailersend.From
	operator string
	enabled  bool
}

func NewMailerSend(apiKey, fromName, fromEmail, operatorEmail string) *MailerSendAlerter {
	a := &MailerSendAlerter{
		enabled:  apiKey != "" && fromEmail != "" && operatorEmail != "",
		operator: operatorEmail,
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
	}

	if a.enabled {
		a.client = mailersend.NewMailersend(apiKey)
	}

	return a
}

func (a *MailerSendAlerter) DeletionFailed(grantID, videoID string, attempts int, lastErr error) error {
	if !a.enabled {
		return fmt.Errorf("MailerSend not configured")
	}

	subject := fmt.Sprintf("[video-access] asset purge failed for video %s", videoID)
	text := fmt.Sprintf(
		"Asset purge failed after %d attempts.\n\nGrant: %s\nVideo: %s\nLast error: %v\n\n"+
			"Playback is already denied for this grant; the asset still exists at the storage provider and needs manual deletion.",
		attempts, grantID, videoID, lastErr,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := a.client.Email.NewMessage()
	msg.SetFrom(a.from)
	msg.SetRecipients([]mailersend.Recipient{{Email: a.operator}})
	msg.SetSubject(subject)
	msg.SetText(text)

	_, err := a.client.Email.Send(ctx, msg)
	return err
}
