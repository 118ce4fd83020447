// Package notify delivers listening milestones: the listen log, completion
// webhooks and digest e-mails, and the request for a fresh briefing.
package notify

import (
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/oszuidwest/zwfm-briefing/internal/config"
	"github.com/oszuidwest/zwfm-briefing/internal/types"
	"github.com/oszuidwest/zwfm-briefing/internal/util"
)

// EmailConfig contains SMTP server settings for email notifications.
type EmailConfig struct {
	Host       string
	Port       int
	FromName   string
	Username   string
	Password   string
	Recipients string
}

// EmailConfigFromSnapshot extracts the SMTP settings from a config snapshot.
func EmailConfigFromSnapshot(s *config.Snapshot) *EmailConfig {
	return &EmailConfig{
		Host:       s.EmailSMTPHost,
		Port:       s.EmailSMTPPort,
		FromName:   s.EmailFromName,
		Username:   s.EmailUsername,
		Password:   s.EmailPassword,
		Recipients: s.EmailRecipients,
	}
}

// SendCompletionDigest e-mails a summary of a completed briefing.
func SendCompletionDigest(cfg *EmailConfig, status types.PlaybackStatus, summary types.EngagementSummary) error {
	if !util.IsConfigured(cfg.Host, cfg.Username, cfg.Recipients) {
		return nil // Silently skip if not configured
	}
	subject, body := completionDigest(status, summary)
	return sendEmail(cfg, subject, body)
}

func completionDigest(status types.PlaybackStatus, summary types.EngagementSummary) (subject, body string) {
	subject = "[Briefing] Listened to the end - ZuidWest FM"
	body = fmt.Sprintf(
		"The briefing was listened to completion.\n\n"+
			"Generated: %s\n"+
			"Segments:  %d\n"+
			"Length:    %s\n"+
			"Speed:     %gx\n\n"+
			"Heard:     %d items\n"+
			"Clicked:   %d items\n"+
			"Likes:     %d\n"+
			"Dislikes:  %d\n"+
			"Unsynced:  %d events\n\n"+
			"Time:      %s",
		util.FormatHumanTime(status.GeneratedAt),
		status.SegmentCount,
		util.FormatClock(status.Duration),
		status.Rate,
		summary.Heard, summary.Clicked, summary.Likes, summary.Dislikes, summary.Pending,
		util.HumanTime(),
	)
	return subject, body
}

// SendTestEmail sends a test email to verify SMTP configuration.
func SendTestEmail(cfg *EmailConfig) error {
	if cfg.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if cfg.Username == "" {
		return fmt.Errorf("email username not configured")
	}
	if cfg.Recipients == "" {
		return fmt.Errorf("email recipients not configured")
	}

	subject := "[TEST] ZuidWest FM Briefing"
	body := fmt.Sprintf(
		"Test email from the briefing player.\n\n"+
			"Time: %s\n\n"+
			"SMTP configuration is working correctly.",
		util.HumanTime(),
	)

	return sendEmail(cfg, subject, body)
}

func parseRecipients(list string) []string {
	var recipients []string
	for r := range strings.SplitSeq(list, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

// sendEmail delivers an email message to configured recipients.
func sendEmail(cfg *EmailConfig, subject, body string) error {
	recipients := parseRecipients(cfg.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no valid recipients")
	}

	m := mail.NewMsg()
	if cfg.FromName != "" {
		if err := m.FromFormat(cfg.FromName, cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	} else {
		if err := m.From(cfg.Username); err != nil {
			return util.WrapError("set from address", err)
		}
	}
	if err := m.To(recipients...); err != nil {
		return util.WrapError("set recipient address", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthAutoDiscover),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}

	switch cfg.Port {
	case 465: // SMTPS - implicit TLS
		opts = append(opts, mail.WithSSL())
	case 587: // Submission - STARTTLS required
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	default: // Port 25 or custom - opportunistic TLS
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return util.WrapError("create SMTP client", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return util.WrapError("send email", err)
	}

	return nil
}
