// Package notify sends allocation emails through the DevHub.
package notify

import (
	"context"
	"fmt"
	"strings"

	"orgpool/internal/domain"
	"orgpool/internal/hub"
)

// Mailer renders and sends scratch org credentials to a recipient.
type Mailer struct {
	Hub     *hub.Client
	Subject string
}

// Send emails the login details for each allocated org to the recipient.
func (m Mailer) Send(ctx context.Context, to string, orgs []domain.ScratchOrg) error {
	if to == "" {
		return fmt.Errorf("recipient is required")
	}
	if len(orgs) == 0 {
		return nil
	}
	subject := m.Subject
	if subject == "" {
		subject = "Scratch org allocated"
	}
	if err := m.Hub.SendEmail(ctx, to, subject, Body(orgs)); err != nil {
		return fmt.Errorf("send notification to %s: %w", to, err)
	}
	return nil
}

// Body renders the plaintext notification listing login URL, username and
// password for each org.
func Body(orgs []domain.ScratchOrg) string {
	var b strings.Builder
	b.WriteString("Your scratch org(s) are ready.\n")
	for _, org := range orgs {
		fmt.Fprintf(&b, "\nLogin URL: %s\nUsername: %s\nPassword: %s\n", org.LoginURL, org.Username, org.Password)
		if org.ExpiryDate != "" {
			fmt.Fprintf(&b, "Expires: %s\n", org.ExpiryDate)
		}
	}
	return b.String()
}
