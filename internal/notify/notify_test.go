package notify_test

import (
	"context"
	"strings"
	"testing"

	"orgpool/internal/domain"
	"orgpool/internal/hub/hubtest"
	"orgpool/internal/notify"
)

func TestSend(t *testing.T) {
	fake := hubtest.New(t)
	m := notify.Mailer{Hub: fake.Client(), Subject: "Pool core"}
	orgs := []domain.ScratchOrg{{
		Username: "so1@example.com",
		LoginURL: "https://test.salesforce.com",
		Password: "p@ss",
	}}
	if err := m.Send(context.Background(), "dev@example.com", orgs); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.Emails) != 1 {
		t.Fatalf("expected one email, got %d", len(fake.Emails))
	}
	mail := fake.Emails[0]
	if mail.To != "dev@example.com" || mail.Subject != "Pool core" {
		t.Fatalf("unexpected envelope: %+v", mail)
	}
	for _, want := range []string{"https://test.salesforce.com", "so1@example.com", "p@ss"} {
		if !strings.Contains(mail.Body, want) {
			t.Errorf("body missing %q: %s", want, mail.Body)
		}
	}
}

func TestSendRequiresRecipient(t *testing.T) {
	fake := hubtest.New(t)
	m := notify.Mailer{Hub: fake.Client()}
	if err := m.Send(context.Background(), "", nil); err == nil {
		t.Fatalf("expected recipient error")
	}
}

func TestSendNothingToReport(t *testing.T) {
	fake := hubtest.New(t)
	m := notify.Mailer{Hub: fake.Client()}
	if err := m.Send(context.Background(), "dev@example.com", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fake.Emails) != 0 {
		t.Fatalf("expected no email")
	}
}
