package mailer

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testLogger() *zap.Logger { return zap.NewNop() }

func TestBuildMessage(t *testing.T) {
	m := New(Config{
		Host:     "localhost",
		Port:     1025,
		From:     "noreply@bloodbridge.example",
		FromName: "BloodBridge",
	}, testLogger())

	msg := string(m.buildMessage(Email{
		To:       "donor@example.com",
		Subject:  "O- blood needed near you",
		TextBody: "plain part",
		HTMLBody: "<p>html part</p>",
	}))

	for _, want := range []string{
		"To: donor@example.com",
		"MIME-Version: 1.0",
		"multipart/alternative",
		"text/plain; charset=utf-8",
		"text/html; charset=utf-8",
		"plain part",
		"<p>html part</p>",
		"noreply@bloodbridge.example",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSend_RejectsEmptyBody(t *testing.T) {
	m := New(Config{Host: "localhost", Port: 1025, From: "noreply@example.com"}, testLogger())

	if err := m.Send(Email{To: "a@b.c", Subject: "s"}); err == nil {
		t.Error("expected error for email with no body")
	}
	if err := m.Send(Email{To: "a@b.c", TextBody: "b"}); err == nil {
		t.Error("expected error for email with no subject")
	}
}
