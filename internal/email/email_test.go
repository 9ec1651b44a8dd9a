package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"otp-auth/internal/domain"
)

func TestRenderCode(t *testing.T) {
	subject, body, err := RenderCode("otp-auth", domain.PurposeVerifyRegistration, "042317", 5*time.Minute)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Verify your otp-auth account" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, ">042317</h2>") || !strings.Contains(body, "5 minutes") {
		t.Fatalf("body missing code or ttl")
	}

	subject, body, err = RenderCode("otp-auth", domain.PurposeResetPassword, "000001", 20*time.Second)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasPrefix(subject, "Reset your") || !strings.Contains(body, "Password Reset") {
		t.Fatalf("unexpected reset email %q", subject)
	}
	if !strings.Contains(body, "1 minutes") {
		t.Fatalf("ttl under a minute should render as 1")
	}

	if _, _, err := RenderCode("otp-auth", "LOGIN", "000001", time.Minute); err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}

func TestRenderCode_EscapesAppName(t *testing.T) {
	_, body, err := RenderCode("<script>", domain.PurposeVerifyRegistration, "123456", time.Minute)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(body, "<script>") {
		t.Fatalf("app name must be escaped")
	}
}

func TestBuildMessage(t *testing.T) {
	sentAt := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)
	msg := buildMessage("no-reply@x.com", "OTP Auth", "a@x.com", "Hi", "<p>body</p>", sentAt)
	for _, want := range []string{
		"From: \"OTP Auth\" <no-reply@x.com>\r\n",
		"To: a@x.com\r\n",
		"Subject: Hi\r\n",
		"Date: Thu, 02 Jan 2025 15:04:05 +0000\r\n",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"\r\n\r\n<p>body</p>",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q", want)
		}
	}
	if !strings.Contains(buildMessage("no-reply@x.com", "", "a@x.com", "Hi", "", sentAt), "From: <no-reply@x.com>\r\n") {
		t.Fatalf("expected bare from header")
	}
	if strings.Contains(buildMessage("no-reply@x.com", "", "a@x.com", "Código", "", sentAt), "Subject: Código") {
		t.Fatalf("non-ascii subject must be encoded")
	}
}

func TestNewSMTPSender_Validation(t *testing.T) {
	if _, err := NewSMTPSender("", 587, "", "", "from@x.com", "", false); err == nil {
		t.Fatalf("expected host error")
	}
	if _, err := NewSMTPSender("smtp.x.com", 587, "", "", "", "", false); err == nil {
		t.Fatalf("expected from error")
	}
	s, err := NewSMTPSender("smtp.x.com", 0, "", "", "from@x.com", "", false)
	if err != nil || s.port != 587 {
		t.Fatalf("expected default port, got %v %v", s, err)
	}
}

func TestSMTPSender_SendHonorsContext(t *testing.T) {
	s, _ := NewSMTPSender("smtp.x.com", 587, "", "", "from@x.com", "", false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, "a@x.com", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if err := s.Send(context.Background(), " ", "s", "b"); err == nil {
		t.Fatalf("expected recipient error")
	}
}

func TestDisabledSender(t *testing.T) {
	if err := NewDisabledSender("off").Send(context.Background(), "a@x.com", "s", "b"); err == nil || err.Error() != "off" {
		t.Fatalf("expected configured reason, got %v", err)
	}
	if err := NewDisabledSender("").Send(context.Background(), "a@x.com", "s", "b"); err == nil {
		t.Fatalf("expected error")
	}
}
