package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"otp-auth/internal/domain"
)

var codeTemplate = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="margin:0;padding:0;font-family:-apple-system,'Segoe UI',Roboto,sans-serif;background-color:#f8f9fa;">
  <div style="max-width:600px;margin:40px auto;background:#fff;border-radius:12px;overflow:hidden;">
    <div style="background:#6366f1;padding:32px 20px;text-align:center;">
      <h1 style="color:#fff;margin:0;font-size:26px;">{{.AppName}}</h1>
      <p style="color:rgba(255,255,255,0.9);margin:8px 0 0 0;">{{.Title}}</p>
    </div>
    <div style="padding:32px 28px;">
      <p style="color:#374151;font-size:16px;line-height:1.6;">{{.Message}}</p>
      <div style="border:2px dashed #6366f1;border-radius:12px;padding:24px;text-align:center;margin:24px 0;">
        <h2 style="color:#6366f1;margin:0;font-size:34px;letter-spacing:6px;font-family:'Courier New',monospace;">{{.Code}}</h2>
      </div>
      <p style="color:#92400e;font-size:14px;">This code expires in <strong>{{.Minutes}} minutes</strong>. Do not share it with anyone.</p>
      <p style="color:#9ca3af;font-size:12px;">If you didn't request this code, please ignore this email.</p>
    </div>
  </div>
</body>
</html>
`))

type codeView struct {
	AppName string
	Title   string
	Message string
	Code    string
	Minutes int
}

// RenderCode arma asunto y cuerpo HTML del correo con el codigo para cada proposito.
func RenderCode(appName string, purpose domain.Purpose, code string, ttl time.Duration) (string, string, error) {
	view := codeView{
		AppName: appName,
		Code:    code,
		Minutes: int(ttl.Round(time.Minute) / time.Minute),
	}
	var subject string
	switch purpose {
	case domain.PurposeResetPassword:
		subject = fmt.Sprintf("Reset your %s password", appName)
		view.Title = "Password Reset"
		view.Message = "You requested to reset your password. Use the code below:"
	case domain.PurposeVerifyRegistration:
		subject = fmt.Sprintf("Verify your %s account", appName)
		view.Title = "Email Verification"
		view.Message = "Welcome! Please verify your email with the code below:"
	default:
		return "", "", fmt.Errorf("unknown code purpose %q", purpose)
	}
	if view.Minutes < 1 {
		view.Minutes = 1
	}

	var buf bytes.Buffer
	if err := codeTemplate.Execute(&buf, view); err != nil {
		return "", "", err
	}
	return subject, buf.String(), nil
}
