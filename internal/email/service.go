// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// SendHTMLEmail sends an HTML email with a plain text fallback part
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	boundary := "boundary-neolish"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "Please view this email in an HTML-capable email client.\r\n")
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

type GenerationData struct {
	AppName      string
	UserName     string
	ArticleTitle string
	ArticleURL   string
	Failed       bool
	ErrorDetail  string
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	data := VerificationData{
		AppName:         "Neolish",
		UserName:        userName,
		VerificationURL: verificationURL,
	}

	subject := "Verify your Neolish account"
	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	data := PasswordResetData{
		AppName:  "Neolish",
		UserName: userName,
		ResetURL: resetURL,
	}

	subject := "Reset your Neolish password"
	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

// SendGenerationFinishedEmail notifies the author that article generation
// either produced a draft or failed.
func (s *Service) SendGenerationFinishedEmail(to, userName, articleTitle, articleURL, errorDetail string) error {
	data := GenerationData{
		AppName:      "Neolish",
		UserName:     userName,
		ArticleTitle: articleTitle,
		ArticleURL:   articleURL,
		Failed:       errorDetail != "",
		ErrorDetail:  errorDetail,
	}

	subject := fmt.Sprintf("Your article %q is ready", articleTitle)
	if data.Failed {
		subject = fmt.Sprintf("Article generation failed for %q", articleTitle)
	}

	html, err := renderTemplate(generationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render generation template: %w", err)
	}

	return s.SendHTMLEmail([]string{to}, subject, html)
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const emailStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
        .error { background: #fdecea; border-left: 3px solid #c0392b; padding: 10px; }
        .link { word-break: break-all; color: #0066cc; }`

const verificationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Verify your {{.AppName}} account</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Welcome, {{.UserName}}!</h2>
    <p>Thank you for signing up. Please verify your email address to activate your account.</p>
    <p><a href="{{.VerificationURL}}" class="button">Verify Email Address</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.VerificationURL}}</p>
    <p>This verification link will expire in 24 hours.</p>
    <div class="footer">If you did not create a {{.AppName}} account, you can ignore this email.</div>
</body>
</html>`

const passwordResetEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Reset your {{.AppName}} password</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Hello, {{.UserName}}</h2>
    <p>We received a request to reset your password.</p>
    <p><a href="{{.ResetURL}}" class="button">Reset Password</a></p>
    <p>Or copy and paste this link into your browser:</p>
    <p class="link">{{.ResetURL}}</p>
    <p>This reset link will expire in 1 hour.</p>
    <div class="footer">If you did not request a reset, you can ignore this email.</div>
</body>
</html>`

const generationEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}} article update</title>
    <style>` + emailStyle + `</style>
</head>
<body>
    <div class="header"><h1>{{.AppName}}</h1></div>
    <h2>Hello, {{.UserName}}</h2>
    {{if .Failed}}
    <p>Generation of your article <strong>{{.ArticleTitle}}</strong> failed.</p>
    <div class="error">{{.ErrorDetail}}</div>
    <p>You can requeue the article from its detail page.</p>
    {{else}}
    <p>Your article <strong>{{.ArticleTitle}}</strong> has finished generating and is ready for review.</p>
    {{end}}
    {{if .ArticleURL}}<p><a href="{{.ArticleURL}}" class="button">Open Article</a></p>{{end}}
    <div class="footer">You are receiving this because you queued an article on {{.AppName}}.</div>
</body>
</html>`
