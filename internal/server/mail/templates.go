package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))

// VerificationMessage is the email sent after registration.
func VerificationMessage(to, verificationURL string) (*Message, error) {
	var html bytes.Buffer
	if err := templates.ExecuteTemplate(&html, "verify.html", struct{ URL string }{verificationURL}); err != nil {
		return nil, err
	}

	return &Message{
		To:      to,
		Subject: "Hoot - Verify your email",
		Text:    "To verify your account, please visit this website: " + verificationURL,
		HTML:    html.String(),
	}, nil
}
