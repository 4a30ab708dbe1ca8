// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package mail renders and dispatches the account emails triggered by the
// auth engine.
package mail

import (
	"bytes"
	"embed"
	"net/url"
	"strings"
	"text/template"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// defaultName greets users without a display name.
const defaultName = "there"

// linkPaths maps token-carrying kinds to the frontend page that redeems them.
var linkPaths = map[auth.MessageKind]string{
	auth.MessageVerification:  "/verify-email",
	auth.MessagePasswordReset: "/reset-password",
	auth.MessageEmailChange:   "/confirm-email-change",
}

// Email is a rendered message ready for delivery.
type Email struct {
	Kind    auth.MessageKind
	To      string
	Subject string
	Body    string
	Link    string
}

// Renderer turns auth messages into emails.
type Renderer struct {
	baseURL   *url.URL
	templates map[auth.MessageKind]*template.Template
}

// NewRenderer parses the embedded templates. Links point at baseURL.
func NewRenderer(baseURL string) (*Renderer, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code("MAIL_BASE_URL_INVALID").With("base_url", baseURL).Errorf("base URL must be absolute")
	}

	templates := make(map[auth.MessageKind]*template.Template, 4)
	for _, kind := range []auth.MessageKind{
		auth.MessageVerification,
		auth.MessageWelcome,
		auth.MessagePasswordReset,
		auth.MessageEmailChange,
	} {
		tmpl, err := template.ParseFS(templatesFS, "templates/"+string(kind)+".tmpl")
		if err != nil {
			return nil, oops.Code("MAIL_TEMPLATE_INVALID").With("kind", kind).Wrap(err)
		}
		templates[kind] = tmpl
	}
	return &Renderer{baseURL: u, templates: templates}, nil
}

// Render builds the email for msg.
func (r *Renderer) Render(msg auth.Message) (Email, error) {
	tmpl, ok := r.templates[msg.Kind]
	if !ok {
		return Email{}, oops.Code("MAIL_UNKNOWN_KIND").With("kind", msg.Kind).Errorf("no template for message kind")
	}

	email := Email{Kind: msg.Kind, To: msg.To}
	if path, carriesLink := linkPaths[msg.Kind]; carriesLink {
		if msg.Token == "" {
			return Email{}, oops.Code("MAIL_TOKEN_MISSING").With("kind", msg.Kind).Errorf("message requires a token")
		}
		email.Link = r.link(path, msg.Token)
	}

	name := defaultName
	if msg.DisplayName != nil && *msg.DisplayName != "" {
		name = *msg.DisplayName
	}
	data := struct{ Name, Link string }{Name: name, Link: email.Link}

	var subject, body bytes.Buffer
	if err := tmpl.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Email{}, oops.Code("MAIL_RENDER_FAILED").With("kind", msg.Kind).Wrap(err)
	}
	if err := tmpl.ExecuteTemplate(&body, "body", data); err != nil {
		return Email{}, oops.Code("MAIL_RENDER_FAILED").With("kind", msg.Kind).Wrap(err)
	}
	email.Subject = strings.TrimSpace(subject.String())
	email.Body = body.String()
	return email, nil
}

func (r *Renderer) link(path, token string) string {
	u := *r.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}
