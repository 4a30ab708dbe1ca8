// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// LogMailer is the development mailer. It writes rendered emails to an
// outbox writer and records a structured log line without the link.
type LogMailer struct {
	renderer *Renderer
	logger   *slog.Logger

	mu     sync.Mutex
	outbox io.Writer
}

// NewLogMailer creates a LogMailer writing to outbox.
func NewLogMailer(renderer *Renderer, outbox io.Writer, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{renderer: renderer, outbox: outbox, logger: logger}
}

// Send renders msg and writes it to the outbox.
func (m *LogMailer) Send(ctx context.Context, msg auth.Message) error {
	email, err := m.renderer.Render(msg)
	if err != nil {
		return err
	}

	m.mu.Lock()
	_, err = fmt.Fprintf(m.outbox, "To: %s\nSubject: %s\n\n%s\n", email.To, email.Subject, email.Body)
	m.mu.Unlock()
	if err != nil {
		return oops.Code("MAIL_WRITE_FAILED").With("kind", msg.Kind).Wrap(err)
	}

	m.logger.InfoContext(ctx, "email sent", "kind", string(msg.Kind), "to", email.To)
	return nil
}

var _ auth.Mailer = (*LogMailer)(nil)
