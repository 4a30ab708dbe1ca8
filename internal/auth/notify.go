// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package auth

import "context"

// MessageKind identifies an outbound email template.
type MessageKind string

// Outbound email kinds.
const (
	MessageVerification  MessageKind = "verification"
	MessageWelcome       MessageKind = "welcome"
	MessagePasswordReset MessageKind = "password_reset"
	MessageEmailChange   MessageKind = "email_change"
)

// Message is an outbound email trigger. Token is the raw single-use token
// for kinds that carry a link and empty otherwise.
type Message struct {
	Kind        MessageKind
	To          string
	Token       string
	DisplayName *string
}

// Mailer delivers outbound email. The engine calls it only after the
// triggering state is committed and ignores its failures beyond logging.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// FlowRecorder observes the outcome of every public flow. err is nil on
// success.
type FlowRecorder interface {
	RecordFlow(flow string, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordFlow(string, error) {}
