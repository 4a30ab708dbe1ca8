// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/accountd/accountd/internal/auth"
)

// DefaultQueueSize bounds the pending messages of an AsyncMailer.
const DefaultQueueSize = 64

// Recorder observes dispatch outcomes. status is "sent", "failed" or
// "dropped".
type Recorder interface {
	RecordMail(kind auth.MessageKind, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMail(auth.MessageKind, string) {}

type job struct {
	ctx context.Context
	msg auth.Message
}

// AsyncMailer hands messages to a background worker so flows never wait on
// delivery. A full queue drops the message and reports an error.
type AsyncMailer struct {
	next     auth.Mailer
	logger   *slog.Logger
	recorder Recorder

	queue    chan job
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// AsyncOption configures an AsyncMailer.
type AsyncOption func(*AsyncMailer)

// WithLogger sets the logger for delivery failures.
func WithLogger(logger *slog.Logger) AsyncOption {
	return func(m *AsyncMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRecorder sets the observer of dispatch outcomes.
func WithRecorder(r Recorder) AsyncOption {
	return func(m *AsyncMailer) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewAsyncMailer starts a worker delivering through next. A queueSize of
// zero or less uses DefaultQueueSize.
func NewAsyncMailer(next auth.Mailer, queueSize int, opts ...AsyncOption) *AsyncMailer {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	m := &AsyncMailer{
		next:     next,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		queue:    make(chan job, queueSize),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// Send enqueues msg. The request context is detached from cancellation so
// delivery outlives the request that triggered it.
func (m *AsyncMailer) Send(ctx context.Context, msg auth.Message) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return oops.Code("MAIL_QUEUE_CLOSED").With("kind", msg.Kind).Errorf("mailer is closed")
	}

	select {
	case m.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		return nil
	default:
		m.recorder.RecordMail(msg.Kind, "dropped")
		return oops.Code("MAIL_QUEUE_FULL").With("kind", msg.Kind).Errorf("mail queue is full")
	}
}

// Close stops accepting messages, delivers the queued ones and waits for the
// worker. It returns early with ctx's error if ctx ends first.
func (m *AsyncMailer) Close(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stopChan)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_DRAIN_TIMEOUT").Wrap(ctx.Err())
	}
}

func (m *AsyncMailer) run() {
	defer m.wg.Done()
	for {
		select {
		case j := <-m.queue:
			m.deliver(j)
		case <-m.stopChan:
			m.drain()
			return
		}
	}
}

func (m *AsyncMailer) drain() {
	for {
		select {
		case j := <-m.queue:
			m.deliver(j)
		default:
			return
		}
	}
}

func (m *AsyncMailer) deliver(j job) {
	if err := m.next.Send(j.ctx, j.msg); err != nil {
		m.recorder.RecordMail(j.msg.Kind, "failed")
		m.logger.WarnContext(j.ctx, "best-effort email delivery failed",
			"operation", "deliver "+string(j.msg.Kind),
			"error", err)
		return
	}
	m.recorder.RecordMail(j.msg.Kind, "sent")
}

var _ auth.Mailer = (*AsyncMailer)(nil)
