// Package notify delivers one-time-code mail off the request path. A
// slow or unreachable mail relay must never stall a portal request, so
// messages are queued to a single worker and dropped (with a log line)
// when the queue is full.
package notify

import (
	"fmt"
	"net/smtp"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const DefaultBufferSize = 128

// Message is one outbound mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender performs the actual delivery.
type Sender interface {
	Send(msg Message) error
}

// Dispatcher queues messages and delivers them on a background worker.
type Dispatcher struct {
	sender  Sender
	ch      chan Message
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
	logger  *zap.Logger
}

func NewDispatcher(sender Sender, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	d := &Dispatcher{
		sender: sender,
		ch:     make(chan Message, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case msg := <-d.ch:
			d.deliver(msg)
		case <-d.done:
			// Drain what was queued before shutdown.
			for {
				select {
				case msg := <-d.ch:
					d.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(msg Message) {
	if err := d.sender.Send(msg); err != nil {
		d.logger.Error("mail delivery failed",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
	}
}

// Enqueue queues a message without blocking. Full queue drops the
// message; the guest can request a fresh code.
func (d *Dispatcher) Enqueue(msg Message) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.ch <- msg:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.logger.Warn("mail queue full, message dropped",
			zap.String("subject", msg.Subject),
		)
	}
}

// EnqueueOTP formats and queues the one-time-code mail for a site.
func (d *Dispatcher) EnqueueOTP(email, code, siteName string) {
	if siteName == "" {
		siteName = "Guest WiFi"
	}
	d.Enqueue(Message{
		To:      email,
		Subject: fmt.Sprintf("%s access code", siteName),
		Body: fmt.Sprintf("Your %s access code is %s.\r\n\r\nThe code expires in 10 minutes. If you did not request it, ignore this message.\r\n",
			siteName, code),
	})
}

// Close stops the worker after draining the queue.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many messages were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender builds a sender for host:port. Username may be empty
// for relays that accept unauthenticated submission.
func NewSMTPSender(addr, from, username, password, host string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: addr, from: from, auth: auth}
}

func (s *SMTPSender) Send(msg Message) error {
	payload := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.from, msg.To, msg.Subject, msg.Body)
	return smtp.SendMail(s.addr, s.auth, s.from, []string{msg.To}, []byte(payload))
}

// LogSender writes the message to the log instead of delivering it.
// Used in development and DB-less demo runs.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(msg Message) error {
	s.Logger.Info("mail (log sink)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
