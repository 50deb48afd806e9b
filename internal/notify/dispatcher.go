package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"confreg.org/internal/registry"
)

type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
	sendTimeout      = 30 * time.Second
)

type job struct {
	kind string
	to   string
	run  func(ctx context.Context) error
}

// Dispatcher delivers notifications on a fixed worker pool so request
// handlers never wait on SMTP or the SMS provider. When the queue is full
// the notification is dropped and logged.
type Dispatcher struct {
	mail EmailSender
	sms  SMSSender
	log  *zap.Logger

	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

var _ registry.Notifier = (*Dispatcher)(nil)

type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	workers int
	queue   int
}

func WithWorkers(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.queue = n
		}
	}
}

func NewDispatcher(mail EmailSender, sms SMSSender, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{workers: defaultWorkers, queue: defaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{mail: mail, sms: sms, log: log, jobs: make(chan job, cfg.queue)}
	d.wg.Add(cfg.workers)
	for range cfg.workers {
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := j.run(ctx); err != nil {
			d.log.Warn("notification failed",
				zap.String("channel", j.kind),
				zap.String("to", j.to),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("notification dropped after shutdown", zap.String("channel", j.kind), zap.String("to", j.to))
		return
	}
	select {
	case d.jobs <- j:
	default:
		d.log.Warn("notification queue full, dropping", zap.String("channel", j.kind), zap.String("to", j.to))
	}
}

func (d *Dispatcher) email(to string, data welcomeData) {
	if d.mail == nil {
		return
	}
	d.enqueue(job{kind: "email", to: to, run: func(ctx context.Context) error {
		body, err := renderWelcome(data)
		if err != nil {
			return err
		}
		return d.mail.Send(ctx, to, welcomeSubject, body)
	}})
}

func (d *Dispatcher) text(phone, message string) {
	if d.sms == nil || phone == "" {
		return
	}
	d.enqueue(job{kind: "sms", to: phone, run: func(ctx context.Context) error {
		return d.sms.Send(ctx, phone, message)
	}})
}

// UserCreated emails the new organization account its credentials.
func (d *Dispatcher) UserCreated(u *registry.User, password string) {
	d.email(u.ContactPersonEmail, welcomeData{
		Name:         u.ContactPerson,
		Organization: u.Organization,
		ShortCode:    u.OrganizationShortCode,
		Login:        u.Username,
		Password:     password,
	})
}

// AttendeeRegistered sends the temporary password by email and SMS.
func (d *Dispatcher) AttendeeRegistered(a *registry.Attendee, password string) {
	d.email(a.Email, welcomeData{
		Name:         a.Fullname,
		Organization: a.Organization,
		Login:        a.Email,
		Password:     password,
	})
	d.text(a.PhoneNumber, welcomeSMS(a.Fullname, a.Email, password))
}

// Close stops intake and waits for queued sends to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
