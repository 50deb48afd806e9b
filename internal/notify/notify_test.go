package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"confreg.org/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "08031234567", want: "+2348031234567"},
		{in: "0803 123 4567", want: "+2348031234567"},
		{in: "2348031234567", want: "+2348031234567"},
		{in: "+234 803-123-4567", want: "+2348031234567"},
		{in: "8031234567", wantErr: true},
		{in: "", wantErr: true},
		{in: "+44 20 7946 0958", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPhoneNumber)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTermiiClientSend(t *testing.T) {
	var got termiiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":"Successfully Sent"}`))
	}))
	defer srv.Close()

	c := NewTermiiClient(TermiiConfig{APIKey: "key", Endpoint: srv.URL, Sender: "ICSC"}, nil)
	require.NoError(t, c.Send(context.Background(), "08031234567", "hello"))
	assert.Equal(t, termiiRequest{APIKey: "key", To: "+2348031234567", SMS: "hello", From: "ICSC", Type: "plain", Channel: "generic"}, got)
}

func TestTermiiClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"insufficient balance"}`))
	}))
	defer srv.Close()

	c := NewTermiiClient(TermiiConfig{APIKey: "key", Endpoint: srv.URL}, nil)
	err := c.Send(context.Background(), "08031234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")

	unconfigured := NewTermiiClient(TermiiConfig{}, nil)
	assert.ErrorIs(t, unconfigured.Send(context.Background(), "08031234567", "x"), ErrSMSNotConfigured)
}

func TestSMTPMailer(t *testing.T) {
	t.Run("unconfigured logs instead of sending", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		m := NewSMTPMailer(MailConfig{}, zap.New(core))
		m.send = func(string, smtp.Auth, string, []string, []byte) error {
			t.Fatal("send must not be called")
			return nil
		}
		require.NoError(t, m.Send(context.Background(), "a@example.gov", "hi", "<p>x</p>"))
		assert.Equal(t, 1, logs.FilterMessage("smtp not configured, email not sent").Len())
	})

	t.Run("configured builds html message", func(t *testing.T) {
		m := NewSMTPMailer(MailConfig{Host: "smtp.example.gov", Port: "587", Username: "u", Password: "p",
			From: "noreply@example.gov", FromName: "ICSC"}, nil)
		var (
			addr string
			msg  []byte
		)
		m.send = func(a string, _ smtp.Auth, from string, to []string, body []byte) error {
			addr, msg = a, body
			assert.Equal(t, "noreply@example.gov", from)
			assert.Equal(t, []string{"a@example.gov"}, to)
			return nil
		}
		require.NoError(t, m.Send(context.Background(), "a@example.gov", "Welcome", "<p>x</p>"))
		assert.Equal(t, "smtp.example.gov:587", addr)
		assert.Contains(t, string(msg), "Content-Type: text/html; charset=UTF-8")
		assert.True(t, strings.HasSuffix(string(msg), "<p>x</p>"))
	})
}

func TestWelcomeTemplateEscapes(t *testing.T) {
	body, err := renderWelcome(welcomeData{Name: "<script>x</script>", Login: "jdoe", Password: "abc123"})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "abc123")
}

type recordingEmail struct {
	mu   sync.Mutex
	sent map[string]string
	err  error
}

func (r *recordingEmail) Send(_ context.Context, to, _, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string]string{}
	}
	r.sent[to] = body
	return r.err
}

type recordingSMS struct {
	mu   sync.Mutex
	sent map[string]string
}

func (r *recordingSMS) Send(_ context.Context, phone, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string]string{}
	}
	r.sent[phone] = msg
	return nil
}

func TestDispatcherDeliversAndDrains(t *testing.T) {
	mail, sms := &recordingEmail{}, &recordingSMS{}
	d := NewDispatcher(mail, sms, nil, WithWorkers(2))

	d.UserCreated(&registry.User{ContactPerson: "Jane", ContactPersonEmail: "jane@fmw.gov", Username: "jane"}, "secret1")
	d.AttendeeRegistered(&registry.Attendee{Fullname: "Ngozi", Email: "ngozi@example.gov", PhoneNumber: "08031234567"}, "a1b2c3d4e5")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	assert.Contains(t, mail.sent["jane@fmw.gov"], "secret1")
	assert.Contains(t, mail.sent["ngozi@example.gov"], "a1b2c3d4e5")
	assert.Contains(t, sms.sent["08031234567"], "a1b2c3d4e5")
}

func TestDispatcherLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(&recordingEmail{err: errors.New("relay down")}, nil, zap.New(core), WithWorkers(1))
	d.UserCreated(&registry.User{ContactPersonEmail: "jane@fmw.gov"}, "pw")
	require.NoError(t, d.Close(context.Background()))

	entries := logs.FilterMessage("notification failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "email", entries[0].ContextMap()["channel"])
}

type blockingEmail struct{ release chan struct{} }

func (b *blockingEmail) Send(ctx context.Context, _, _, _ string) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcherDropsWhenSaturatedOrClosed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	blocker := &blockingEmail{release: make(chan struct{})}
	d := NewDispatcher(blocker, nil, zap.New(core), WithWorkers(1), WithQueueSize(1))

	for i := range 5 {
		d.UserCreated(&registry.User{ContactPersonEmail: string(rune('a'+i)) + "@x.gov"}, "pw")
	}
	assert.GreaterOrEqual(t, logs.FilterMessage("notification queue full, dropping").Len(), 3)

	close(blocker.release)
	require.NoError(t, d.Close(context.Background()))

	d.UserCreated(&registry.User{ContactPersonEmail: "late@x.gov"}, "pw")
	assert.Equal(t, 1, logs.FilterMessage("notification dropped after shutdown").Len())
	require.NoError(t, d.Close(context.Background()))
}
