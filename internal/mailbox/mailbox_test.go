package mailbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/registrar/internal/network"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// httptest servers and keep-alive transports park these until process exit.
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func testClient(timeout time.Duration) *network.ClientConfig {
	cfg := network.NewDefaultClientConfig()
	cfg.RequestTimeout = timeout
	return cfg
}

// -- mail.tm --

type mailTMServer struct {
	*httptest.Server
	tokenCalls atomic.Int32
	mu         sync.Mutex
	accounts   []string
	expiry     time.Time
}

func newMailTMServer(t *testing.T) *mailTMServer {
	t.Helper()
	s := &mailTMServer{expiry: time.Now().Add(time.Hour)}
	mux := http.NewServeMux()
	mux.HandleFunc("/domains", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"hydra:member":[{"domain":"old.test","isActive":false},{"domain":"mail.test","isActive":true}]}`)
	})
	mux.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		s.mu.Lock()
		s.accounts = append(s.accounts, body["address"])
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"acc-1"}`)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls.Add(1)
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": s.expiry.Unix()}).SignedString([]byte("test-key"))
		assert.NoError(t, err)
		_, _ = io.WriteString(w, `{"token":"`+tok+`","id":"acc-1"}`)
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"hydra:member":[
			{"id":"m1","subject":"Welcome","from":{"address":"hello@site.test"}},
			{"id":"m2","subject":"a"},{"id":"m3","subject":"b"},{"id":"m4","subject":"c"},
			{"id":"m5","subject":"d"},{"id":"m6","subject":"e"}]}`)
	})
	mux.HandleFunc("/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"m1","subject":"Welcome","text":"","html":["<p>Your code is <b>482913</b></p><style>.x{}</style>"]}`)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestMailTM(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an account on the first active domain", func(t *testing.T) {
		srv := newMailTMServer(t)
		p := NewMailTM(srv.URL, testClient(5*time.Second), 100, zaptest.NewLogger(t))

		mb, err := p.Create(ctx)
		require.NoError(t, err)

		assert.Equal(t, "mailtm", mb.Provider)
		assert.Regexp(t, `^[a-z0-9]{12}@mail\.test$`, mb.Address)
		assert.Equal(t, []string{mb.Address}, srv.accounts)
		assert.NotEmpty(t, mb.token)
		assert.WithinDuration(t, srv.expiry, mb.tokenExpiry, time.Second)
	})

	t.Run("lists at most five messages and fetches html as text", func(t *testing.T) {
		srv := newMailTMServer(t)
		p := NewMailTM(srv.URL, testClient(5*time.Second), 100, zaptest.NewLogger(t))
		mb, err := p.Create(ctx)
		require.NoError(t, err)

		refs, err := p.List(ctx, mb)
		require.NoError(t, err)
		assert.Len(t, refs, 5)
		assert.Equal(t, MessageRef{ID: "m1", From: "hello@site.test", Subject: "Welcome"}, refs[0])

		msg, err := p.Fetch(ctx, mb, "m1")
		require.NoError(t, err)
		assert.Equal(t, "Your code is 482913", msg.Body)
	})

	t.Run("re-authenticates when the token is about to expire", func(t *testing.T) {
		srv := newMailTMServer(t)
		p := NewMailTM(srv.URL, testClient(5*time.Second), 100, zaptest.NewLogger(t))
		mb, err := p.Create(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 1, srv.tokenCalls.Load())

		p.now = func() time.Time { return srv.expiry.Add(-10 * time.Second) }
		_, err = p.List(ctx, mb)
		require.NoError(t, err)
		assert.EqualValues(t, 2, srv.tokenCalls.Load())
	})

	t.Run("calls go through the configured proxy", func(t *testing.T) {
		srv := newMailTMServer(t)
		client := testClient(5 * time.Second)
		client.ProxyURL, _ = url.Parse(srv.URL)
		p := NewMailTM("http://api.mail.invalid", client, 100, zaptest.NewLogger(t))

		mb, err := p.Create(ctx)
		require.NoError(t, err)
		assert.Regexp(t, `@mail\.test$`, mb.Address)
	})

	t.Run("rejects mailboxes from other providers", func(t *testing.T) {
		p := NewMailTM("http://unused.invalid", testClient(time.Second), 100, zap.NewNop())
		_, err := p.List(ctx, &Mailbox{Provider: "guerrilla"})
		assert.ErrorIs(t, err, ErrUnknownMailbox)
	})

	t.Run("server errors are service unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()
		p := NewMailTM(srv.URL, testClient(time.Second), 100, zap.NewNop())

		_, err := p.Create(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceUnavailable)
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Code)
	})
}

// -- guerrillamail --

func brotliJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	_, err := bw.Write([]byte(body))
	assert.NoError(t, err)
	assert.NoError(t, bw.Close())
	w.Header().Set("Content-Encoding", "br")
	_, _ = w.Write(buf.Bytes())
}

func newGuerrillaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("f") {
		case "get_email_address":
			brotliJSON(t, w, `{"email_addr":"abc@guerrillamailblock.com","sid_token":"sid-1"}`)
		case "check_email":
			assert.Equal(t, "sid-1", q.Get("sid_token"))
			_, _ = io.WriteString(w, `{"list":[
				{"mail_id":1,"mail_from":"no-reply@guerrillamail.com","mail_subject":"Welcome"},
				{"mail_id":"42","mail_from":"otp@site.test","mail_subject":"Your OTP"}]}`)
		case "fetch_email":
			assert.Equal(t, "42", q.Get("email_id"))
			_, _ = io.WriteString(w, `{"mail_id":42,"mail_subject":"Your OTP","mail_body":"<div>OTP: 7731</div>"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGuerrilla(t *testing.T) {
	ctx := context.Background()
	srv := newGuerrillaServer(t)
	p := NewGuerrilla(srv.URL, testClient(5*time.Second), 100, zaptest.NewLogger(t))

	mb, err := p.Create(ctx)
	require.NoError(t, err, "brotli-encoded responses must decode")
	assert.Equal(t, "abc@guerrillamailblock.com", mb.Address)
	assert.Equal(t, "guerrilla", mb.Provider)

	refs, err := p.List(ctx, mb)
	require.NoError(t, err)
	require.Len(t, refs, 1, "the provider's welcome mail is skipped")
	assert.Equal(t, "42", refs[0].ID)

	msg, err := p.Fetch(ctx, mb, "42")
	require.NoError(t, err)
	assert.Equal(t, "OTP: 7731", msg.Body)

	code, ok := ExtractOTP(msg.Subject, msg.Body)
	assert.True(t, ok)
	assert.Equal(t, "7731", code)
}

// -- chain --

// stubProvider is a scriptable Provider.
type stubProvider struct {
	name      string
	createErr error

	mu       sync.Mutex
	lists    [][]MessageRef
	listErrs []error
	messages map[string]*Message
	listCall int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Create(ctx context.Context) (*Mailbox, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &Mailbox{Address: "box@" + s.name + ".test", Provider: s.name}, nil
}

func (s *stubProvider) List(ctx context.Context, mb *Mailbox) ([]MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.listCall
	s.listCall++
	if i < len(s.listErrs) && s.listErrs[i] != nil {
		return nil, s.listErrs[i]
	}
	if len(s.lists) == 0 {
		return nil, nil
	}
	if i >= len(s.lists) {
		i = len(s.lists) - 1
	}
	return s.lists[i], nil
}

func (s *stubProvider) Fetch(ctx context.Context, mb *Mailbox, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, errors.New("no such message")
	}
	return m, nil
}

func (s *stubProvider) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCall
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to the next provider and routes reads to the owner", func(t *testing.T) {
		primary := &stubProvider{name: "mailtm", createErr: ErrServiceUnavailable}
		fallback := &stubProvider{name: "guerrilla", lists: [][]MessageRef{{{ID: "1"}}}}
		chain := NewChain(zaptest.NewLogger(t), primary, fallback)

		mb, err := chain.Create(ctx)
		require.NoError(t, err)
		assert.Equal(t, "guerrilla", mb.Provider)

		refs, err := chain.List(ctx, mb)
		require.NoError(t, err)
		assert.Len(t, refs, 1)
		assert.Equal(t, 0, primary.calls())
	})

	t.Run("all providers failing is service unavailable", func(t *testing.T) {
		chain := NewChain(zap.NewNop(),
			&stubProvider{name: "a", createErr: errors.New("a down")},
			&stubProvider{name: "b", createErr: errors.New("b down")},
		)
		_, err := chain.Create(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceUnavailable)
		assert.Contains(t, err.Error(), "a down")
		assert.Contains(t, err.Error(), "b down")
	})

	t.Run("unknown mailbox owner", func(t *testing.T) {
		chain := NewChain(zap.NewNop(), &stubProvider{name: "a"})
		_, err := chain.Fetch(ctx, &Mailbox{Provider: "zzz"}, "1")
		assert.ErrorIs(t, err, ErrUnknownMailbox)
	})
}

// -- poller --

func TestPoller(t *testing.T) {
	mb := &Mailbox{Address: "box@stub.test", Provider: "stub"}

	t.Run("returns the first code once it arrives, skipping seen messages", func(t *testing.T) {
		p := &stubProvider{
			name:     "stub",
			lists:    [][]MessageRef{{{ID: "w"}}, {{ID: "w"}}, {{ID: "w"}, {ID: "otp"}}},
			listErrs: []error{nil, errors.New("transient")},
			messages: map[string]*Message{
				"w":   {ID: "w", Subject: "Welcome", Body: "Thanks for joining"},
				"otp": {ID: "otp", Subject: "Verify", Body: "Your verification code is 55121"},
			},
		}
		poller := NewPoller(p, nil, 5*time.Millisecond, zaptest.NewLogger(t))

		code, err := poller.WaitForOTP(context.Background(), mb, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "55121", code)
		assert.GreaterOrEqual(t, p.calls(), 3)
	})

	t.Run("times out with ErrOTPTimeout", func(t *testing.T) {
		p := &stubProvider{name: "stub"}
		poller := NewPoller(p, nil, 5*time.Millisecond, zap.NewNop())

		_, err := poller.WaitForOTP(context.Background(), mb, 30*time.Millisecond)
		assert.ErrorIs(t, err, ErrOTPTimeout)
	})

	t.Run("honours run cancellation", func(t *testing.T) {
		p := &stubProvider{name: "stub"}
		poller := NewPoller(p, nil, 5*time.Millisecond, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		_, err := poller.WaitForOTP(ctx, mb, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("provision delegates to the provider", func(t *testing.T) {
		poller := NewPoller(&stubProvider{name: "stub"}, nil, time.Second, zap.NewNop())
		got, err := poller.Provision(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "box@stub.test", got.Address)
	})
}
