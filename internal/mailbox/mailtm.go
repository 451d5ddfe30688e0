package mailbox

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/network"
)

const (
	mailTMProviderName = "mailtm"
	mailTMLocalLength  = 12
	mailTMListLimit    = 5
	// tokenSkew refreshes a bearer token slightly before it expires.
	tokenSkew = 30 * time.Second
)

// MailTM talks to the mail.tm hydra API.
type MailTM struct {
	baseURL string
	api     *apiClient
	logger  *zap.Logger
	now     func() time.Time
}

// NewMailTM creates a mail.tm provider rooted at baseURL.
func NewMailTM(baseURL string, client *network.ClientConfig, rps float64, logger *zap.Logger) *MailTM {
	return &MailTM{
		baseURL: strings.TrimRight(baseURL, "/"),
		api:     newAPIClient(client, rps),
		logger:  logger.Named(mailTMProviderName),
		now:     time.Now,
	}
}

func (m *MailTM) Name() string { return mailTMProviderName }

type hydraDomains struct {
	Members []struct {
		Domain   string `json:"domain"`
		IsActive *bool  `json:"isActive"`
	} `json:"hydra:member"`
}

type mailTMToken struct {
	Token string `json:"token"`
}

type hydraMessages struct {
	Members []struct {
		ID      string `json:"id"`
		Subject string `json:"subject"`
		From    struct {
			Address string `json:"address"`
		} `json:"from"`
	} `json:"hydra:member"`
}

type mailTMMessage struct {
	ID      string   `json:"id"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    []string `json:"html"`
}

func (m *MailTM) headers(mb *Mailbox) map[string]string {
	h := map[string]string{"Accept": "application/ld+json"}
	if mb != nil && mb.token != "" {
		h["Authorization"] = "Bearer " + mb.token
	}
	return h
}

// Create registers a fresh account on the first active domain and authenticates it.
func (m *MailTM) Create(ctx context.Context) (*Mailbox, error) {
	var domains hydraDomains
	if err := m.api.do(ctx, http.MethodGet, m.baseURL+"/domains", nil, m.headers(nil), &domains); err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	domain := ""
	for _, d := range domains.Members {
		if d.Domain != "" && (d.IsActive == nil || *d.IsActive) {
			domain = d.Domain
			break
		}
	}
	if domain == "" {
		return nil, fmt.Errorf("%w: mail.tm returned no active domains", ErrServiceUnavailable)
	}

	local, err := randomString(mailTMLocalLength, localAlphabet)
	if err != nil {
		return nil, fmt.Errorf("failed to generate address: %w", err)
	}
	password, err := randomString(16, localAlphabet)
	if err != nil {
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}
	mb := &Mailbox{
		Address:  local + "@" + domain,
		Provider: mailTMProviderName,
		password: password,
	}

	body := map[string]string{"address": mb.Address, "password": mb.password}
	if err := m.api.do(ctx, http.MethodPost, m.baseURL+"/accounts", body, m.headers(nil), nil, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", mb.Address, err)
	}
	if err := m.authenticate(ctx, mb); err != nil {
		return nil, err
	}

	m.logger.Info("Mailbox created.", zap.String("address", mb.Address))
	return mb, nil
}

// authenticate fetches a bearer token and records its expiry from the JWT exp claim.
func (m *MailTM) authenticate(ctx context.Context, mb *Mailbox) error {
	var tok mailTMToken
	body := map[string]string{"address": mb.Address, "password": mb.password}
	if err := m.api.do(ctx, http.MethodPost, m.baseURL+"/token", body, m.headers(nil), &tok, http.StatusOK); err != nil {
		return fmt.Errorf("failed to authenticate %s: %w", mb.Address, err)
	}
	if tok.Token == "" {
		return fmt.Errorf("%w: empty token for %s", ErrServiceUnavailable, mb.Address)
	}
	mb.token = tok.Token
	mb.tokenExpiry = tokenExpiry(tok.Token)
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// provider is the only party that checks it. Zero means unknown.
func tokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func (m *MailTM) ensureToken(ctx context.Context, mb *Mailbox) error {
	if mb.Provider != mailTMProviderName {
		return ErrUnknownMailbox
	}
	if mb.token != "" && (mb.tokenExpiry.IsZero() || m.now().Add(tokenSkew).Before(mb.tokenExpiry)) {
		return nil
	}
	m.logger.Debug("Refreshing bearer token.", zap.String("address", mb.Address))
	return m.authenticate(ctx, mb)
}

// List returns the newest messages, capped at five.
func (m *MailTM) List(ctx context.Context, mb *Mailbox) ([]MessageRef, error) {
	if err := m.ensureToken(ctx, mb); err != nil {
		return nil, err
	}
	var msgs hydraMessages
	if err := m.api.do(ctx, http.MethodGet, m.baseURL+"/messages", nil, m.headers(mb), &msgs); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	refs := make([]MessageRef, 0, len(msgs.Members))
	for i, msg := range msgs.Members {
		if i == mailTMListLimit {
			break
		}
		refs = append(refs, MessageRef{ID: msg.ID, From: msg.From.Address, Subject: msg.Subject})
	}
	return refs, nil
}

// Fetch returns one message, preferring the text part over HTML.
func (m *MailTM) Fetch(ctx context.Context, mb *Mailbox, id string) (*Message, error) {
	if err := m.ensureToken(ctx, mb); err != nil {
		return nil, err
	}
	var msg mailTMMessage
	endpoint := m.baseURL + "/messages/" + url.PathEscape(id)
	if err := m.api.do(ctx, http.MethodGet, endpoint, nil, m.headers(mb), &msg); err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	body := msg.Text
	if strings.TrimSpace(body) == "" && len(msg.HTML) > 0 {
		body = HTMLToText(strings.Join(msg.HTML, "\n"))
	}
	return &Message{ID: msg.ID, Subject: msg.Subject, Body: body}, nil
}
