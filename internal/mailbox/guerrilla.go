package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/network"
)

const guerrillaProviderName = "guerrilla"

// Guerrilla talks to the guerrillamail ajax API.
type Guerrilla struct {
	endpoint string
	api      *apiClient
	logger   *zap.Logger
}

// NewGuerrilla creates a guerrillamail provider; endpoint is the ajax.php URL.
func NewGuerrilla(endpoint string, client *network.ClientConfig, rps float64, logger *zap.Logger) *Guerrilla {
	return &Guerrilla{
		endpoint: endpoint,
		api:      newAPIClient(client, rps),
		logger:   logger.Named(guerrillaProviderName),
	}
}

func (g *Guerrilla) Name() string { return guerrillaProviderName }

// flexString accepts both JSON strings and numbers; the API is not consistent about ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

type guerrillaAddress struct {
	Address string `json:"email_addr"`
	SID     string `json:"sid_token"`
}

type guerrillaList struct {
	List []struct {
		ID      flexString `json:"mail_id"`
		From    string     `json:"mail_from"`
		Subject string     `json:"mail_subject"`
	} `json:"list"`
}

type guerrillaMail struct {
	ID      flexString `json:"mail_id"`
	Subject string     `json:"mail_subject"`
	Body    string     `json:"mail_body"`
}

func (g *Guerrilla) call(ctx context.Context, params url.Values, out interface{}) error {
	u := g.endpoint + "?" + params.Encode()
	return g.api.do(ctx, http.MethodGet, u, nil, nil, out)
}

// Create requests a new address and session token.
func (g *Guerrilla) Create(ctx context.Context) (*Mailbox, error) {
	var addr guerrillaAddress
	if err := g.call(ctx, url.Values{"f": {"get_email_address"}, "lang": {"en"}}, &addr); err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	if addr.Address == "" || addr.SID == "" {
		return nil, fmt.Errorf("%w: guerrillamail returned an incomplete address", ErrServiceUnavailable)
	}
	g.logger.Info("Mailbox created.", zap.String("address", addr.Address))
	return &Mailbox{Address: addr.Address, Provider: guerrillaProviderName, sid: addr.SID}, nil
}

// List returns inbox messages, skipping the provider's own welcome mail.
func (g *Guerrilla) List(ctx context.Context, mb *Mailbox) ([]MessageRef, error) {
	if mb.Provider != guerrillaProviderName {
		return nil, ErrUnknownMailbox
	}
	var list guerrillaList
	params := url.Values{"f": {"check_email"}, "seq": {"0"}, "sid_token": {mb.sid}}
	if err := g.call(ctx, params, &list); err != nil {
		return nil, fmt.Errorf("failed to check inbox: %w", err)
	}
	refs := make([]MessageRef, 0, len(list.List))
	for _, m := range list.List {
		if strings.HasSuffix(strings.ToLower(m.From), "@guerrillamail.com") {
			continue
		}
		refs = append(refs, MessageRef{ID: string(m.ID), From: m.From, Subject: m.Subject})
	}
	return refs, nil
}

// Fetch returns one message with its HTML body reduced to text.
func (g *Guerrilla) Fetch(ctx context.Context, mb *Mailbox, id string) (*Message, error) {
	if mb.Provider != guerrillaProviderName {
		return nil, ErrUnknownMailbox
	}
	var mail guerrillaMail
	params := url.Values{"f": {"fetch_email"}, "email_id": {id}, "sid_token": {mb.sid}}
	if err := g.call(ctx, params, &mail); err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	return &Message{ID: id, Subject: mail.Subject, Body: HTMLToText(mail.Body)}, nil
}
