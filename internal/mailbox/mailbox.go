// Package mailbox provisions disposable inboxes and extracts one-time codes
// from the mail they receive.
package mailbox

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

var (
	// ErrServiceUnavailable wraps any provider API failure.
	ErrServiceUnavailable = errors.New("mail service unavailable")
	// ErrOTPTimeout means no code arrived before the wait elapsed.
	ErrOTPTimeout = errors.New("timed out waiting for OTP")
	// ErrUnknownMailbox means a mailbox was handed to a provider that does not own it.
	ErrUnknownMailbox = errors.New("mailbox not owned by provider")
)

// Mailbox is a provisioned disposable address plus the provider state needed to read it.
type Mailbox struct {
	Address  string
	Provider string

	password    string
	token       string
	tokenExpiry time.Time
	sid         string
}

// MessageRef identifies a message in a listing.
type MessageRef struct {
	ID      string
	From    string
	Subject string
}

// Message is a fetched message reduced to plain text.
type Message struct {
	ID      string
	Subject string
	Body    string
}

// Provider is the minimal contract every disposable mail service satisfies.
type Provider interface {
	Name() string
	Create(ctx context.Context) (*Mailbox, error)
	List(ctx context.Context, mb *Mailbox) ([]MessageRef, error)
	Fetch(ctx context.Context, mb *Mailbox, id string) (*Message, error)
}

const localAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomString draws n characters from alphabet using crypto/rand.
func randomString(n int, alphabet string) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(alphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
