// Package payment talks to the external payment processor: it opens hosted checkout
// sessions and verifies the signed outcome notifications the processor sends back.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	ErrTimeout     = errors.New("payment processor timed out")
	ErrUnavailable = errors.New("payment processor unavailable")
	ErrRejected    = errors.New("payment processor rejected the request")
)

// SessionRequest describes the hosted checkout to open.
type SessionRequest struct {
	IdempotencyKey string            `json:"-"`
	AmountCents    int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Description    string            `json:"description"`
	SuccessURL     string            `json:"successUrl"`
	CancelURL      string            `json:"cancelUrl"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Metadata       map[string]string `json:"metadata"`
}

// Session is the processor's answer: its reference and where to send the owner.
type Session struct {
	Ref         string `json:"sessionRef"`
	RedirectURL string `json:"redirectUrl"`
}

// IProcessor opens checkout sessions at the payment processor.
type IProcessor interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
}

type httpProcessor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProcessor returns a client for the processor's JSON API. Every call is bounded
// by timeout.
func NewHTTPProcessor(baseURL, apiKey string, timeout time.Duration) IProcessor {
	return &httpProcessor{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *httpProcessor) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/sessions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: reading response: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var session Session
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", ErrUnavailable, err)
	}
	if session.Ref == "" || session.RedirectURL == "" {
		return nil, fmt.Errorf("%w: response without session reference or redirect", ErrUnavailable)
	}
	return &session, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// loggingProcessor stands in for the processor when MOCK_SERVICES is on.
type loggingProcessor struct {
	checkoutURL string
}

// NewLoggingProcessor returns a processor that only logs and redirects to checkoutURL.
func NewLoggingProcessor(checkoutURL string) IProcessor {
	return &loggingProcessor{checkoutURL: checkoutURL}
}

func (p *loggingProcessor) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ref := "mock_" + req.IdempotencyKey
	log.Printf("--- MOCK PAYMENT SESSION ---\nRef: %s\nAmount: %d %s\nDescription: %s\nMetadata: %v\n----------------------------",
		ref, req.AmountCents, req.Currency, req.Description, req.Metadata)
	return &Session{
		Ref:         ref,
		RedirectURL: p.checkoutURL + "?session=" + url.QueryEscape(ref),
	}, nil
}
