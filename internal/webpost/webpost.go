// Package webpost performs the authenticated HTTP POST that delivers an
// envelope to the collection server, in sync and async forms. Grounded on
// internal/worker/retry_client.go's http.Client wrapping, adapted to
// spec.md's single-challenge basic-auth contract: credentials are supplied
// once up front (net/http's Request.SetBasicAuth), and a second challenge
// from the server is a hard failure rather than a retry target.
package webpost

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusError carries the URI, status code, and server-provided reason
// phrase for a non-200 response, per spec.md §4.3.
type StatusError struct {
	URI        string
	StatusCode int
	Reason     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("could not access URI %q: HTTP status code %d, reason: %s",
		e.URI, e.StatusCode, e.Reason)
}

// Poster is the capability interface spec.md §9 calls for ("four
// function pointers... exist to enable tests" — expressed here as two
// methods, sync and async, on a small interface with a production
// implementation and test doubles).
type Poster interface {
	PostSync(ctx context.Context, uri, body, username, password string) error
	PostAsync(ctx context.Context, uri, body, username, password string, completion func(error))
}

// HTTPPoster is the production Poster backed by net/http.
type HTTPPoster struct {
	Client *http.Client
}

// NewHTTPPoster returns an HTTPPoster using http.DefaultClient if client is nil.
func NewHTTPPoster(client *http.Client) *HTTPPoster {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPoster{Client: client}
}

// PostSync performs the POST and blocks until it completes or ctx is done.
// Contract (spec.md §4.3): Content-Type
// application/x-www-form-urlencoded, Accept application/json, HTTP Basic
// auth supplied once, success iff status == 200.
func (p *HTTPPoster) PostSync(ctx context.Context, uri, body, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader([]byte(body)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(username, password)

	resp, err := p.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("posting to %s: %w", uri, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{
			URI:        uri,
			StatusCode: resp.StatusCode,
			Reason:     resp.Status,
		}
	}
	return nil
}

// PostAsync runs PostSync on its own goroutine and invokes completion
// exactly once with the result, matching spec.md §5's "async with
// completion callback" operation class.
func (p *HTTPPoster) PostAsync(ctx context.Context, uri, body, username, password string, completion func(error)) {
	go func() {
		err := p.PostSync(ctx, uri, body, username, password)
		if completion != nil {
			completion(err)
		}
	}()
}

const maxDrainBytes = 64 * 1024
