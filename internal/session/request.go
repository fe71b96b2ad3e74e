package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

// Request is an authenticated resource request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the resource server's answer, unmodified.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// Challenge is the parsed WWW-Authenticate header of a 401 or 403
	// response, nil otherwise.
	Challenge *oauth.BearerChallenge
}

// Do sends req with the current access token attached. Any Authorization
// header in req is replaced.
//
// Do returns oauth.ErrNotAuthenticated when the session holds no tokens and
// transport errors as they occur. Every HTTP response is returned, whatever
// its status; a 401 is not retried or refreshed.
func (s *Session) Do(ctx context.Context, req Request) (*Response, error) {
	tokens := s.Current()
	if tokens == nil {
		return nil, oauth.ErrNotAuthenticated
	}
	if tokens.IsExpired(0) {
		logging.Debug("Session", "Access token expired at %s; sending request anyway",
			tokens.ExpiresAt().Format("15:04:05"))
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logging.Debug("Session", "%s %s returned %d", method, req.URL, resp.StatusCode)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
		Challenge:  oauth.ChallengeFromResponse(resp.StatusCode, resp.Header),
	}, nil
}

// Get sends an authenticated GET request.
func (s *Session) Get(ctx context.Context, url string) (*Response, error) {
	return s.Do(ctx, Request{Method: http.MethodGet, URL: url})
}

// Post sends an authenticated POST request with the given content type.
func (s *Session) Post(ctx context.Context, url, contentType string, body []byte) (*Response, error) {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return s.Do(ctx, Request{Method: http.MethodPost, URL: url, Header: header, Body: body})
}
