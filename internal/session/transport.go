package session

import (
	"net/http"

	"golang.org/x/oauth2"

	"echoauth/pkg/oauth"
)

// Transport is an http.RoundTripper that attaches the session's current
// access token to every request as an Authorization: Bearer header.
//
// The token is read when the request is sent, so a refresh is visible to
// the next request. Responses, including 401 and 403, are returned as-is.
type Transport struct {
	Session *Session

	// Base is the underlying RoundTripper. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tokens := t.Session.Current()
	if tokens == nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, oauth.ErrNotAuthenticated
	}

	// RoundTrippers must not modify the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", tokens.AuthorizationHeader())
	return t.base().RoundTrip(authed)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// Client returns an *http.Client whose requests carry the session's
// current access token.
func (s *Session) Client() *http.Client {
	return s.client
}

// TokenSource returns an oauth2.TokenSource reporting the session's current
// token. It does not refresh; call Refresh for that.
func (s *Session) TokenSource() oauth2.TokenSource {
	return tokenSource{session: s}
}

type tokenSource struct {
	session *Session
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	tokens := ts.session.Current()
	if tokens == nil {
		return nil, oauth.ErrNotAuthenticated
	}
	return tokens.OAuth2Token(), nil
}
