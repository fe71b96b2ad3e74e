package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"echoauth/internal/callback"
	"echoauth/internal/tokenstore"
	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

// State is the authentication state of a Session.
type State int

const (
	// StateUnauthenticated means no TokenSet is held.
	StateUnauthenticated State = iota

	// StateAuthorizationPending means an authorization URL was issued and
	// the callback listener is open.
	StateAuthorizationPending

	// StateAuthenticated means a TokenSet is held.
	StateAuthenticated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizationPending:
		return "authorization_pending"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// TokenSaver persists a session's tokens. *tokenstore.Store implements it.
type TokenSaver interface {
	Save(key tokenstore.Key, tokens *oauth.TokenSet) error
}

// Options configures a Session.
type Options struct {
	Endpoints   oauth.ServiceEndpoints
	Credentials oauth.ClientCredentials

	// RedirectURI is served by the local callback listener during Login.
	RedirectURI string

	// Scopes are requested during Login.
	Scopes []string

	// ScopeDelimiter joins Scopes. Defaults to a single space.
	ScopeDelimiter string

	// RefreshPolicy decides what happens to the refresh token when a
	// refresh response omits it. Defaults to oauth.RefreshPolicyRetain.
	RefreshPolicy oauth.RefreshPolicy

	// ClientAuthMethod defaults to oauth.ClientSecretPost.
	ClientAuthMethod oauth.ClientAuthMethod

	// HTTPClient is used for token and resource requests. Resource requests
	// never follow redirects, whatever its CheckRedirect says.
	HTTPClient *http.Client

	// Store, if set, receives every new TokenSet.
	Store TokenSaver
}

// Session holds the current TokenSet for one client at one provider.
//
// A Session is safe for concurrent use. At most one code exchange or
// refresh is in flight at a time; concurrent Refresh calls share one token
// request.
type Session struct {
	endpoints   oauth.ServiceEndpoints
	credentials oauth.ClientCredentials
	redirectURI string
	scopes      []string
	delimiter   string
	policy      oauth.RefreshPolicy
	exchanger   *oauth.Exchanger
	httpClient  *http.Client
	client      *http.Client
	store       TokenSaver

	mu     sync.RWMutex
	tokens *oauth.TokenSet
	state  State

	flowMu       sync.Mutex
	refreshGroup singleflight.Group
}

// New creates an unauthenticated Session.
func New(opts Options) (*Session, error) {
	policy := opts.RefreshPolicy
	if policy == "" {
		policy = oauth.RefreshPolicyRetain
	}
	delimiter := opts.ScopeDelimiter
	if delimiter == "" {
		delimiter = oauth.DefaultScopeDelimiter
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: oauth.DefaultHTTPTimeout}
	}

	exchanger, err := oauth.NewExchanger(opts.Endpoints, opts.Credentials,
		oauth.WithHTTPClient(httpClient),
		oauth.WithLogger(logging.Logger("Exchanger")),
		oauth.WithClientAuthMethod(opts.ClientAuthMethod),
	)
	if err != nil {
		return nil, err
	}

	s := &Session{
		endpoints:   opts.Endpoints,
		credentials: opts.Credentials,
		redirectURI: opts.RedirectURI,
		scopes:      opts.Scopes,
		delimiter:   delimiter,
		policy:      policy,
		exchanger:   exchanger,
		httpClient:  httpClient,
		store:       opts.Store,
		state:       StateUnauthenticated,
	}
	// Redirects are returned, not followed; the bearer token must not reach
	// a host the resource server names.
	s.client = &http.Client{
		Transport:     &Transport{Session: s, Base: httpClient.Transport},
		CheckRedirect: noRedirects,
		Jar:           httpClient.Jar,
		Timeout:       httpClient.Timeout,
	}
	return s, nil
}

func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Key identifies the session in a token store.
func (s *Session) Key() tokenstore.Key {
	return tokenstore.Key{TokenURI: s.endpoints.TokenURI, ClientID: s.credentials.ClientID}
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Current returns the current TokenSet, or nil before the first exchange.
// The returned value is never modified.
func (s *Session) Current() *oauth.TokenSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// Resume installs a previously obtained TokenSet, typically one loaded from
// a token store, without contacting the provider.
func (s *Session) Resume(tokens *oauth.TokenSet) error {
	if tokens == nil || tokens.AccessToken == "" {
		return errors.New("cannot resume a session without an access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAuthorizationPending {
		return oauth.ErrFlowInProgress
	}
	s.tokens = tokens
	s.state = StateAuthenticated
	return nil
}

// LoginOptions configures one authorization flow.
type LoginOptions struct {
	// State overrides the generated state parameter.
	State string

	// Timeout bounds the wait for the callback. Defaults to callback.DefaultTimeout.
	Timeout time.Duration

	// OpenURL is handed the authorization URL once the listener is ready,
	// usually to print it and open a browser. An error is logged and the
	// flow keeps waiting, since the user can still open the URL manually.
	OpenURL func(authURL string) error

	// AuthParams are extra authorization request parameters such as prompt.
	AuthParams map[string]string
}

// Login runs the authorization code flow: it opens the callback listener,
// hands out the authorization URL, waits for the redirect and exchanges the
// code. On success the new TokenSet becomes current and is persisted.
//
// On failure the session keeps its previous tokens, including any a
// concurrent Refresh installed while the flow was pending.
func (s *Session) Login(ctx context.Context, opts LoginOptions) (tokens *oauth.TokenSet, err error) {
	s.mu.Lock()
	if s.state == StateAuthorizationPending {
		s.mu.Unlock()
		return nil, oauth.ErrFlowInProgress
	}
	s.state = StateAuthorizationPending
	s.mu.Unlock()

	defer func() {
		if err != nil {
			s.endPending()
		}
	}()

	flowID := uuid.New().String()

	state := opts.State
	if state == "" {
		if state, err = oauth.GenerateState(); err != nil {
			return nil, err
		}
	}

	listener, err := callback.Listen(s.redirectURI)
	if err != nil {
		return nil, err
	}
	redirectURI := listener.RedirectURI()

	authOpts := []oauth.AuthURLOption{oauth.WithScopeDelimiter(s.delimiter)}
	for key, value := range opts.AuthParams {
		authOpts = append(authOpts, oauth.WithAuthURLParam(key, value))
	}
	authURL, err := oauth.BuildAuthorizationURL(s.endpoints, s.credentials, oauth.AuthorizationRequest{
		RedirectURI: redirectURI,
		Scopes:      s.scopes,
		State:       state,
	}, authOpts...)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	logging.Info("Session", "Authorization flow %s waiting for callback on %s", flowID, listener.Addr())

	if opts.OpenURL != nil {
		if openErr := opts.OpenURL(authURL); openErr != nil {
			logging.Warn("Session", "Could not open authorization URL for flow %s: %v", flowID, openErr)
		}
	}

	result, err := listener.Wait(ctx, state, opts.Timeout)
	if err != nil {
		s.audit("authorization", "failure", flowID, err)
		return nil, fmt.Errorf("authorization callback: %w", err)
	}

	s.flowMu.Lock()
	tokens, err = s.exchanger.ExchangeCode(ctx, result, redirectURI)
	if err == nil {
		s.install(tokens)
		s.endPending()
	}
	s.flowMu.Unlock()
	if err != nil {
		s.audit("token_exchange", "failure", flowID, err)
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	s.audit("token_exchange", "success", flowID, nil)
	s.persist(tokens)
	return tokens, nil
}

// InitWithRefreshToken bootstraps the session from a refresh token obtained
// earlier, by refreshing immediately. The session must not hold tokens yet
// unless they are to be replaced.
func (s *Session) InitWithRefreshToken(ctx context.Context, refreshToken string) (*oauth.TokenSet, error) {
	if refreshToken == "" {
		return nil, oauth.ErrNoRefreshToken
	}
	if s.State() == StateAuthorizationPending {
		return nil, oauth.ErrFlowInProgress
	}
	return s.refresh(ctx, &oauth.TokenSet{RefreshToken: refreshToken})
}

// Refresh exchanges the current refresh token for a new TokenSet and makes
// it current. Requests issued after Refresh returns use the new access
// token; requests already in flight complete with the old one.
//
// Concurrent calls share one token request and its result. A caller whose
// ctx ends stops waiting; the shared request still completes and its
// tokens are installed for the others.
func (s *Session) Refresh(ctx context.Context) (*oauth.TokenSet, error) {
	current := s.Current()
	if current == nil {
		return nil, oauth.ErrNotAuthenticated
	}
	if !current.HasRefreshToken() {
		return nil, oauth.ErrNoRefreshToken
	}
	return s.refresh(ctx, current)
}

func (s *Session) refresh(ctx context.Context, base *oauth.TokenSet) (*oauth.TokenSet, error) {
	// The token request is shared, so no single caller's cancellation may
	// abort it. It is bounded by the HTTP client timeout instead.
	sharedCtx := context.WithoutCancel(ctx)

	ch := s.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		s.flowMu.Lock()
		defer s.flowMu.Unlock()

		// A refresh that completed while we waited for flowMu already
		// replaced base; its result is what this caller wants.
		if current := s.Current(); current != nil && base.AccessToken != "" && current != base {
			return current, nil
		}

		reqCtx := sharedCtx
		if s.httpClient.Timeout == 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(sharedCtx, oauth.DefaultHTTPTimeout)
			defer cancel()
		}

		flowID := uuid.New().String()
		next, err := s.exchanger.ExchangeRefreshToken(reqCtx, base.RefreshToken)
		if err != nil {
			s.audit("token_refresh", "failure", flowID, err)
			return nil, err
		}

		next = s.policy.Apply(base.RefreshToken, next)
		if base.AccessToken != "" && next.AccessToken == base.AccessToken {
			logging.Warn("Session", "Token endpoint returned the previous access token on refresh")
		}

		s.install(next)
		s.audit("token_refresh", "success", flowID, nil)
		s.persist(next)
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("token refresh: %w", res.Err)
		}
		if res.Shared {
			logging.Debug("Session", "Joined an in-flight token refresh")
		}
		return res.Val.(*oauth.TokenSet), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("token refresh: %w", ctx.Err())
	}
}

// install makes tokens current. A pending authorization flow stays pending;
// only Login ends it.
func (s *Session) install(tokens *oauth.TokenSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	if s.state != StateAuthorizationPending {
		s.state = StateAuthenticated
	}
}

// endPending leaves StateAuthorizationPending for the state the held tokens
// imply.
func (s *Session) endPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens != nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateUnauthenticated
	}
}

func (s *Session) persist(tokens *oauth.TokenSet) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.Key(), tokens); err != nil {
		logging.Error("Session", err, "Failed to persist tokens; the session stays usable in this process")
	}
}

func (s *Session) audit(action, outcome, flowID string, err error) {
	event := logging.AuditEvent{
		Action:  action,
		Outcome: outcome,
		FlowID:  flowID,
		Target:  s.endpoints.TokenURI,
	}
	if err != nil {
		event.Details = err.Error()
	}
	logging.Audit(event)
}
