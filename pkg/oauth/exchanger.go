package oauth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHTTPTimeout is the default timeout for token endpoint requests.
	DefaultHTTPTimeout = 30 * time.Second

	// maxTokenResponseBytes bounds how much of a token response is read.
	maxTokenResponseBytes = 1 << 20
)

// Exchanger performs token endpoint requests for one registered client.
//
// An Exchanger never retries. A request that failed before any response was
// received may be retried by the caller; one that received an error response
// must not be, since authorization codes are single-use.
type Exchanger struct {
	endpoints     ServiceEndpoints
	credentials   ClientCredentials
	httpClient    *http.Client
	logger        *slog.Logger
	authMethod    ClientAuthMethod
	refreshScopes []string
	now           func() time.Time
}

// ExchangerOption configures an Exchanger.
type ExchangerOption func(*Exchanger)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ExchangerOption {
	return func(e *Exchanger) {
		if httpClient != nil {
			e.httpClient = httpClient
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ExchangerOption {
	return func(e *Exchanger) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClientAuthMethod selects how client credentials are sent.
func WithClientAuthMethod(method ClientAuthMethod) ExchangerOption {
	return func(e *Exchanger) {
		if method != "" {
			e.authMethod = method
		}
	}
}

// WithRefreshScopes re-requests scopes on refresh. By default the scope
// parameter is omitted and the provider keeps the originally granted scope.
func WithRefreshScopes(scopes []string) ExchangerOption {
	return func(e *Exchanger) {
		e.refreshScopes = scopes
	}
}

// NewExchanger creates an Exchanger for the given provider and client.
func NewExchanger(endpoints ServiceEndpoints, creds ClientCredentials, opts ...ExchangerOption) (*Exchanger, error) {
	if _, err := parseAbsoluteURL("token_uri", endpoints.TokenURI); err != nil {
		return nil, err
	}
	if creds.ClientID == "" {
		return nil, &ConfigError{Field: "client_id", Reason: "must not be empty"}
	}

	e := &Exchanger{
		endpoints:   endpoints,
		credentials: creds,
		httpClient:  &http.Client{Timeout: DefaultHTTPTimeout},
		logger:      slog.Default(),
		authMethod:  ClientSecretPost,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ExchangeCode exchanges an authorization code for tokens. redirectURI must
// be the value sent in the authorization request.
func (e *Exchanger) ExchangeCode(ctx context.Context, result AuthorizationResult, redirectURI string) (*TokenSet, error) {
	if result.Code == "" {
		return nil, errors.New("authorization code is empty")
	}
	if redirectURI == "" {
		return nil, &ConfigError{Field: "redirect_uri", Reason: "must not be empty"}
	}

	data := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {result.Code},
		"redirect_uri": {redirectURI},
	}
	return e.doTokenRequest(ctx, data)
}

// ExchangeRefreshToken obtains a new TokenSet using a refresh token.
//
// The returned set carries a refresh token only if the provider sent one;
// applying a RefreshPolicy is up to the caller.
func (e *Exchanger) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	if scope := JoinScopes(e.refreshScopes, DefaultScopeDelimiter); scope != "" {
		data.Set("scope", scope)
	}
	return e.doTokenRequest(ctx, data)
}

// doTokenRequest performs a token endpoint request.
func (e *Exchanger) doTokenRequest(ctx context.Context, data url.Values) (*TokenSet, error) {
	grantType := data.Get("grant_type")

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	header.Set("Accept", "application/json")

	switch e.authMethod {
	case ClientSecretBasic:
		// RFC 6749 section 2.3.1: both parts are form-urlencoded before Basic encoding.
		userinfo := url.QueryEscape(e.credentials.ClientID) + ":" + url.QueryEscape(e.credentials.ClientSecret.Value())
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(userinfo)))
	default:
		data.Set("client_id", e.credentials.ClientID)
		if !e.credentials.ClientSecret.IsEmpty() {
			data.Set("client_secret", e.credentials.ClientSecret.Value())
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoints.TokenURI, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header = header

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serverErr := &AuthServerError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
		var errBody struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &errBody) == nil {
			serverErr.Code = errBody.Error
			serverErr.Description = errBody.ErrorDescription
		}
		e.logger.Debug("Token request rejected",
			"grant_type", grantType,
			"status", resp.StatusCode,
			"error", serverErr.Code)
		return nil, serverErr
	}

	tokens, err := e.parseTokenResponse(body)
	if err != nil {
		e.logger.Debug("Token response unusable",
			"grant_type", grantType,
			"status", resp.StatusCode,
			"error", err.Error())
		return nil, err
	}

	e.logger.Debug("Token request succeeded",
		"grant_type", grantType,
		"expires_in", tokens.ExpiresIn,
		"has_refresh_token", tokens.HasRefreshToken())
	return tokens, nil
}

// tokenResponse is the RFC 6749 section 5.1 response body.
type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    expiresIn `json:"expires_in"`
	RefreshToken string    `json:"refresh_token"`
	Scope        string    `json:"scope"`
	IDToken      string    `json:"id_token"`
}

func (e *Exchanger) parseTokenResponse(body []byte) (*TokenSet, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedResponseError{Reason: "token response is not valid JSON", Err: err}
	}
	if resp.AccessToken == "" {
		return nil, &MalformedResponseError{Reason: "token response lacks access_token"}
	}

	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	} else if !strings.EqualFold(tokenType, DefaultTokenType) {
		e.logger.Warn("Token endpoint returned a non-Bearer token type",
			"token_type", tokenType)
	}

	return &TokenSet{
		AccessToken:  resp.AccessToken,
		TokenType:    tokenType,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    int(resp.ExpiresIn),
		Scope:        resp.Scope,
		IDToken:      resp.IDToken,
		ObtainedAt:   e.now(),
	}, nil
}

// expiresIn accepts expires_in as a JSON number or a numeric string; some
// providers send the latter.
type expiresIn int

func (v *expiresIn) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		data = []byte(s)
	}
	n, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("expires_in: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("expires_in: negative lifetime %v", n)
	}
	*v = expiresIn(n)
	return nil
}
