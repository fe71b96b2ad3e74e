package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// BearerChallenge is a parsed WWW-Authenticate header (RFC 6750 section 3).
// Resource servers send it with 401 and 403 responses to say why a bearer
// token was rejected.
type BearerChallenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string
}

// IsInvalidToken reports whether the resource server rejected the token
// itself (expired, revoked or malformed), as opposed to its scope.
func (c *BearerChallenge) IsInvalidToken() bool {
	return c != nil && c.Error == "invalid_token"
}

// IsInsufficientScope reports whether the token lacks a required scope.
func (c *BearerChallenge) IsInsufficientScope() bool {
	return c != nil && c.Error == "insufficient_scope"
}

var authParamPattern = regexp.MustCompile(`([A-Za-z0-9_\-]+)\s*=\s*"((?:[^"\\]|\\.)*)"`)

// ParseBearerChallenge parses a WWW-Authenticate header value.
//
// Example headers:
//
//	Bearer realm="example"
//	Bearer error="invalid_token", error_description="The access token expired"
//	Bearer error="insufficient_scope", scope="create"
func ParseBearerChallenge(header string) (*BearerChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	scheme, params, _ := strings.Cut(header, " ")
	challenge := &BearerChallenge{Scheme: scheme}

	for _, match := range authParamPattern.FindAllStringSubmatch(params, -1) {
		value := strings.ReplaceAll(match[2], `\"`, `"`)
		switch strings.ToLower(match[1]) {
		case "realm":
			challenge.Realm = value
		case "scope":
			challenge.Scope = value
		case "error":
			challenge.Error = value
		case "error_description":
			challenge.ErrorDescription = value
		}
	}

	return challenge, nil
}

// ChallengeFromResponse extracts the bearer challenge from a 401 or 403
// response. Returns nil if there is none or it cannot be parsed.
func ChallengeFromResponse(statusCode int, header http.Header) *BearerChallenge {
	if statusCode != http.StatusUnauthorized && statusCode != http.StatusForbidden {
		return nil
	}
	value := header.Get("WWW-Authenticate")
	if value == "" {
		return nil
	}
	challenge, err := ParseBearerChallenge(value)
	if err != nil {
		return nil
	}
	return challenge
}
