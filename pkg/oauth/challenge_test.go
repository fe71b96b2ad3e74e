package oauth

import (
	"net/http"
	"testing"
)

func TestParseBearerChallenge(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *BearerChallenge
		wantErr bool
	}{
		{
			name:   "simple bearer",
			header: "Bearer",
			want: &BearerChallenge{
				Scheme: "Bearer",
			},
		},
		{
			name:   "bearer with realm",
			header: `Bearer realm="demo-echo"`,
			want: &BearerChallenge{
				Scheme: "Bearer",
				Realm:  "demo-echo",
			},
		},
		{
			name:   "invalid token",
			header: `Bearer error="invalid_token", error_description="The access token expired"`,
			want: &BearerChallenge{
				Scheme:           "Bearer",
				Error:            "invalid_token",
				ErrorDescription: "The access token expired",
			},
		},
		{
			name:   "insufficient scope",
			header: `Bearer realm="demo-echo", error="insufficient_scope", scope="auth-columbia create"`,
			want: &BearerChallenge{
				Scheme: "Bearer",
				Realm:  "demo-echo",
				Scope:  "auth-columbia create",
				Error:  "insufficient_scope",
			},
		},
		{
			name:   "escaped quote in description",
			header: `Bearer error="invalid_request", error_description="missing \"Authorization\""`,
			want: &BearerChallenge{
				Scheme:           "Bearer",
				Error:            "invalid_request",
				ErrorDescription: `missing "Authorization"`,
			},
		},
		{
			name:    "empty header",
			header:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearerChallenge(tt.header)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseBearerChallenge() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}

			if *got != *tt.want {
				t.Errorf("ParseBearerChallenge() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestChallengeFromResponse(t *testing.T) {
	header := http.Header{}
	header.Set("WWW-Authenticate", `Bearer error="invalid_token"`)

	if c := ChallengeFromResponse(http.StatusUnauthorized, header); !c.IsInvalidToken() {
		t.Errorf("expected invalid_token challenge for 401, got %+v", c)
	}

	header.Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
	if c := ChallengeFromResponse(http.StatusForbidden, header); !c.IsInsufficientScope() {
		t.Errorf("expected insufficient_scope challenge for 403, got %+v", c)
	}

	if c := ChallengeFromResponse(http.StatusOK, header); c != nil {
		t.Errorf("expected nil challenge for 200, got %+v", c)
	}

	if c := ChallengeFromResponse(http.StatusUnauthorized, http.Header{}); c != nil {
		t.Errorf("expected nil challenge without header, got %+v", c)
	}
}
