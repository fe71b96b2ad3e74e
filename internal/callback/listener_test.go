package callback

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoauth/pkg/oauth"
)

const testState = "xyz123"

type waitOutcome struct {
	result oauth.AuthorizationResult
	err    error
}

func startWait(ctx context.Context, l *Listener, state string, timeout time.Duration) <-chan waitOutcome {
	out := make(chan waitOutcome, 1)
	go func() {
		result, err := l.Wait(ctx, state, timeout)
		out <- waitOutcome{result: result, err: err}
	}()
	return out
}

func receive(t *testing.T, out <-chan waitOutcome) waitOutcome {
	t.Helper()
	select {
	case o := <-out:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
		return waitOutcome{}
	}
}

func get(t *testing.T, rawURL string) (int, string, http.Header) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(rawURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func newListener(t *testing.T) *Listener {
	t.Helper()
	l, err := Listen("http://127.0.0.1:0/cb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func assertPortReleased(t *testing.T, addr string) {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err, "port %s should be free again", addr)
	_ = ln.Close()
}

func TestListen_EffectiveRedirectURI(t *testing.T) {
	l := newListener(t)

	assert.True(t, strings.HasPrefix(l.RedirectURI(), "http://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(l.RedirectURI(), "/cb"))
	assert.NotContains(t, l.RedirectURI(), ":0/")

	_, port, err := net.SplitHostPort(l.Addr())
	require.NoError(t, err)
	assert.Contains(t, l.RedirectURI(), ":"+port+"/cb")
}

func TestListen_RejectsUnservableRedirectURIs(t *testing.T) {
	tests := []struct {
		name        string
		redirectURI string
	}{
		{"empty", ""},
		{"relative", "/cb"},
		{"https", "https://127.0.0.1:0/cb"},
		{"remote host", "http://example.com:0/cb"},
		{"private address", "http://10.0.0.5:0/cb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := Listen(tt.redirectURI)
			assert.Nil(t, l)

			var cfgErr *oauth.ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %v", err)
			assert.Equal(t, "redirect_uri", cfgErr.Field)
		})
	}
}

func TestListen_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	_, err = Listen("http://" + busy.Addr().String() + "/cb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start callback listener")
}

func TestWait_MatchingState(t *testing.T) {
	l := newListener(t)
	out := startWait(context.Background(), l, testState, 5*time.Second)

	status, body, header := get(t, l.RedirectURI()+"?code=abc&state=xyz123")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Authorization complete")
	assert.Equal(t, "nosniff", header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", header.Get("Cache-Control"))
	assert.Equal(t, "text/html; charset=utf-8", header.Get("Content-Type"))

	o := receive(t, out)
	require.NoError(t, o.err)
	assert.Equal(t, oauth.AuthorizationResult{Code: "abc", State: "xyz123"}, o.result)
	assertPortReleased(t, l.Addr())
}

func TestWait_StateMismatch(t *testing.T) {
	for _, query := range []string{"?code=abc&state=wrong", "?code=abc", "?code=abc&state=xyz1234"} {
		t.Run(query, func(t *testing.T) {
			l := newListener(t)
			out := startWait(context.Background(), l, testState, 5*time.Second)

			status, body, _ := get(t, l.RedirectURI()+query)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, body, "could not be verified")
			assert.NotContains(t, body, "abc")

			o := receive(t, out)
			var mismatch *oauth.StateMismatchError
			require.True(t, errors.As(o.err, &mismatch), "expected StateMismatchError, got %v", o.err)
			assert.Equal(t, oauth.AuthorizationResult{}, o.result)
			assertPortReleased(t, l.Addr())
		})
	}
}

func TestWait_ProviderError(t *testing.T) {
	l := newListener(t)
	out := startWait(context.Background(), l, testState, 5*time.Second)

	status, body, _ := get(t, l.RedirectURI()+"?error=access_denied&error_description=User+declined&state=xyz123")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "access_denied")
	assert.Contains(t, body, "User declined")

	o := receive(t, out)
	var denied *oauth.AuthorizationDeniedError
	require.True(t, errors.As(o.err, &denied))
	assert.Equal(t, "access_denied", denied.Code)
	assert.Equal(t, "User declined", denied.Description)
	assert.True(t, oauth.IsRecoverable(o.err))
}

func TestWait_ProviderErrorWithWrongState(t *testing.T) {
	l := newListener(t)
	out := startWait(context.Background(), l, testState, 5*time.Second)

	get(t, l.RedirectURI()+"?error=access_denied&state=forged")

	o := receive(t, out)
	var mismatch *oauth.StateMismatchError
	assert.True(t, errors.As(o.err, &mismatch))
}

func TestWait_MissingCode(t *testing.T) {
	l := newListener(t)
	out := startWait(context.Background(), l, testState, 5*time.Second)

	status, _, _ := get(t, l.RedirectURI()+"?state=xyz123")
	assert.Equal(t, http.StatusBadRequest, status)

	o := receive(t, out)
	var malformed *oauth.MalformedResponseError
	assert.True(t, errors.As(o.err, &malformed))
}

func TestWait_EscapesProviderText(t *testing.T) {
	l := newListener(t)
	out := startWait(context.Background(), l, testState, 5*time.Second)

	_, body, _ := get(t, l.RedirectURI()+"?error=x&error_description=%3Cscript%3Ealert(1)%3C%2Fscript%3E&state=xyz123")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	receive(t, out)
}

func TestWait_IgnoresUnrelatedRequests(t *testing.T) {
	l := newListener(t)
	out := startWait(context.Background(), l, testState, 5*time.Second)

	status, _, _ := get(t, l.RedirectURI())
	assert.Equal(t, http.StatusBadRequest, status)

	status, _, _ = get(t, strings.TrimSuffix(l.RedirectURI(), "/cb")+"/favicon.ico")
	assert.Equal(t, http.StatusNotFound, status)

	status, _, _ = get(t, l.RedirectURI()+"?code=abc&state=xyz123")
	assert.Equal(t, http.StatusOK, status)

	o := receive(t, out)
	require.NoError(t, o.err)
	assert.Equal(t, "abc", o.result.Code)
}

func TestWait_RejectsNonGET(t *testing.T) {
	l := newListener(t)

	resp, err := http.Post(l.RedirectURI()+"?code=abc&state=xyz123", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.False(t, l.consumed.Load())
}

func TestWait_OnlyFirstCallbackIsConsumed(t *testing.T) {
	l := newListener(t)

	first := make(chan int, 1)
	go func() {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(l.RedirectURI() + "?code=abc&state=xyz123")
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	require.Eventually(t, l.consumed.Load, 2*time.Second, 10*time.Millisecond)

	status, body, _ := get(t, l.RedirectURI()+"?code=other&state=xyz123")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, "already processed")

	o := receive(t, startWait(context.Background(), l, testState, 5*time.Second))
	require.NoError(t, o.err)
	assert.Equal(t, "abc", o.result.Code)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestWait_Timeout(t *testing.T) {
	l := newListener(t)

	start := time.Now()
	_, err := l.Wait(context.Background(), testState, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)

	var timeoutErr *oauth.CallbackTimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
	assert.True(t, oauth.IsRecoverable(err))
	assertPortReleased(t, l.Addr())
}

func TestWait_Cancelled(t *testing.T) {
	l := newListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	out := startWait(ctx, l, testState, time.Minute)

	time.Sleep(20 * time.Millisecond)
	cancel()

	o := receive(t, out)
	assert.ErrorIs(t, o.err, context.Canceled)
	assertPortReleased(t, l.Addr())
}

func TestWait_EmptyStateClosesListener(t *testing.T) {
	l := newListener(t)

	_, err := l.Wait(context.Background(), "", time.Second)
	var cfgErr *oauth.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "state", cfgErr.Field)
	assertPortReleased(t, l.Addr())
}

func TestWait_AfterClose(t *testing.T) {
	l := newListener(t)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.Wait(context.Background(), testState, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAwait(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	redirectURI := "http://" + addr + "/cb"
	out := make(chan waitOutcome, 1)
	go func() {
		result, err := Await(context.Background(), redirectURI, testState, 5*time.Second)
		out <- waitOutcome{result: result, err: err}
	}()

	client := &http.Client{Timeout: time.Second}
	require.Eventually(t, func() bool {
		resp, err := client.Get(redirectURI + "?code=abc&state=xyz123")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	o := receive(t, out)
	require.NoError(t, o.err)
	assert.Equal(t, oauth.AuthorizationResult{Code: "abc", State: "xyz123"}, o.result)
	assertPortReleased(t, addr)
}
