package callback

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"echoauth/pkg/logging"
	"echoauth/pkg/oauth"
)

// DefaultTimeout is how long Wait blocks when the caller passes no timeout.
const DefaultTimeout = 10 * time.Minute

// shutdownTimeout bounds how long Close waits for the response page to be written.
const shutdownTimeout = 5 * time.Second

// ErrClosed is returned by Wait on a listener that was already closed.
var ErrClosed = errors.New("callback listener is closed")

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Listener is a one-shot local HTTP endpoint that receives the authorization
// server's redirect. It serves exactly one authorization flow.
type Listener struct {
	redirectURI string
	addr        string
	server      *http.Server

	callbacks chan callbackRequest
	serveErr  chan error
	done      chan struct{}
	consumed  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

type callbackRequest struct {
	query url.Values
	reply chan page
}

type page struct {
	status int
	name   string
	data   pageData
}

type pageData struct {
	Title   string
	Message string
	Code    string
}

// Listen binds the host, port and path encoded in redirectURI and starts
// serving. The host must be a loopback address or localhost. Port 0 selects a
// free port; RedirectURI reports the resulting URI.
//
// The caller must call Wait or Close to release the port.
func Listen(redirectURI string) (*Listener, error) {
	u, err := parseLoopbackURI(redirectURI)
	if err != nil {
		return nil, err
	}

	host := u.Hostname()
	bindHost := host
	if strings.EqualFold(host, "localhost") {
		bindHost = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}

	addr := net.JoinHostPort(bindHost, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener on %s: %w", addr, err)
	}

	effective := redirectURI
	if port == "0" {
		actual := ln.Addr().(*net.TCPAddr).Port
		rewritten := *u
		rewritten.Host = net.JoinHostPort(host, strconv.Itoa(actual))
		effective = rewritten.String()
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	l := &Listener{
		redirectURI: effective,
		addr:        ln.Addr().String(),
		callbacks:   make(chan callbackRequest),
		serveErr:    make(chan error, 1),
		done:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, l.handleCallback)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case l.serveErr <- err:
			default:
			}
		}
	}()

	logging.Debug("Callback", "Callback listener started on %s", l.addr)
	return l, nil
}

func parseLoopbackURI(redirectURI string) (*url.URL, error) {
	if redirectURI == "" {
		return nil, &oauth.ConfigError{Field: "redirect_uri", Reason: "must not be empty"}
	}
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &oauth.ConfigError{Field: "redirect_uri", Reason: "must be an absolute URL"}
	}
	if u.Scheme != "http" {
		return nil, &oauth.ConfigError{Field: "redirect_uri", Reason: "must use the http scheme to be served locally"}
	}

	host := u.Hostname()
	if !strings.EqualFold(host, "localhost") {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, &oauth.ConfigError{Field: "redirect_uri", Reason: "must point to a loopback address or localhost"}
		}
	}
	if strings.ContainsAny(u.Path, "{}") {
		return nil, &oauth.ConfigError{Field: "redirect_uri", Reason: "path must not contain braces"}
	}
	return u, nil
}

// RedirectURI returns the redirect URI the listener serves. It differs from
// the one passed to Listen only when that one requested port 0.
func (l *Listener) RedirectURI() string {
	return l.redirectURI
}

// Addr returns the bound network address.
func (l *Listener) Addr() string {
	return l.addr
}

// Wait blocks until the redirect arrives, timeout elapses or ctx is done,
// then closes the listener.
//
// A callback whose state differs from expectedState fails with
// *oauth.StateMismatchError; one carrying an error parameter fails with
// *oauth.AuthorizationDeniedError. A timeout fails with
// *oauth.CallbackTimeoutError. A non-positive timeout selects DefaultTimeout.
func (l *Listener) Wait(ctx context.Context, expectedState string, timeout time.Duration) (oauth.AuthorizationResult, error) {
	defer l.Close()

	select {
	case <-l.done:
		return oauth.AuthorizationResult{}, ErrClosed
	default:
	}

	if expectedState == "" {
		return oauth.AuthorizationResult{}, &oauth.ConfigError{Field: "state", Reason: "must not be empty"}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case req := <-l.callbacks:
		result, err := evaluate(req.query, expectedState)
		req.reply <- pageFor(err)
		if err != nil {
			logging.Warn("Callback", "Authorization callback rejected: %v", err)
		} else {
			logging.Debug("Callback", "Authorization callback accepted")
		}
		return result, err
	case err := <-l.serveErr:
		return oauth.AuthorizationResult{}, fmt.Errorf("callback listener failed: %w", err)
	case <-timer.C:
		return oauth.AuthorizationResult{}, &oauth.CallbackTimeoutError{Timeout: timeout}
	case <-ctx.Done():
		return oauth.AuthorizationResult{}, ctx.Err()
	}
}

// Close stops the listener and releases its port. It is safe to call more
// than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		l.closeErr = l.server.Shutdown(ctx)
		logging.Debug("Callback", "Callback listener on %s closed", l.addr)
	})
	return l.closeErr
}

// Await listens on redirectURI, waits for one callback and closes the
// listener. It suits callers that know the redirect URI up front.
func Await(ctx context.Context, redirectURI, expectedState string, timeout time.Duration) (oauth.AuthorizationResult, error) {
	l, err := Listen(redirectURI)
	if err != nil {
		return oauth.AuthorizationResult{}, err
	}
	return l.Wait(ctx, expectedState, timeout)
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w.Header())

	query := r.URL.Query()
	if !query.Has("code") && !query.Has("error") && !query.Has("state") {
		render(w, http.StatusBadRequest, "error.html", pageData{
			Title:   "Not an authorization response",
			Message: "This address only accepts the redirect from the authorization server.",
		})
		return
	}

	if !l.consumed.CompareAndSwap(false, true) {
		render(w, http.StatusConflict, "error.html", pageData{
			Title:   "Callback already processed",
			Message: "This login has already received its authorization response.",
		})
		return
	}

	logging.Debug("Callback", "Authorization callback received (code=%t, error=%q)",
		query.Get("code") != "", query.Get("error"))

	reply := make(chan page, 1)
	select {
	case l.callbacks <- callbackRequest{query: query, reply: reply}:
	case <-l.done:
		render(w, http.StatusGone, "error.html", pageData{
			Title:   "Login no longer waiting",
			Message: "The terminal stopped waiting for this login. Start it again.",
		})
		return
	case <-r.Context().Done():
		return
	}

	p := <-reply
	render(w, p.status, p.name, p.data)
}

func evaluate(query url.Values, expectedState string) (oauth.AuthorizationResult, error) {
	state := query.Get("state")
	if !oauth.StateEqual(expectedState, state) {
		return oauth.AuthorizationResult{}, &oauth.StateMismatchError{
			ExpectedLength: len(expectedState),
			ReceivedLength: len(state),
		}
	}

	if errCode := query.Get("error"); errCode != "" {
		return oauth.AuthorizationResult{}, &oauth.AuthorizationDeniedError{
			Code:        errCode,
			Description: query.Get("error_description"),
			URI:         query.Get("error_uri"),
		}
	}

	code := query.Get("code")
	if code == "" {
		return oauth.AuthorizationResult{}, &oauth.MalformedResponseError{Reason: "authorization callback lacks code"}
	}

	return oauth.AuthorizationResult{Code: code, State: state}, nil
}

func pageFor(err error) page {
	if err == nil {
		return page{status: http.StatusOK, name: "success.html"}
	}

	var mismatch *oauth.StateMismatchError
	var denied *oauth.AuthorizationDeniedError
	switch {
	case errors.As(err, &mismatch):
		return page{status: http.StatusBadRequest, name: "error.html", data: pageData{
			Title:   "Authorization could not be verified",
			Message: "This response does not belong to the login started from the terminal. Start the login again.",
		}}
	case errors.As(err, &denied):
		return page{status: http.StatusBadRequest, name: "error.html", data: pageData{
			Title:   "Authorization failed",
			Message: denied.Description,
			Code:    denied.Code,
		}}
	default:
		return page{status: http.StatusBadRequest, name: "error.html", data: pageData{
			Title:   "Authorization failed",
			Message: "The authorization server sent an incomplete response.",
		}}
	}
}

func setSecurityHeaders(h http.Header) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
}

func render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
