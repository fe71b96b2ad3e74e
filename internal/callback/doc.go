// Package callback implements the local redirect listener of the
// authorization code flow.
//
// A Listener binds the loopback host and port named by the redirect URI,
// accepts exactly one authorization response and closes again:
//
//	l, err := callback.Listen("http://127.0.0.1:5432/oauth2client")
//	if err != nil {
//	    return err
//	}
//	// send the user to an authorization URL built with l.RedirectURI()
//	result, err := l.Wait(ctx, state, callback.DefaultTimeout)
//
// Wait always closes the listener, so the port is free again whatever the
// outcome. Concurrent flows need separate listeners on distinct ports.
package callback
