// Package session holds the tokens of one client at one provider and issues
// authenticated requests with them.
//
// A Session moves from StateUnauthenticated through
// StateAuthorizationPending (authorization URL issued, callback listener
// open) to StateAuthenticated. Login runs the browser flow, Resume installs
// stored tokens and InitWithRefreshToken bootstraps from a refresh token.
// A Refresh during a pending Login replaces the tokens but leaves the flow
// pending.
//
// Requests read the current TokenSet when they are sent. Refresh replaces
// it under a lock, so every request issued after Refresh returns carries the
// new access token. Requests already in flight are not retried. A 401 or 403
// response is handed back to the caller unchanged; whether to refresh is
// the caller's decision, since not every 401 means the token expired.
// Redirects are returned as well, never followed with the token attached.
package session
