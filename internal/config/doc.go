// Package config loads echoauth's client configuration.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. built-in defaults (see Default)
//  2. the YAML file, ~/.config/echoauth/config.yaml unless --config names another
//  3. a dotenv file, .env in the working directory unless --env-file names another
//  4. ECHOAUTH_* environment variables
//
// Command-line flags are applied on top by the cmd package.
//
// # File Format
//
//	clientId: 7da405f38cbc4be4
//	clientSecret: ...
//	authorizationUri: https://oauth.cc.columbia.edu/as/authorization.oauth2
//	tokenUri: https://oauth.cc.columbia.edu/as/token.oauth2
//	redirectUri: http://127.0.0.1:5432/oauth2client
//	scopes: [auth-google, read, openid]
//	callbackTimeout: 10m
//	refreshPolicy: retain
//
// # Environment Variables
//
// Every field has an ECHOAUTH_ counterpart, for example ECHOAUTH_CLIENT_ID,
// ECHOAUTH_TOKEN_URI or ECHOAUTH_SCOPES (comma separated). Variables already
// set in the process win over the dotenv file.
//
// The client secret is held as a plain string only until Credentials wraps
// it; a Config must never be logged or printed whole.
package config
