/*
Package sessionsdk is a Go client for the sessionguard HTTP API.

# SDKClient vs Session

  - SDKClient: public endpoints (register, login, refresh, health) and the
    entry point for creating a Session
  - Session: authenticated calls with automatic refresh-token rotation

	client := sessionsdk.NewSDKClient("https://sessions.example.com")

	user, err := client.Register(ctx, sessionsdk.RegisterRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})

	session, err := client.AuthenticateWithPassword(ctx, "alice", "correct horse battery", "")
	me, err := session.Me(ctx)

# Refresh tokens

Refresh tokens are single use. A Session swaps its refresh token for a new
pair shortly before the access token expires. Presenting a refresh token that
was already rotated revokes every refresh token of the user, so a Session must
not be copied between processes: share the tokens through one Session instead.

# Errors

Server errors decode into *APIError. Use the helpers to branch on them:

	if sessionsdk.IsInvalidGrant(err) {
		// the refresh token was reused or revoked; log in again
	}
*/
package sessionsdk
