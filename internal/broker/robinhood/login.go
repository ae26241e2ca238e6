package robinhood

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonandersen/rob/internal/broker"
)

const (
	tokenPath  = "/oauth2/token/"
	revokePath = "/oauth2/revoke_token/"

	// sessionLifetime is the expires_in requested at login, in seconds.
	sessionLifetime = 86400
)

// tokenResponse is the body of /oauth2/token/. Besides a token it can carry
// any of the follow-up requirements Robinhood uses to gate a login.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`

	MFARequired bool   `json:"mfa_required"`
	MFAType     string `json:"mfa_type"`

	Challenge *struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"challenge"`

	VerificationWorkflow *struct {
		ID             string `json:"id"`
		WorkflowStatus string `json:"workflow_status"`
	} `json:"verification_workflow"`

	errorResponse
}

// Login exchanges credentials (and an optional one-time code) for a session.
// Refusals are returned as *broker.LoginError.
func (c *Client) Login(ctx context.Context, username, password, code string) (*broker.Token, error) {
	form := url.Values{
		"client_id":      {ClientID},
		"expires_in":     {strconv.Itoa(sessionLifetime)},
		"grant_type":     {"password"},
		"scope":          {"internal"},
		"username":       {username},
		"password":       {password},
		"device_token":   {c.DeviceToken},
		"challenge_type": {"sms"},
	}
	if code != "" {
		form.Set("mfa_code", code)
	}

	resp, err := c.doOnce(ctx, http.MethodPost, tokenPath, []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &broker.LoginError{Kind: broker.LoginTransient, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &broker.LoginError{Kind: broker.LoginTransient, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var tr tokenResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, &broker.LoginError{Kind: broker.LoginTransient, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	if loginErr := classify(resp.StatusCode, &tr); loginErr != nil {
		return nil, loginErr
	}

	token := c.tokenFrom(&tr)
	c.token = token
	return token, nil
}

// classify maps a token response to a login refusal, or nil when it
// carries a usable token.
func classify(status int, tr *tokenResponse) *broker.LoginError {
	msg := tr.message()

	switch {
	case tr.VerificationWorkflow != nil:
		return &broker.LoginError{Kind: broker.LoginDeviceApprovalRequired, Message: "approve this login in the Robinhood app"}
	case tr.Challenge != nil:
		return &broker.LoginError{Kind: broker.LoginChallengeRequired, Message: tr.Challenge.Type}
	case tr.MFARequired:
		return &broker.LoginError{Kind: broker.LoginInvalidCode, Message: "two-factor code required"}
	case status == http.StatusTooManyRequests || status >= 500:
		return &broker.LoginError{Kind: broker.LoginTransient, Err: &APIError{StatusCode: status, Message: msg}}
	case status >= 400:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "mfa") || strings.Contains(lower, "code") {
			return &broker.LoginError{Kind: broker.LoginInvalidCode, Message: msg}
		}
		if tr.Error == "invalid_grant" || status == http.StatusUnauthorized || strings.Contains(lower, "credentials") {
			return &broker.LoginError{Kind: broker.LoginInvalidCredentials, Message: msg}
		}
		return &broker.LoginError{Kind: broker.LoginTransient, Err: &APIError{StatusCode: status, Code: tr.Error, Message: msg}}
	case tr.AccessToken == "" && tr.Detail != "":
		// A bare detail on a non-error status is how an unannounced device
		// verification surfaces.
		return &broker.LoginError{Kind: broker.LoginDeviceApprovalRequired, Message: tr.Detail}
	case tr.AccessToken == "":
		return &broker.LoginError{Kind: broker.LoginTransient, Message: "response carried no access token"}
	default:
		return nil
	}
}

func (c *Client) tokenFrom(tr *tokenResponse) *broker.Token {
	token := &broker.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		DeviceToken:  c.DeviceToken,
	}
	if tr.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token
}

// Resume adopts a cached token and checks that the API still accepts it.
func (c *Client) Resume(ctx context.Context, token *broker.Token) error {
	if token == nil || token.AccessToken == "" {
		return broker.ErrNotAuthenticated
	}
	if token.IsExpired() {
		return fmt.Errorf("cached session expired at %s", token.ExpiresAt.Format(time.RFC3339))
	}

	c.token = token
	if token.DeviceToken != "" {
		c.DeviceToken = token.DeviceToken
	}
	if _, err := c.account(ctx); err != nil {
		c.token = nil
		return fmt.Errorf("failed to verify cached session: %w", err)
	}
	return nil
}

// Logout drops the in-memory session. The token stays valid server-side so
// the session cache can resume it; use Revoke to end it for good.
func (c *Client) Logout(context.Context) error {
	c.token = nil
	c.accountURL = ""
	return nil
}

// Revoke invalidates token at Robinhood.
func (c *Client) Revoke(ctx context.Context, token *broker.Token) error {
	if token == nil || token.AccessToken == "" {
		return nil
	}
	form := url.Values{
		"client_id": {ClientID},
		"token":     {token.AccessToken},
	}
	resp, err := c.postForm(ctx, revokePath, form)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if c.token != nil && c.token.AccessToken == token.AccessToken {
		c.token = nil
	}
	return nil
}

// refresh trades the refresh token for a new access token.
func (c *Client) refresh(ctx context.Context) error {
	if c.token == nil || c.token.RefreshToken == "" {
		return errors.New("no refresh token")
	}
	form := url.Values{
		"client_id":     {ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.token.RefreshToken},
		"scope":         {"internal"},
		"expires_in":    {strconv.Itoa(sessionLifetime)},
		"device_token":  {c.DeviceToken},
	}
	resp, err := c.doOnce(ctx, http.MethodPost, tokenPath, []byte(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return err
	}
	var tr tokenResponse
	if err := DecodeJSON(resp, &tr); err != nil {
		return err
	}
	if tr.AccessToken == "" {
		return errors.New("refresh response carried no access token")
	}

	c.token = c.tokenFrom(&tr)
	if c.OnRefresh != nil {
		c.OnRefresh(c.token)
	}
	return nil
}
