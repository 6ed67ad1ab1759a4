package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-punch-clock/sessions"
	"github.com/pkg/errors"
)

// AuthClient calls the backend's GoTrue compatible auth API.
type AuthClient struct {
	anonKey string
	req     *requester
	nowTime func() time.Time
}

func NewAuthClient(baseURL, anonKey string, opts ...Option) *AuthClient {
	o := buildOptions(opts)
	return &AuthClient{
		anonKey: anonKey,
		req: &requester{
			baseURL: baseURL,
			httpClient: &http.Client{
				Timeout:   o.timeout,
				Transport: &apiKeyTransport{key: anonKey, base: o.transport},
			},
		},
		nowTime: time.Now,
	}
}

// TokenResponse is the body returned by the token and signup endpoints.
type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at,omitempty"`
	RefreshToken string        `json:"refresh_token"`
	User         sessions.User `json:"user"`
}

// Session converts the response; the expiry is taken from expires_at when
// present, else from expires_in relative to now.
func (t TokenResponse) Session(now time.Time) *sessions.Session {
	expiresAt := time.Time{}
	switch {
	case t.ExpiresAt > 0:
		expiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return &sessions.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresAt:    expiresAt,
		User:         t.User,
	}
}

type credentials struct {
	Email    string             `json:"email"`
	Password string             `json:"password"`
	Data     *sessions.Metadata `json:"data,omitempty"`
}

// SignUp registers a user. The session is nil when the backend requires
// email confirmation before issuing tokens; the user is always returned.
func (c *AuthClient) SignUp(ctx context.Context, email, password string, metadata sessions.Metadata) (*sessions.Session, *sessions.User, error) {
	var raw json.RawMessage
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "/signup",
		bearer: c.anonKey,
		body:   credentials{Email: email, Password: password, Data: &metadata},
	}, &raw)
	if err != nil {
		return nil, nil, errors.Wrap(err, "[AuthClient.SignUp]")
	}

	var tokens TokenResponse
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, nil, errors.Wrap(err, "[AuthClient.SignUp] decoding response")
	}
	if tokens.AccessToken != "" {
		session := tokens.Session(c.nowTime())
		return session, &session.User, nil
	}

	var user sessions.User
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&user); err != nil {
		return nil, nil, errors.Wrap(err, "[AuthClient.SignUp] decoding user")
	}
	return nil, &user, nil
}

func (c *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*sessions.Session, error) {
	var tokens TokenResponse
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "/token",
		query:  url.Values{"grant_type": {"password"}},
		bearer: c.anonKey,
		body:   credentials{Email: email, Password: password},
	}, &tokens)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthClient.SignInWithPassword]")
	}
	return tokens.Session(c.nowTime()), nil
}

func (c *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (*sessions.Session, error) {
	var tokens TokenResponse
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		bearer: c.anonKey,
		body:   map[string]string{"refresh_token": refreshToken},
	}, &tokens)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthClient.RefreshSession]")
	}
	return tokens.Session(c.nowTime()), nil
}

// Logout revokes the refresh tokens of the session owning accessToken.
func (c *AuthClient) Logout(ctx context.Context, accessToken string) error {
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "/logout",
		bearer: accessToken,
	}, nil)
	return errors.Wrap(err, "[AuthClient.Logout]")
}

// Recover asks the backend to mail a recovery link that redirects to redirectTo.
func (c *AuthClient) Recover(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	err := c.req.do(ctx, request{
		method: http.MethodPost,
		path:   authPrefix + "/recover",
		query:  query,
		bearer: c.anonKey,
		body:   map[string]string{"email": email},
	}, nil)
	return errors.Wrap(err, "[AuthClient.Recover]")
}

func (c *AuthClient) GetUser(ctx context.Context, accessToken string) (*sessions.User, error) {
	var user sessions.User
	err := c.req.do(ctx, request{
		method: http.MethodGet,
		path:   authPrefix + "/user",
		bearer: accessToken,
	}, &user)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthClient.GetUser]")
	}
	return &user, nil
}

// UserUpdate holds the attributes changed by UpdateUser. Empty fields are left as is.
type UserUpdate struct {
	Email    string             `json:"email,omitempty"`
	Password string             `json:"password,omitempty"`
	Data     *sessions.Metadata `json:"data,omitempty"`
}

func (c *AuthClient) UpdateUser(ctx context.Context, accessToken string, update UserUpdate) (*sessions.User, error) {
	var user sessions.User
	err := c.req.do(ctx, request{
		method: http.MethodPut,
		path:   authPrefix + "/user",
		bearer: accessToken,
		body:   update,
	}, &user)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthClient.UpdateUser]")
	}
	return &user, nil
}

// JWKSURL is where the auth service publishes its signing keys.
func (c *AuthClient) JWKSURL() string {
	return c.req.baseURL + authPrefix + "/.well-known/jwks.json"
}
