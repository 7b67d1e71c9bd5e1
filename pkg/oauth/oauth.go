// Package oauth exchanges authorization codes with Google and GitHub for an external identity.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

type Provider string

const (
	Google Provider = "google"
	GitHub Provider = "github"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubUserURL     = "https://api.github.com/user"
	githubEmailsURL   = "https://api.github.com/user/emails"
)

var (
	ErrUnknownProvider       = errors.New("unknown oauth provider")
	ErrProviderNotConfigured = errors.New("oauth provider not configured")
	ErrExternalService       = errors.New("oauth provider request failed")
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case Google, GitHub:
		return p, nil
	}
	return "", ErrUnknownProvider
}

// ProviderConfig holds the client registration. Empty URL fields use the provider defaults.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	Endpoint    oauth2.Endpoint
	UserInfoURL string
	EmailsURL   string
}

// Identity is what a provider asserts about the signed-in account.
type Identity struct {
	Provider     Provider
	ExternalID   string
	Email        string // empty unless the provider reports it verified
	Name         string
	AvatarURL    string
	AccessToken  string
	RefreshToken string
}

type Client struct {
	providers map[Provider]ProviderConfig
	Timeout   time.Duration
}

func NewClient(timeout time.Duration, providers map[Provider]ProviderConfig) *Client {
	return &Client{providers: providers, Timeout: timeout}
}

// IsPlaceholder reports whether v is missing or one of the sample values shipped in example env files.
func IsPlaceholder(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return true
	}
	for _, p := range []string{"your-", "your_", "<", "changeme", "replace-me", "xxx"} {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}

func (c *Client) config(p Provider) (*oauth2.Config, ProviderConfig, error) {
	pc, ok := c.providers[p]
	if !ok {
		if _, err := ParseProvider(string(p)); err != nil {
			return nil, pc, err
		}
		return nil, pc, ErrProviderNotConfigured
	}
	if IsPlaceholder(pc.ClientID) || IsPlaceholder(pc.ClientSecret) {
		return nil, pc, ErrProviderNotConfigured
	}
	conf := &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURL:  pc.RedirectURL,
		Endpoint:     pc.Endpoint,
	}
	switch p {
	case Google:
		conf.Scopes = []string{"openid", "profile", "email"}
		if conf.Endpoint.TokenURL == "" {
			conf.Endpoint = google.Endpoint
		}
		if pc.UserInfoURL == "" {
			pc.UserInfoURL = googleUserInfoURL
		}
	case GitHub:
		conf.Scopes = []string{"user:email"}
		if conf.Endpoint.TokenURL == "" {
			conf.Endpoint = github.Endpoint
		}
		if pc.UserInfoURL == "" {
			pc.UserInfoURL = githubUserURL
		}
		if pc.EmailsURL == "" {
			pc.EmailsURL = githubEmailsURL
		}
	default:
		return nil, pc, ErrUnknownProvider
	}
	return conf, pc, nil
}

// Configured reports whether p has real credentials.
func (c *Client) Configured(p Provider) bool {
	_, _, err := c.config(p)
	return err == nil
}

// AuthCodeURL builds the provider consent URL carrying state.
func (c *Client) AuthCodeURL(p Provider, state string) (string, error) {
	conf, _, err := c.config(p)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// Exchange trades code for tokens and fetches the account profile.
func (c *Client) Exchange(ctx context.Context, p Provider, code string) (Identity, error) {
	conf, pc, err := c.config(p)
	if err != nil {
		return Identity{}, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: token exchange: %v", ErrExternalService, err)
	}
	hc := conf.Client(ctx, tok)

	var id Identity
	switch p {
	case Google:
		id, err = fetchGoogle(ctx, hc, pc)
	case GitHub:
		id, err = fetchGitHub(ctx, hc, pc)
	}
	if err != nil {
		return Identity{}, err
	}
	if id.ExternalID == "" {
		return Identity{}, fmt.Errorf("%w: profile without id", ErrExternalService)
	}
	id.Provider = p
	id.AccessToken = tok.AccessToken
	id.RefreshToken = tok.RefreshToken
	return id, nil
}

func getJSON(ctx context.Context, hc *http.Client, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalService, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: GET %s: %d %s", ErrExternalService, url, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrExternalService, url, err)
	}
	return nil
}

func fetchGoogle(ctx context.Context, hc *http.Client, pc ProviderConfig) (Identity, error) {
	var body struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := getJSON(ctx, hc, pc.UserInfoURL, &body); err != nil {
		return Identity{}, err
	}
	id := Identity{ExternalID: body.ID, Name: body.Name, AvatarURL: body.Picture}
	if body.VerifiedEmail {
		id.Email = body.Email
	}
	return id, nil
}

func fetchGitHub(ctx context.Context, hc *http.Client, pc ProviderConfig) (Identity, error) {
	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, hc, pc.UserInfoURL, &user); err != nil {
		return Identity{}, err
	}
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, hc, pc.EmailsURL, &emails); err != nil {
		return Identity{}, err
	}
	id := Identity{Name: user.Name, AvatarURL: user.AvatarURL}
	if user.ID != 0 {
		id.ExternalID = strconv.FormatInt(user.ID, 10)
	}
	if id.Name == "" {
		id.Name = user.Login
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			id.Email = e.Email
			break
		}
	}
	return id, nil
}

// GenerateState returns a random value for the OAuth state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
