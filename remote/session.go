// CLAUDE:SUMMARY Canvas service login (modhash + session cookie jar) and pixel placement with server-mandated cooldown.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hazyhaar/placebot/internal/fetch"
	"github.com/hazyhaar/placebot/palette"
	"github.com/hazyhaar/placebot/target"
)

// ErrAuth is returned when the service rejects the credentials or session.
var ErrAuth = errors.New("remote: authentication failed")

// ErrPlacement is returned when a pixel write is refused.
var ErrPlacement = errors.New("remote: placement failed")

// RateLimitError is a refused placement that carries the server cooldown.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("remote: rate limited, retry in %s", e.Wait)
}

// Is makes errors.Is(err, ErrPlacement) true.
func (e *RateLimitError) Is(target error) bool { return target == ErrPlacement }

// RetryAfter returns the server cooldown; traversal sleeps at least this long.
func (e *RateLimitError) RetryAfter() time.Duration { return e.Wait }

// Session is an authenticated session. It is reusable until a call on it fails.
type Session struct {
	Modhash string
	fetcher *fetch.Fetcher
}

type loginResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			Modhash string `json:"modhash"`
			Cookie  string `json:"cookie"`
		} `json:"data"`
	} `json:"json"`
}

// Login authenticates username and returns a Session whose cookie jar holds
// the session cookie.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	form := url.Values{
		"op":       {"login-main"},
		"user":     {username},
		"passwd":   {password},
		"rem":      {"on"},
		"api_type": {"json"},
	}
	endpoint := c.config.BaseURL + c.config.LoginPath + url.PathEscape(username)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("login: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.fetcher.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: login: %w", target.ErrTransport, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: login: http %d", ErrAuth, res.StatusCode)
	}

	var lr loginResponse
	if err := json.Unmarshal(res.Body, &lr); err != nil {
		return nil, fmt.Errorf("%w: login response: %v", ErrAuth, err)
	}
	if len(lr.JSON.Errors) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrAuth, lr.JSON.Errors)
	}
	if lr.JSON.Data.Modhash == "" || lr.JSON.Data.Cookie == "" {
		return nil, fmt.Errorf("%w: login response lacks modhash or cookie", ErrAuth)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("login: cookie jar: %w", err)
	}
	base, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("login: base url: %w", err)
	}
	jar.SetCookies(base, []*http.Cookie{{
		Name:  c.config.SessionCookie,
		Value: lr.JSON.Data.Cookie,
		Path:  "/",
	}})

	c.logger.Info("remote: logged in", "user", username)
	return &Session{Modhash: lr.JSON.Data.Modhash, fetcher: c.fetcher.WithJar(jar)}, nil
}

type drawResponse struct {
	WaitSeconds *float64 `json:"wait_seconds"`
}

// Place writes one pixel and returns the cooldown the service mandates
// before the next write.
func (c *Client) Place(ctx context.Context, s *Session, x, y int, color palette.Index) (time.Duration, error) {
	form := url.Values{
		"x":     {strconv.Itoa(x)},
		"y":     {strconv.Itoa(y)},
		"color": {strconv.Itoa(int(color))},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+c.config.DrawPath, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("place: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Modhash", s.Modhash)

	res, err := s.fetcher.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: place: %w", target.ErrTransport, err)
	}

	var dr drawResponse
	jsonErr := json.Unmarshal(res.Body, &dr)

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return 0, fmt.Errorf("%w: place: http %d", ErrAuth, res.StatusCode)
	case res.StatusCode == http.StatusTooManyRequests:
		rl := &RateLimitError{}
		if jsonErr == nil && dr.WaitSeconds != nil {
			rl.Wait = seconds(*dr.WaitSeconds)
		}
		return 0, rl
	case res.StatusCode < 200 || res.StatusCode >= 300:
		return 0, fmt.Errorf("%w: http %d", ErrPlacement, res.StatusCode)
	case jsonErr != nil || dr.WaitSeconds == nil:
		return 0, fmt.Errorf("%w: response lacks wait_seconds", ErrPlacement)
	}
	return seconds(*dr.WaitSeconds), nil
}

// MaxWait caps any server-reported cooldown.
const MaxWait = 24 * time.Hour

func seconds(v float64) time.Duration {
	if !(v > 0) {
		return 0
	}
	if v >= MaxWait.Seconds() {
		return MaxWait
	}
	return time.Duration(v * float64(time.Second))
}

// Placer places pixels with a lazily acquired session. The session is kept
// across rate limiting and dropped after any other failure so the next
// attempt logs in again.
type Placer struct {
	client   *Client
	username string
	password string
	session  *Session
}

// NewPlacer creates a Placer for the given credentials.
func NewPlacer(client *Client, username, password string) *Placer {
	return &Placer{client: client, username: username, password: password}
}

// Place implements traversal.Placer.
func (p *Placer) Place(ctx context.Context, x, y int, color palette.Index) (time.Duration, error) {
	if p.session == nil {
		s, err := p.client.Login(ctx, p.username, p.password)
		if err != nil {
			return 0, err
		}
		p.session = s
	}
	wait, err := p.client.Place(ctx, p.session, x, y, color)
	if err != nil {
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			p.session = nil
		}
		return 0, err
	}
	return wait, nil
}
