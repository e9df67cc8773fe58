// Package remote talks to the chess service on behalf of the configured
// accounts: creating games, submitting moves, and streaming game events.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fasthttp"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

// Rejection is a definitive refusal from the remote service. It is never
// retried; the caller reverts its optimistic state instead.
type Rejection struct {
	Code   int
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("remote rejected request: status=%d reason=%s", r.Code, r.Reason)
}

// IsRejection reports whether err is a definitive remote refusal.
func IsRejection(err error) bool {
	var rej *Rejection
	return errors.As(err, &rej)
}

// TokenSource resolves an account's token reference into a bearer token.
type TokenSource interface {
	Token(ctx context.Context, accountID string) (string, error)
}

// CreateGameParams describes the match the player configured. Games are
// unrated correspondence by default; Days is the per-move clock.
type CreateGameParams struct {
	AccountID string
	Side      domain.Color
	// OpponentUsername is empty for an open challenge.
	OpponentUsername string
	Rated            bool
	Days             int
}

// GameInfo is the remote view of a game.
type GameInfo struct {
	GameID   string            `json:"game_id"`
	Side     domain.Color      `json:"side"`
	Opponent string            `json:"opponent"`
	Moves    []string          `json:"moves"`
	Status   domain.GameStatus `json:"status"`
}

// Client is the outbound surface to the chess service.
type Client interface {
	// CreateGame issues a challenge and returns the created game. The
	// returned side is concrete even when the request asked for random.
	CreateGame(ctx context.Context, p CreateGameParams) (*GameInfo, error)
	// SubmitMove submits a UCI move. expectedVersion is the local committed
	// ply count; the service refuses the move if its own count differs.
	SubmitMove(ctx context.Context, accountID, gameID, uci string, expectedVersion int) error
	// HandleDraw offers or accepts a draw (accept=true) or declines one.
	HandleDraw(ctx context.Context, accountID, gameID string, accept bool) error
	// Resign resigns the game.
	Resign(ctx context.Context, accountID, gameID string) error
	// ActiveGames lists games the account is currently playing, used to
	// rediscover boards after a restart.
	ActiveGames(ctx context.Context, accountID string) ([]GameInfo, error)
}

// HTTPClient implements Client over the service's REST API.
type HTTPClient struct {
	baseURL string
	http    *fasthttp.Client
	tokens  TokenSource
	timeout time.Duration
	retries uint64
}

type Option func(*HTTPClient)

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = d }
}

func WithRetries(n uint64) Option {
	return func(c *HTTPClient) { c.retries = n }
}

func NewHTTPClient(baseURL string, tokens TokenSource, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second, MaxConnsPerHost: 16},
		tokens:  tokens,
		timeout: 10 * time.Second,
		retries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) CreateGame(ctx context.Context, p CreateGameParams) (*GameInfo, error) {
	path := "/api/challenge/open"
	if p.OpponentUsername != "" {
		path = "/api/challenge/" + p.OpponentUsername
	}
	days := p.Days
	if days <= 0 {
		days = 3
	}
	body := map[string]any{
		"color": string(p.Side),
		"rated": p.Rated,
		"days":  days,
	}
	var info GameInfo
	if err := c.doJSON(ctx, p.AccountID, fasthttp.MethodPost, path, body, &info); err != nil {
		return nil, err
	}
	if info.GameID == "" {
		return nil, errors.New("remote returned no game id")
	}
	return &info, nil
}

func (c *HTTPClient) SubmitMove(ctx context.Context, accountID, gameID, uci string, expectedVersion int) error {
	path := fmt.Sprintf("/api/board/game/%s/move/%s?v=%d", gameID, uci, expectedVersion)
	return c.doJSON(ctx, accountID, fasthttp.MethodPost, path, nil, nil)
}

func (c *HTTPClient) HandleDraw(ctx context.Context, accountID, gameID string, accept bool) error {
	verdict := "yes"
	if !accept {
		verdict = "no"
	}
	path := fmt.Sprintf("/api/board/game/%s/draw/%s", gameID, verdict)
	return c.doJSON(ctx, accountID, fasthttp.MethodPost, path, nil, nil)
}

func (c *HTTPClient) Resign(ctx context.Context, accountID, gameID string) error {
	path := fmt.Sprintf("/api/board/game/%s/resign", gameID)
	return c.doJSON(ctx, accountID, fasthttp.MethodPost, path, nil, nil)
}

func (c *HTTPClient) ActiveGames(ctx context.Context, accountID string) ([]GameInfo, error) {
	var resp struct {
		Games []GameInfo `json:"games"`
	}
	if err := c.doJSON(ctx, accountID, fasthttp.MethodGet, "/api/account/playing", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// doJSON performs one authenticated JSON request with exponential-backoff
// retries. Transport failures and 5xx responses retry; any 4xx becomes a
// permanent Rejection.
func (c *HTTPClient) doJSON(ctx context.Context, accountID, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx, accountID)
	if err != nil {
		return fmt.Errorf("resolve token for account %s: %w", accountID, err)
	}

	var payload []byte
	if in != nil {
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	operation := func() error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer func() {
			fasthttp.ReleaseRequest(req)
			fasthttp.ReleaseResponse(resp)
		}()

		req.Header.SetMethod(method)
		req.SetRequestURI(c.baseURL + path)
		req.Header.SetContentType("application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		if payload != nil {
			req.SetBody(payload)
		}

		if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
			return fmt.Errorf("request %s %s: %w", method, path, err)
		}

		status := resp.StatusCode()
		switch {
		case status >= 200 && status < 300:
			if out != nil {
				if err := json.Unmarshal(resp.Body(), out); err != nil {
					return backoff.Permanent(fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		case status >= 400 && status < 500:
			return backoff.Permanent(&Rejection{Code: status, Reason: truncate(string(resp.Body()), 256)})
		default:
			return fmt.Errorf("remote error: status=%d body=%s", status, truncate(string(resp.Body()), 256))
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.retries), ctx)
	return backoff.Retry(operation, bo)
}

func (c *HTTPClient) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(c.timeout)
	if ctxDL, ok := ctx.Deadline(); ok && ctxDL.Before(dl) {
		return ctxDL
	}
	return dl
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
