package social

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"monad-trade-agent-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUserNotFound is returned for unknown usernames.
var ErrUserNotFound = errors.New("user not found")

// Profile is a social account.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Followers int    `json:"followers"`
	Verified  bool   `json:"verified"`
}

// Post is a single social post.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Source reads profiles and recent posts.
type Source interface {
	GetProfile(ctx context.Context, username string) (*Profile, error)
	GetRecentPosts(ctx context.Context, username string, since time.Time) ([]Post, error)
}

type cacheEntry[T any] struct {
	value   T
	expires time.Time
}

// ttlCache is a small expiring map.
type ttlCache[T any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry[T]
	now     func() time.Time
}

func newTTLCache[T any](ttl time.Duration) *ttlCache[T] {
	return &ttlCache[T]{ttl: ttl, entries: make(map[string]cacheEntry[T]), now: time.Now}
}

func (c *ttlCache[T]) get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expires) {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *ttlCache[T]) set(key string, v T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[T]{value: v, expires: c.now().Add(c.ttl)}
}

// Client is a client for the social data REST API.
// It implements the Source interface.
type Client struct {
	client   *resty.Client
	logger   *zap.Logger
	limiter  *rate.Limiter
	profiles *ttlCache[*Profile]
	posts    *ttlCache[[]Post]
}

var _ Source = (*Client)(nil)

// NewClient creates a new social API client. Responses are cached for cfg.CacheTTL.
func NewClient(cfg *config.Social, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetAuthToken(cfg.BearerToken).
		SetTimeout(10 * time.Second)

	return &Client{
		client:   client,
		logger:   logger.Named("social"),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		profiles: newTTLCache[*Profile](cfg.CacheTTL),
		posts:    newTTLCache[[]Post](cfg.CacheTTL),
	}
}

func (c *Client) get(ctx context.Context, url string, result interface{}, query map[string]string) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.logger.Debug("Executing request", zap.String("url", url))

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(result).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	if resp.IsError() {
		return resp, fmt.Errorf("request to %s failed with status %s: %s", url, resp.Status(), resp.String())
	}
	return resp, nil
}

// GetProfile looks up a user by username.
func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	if p, ok := c.profiles.get(username); ok {
		return p, nil
	}

	type profileResponse struct {
		Data Profile `json:"data"`
	}
	resp, err := c.get(ctx, "/users/by/username/"+username, &profileResponse{}, nil)
	if err != nil {
		if resp != nil && resp.StatusCode() == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", username, ErrUserNotFound)
		}
		c.logger.Error("Failed to get profile", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	profile := resp.Result().(*profileResponse).Data
	c.profiles.set(username, &profile)
	return &profile, nil
}

// GetRecentPosts returns posts by username created after since, oldest first.
func (c *Client) GetRecentPosts(ctx context.Context, username string, since time.Time) ([]Post, error) {
	key := username + "@" + strconv.FormatInt(since.Unix(), 10)
	if posts, ok := c.posts.get(key); ok {
		return posts, nil
	}

	profile, err := c.GetProfile(ctx, username)
	if err != nil {
		return nil, err
	}

	type postsResponse struct {
		Data []Post `json:"data"`
	}
	resp, err := c.get(ctx, "/users/"+profile.ID+"/posts", &postsResponse{}, map[string]string{
		"start_time": since.UTC().Format(time.RFC3339),
	})
	if err != nil {
		c.logger.Error("Failed to get recent posts", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	raw := resp.Result().(*postsResponse).Data
	posts := make([]Post, 0, len(raw))
	for _, p := range raw {
		if !p.CreatedAt.After(since) {
			continue
		}
		if p.Author == "" {
			p.Author = profile.Username
		}
		posts = append(posts, p)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].CreatedAt.Before(posts[j].CreatedAt) })
	c.posts.set(key, posts)
	return posts, nil
}
