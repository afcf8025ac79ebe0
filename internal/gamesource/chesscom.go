// Package gamesource fetches a player's monthly game archives from the
// chess.com public API, caching completed months on disk.
package gamesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/daonin/chessdrill/internal/replay"
)

// Config configures the archive client. Zero values get defaults.
type Config struct {
	BaseURL    string // default https://api.chess.com/pub
	UserAgent  string
	MaxRetry   int           // attempts per request, default 5
	Backoff    time.Duration // initial retry delay, doubled each attempt, default 1s
	CacheDir   string        // empty disables the on-disk cache
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the chess.com published-data API.
type Client struct {
	cfg   Config
	hc    *http.Client
	cache *archiveCache
	log   zerolog.Logger
}

// New returns a client with defaults applied.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.chess.com/pub"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "chessdrill/1.0"
	}
	if cfg.MaxRetry == 0 {
		cfg.MaxRetry = 5
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{cfg: cfg, hc: cfg.HTTPClient, log: cfg.Logger}
	if cfg.CacheDir != "" {
		c.cache = &archiveCache{dir: cfg.CacheDir, log: cfg.Logger}
	}
	return c
}

// Archives lists the player's monthly archive URLs, oldest first.
func (c *Client) Archives(ctx context.Context, user string) ([]string, error) {
	url := fmt.Sprintf("%s/player/%s/games/archives", c.cfg.BaseURL, strings.ToLower(user))
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("list archives for %s: %w", user, err)
	}
	var out struct {
		Archives []string `json:"archives"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode archives for %s: %w", user, err)
	}
	return out.Archives, nil
}

// ArchivePGN fetches one monthly archive as concatenated PGN text.
// Completed months are served from and written to the cache.
func (c *Client) ArchivePGN(ctx context.Context, archiveURL string) (string, error) {
	key, complete := archiveKey(archiveURL)
	if c.cache != nil && complete {
		if pgn, ok := c.cache.read(key); ok {
			return pgn, nil
		}
	}
	body, err := c.get(ctx, archiveURL+"/pgn")
	if err != nil {
		return "", fmt.Errorf("fetch archive %s: %w", archiveURL, err)
	}
	pgn := string(body)
	if c.cache != nil && complete {
		c.cache.write(key, pgn)
	}
	return pgn, nil
}

// RecentGames fetches and parses the player's last n monthly archives.
func (c *Client) RecentGames(ctx context.Context, user string, months int) ([]replay.Game, error) {
	urls, err := c.Archives(ctx, user)
	if err != nil {
		return nil, err
	}
	if months > 0 && len(urls) > months {
		urls = urls[len(urls)-months:]
	}

	var games []replay.Game
	for _, u := range urls {
		pgn, err := c.ArchivePGN(ctx, u)
		if err != nil {
			return nil, err
		}
		parsed, err := replay.ParsePGN(strings.NewReader(pgn))
		if err != nil {
			// One corrupt month should not sink the batch.
			c.log.Warn().Err(err).Str("archive", u).Msg("archive parse failed")
			continue
		}
		games = append(games, parsed...)
	}
	c.log.Info().Str("user", user).Int("months", len(urls)).Int("games", len(games)).Msg("games fetched")
	return games, nil
}

// get performs one GET with retries. chess.com rate limits with 403 and
// 429; those and server errors back off exponentially.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	delay := c.cfg.Backoff
	for attempt := 0; attempt < c.cfg.MaxRetry; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK && err == nil:
			return body, nil
		case resp.StatusCode == http.StatusForbidden,
			resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			c.log.Debug().Str("url", url).Int("status", resp.StatusCode).Int("attempt", attempt+1).Msg("retrying")
		case err != nil:
			lastErr = err
		default:
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("gave up after %d attempts: %w", c.cfg.MaxRetry, lastErr)
}

// archiveKey derives the cache key from an archive URL's trailing
// /YYYY/MM and reports whether that month is already over.
func archiveKey(archiveURL string) (string, bool) {
	parts := strings.Split(strings.TrimRight(archiveURL, "/"), "/")
	if len(parts) < 2 {
		return "", false
	}
	year, month := parts[len(parts)-2], parts[len(parts)-1]
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	if err1 != nil || err2 != nil || m < 1 || m > 12 {
		return "", false
	}
	// Archive URLs look like .../player/{user}/games/YYYY/MM; the user
	// keeps different players' caches apart.
	user := "unknown"
	if len(parts) >= 4 {
		user = parts[len(parts)-4]
	}
	now := time.Now().UTC()
	complete := y < now.Year() || (y == now.Year() && m < int(now.Month()))
	return fmt.Sprintf("%s-%04d-%02d", user, y, m), complete
}
