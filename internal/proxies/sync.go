package proxies

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// AllDownMessage is sent to the alert chat when validation leaves no live
// instance.
const AllDownMessage = "⚠️ All proxy instances failed validation!"

const maxCatalogBytes = 1 << 20

// Uploader stores the raw catalog document.
type Uploader interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// ConfigStore persists the validated catalog.
type ConfigStore interface {
	ProxyConfig(ctx context.Context) (map[string][]string, error)
	UpdateProxyConfig(ctx context.Context, proxies map[string][]string) error
}

// Alerter notifies operators.
type Alerter interface {
	Send(ctx context.Context, text string) error
}

// NewGitHubClient returns an HTTP client that authenticates to GitHub with
// token. An empty token yields an anonymous client.
func NewGitHubClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		return &http.Client{Timeout: 10 * time.Second}
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = 10 * time.Second
	return client
}

// SyncResult summarizes a sync run.
type SyncResult struct {
	Uploaded bool `json:"uploaded"`
	Services int  `json:"services"`
	Live     int  `json:"live"`
	AllDown  bool `json:"all_down"`
}

// Message is the human-readable outcome.
func (r SyncResult) Message() string {
	return fmt.Sprintf("Proxy list validated and stored. %d proxies are functional.", r.Live)
}

// Syncer fetches the upstream catalog, archives it, validates every
// instance and stores the live ones.
type Syncer struct {
	SourceURL string
	DestKey   string

	Client    *http.Client
	Uploader  Uploader // optional
	Validator *Validator
	Store     ConfigStore
	Catalog   *Catalog // optional, refreshed after a successful run
	Alerter   Alerter  // optional
	Logger    *slog.Logger
}

// Run performs one sync. Without a SourceURL the currently stored catalog
// is revalidated.
func (s *Syncer) Run(ctx context.Context) (SyncResult, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		res      SyncResult
		services map[string][]string
	)

	if s.SourceURL != "" {
		raw, err := s.fetch(ctx)
		if err != nil {
			return res, err
		}
		logger.Info("fetched proxy catalog", "bytes", len(raw))

		if s.Uploader != nil {
			if err := s.Uploader.Put(ctx, s.DestKey, bytes.NewReader(raw), "application/json"); err != nil {
				return res, fmt.Errorf("upload proxy catalog: %w", err)
			}
			res.Uploaded = true
			logger.Info("uploaded proxy catalog", "key", s.DestKey)
		}

		services, err = Parse(raw)
		if err != nil {
			return res, err
		}
	} else {
		var err error
		services, err = s.Store.ProxyConfig(ctx)
		if err != nil {
			return res, fmt.Errorf("load stored proxy catalog: %w", err)
		}
	}

	validated := s.Validator.ValidateAll(ctx, services)
	if err := s.Store.UpdateProxyConfig(ctx, validated); err != nil {
		return res, fmt.Errorf("store validated proxies: %w", err)
	}
	if s.Catalog != nil {
		s.Catalog.Replace(validated)
	}

	res.Services = len(validated)
	res.Live = Total(validated)
	res.AllDown = AllDown(validated)

	if res.AllDown {
		logger.Warn("all proxy instances failed validation")
		if s.Alerter != nil {
			if err := s.Alerter.Send(ctx, AllDownMessage); err != nil {
				return res, err
			}
		}
	}

	logger.Info("proxy sync completed", "services", res.Services, "live", res.Live)
	return res, nil
}

func (s *Syncer) fetch(ctx context.Context) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.SourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch proxy catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch proxy catalog: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read proxy catalog: %w", err)
	}
	if len(raw) > maxCatalogBytes {
		return nil, errors.New("fetch proxy catalog: document too large")
	}
	return raw, nil
}
