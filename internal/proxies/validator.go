package proxies

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultConcurrency  = 8
)

// Validator probes instances over HTTP.
type Validator struct {
	client      *http.Client
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// NewValidator creates a Validator. A nil client uses http.DefaultClient.
func NewValidator(client *http.Client, logger *slog.Logger) *Validator {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		client:      client,
		timeout:     defaultProbeTimeout,
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// WithTimeout sets the per-probe timeout.
func (v *Validator) WithTimeout(d time.Duration) *Validator {
	if d > 0 {
		v.timeout = d
	}
	return v
}

// ValidateAll probes every instance and returns the ones that answered
// with a status below 400. Every input service appears in the result,
// possibly with no instances. Order within a service is preserved.
func (v *Validator) ValidateAll(ctx context.Context, services map[string][]string) map[string][]string {
	type probe struct {
		service string
		index   int
	}

	alive := make(map[string][]bool, len(services))
	var probes []probe
	for svc, urls := range services {
		alive[svc] = make([]bool, len(urls))
		for i := range urls {
			probes = append(probes, probe{svc, i})
		}
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, v.concurrency)
	)
	for _, p := range probes {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok := v.probe(ctx, services[p.service][p.index])
			mu.Lock()
			alive[p.service][p.index] = ok
			mu.Unlock()
		}()
	}
	wg.Wait()

	out := make(map[string][]string, len(services))
	for svc, urls := range services {
		live := []string{}
		for i, u := range urls {
			if alive[svc][i] {
				live = append(live, u)
			}
		}
		out[svc] = live
		v.logger.Info("proxy service validated", "service", svc, "live", len(live), "total", len(urls))
	}
	return out
}

func (v *Validator) probe(ctx context.Context, url string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusBadRequest
}
