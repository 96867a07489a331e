// Package proxies manages the catalog of privacy frontend instances
// (Invidious, Nitter, Libreddit and similar) and keeps it validated.
package proxies

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrEmptyCatalog is returned when a catalog document has no content.
var ErrEmptyCatalog = errors.New("proxy catalog is empty")

// Parse decodes a catalog document. JSON and YAML are both accepted; the
// top level must be a mapping of service name to instance URLs.
func Parse(data []byte) (map[string][]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyCatalog
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse proxy catalog: %w", err)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("parse proxy catalog: top level is not a mapping")
	}

	var services map[string][]string
	if err := node.Content[0].Decode(&services); err != nil {
		return nil, fmt.Errorf("decode proxy catalog: %w", err)
	}
	return services, nil
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read proxy catalog: %w", err)
	}
	return Parse(data)
}

// Catalog is a concurrency-safe view of the current instances.
type Catalog struct {
	mu       sync.RWMutex
	services map[string][]string
	intn     func(n int) int
}

// NewCatalog creates a catalog holding services.
func NewCatalog(services map[string][]string) *Catalog {
	c := &Catalog{intn: rand.IntN}
	c.Replace(services)
	return c
}

// Replace swaps the catalog contents.
func (c *Catalog) Replace(services map[string][]string) {
	cp := make(map[string][]string, len(services))
	for k, v := range services {
		cp[k] = slices.Clone(v)
	}
	c.mu.Lock()
	c.services = cp
	c.mu.Unlock()
}

// Reload replaces the catalog from path. On failure the previous contents
// are kept.
func (c *Catalog) Reload(path string) error {
	services, err := LoadFile(path)
	if err != nil {
		return err
	}
	c.Replace(services)
	return nil
}

// Pick returns a random instance for service.
func (c *Catalog) Pick(service string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	candidates := c.services[service]
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[c.intn(len(candidates))], true
}

// Counts returns the number of instances per service.
func (c *Catalog) Counts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.services))
	for k, v := range c.services {
		out[k] = len(v)
	}
	return out
}

// Services returns the service names in sorted order.
func (c *Catalog) Services() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.services))
	for k := range c.services {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Snapshot returns a copy of the catalog.
func (c *Catalog) Snapshot() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string][]string, len(c.services))
	for k, v := range c.services {
		out[k] = slices.Clone(v)
	}
	return out
}

// ProxyConfig returns the catalog contents so a Catalog can stand in for the
// stored proxy config.
func (c *Catalog) ProxyConfig(context.Context) (map[string][]string, error) {
	return c.Snapshot(), nil
}

// Total returns the number of instances across all services.
func Total(services map[string][]string) int {
	n := 0
	for _, v := range services {
		n += len(v)
	}
	return n
}

// AllDown reports whether no service has a live instance.
func AllDown(services map[string][]string) bool {
	return Total(services) == 0
}
