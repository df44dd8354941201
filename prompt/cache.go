// Package prompt renders the multiplexed generation prompt and caches the
// template file it draws from.
package prompt

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

// Cache is a read-through template cache. The TOML file is loaded lazily on
// first access and never reloaded; after warm-up, reads are safe for
// concurrent use across generation runs. Entries are never mutated.
type Cache struct {
	path string

	once      sync.Once
	mu        sync.RWMutex
	templates map[string]string
	loadErr   error
}

// cacheFile mirrors the template file layout: one [templates] table of
// name = "text" pairs.
type cacheFile struct {
	Templates map[string]string `toml:"templates"`
}

// NewCache creates a cache over a template file. The file is not touched
// until the first Get.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

func (c *Cache) load() {
	c.once.Do(func() {
		var file cacheFile
		if _, err := toml.DecodeFile(c.path, &file); err != nil {
			c.loadErr = fmt.Errorf("loading templates from %s: %w", c.path, err)
			return
		}
		c.mu.Lock()
		c.templates = file.Templates
		c.mu.Unlock()
	})
}

// Get returns a template by name, loading the file on first use.
func (c *Cache) Get(name string) (string, error) {
	c.load()
	if c.loadErr != nil {
		return "", c.loadErr
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("template %q not found in %s", name, c.path)
	}
	return text, nil
}

// Lookup is like Get but reports absence instead of failing, for templates
// with built-in defaults.
func (c *Cache) Lookup(name string) (string, bool) {
	c.load()
	if c.loadErr != nil {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.templates[name]
	return text, ok
}
