package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cache persists provider responses as JSON files so repeated runs over the
// same window stay off the network. Entries older than the TTL are ignored.
type Cache struct {
	dir string
	ttl time.Duration
}

// NewCache returns a file cache rooted at dir. A zero or negative TTL
// disables expiry so entries live until deleted.
func NewCache(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl}
}

// Get loads the cached entry for key into out and reports whether it was
// present, fresh, and decodable.
func (c *Cache) Get(key string, out any) bool {
	if c == nil {
		return false
	}
	path := filepath.Join(c.dir, key+".json")
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if c.ttl > 0 && time.Since(info.ModTime()) > c.ttl {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// Set stores v under key. Cache writes are best effort; a failed write only
// costs a refetch later.
func (c *Cache) Set(key string, v any) {
	if c == nil {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(c.dir, key+".json"), data, 0o644)
}

// BarsKey names the cache entry holding a ticker's full daily history.
func BarsKey(source, ticker string) string {
	return fmt.Sprintf("%s_daily_%s", source, ticker)
}

// FundamentalsKey names the cache entry holding a ticker's fundamentals.
func FundamentalsKey(source, ticker string) string {
	return fmt.Sprintf("%s_fundamentals_%s", source, ticker)
}
