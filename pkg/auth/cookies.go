package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"watchgraph/pkg/config"
)

// DefaultCookieNames are sent with empty values when nothing is configured
var DefaultCookieNames = []string{"b", "a", "sz"}

// Cookie is one named credential value forwarded to the API
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CookieSet is the ordered authentication context sent with every request.
// It encodes to JSON as a list of {"name", "value"} objects in insertion order.
// A CookieSet is read-only once handed to the collector.
type CookieSet struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewCookieSet creates an empty cookie set
func NewCookieSet() *CookieSet {
	return &CookieSet{m: orderedmap.NewOrderedMap[string, string]()}
}

// DefaultCookies returns the default names with empty values
func DefaultCookies() *CookieSet {
	cs := NewCookieSet()
	for _, name := range DefaultCookieNames {
		cs.Set(name, "")
	}
	return cs
}

// FromConfig builds a cookie set from configured cookies, in order
func FromConfig(cookies []config.CookieConfig) *CookieSet {
	cs := NewCookieSet()
	for _, c := range cookies {
		cs.Set(c.Name, c.Value)
	}
	return cs
}

// ParseCookies parses "name=value;name=value" pairs
func ParseCookies(s string) (*CookieSet, error) {
	cs := NewCookieSet()
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cookie %q: expected name=value", part)
		}
		cs.Set(name, strings.TrimSpace(value))
	}
	return cs, nil
}

// Set adds or replaces a value; replacing keeps the original position
func (c *CookieSet) Set(name, value string) {
	c.m.Set(name, value)
}

// Get returns the value for name
func (c *CookieSet) Get(name string) (string, bool) {
	return c.m.Get(name)
}

// Len returns the number of cookies
func (c *CookieSet) Len() int {
	if c == nil || c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Names returns cookie names in order
func (c *CookieSet) Names() []string {
	if c.Len() == 0 {
		return nil
	}
	return c.m.Keys()
}

// List returns the cookies in order
func (c *CookieSet) List() []Cookie {
	out := make([]Cookie, 0, c.Len())
	if c.Len() == 0 {
		return out
	}
	for el := c.m.Front(); el != nil; el = el.Next() {
		out = append(out, Cookie{Name: el.Key, Value: el.Value})
	}
	return out
}

// String renders the set as name=value pairs with values masked
func (c *CookieSet) String() string {
	parts := make([]string, 0, c.Len())
	for _, ck := range c.List() {
		parts = append(parts, ck.Name+"="+maskString(ck.Value))
	}
	return strings.Join(parts, "; ")
}

// MarshalJSON encodes the set as an ordered list of name/value objects
func (c *CookieSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

// UnmarshalJSON accepts either the list form or a plain object. Object keys
// carry no order in JSON, so they are sorted by name.
func (c *CookieSet) UnmarshalJSON(data []byte) error {
	c.m = orderedmap.NewOrderedMap[string, string]()

	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]string
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return fmt.Errorf("failed to decode cookies: %w", err)
		}
		names := make([]string, 0, len(obj))
		for name := range obj {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			c.Set(name, obj[name])
		}
		return nil
	}

	var list []Cookie
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return fmt.Errorf("failed to decode cookies: %w", err)
	}
	for _, ck := range list {
		c.Set(ck.Name, ck.Value)
	}
	return nil
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
