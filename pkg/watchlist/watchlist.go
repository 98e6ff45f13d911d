package watchlist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/elliotchance/orderedmap/v2"
)

// Entry is one account appearing on a user's watchlist
type Entry struct {
	Name string `json:"name"`
}

// Watchlist is the ordered list of entries for one user, in page order
type Watchlist []Entry

// Names returns the entry names in order
func (w Watchlist) Names() []string {
	names := make([]string, len(w))
	for i, e := range w {
		names[i] = e.Name
	}
	return names
}

// NameSet returns the distinct entry names
func (w Watchlist) NameSet() map[string]struct{} {
	set := make(map[string]struct{}, len(w))
	for _, e := range w {
		set[e.Name] = struct{}{}
	}
	return set
}

// MarshalJSON encodes a nil watchlist as [] rather than null
func (w Watchlist) MarshalJSON() ([]byte, error) {
	if w == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Entry(w))
}

// ResultMap maps username to watchlist, preserving insertion order through
// JSON encoding and decoding. It is safe for concurrent use.
type ResultMap struct {
	mu sync.RWMutex
	m  *orderedmap.OrderedMap[string, Watchlist]
}

// NewResultMap creates an empty result map
func NewResultMap() *ResultMap {
	return &ResultMap{m: orderedmap.NewOrderedMap[string, Watchlist]()}
}

// Set stores the watchlist for username. A repeated username keeps its
// original position.
func (r *ResultMap) Set(username string, list Watchlist) {
	if list == nil {
		list = Watchlist{}
	}
	r.mu.Lock()
	r.m.Set(username, list)
	r.mu.Unlock()
}

// Get returns the watchlist for username
func (r *ResultMap) Get(username string) (Watchlist, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.Get(username)
}

// Has reports whether username has a result
func (r *ResultMap) Has(username string) bool {
	_, ok := r.Get(username)
	return ok
}

// Len returns the number of users with a result
func (r *ResultMap) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.Len()
}

// Usernames returns the keys in insertion order
func (r *ResultMap) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m.Keys()
}

// Each calls fn for every user in insertion order, stopping when fn returns false
func (r *ResultMap) Each(fn func(username string, list Watchlist) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for el := r.m.Front(); el != nil; el = el.Next() {
		if !fn(el.Key, el.Value) {
			return
		}
	}
}

// MarshalJSON encodes the map as a JSON object with keys in insertion order
func (r *ResultMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	var err error
	r.Each(func(username string, list Watchlist) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		var key, value []byte
		if key, err = json.Marshal(username); err != nil {
			return false
		}
		if value, err = json.Marshal(list); err != nil {
			return false
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
		return true
	})
	if err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the input
func (r *ResultMap) UnmarshalJSON(data []byte) error {
	decoded := orderedmap.NewOrderedMap[string, Watchlist]()

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read result map: %w", err)
	}
	if tok == nil {
		r.replace(decoded)
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("result map must be a JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		username, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected key %v", keyTok)
		}

		var list Watchlist
		if err := dec.Decode(&list); err != nil {
			return fmt.Errorf("failed to decode watchlist for %s: %w", username, err)
		}
		if list == nil {
			list = Watchlist{}
		}
		decoded.Set(username, list)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read result map: %w", err)
	}

	r.replace(decoded)
	return nil
}

func (r *ResultMap) replace(m *orderedmap.OrderedMap[string, Watchlist]) {
	r.mu.Lock()
	r.m = m
	r.mu.Unlock()
}
