package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"watchgraph/pkg/config"
)

// memoryStore is an in-process CredentialStore for tests
type memoryStore struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	storeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{profiles: make(map[string]*Profile)}
}

func (m *memoryStore) Store(p *Profile) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.Name] = &cp
	return nil
}

func (m *memoryStore) Retrieve(name string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[name]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return p, nil
}

func (m *memoryStore) List() ([]*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[name]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.profiles, name)
	return nil
}

func (m *memoryStore) Exists(name string) bool {
	_, err := m.Retrieve(name)
	return err == nil
}

func sampleCookies() *CookieSet {
	cs := NewCookieSet()
	cs.Set("b", "bbbbbbbb-1111-2222")
	cs.Set("a", "aaaaaaaa-3333-4444")
	cs.Set("sz", "1920x1080")
	return cs
}

func TestCookieSetOrderAndJSON(t *testing.T) {
	cs := sampleCookies()
	cs.Set("b", "replaced")

	assert.Equal(t, []string{"b", "a", "sz"}, cs.Names())

	data, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"b","value":"replaced"},{"name":"a","value":"aaaaaaaa-3333-4444"},{"name":"sz","value":"1920x1080"}]`, string(data))
	assert.True(t, bytes.HasPrefix(data, []byte(`[{"name":"b"`)))

	var decoded CookieSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cs.List(), decoded.List())
}

func TestCookieSetUnmarshalObject(t *testing.T) {
	var cs CookieSet
	require.NoError(t, json.Unmarshal([]byte(`{"sz":"1","a":"2","b":"3"}`), &cs))
	assert.Equal(t, []string{"a", "b", "sz"}, cs.Names())

	require.NoError(t, json.Unmarshal([]byte(`null`), &cs))
	assert.Equal(t, 0, cs.Len())

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &cs))
}

func TestDefaultCookies(t *testing.T) {
	cs := DefaultCookies()
	assert.Equal(t, []string{"b", "a", "sz"}, cs.Names())
	assert.Equal(t, 3, cs.Len())

	data, err := json.Marshal(cs)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"b","value":""},{"name":"a","value":""},{"name":"sz","value":""}]`, string(data))
}

func TestFromConfig(t *testing.T) {
	cs := FromConfig([]config.CookieConfig{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}})
	assert.Equal(t, []Cookie{{"a", "1"}, {"b", "2"}}, cs.List())
}

func TestParseCookies(t *testing.T) {
	cs, err := ParseCookies(" b = x ; a=y;; sz=")
	require.NoError(t, err)
	assert.Equal(t, []Cookie{{"b", "x"}, {"a", "y"}, {"sz", ""}}, cs.List())

	_, err = ParseCookies("novalue")
	assert.Error(t, err)
}

func TestCookieSetStringMasksValues(t *testing.T) {
	cs := sampleCookies()

	v, _ := cs.Get("a")
	assert.Equal(t, "aaaaaaaa-3333-4444", v)
	assert.Equal(t, "b=bbbb...2222; a=aaaa...4444; sz=1920...1080", cs.String())
}

func TestManagerLifecycle(t *testing.T) {
	store := newMemoryStore()
	m := NewManagerWithStores(store)

	p := &Profile{Name: "default", Cookies: sampleCookies()}
	require.NoError(t, m.Store(p))
	assert.False(t, p.LastModified.IsZero())

	got, err := m.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, sampleCookies().List(), got.Cookies.List())

	profiles, err := m.List()
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	require.NoError(t, m.Delete("default"))
	_, err = m.Retrieve("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	err = m.Delete("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerValidation(t *testing.T) {
	m := NewManagerWithStores(newMemoryStore())

	assert.Error(t, m.Store(&Profile{Cookies: sampleCookies()}))
	assert.Error(t, m.Store(&Profile{Name: "x", Cookies: NewCookieSet()}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newMemoryStore()
	broken.storeErr = errors.New("locked")
	backup := newMemoryStore()
	m := NewManagerWithStores(broken, backup)

	require.NoError(t, m.Store(&Profile{Name: "p", Cookies: sampleCookies()}))
	assert.True(t, backup.Exists("p"))
	assert.False(t, broken.Exists("p"))
}

func TestManagerListSortedAndDeduplicated(t *testing.T) {
	first := newMemoryStore()
	second := newMemoryStore()
	m := NewManagerWithStores(first, second)

	require.NoError(t, first.Store(&Profile{Name: "zeta", Cookies: sampleCookies()}))
	require.NoError(t, first.Store(&Profile{Name: "alpha", Cookies: sampleCookies()}))
	require.NoError(t, second.Store(&Profile{Name: "alpha", Cookies: sampleCookies()}))

	profiles, err := m.List()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "alpha", profiles[0].Name)
	assert.Equal(t, "zeta", profiles[1].Name)
}

func TestSanitizeProfile(t *testing.T) {
	p := &Profile{Name: "default", Cookies: sampleCookies()}
	s := SanitizeProfile(p)

	v, _ := s.Cookies.Get("b")
	assert.Equal(t, "bbbb...2222", v)
	p.Cookies.Set("sz", "short")
	v, _ = SanitizeProfile(p).Cookies.Get("sz")
	assert.Equal(t, "********", v)
	assert.Equal(t, p.Cookies.Names(), s.Cookies.Names())
	assert.Nil(t, SanitizeProfile(nil))
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()

	t.Setenv(CookiesEnvVar, "")
	assert.False(t, store.Exists("any"))
	_, err := store.Retrieve("any")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	t.Setenv(CookiesEnvVar, "b=one;a=two")
	p, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "environment", p.Name)
	assert.Equal(t, []string{"b", "a"}, p.Cookies.Names())

	assert.ErrorIs(t, store.Store(p), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("environment"), ErrStoreUnavailable)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnvVar, "correct horse battery staple")
	path := filepath.Join(t.TempDir(), "nested", "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	assert.False(t, store.Exists("default"))
	list, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.Store(&Profile{Name: "default", Cookies: sampleCookies()}))
	require.NoError(t, store.Store(&Profile{Name: "alt", Cookies: DefaultCookies()}))

	got, err := store.Retrieve("default")
	require.NoError(t, err)
	assert.Equal(t, sampleCookies().List(), got.Cookies.List())

	list, err = store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alt", list[0].Name)

	// A second store with the same passphrase reads the same file
	again, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	assert.True(t, again.Exists("alt"))

	require.NoError(t, store.Delete("alt"))
	require.NoError(t, store.Delete("default"))
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, store.Delete("default"), ErrCredentialsNotFound)
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(PassphraseEnvVar, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Profile{Name: "default", Cookies: sampleCookies()}))

	t.Setenv(PassphraseEnvVar, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("default")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, keySize)
	ciphertext, err := encrypt([]byte("secret"), key)
	require.NoError(t, err)

	plaintext, err := decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))

	_, err = decrypt([]byte{1, 2}, key)
	assert.Error(t, err)
}

func TestGuides(t *testing.T) {
	var buf bytes.Buffer
	ShowCookieExtractionGuide(&buf)
	assert.Contains(t, buf.String(), "furaffinity.net")

	buf.Reset()
	ShowQuickExtractGuide(&buf)
	assert.Contains(t, buf.String(), "b, a, sz")
}
