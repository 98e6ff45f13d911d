package main

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/config"
	"watchgraph/pkg/runner"
	"watchgraph/pkg/ui"
)

type stubProfiles map[string]*auth.Profile

func (s stubProfiles) Retrieve(name string) (*auth.Profile, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return nil, auth.ErrCredentialsNotFound
}

func TestResolveCookiesPrefersInline(t *testing.T) {
	cfg := config.DefaultConfig()
	cookies, source, err := resolveCookies(cfg, "b=1;a=2", false, stubProfiles{})
	require.NoError(t, err)
	assert.Equal(t, "command line", source)
	assert.Equal(t, []string{"b", "a"}, cookies.Names())
}

func TestResolveCookiesUsesProfile(t *testing.T) {
	stored, err := auth.ParseCookies("a=secret-value")
	require.NoError(t, err)
	profiles := stubProfiles{"main": {Name: "main", Cookies: stored}}

	cfg := config.DefaultConfig()
	cfg.Auth.Profile = "main"
	cfg.Auth.Cookies = []config.CookieConfig{{Name: "b", Value: "ignored"}}

	cookies, source, err := resolveCookies(cfg, "", true, profiles)
	require.NoError(t, err)
	assert.Equal(t, "profile main", source)
	assert.Same(t, stored, cookies)
}

func TestResolveCookiesMissingExplicitProfile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.Profile = "nope"

	_, _, err := resolveCookies(cfg, "", true, stubProfiles{})
	assert.ErrorIs(t, err, auth.ErrCredentialsNotFound)

	_, _, err = resolveCookies(cfg, "", true, nil)
	assert.Error(t, err)
}

func TestResolveCookiesFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Auth.Cookies = []config.CookieConfig{{Name: "a", Value: "x"}}

	cookies, source, err := resolveCookies(cfg, "", false, stubProfiles{})
	require.NoError(t, err)
	assert.Equal(t, "configuration", source)
	v, _ := cookies.Get("a")
	assert.Equal(t, "x", v)

	cfg.Auth.Cookies = nil
	cookies, source, err = resolveCookies(cfg, "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, "defaults", source)
	assert.Equal(t, auth.DefaultCookieNames, cookies.Names())
}

func TestResolveCookiesRejectsBadInline(t *testing.T) {
	_, _, err := resolveCookies(config.DefaultConfig(), "novalue", false, nil)
	assert.Error(t, err)
}

func TestPromptCookiesSkipsEmptyAnswers(t *testing.T) {
	var out bytes.Buffer
	answers := []string{"session", "", "size"}
	read := func() (string, error) {
		v := answers[0]
		answers = answers[1:]
		return v, nil
	}

	cookies, err := promptCookies(&out, read)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "sz"}, cookies.Names())
	assert.Contains(t, out.String(), "a cookie value: ")
}

func TestCollectFlagsMapping(t *testing.T) {
	usersFlag = []string{"alice"}
	rateLimit = 30
	freshEdges = true
	defer func() {
		usersFlag, rateLimit, freshEdges = nil, 0, false
	}()

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(collectFlags())
	assert.Equal(t, []string{"alice"}, cfg.Users.Names)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerMinute)
	assert.False(t, cfg.Output.AppendEdges)
}

func TestInterruptResult(t *testing.T) {
	var out bytes.Buffer
	prev := ui.Default()
	ui.SetDefault(ui.NewTerminal(&out, false))
	defer ui.SetDefault(prev)

	summary := &runner.Summary{Users: 3, Completed: 1, ResultsFile: "r.json", WatchedByFile: "w.json"}

	assert.NoError(t, interruptResult(summary, runner.ErrInterrupted))
	assert.Contains(t, out.String(), "Saved 1 of 3 users to r.json and w.json")

	out.Reset()
	flushErr := fmt.Errorf("%w: %w", runner.ErrInterrupted, errors.New("disk full"))
	err := interruptResult(summary, flushErr)
	assert.ErrorIs(t, err, runner.ErrInterrupted)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotContains(t, out.String(), "Saved")

	other := errors.New("boom")
	assert.Same(t, other, interruptResult(summary, other))
}
