package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/benchgrid/internal/app"
)

func noEnv(string) string { return "" }

func TestParse(t *testing.T) {
	t.Run("positional path with defaults", func(t *testing.T) {
		cfg, exit, err := Parse([]string{"campaign.hcl"}, &bytes.Buffer{}, noEnv)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "campaign.hcl", cfg.CampaignPath)
		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, app.DefaultStoreURI, cfg.StoreURI)
		assert.Equal(t, "text", cfg.LogFormat)
	})

	t.Run("flags", func(t *testing.T) {
		cfg, _, err := Parse([]string{
			"-c", "spec2017/", "-workers", "8", "-timeout", "90m", "-store", "sqlite://bg.db",
			"-output-root", "/scratch", "-log-format", "JSON", "-log-level", "debug",
			"-plan", "-build", "-rerun", "-strict", "-allow-empty",
		}, &bytes.Buffer{}, noEnv)
		require.NoError(t, err)
		assert.Equal(t, &app.Config{
			CampaignPath: "spec2017/",
			Workers:      8,
			Timeout:      90 * time.Minute,
			StoreURI:     "sqlite://bg.db",
			OutputRoot:   "/scratch",
			LogFormat:    "json",
			LogLevel:     "debug",
			AllowEmpty:   true,
			PlanOnly:     true,
			Build:        true,
			Rerun:        true,
			Strict:       true,
		}, cfg)
	})

	t.Run("store from environment", func(t *testing.T) {
		env := func(k string) string {
			if k == StoreEnv {
				return "redis://localhost:6379/0"
			}
			return ""
		}
		cfg, _, err := Parse([]string{"-campaign", "c.yaml"}, &bytes.Buffer{}, env)
		require.NoError(t, err)
		assert.Equal(t, "redis://localhost:6379/0", cfg.StoreURI)

		cfg, _, err = Parse([]string{"-campaign", "c.yaml", "-store", "memory://"}, &bytes.Buffer{}, env)
		require.NoError(t, err)
		assert.Equal(t, "memory://", cfg.StoreURI)
	})

	t.Run("no path prints usage", func(t *testing.T) {
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(nil, out, noEnv)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	testCases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-bogus", "c.hcl"}},
		{"bad log format", []string{"-log-format", "xml", "c.hcl"}},
		{"bad log level", []string{"-log-level", "trace", "c.hcl"}},
		{"zero workers", []string{"-workers", "0", "c.hcl"}},
		{"bad store", []string{"-store", "bg.db", "c.hcl"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Parse(tc.args, &bytes.Buffer{}, noEnv)
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr), "got %v", err)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestFromRunError(t *testing.T) {
	assert.NoError(t, FromRunError(nil))

	var exitErr *ExitError
	require.True(t, errors.As(FromRunError(fmt.Errorf("%w: 1 of 3", app.ErrRunsFailed)), &exitErr))
	assert.Equal(t, ExitCodeRunsFailed, exitErr.Code)

	require.True(t, errors.As(FromRunError(errors.New("boom")), &exitErr))
	assert.Equal(t, 1, exitErr.Code)
}
