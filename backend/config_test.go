package backend_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/switchboard/backend"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
	"github.com/tailored-agentic-units/switchboard/session"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := backend.DefaultConfig()

	assert.Equal(t, 100, cfg.Dispatch.CommandBuffer)
	assert.Equal(t, 5, cfg.Dispatch.MailboxSize)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.PollInterval)
	assert.Equal(t, 100, cfg.Relay.BufferSize)
	assert.Equal(t, "slog", cfg.Observer)
	assert.Equal(t, "127.0.0.1:8420", cfg.Listen)

	require.Len(t, cfg.Sessions, 2)
	assert.Equal(t, "Chat Agent", cfg.Sessions[0].Name)
	assert.Equal(t, "Long Term Agent", cfg.Sessions[1].Name)
	assert.Equal(t, session.MechanismSummarize, cfg.Sessions[1].Model.Session.Caching.Mechanism)
}

func TestLoadConfig_Formats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "switchboard.json",
			content: `{
				"listen": ":9000",
				"dispatch": {"poll_interval": "250ms", "max_restarts": -1},
				"relay": {"token_timeout": "1s"},
				"sessions": [{
					"name": "Helper",
					"model": {
						"provider": "echo",
						"options": {"prefix": "> "},
						"session": {
							"init_prompt": [{"role": "system", "content": "be kind"}],
							"caching": {"mechanism": "forgetful", "limit": 4}
						}
					}
				}]
			}`,
		},
		{
			name: "yaml",
			file: "switchboard.yaml",
			content: `
listen: ":9000"
dispatch:
  poll_interval: 250ms
  max_restarts: -1
relay:
  token_timeout: 1s
sessions:
  - name: Helper
    model:
      provider: echo
      options:
        prefix: "> "
      session:
        init_prompt:
          - role: system
            content: be kind
        caching:
          mechanism: forgetful
          limit: 4
`,
		},
		{
			name: "toml",
			file: "switchboard.toml",
			content: `
listen = ":9000"

[dispatch]
poll_interval = "250ms"
max_restarts = -1

[relay]
token_timeout = "1s"

[[sessions]]
name = "Helper"

[sessions.model]
provider = "echo"

[sessions.model.options]
prefix = "> "

[[sessions.model.session.init_prompt]]
role = "system"
content = "be kind"

[sessions.model.session.caching]
mechanism = "forgetful"
limit = 4
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := backend.LoadConfig(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)

			assert.Equal(t, ":9000", cfg.Listen)
			assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.PollInterval)
			assert.Equal(t, -1, cfg.Dispatch.MaxRestarts)
			assert.Equal(t, 5, cfg.Dispatch.MailboxSize, "unset values keep defaults")
			assert.Equal(t, time.Second, cfg.Relay.TokenTimeout)

			require.Len(t, cfg.Sessions, 1)
			s := cfg.Sessions[0]
			assert.Equal(t, "Helper", s.Name)
			assert.Equal(t, "echo", s.Model.Provider)
			assert.Equal(t, "> ", s.Model.Options["prefix"])
			assert.Equal(t, protocol.InitMessages(protocol.RoleSystem, "be kind"), s.Model.Session.InitPrompt)
			assert.Equal(t, session.CachingConfig{Mechanism: session.MechanismForgetful, Limit: 4}, s.Model.Session.Caching)
		})
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	cfg, err := backend.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, backend.DefaultConfig(), *cfg)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SWITCHBOARD_LISTEN", "0.0.0.0:1234")
	t.Setenv("SWITCHBOARD_DISPATCH_MAILBOX_SIZE", "9")
	t.Setenv("SWITCHBOARD_RELAY_TOKEN_TIMEOUT", "3s")

	path := writeFile(t, "switchboard.yaml", "listen: \":9000\"\n")
	cfg, err := backend.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:1234", cfg.Listen)
	assert.Equal(t, 9, cfg.Dispatch.MailboxSize)
	assert.Equal(t, 3*time.Second, cfg.Relay.TokenTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := backend.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := backend.LoadConfig(writeFile(t, "bad.json", "{not json"))
		assert.Error(t, err)
	})

	t.Run("duplicate session", func(t *testing.T) {
		path := writeFile(t, "dup.yaml", "sessions:\n  - name: a\n  - name: a\n")
		_, err := backend.LoadConfig(path)
		assert.ErrorContains(t, err, "already exists")
	})
}

func TestConfig_Merge(t *testing.T) {
	cfg := backend.DefaultConfig()
	cfg.Merge(&backend.Config{Observer: "noop", LogLevel: "debug"})

	assert.Equal(t, "noop", cfg.Observer)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Len(t, cfg.Sessions, 2, "empty session list keeps defaults")
}
