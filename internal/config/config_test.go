package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("creates the settings file from the template", func(t *testing.T) {
		sp := filepath.Join(t.TempDir(), "lmagent", "lmagent.yml")
		cfg, err := Load(sp)
		require.NoError(t, err)
		require.FileExists(t, sp)

		def := Default()
		require.Equal(t, DefaultAPI, cfg.API)
		require.InDelta(t, 0.1, cfg.Temperature, 1e-9)
		require.InDelta(t, 0.95, cfg.TopP, 1e-9)
		require.InDelta(t, 1.1, cfg.FrequencyPenalty, 1e-9)
		require.InDelta(t, 0.5, cfg.PresencePenalty, 1e-9)
		require.Equal(t, int64(4096), cfg.MaxTokens)
		require.Equal(t, int64(1024), cfg.FollowupMaxTokens)
		require.Equal(t, "auto", cfg.ToolChoice)
		require.True(t, cfg.ParallelToolCalls)
		require.True(t, cfg.Vision)
		require.True(t, cfg.AllowCommands)
		require.Equal(t, def.RequestTimeout, cfg.RequestTimeout)
		require.Equal(t, 50, cfg.HistoryLimit)
		require.Equal(t, "conversation_history.json", cfg.SnapshotFile)
		require.Equal(t, def.ThinkingPhrases, cfg.ThinkingPhrases)
		require.Equal(t, filepath.Join(filepath.Dir(sp), "history"), cfg.CachePath)

		api, ok := cfg.APIs.Find("lmstudio")
		require.True(t, ok)
		require.Equal(t, "http://localhost:1234/v1", api.BaseURL)
		require.Equal(t, "dummy-key", api.APIKey)

		names := make([]string, 0, len(cfg.APIs))
		for _, api := range cfg.APIs {
			names = append(names, api.Name)
		}
		require.Equal(t, []string{"lmstudio", "ollama", "openai", "anthropic", "google", "openrouter"}, names)
	})

	t.Run("settings file and environment", func(t *testing.T) {
		sp := filepath.Join(t.TempDir(), "lmagent.yml")
		require.NoError(t, os.WriteFile(sp, []byte("default-model: qwen\nvision: false\ntemp: 0.3\nhistory-limit: 10\n"), 0o600))
		t.Setenv("LMAGENT_TEMP", "0.7")
		t.Setenv("LMAGENT_ALLOW_COMMANDS", "false")

		cfg, err := Load(sp)
		require.NoError(t, err)
		require.Equal(t, "qwen", cfg.Model)
		require.False(t, cfg.Vision)
		require.False(t, cfg.AllowCommands)
		require.InDelta(t, 0.7, cfg.Temperature, 1e-9)
		require.Equal(t, 10, cfg.HistoryLimit)
		require.Equal(t, Default().APIs, cfg.APIs)
	})

	t.Run("invalid values", func(t *testing.T) {
		sp := filepath.Join(t.TempDir(), "lmagent.yml")
		require.NoError(t, os.WriteFile(sp, []byte("tool-choice: sometimes\n"), 0o600))
		_, err := Load(sp)
		require.Error(t, err)

		require.NoError(t, os.WriteFile(sp, []byte("apis: [1, 2]\n"), 0o600))
		_, err = Load(sp)
		require.Error(t, err)
	})
}

func TestMergeRolesFromDir(t *testing.T) {
	t.Run("loads text role files as file references", func(t *testing.T) {
		root := t.TempDir()
		rolesDir := filepath.Join(root, "roles")
		require.NoError(t, os.MkdirAll(rolesDir, 0o700))
		file := filepath.Join(rolesDir, "shell.md")
		require.NoError(t, os.WriteFile(file, []byte("you are a shell expert"), 0o600))

		cfg := Config{Runtime: Runtime{SettingsPath: filepath.Join(root, "lmagent.yml")}}
		require.NoError(t, MergeRolesFromDir(&cfg))
		require.Equal(t, []string{"file://" + file}, cfg.Roles["shell"])
	})

	t.Run("loads markdown role definitions as file references", func(t *testing.T) {
		root := t.TempDir()
		rolesDir := filepath.Join(root, "roles")
		require.NoError(t, os.MkdirAll(rolesDir, 0o700))
		reviewer := filepath.Join(rolesDir, "reviewer.md")
		single := filepath.Join(rolesDir, "single.md")
		require.NoError(t, os.WriteFile(reviewer, []byte("be concise\nbe precise\n"), 0o600))
		require.NoError(t, os.WriteFile(single, []byte("be calm"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(rolesDir, "ignore.yml"), []byte("- ignored\n"), 0o600))

		cfg := Config{Runtime: Runtime{SettingsPath: filepath.Join(root, "lmagent.yml")}}
		require.NoError(t, MergeRolesFromDir(&cfg))
		require.Equal(t, []string{"file://" + reviewer}, cfg.Roles["reviewer"])
		require.Equal(t, []string{"file://" + single}, cfg.Roles["single"])
		require.Equal(t, []string{"ignored"}, cfg.Roles["ignore"])
	})

	t.Run("config roles override directory roles", func(t *testing.T) {
		root := t.TempDir()
		rolesDir := filepath.Join(root, "roles")
		require.NoError(t, os.MkdirAll(rolesDir, 0o700))
		shellPath := filepath.Join(rolesDir, "shell.md")
		newRolePath := filepath.Join(rolesDir, "new-role.md")
		require.NoError(t, os.WriteFile(shellPath, []byte("from dir\n"), 0o600))
		require.NoError(t, os.WriteFile(newRolePath, []byte("only in dir\n"), 0o600))

		cfg := Config{
			Settings: Settings{Roles: map[string][]string{"shell": {"from config"}}},
			Runtime:  Runtime{SettingsPath: filepath.Join(root, "lmagent.yml")},
		}
		require.NoError(t, MergeRolesFromDir(&cfg))
		require.Equal(t, []string{"from config"}, cfg.Roles["shell"])
		require.Equal(t, []string{"file://" + newRolePath}, cfg.Roles["new-role"])
	})

	t.Run("loads nested roles recursively with path-based names", func(t *testing.T) {
		root := t.TempDir()
		rolesDir := filepath.Join(root, "roles")
		nested := filepath.Join(rolesDir, "philosophy", "greek")
		require.NoError(t, os.MkdirAll(nested, 0o700))

		stoicPath := filepath.Join(nested, "stoic.md")
		require.NoError(t, os.WriteFile(stoicPath, []byte("keep perspective\n"), 0o600))
		helpersPath := filepath.Join(rolesDir, "helpers", "shell.md")
		require.NoError(t, os.MkdirAll(filepath.Dir(helpersPath), 0o700))
		require.NoError(t, os.WriteFile(helpersPath, []byte("you are a shell expert"), 0o600))
		require.NoError(t, os.WriteFile(filepath.Join(rolesDir, "philosophy", "greek", "ignore.yml"), []byte("- ignored\n"), 0o600))

		cfg := Config{Runtime: Runtime{SettingsPath: filepath.Join(root, "lmagent.yml")}}
		require.NoError(t, MergeRolesFromDir(&cfg))
		require.Equal(t, []string{"file://" + stoicPath}, cfg.Roles["philosophy/greek/stoic"])
		require.Equal(t, []string{"file://" + helpersPath}, cfg.Roles["helpers/shell"])
		require.Equal(t, []string{"ignored"}, cfg.Roles["philosophy/greek/ignore"])
	})
}
