package cmd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/lmagent/internal/config"
)

var flagParseErrorTests = []struct {
	in     string
	flag   string
	reason string
}{
	{
		"unknown flag: --nope",
		"--nope",
		"Flag %s is missing.",
	},
	{
		"flag needs an argument: --continue",
		"--continue",
		"Flag %s needs an argument.",
	},
	{
		"flag needs an argument: 'c' in -c",
		"-c",
		"Flag %s needs an argument.",
	},
	{
		"flag needs an argument: --older-than",
		"--older-than",
		"Flag %s needs an argument.",
	},
	{
		"unknown shorthand flag: 'z' in -z",
		"-z",
		"Short flag %s is missing.",
	},
	{
		`invalid argument "20dd" for "--older-than" flag: time: unknown unit "dd" in duration "20dd"`,
		"--older-than",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "sdfjasdl" for "--max-tokens" flag: strconv.ParseInt: parsing "sdfjasdl": invalid syntax`,
		"--max-tokens",
		"Flag %s have an invalid argument.",
	},
	{
		`invalid argument "nope" for "-r, --raw" flag: strconv.ParseBool: parsing "nope": invalid syntax`,
		"-r, --raw",
		"Flag %s have an invalid argument.",
	},
}

func TestFlagParseError(t *testing.T) {
	for _, tf := range flagParseErrorTests {
		t.Run(tf.in, func(t *testing.T) {
			err := newFlagParseError(errors.New(tf.in))
			require.Equal(t, tf.flag, err.Flag())
			require.Equal(t, tf.reason, err.ReasonFormat())
			require.Equal(t, tf.in, err.Error())
		})
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.SettingsPath = t.TempDir() + "/lmagent.yml"
	cfg.CachePath = t.TempDir()
	return cfg
}

func TestCommonFlags(t *testing.T) {
	t.Run("sampling and limits", func(t *testing.T) {
		cmd := NewRootCmd(BuildInfo{}, testConfig(t), nil)
		require.NoError(t, cmd.ParseFlags([]string{
			"--max-tokens", "2048",
			"--followup-max-tokens", "512",
			"--temp", "0.2",
			"--history-limit", "10",
			"-m", "qwen2.5-coder",
		}))
		require.Equal(t, "2048", cmd.Flag("max-tokens").Value.String())
		require.Equal(t, "512", cmd.Flag("followup-max-tokens").Value.String())
		require.Equal(t, "0.2", cmd.Flag("temp").Value.String())
		require.Equal(t, "10", cmd.Flag("history-limit").Value.String())
		require.Equal(t, "qwen2.5-coder", cmd.Flag("model").Value.String())
	})

	t.Run("negated switches", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Vision = true
		cfg.AllowCommands = true
		cmd := NewRootCmd(BuildInfo{}, cfg, nil)
		require.Equal(t, "false", cmd.Flag("no-vision").Value.String())
		require.NoError(t, cmd.ParseFlags([]string{"--no-vision", "--no-commands=false"}))
		require.Equal(t, "true", cmd.Flag("no-vision").Value.String())
		require.Equal(t, "false", cmd.Flag("no-commands").Value.String())
	})

	t.Run("continue flags exclude each other", func(t *testing.T) {
		cmd := NewRootCmd(BuildInfo{}, testConfig(t), nil)
		cmd.SetArgs([]string{"-c", "abcd", "-C", "hello"})
		err := cmd.Execute()
		require.Error(t, err)
		require.Contains(t, err.Error(), "continue")
	})
}

func TestDurationFlag(t *testing.T) {
	var d time.Duration
	f := newDurationFlag(time.Hour, &d)
	require.Equal(t, time.Hour, d)
	require.Equal(t, "duration", f.Type())

	require.NoError(t, f.Set("7d"))
	require.Equal(t, 7*24*time.Hour, d)
	require.NoError(t, f.Set("90s"))
	require.Equal(t, "1m30s", f.String())
	require.Error(t, f.Set("soon"))
}

func TestNegatedFlag(t *testing.T) {
	on := true
	f := newNegatedFlag(&on)
	require.Equal(t, "false", f.String())
	require.NoError(t, f.Set("true"))
	require.False(t, on)
	require.NoError(t, f.Set("false"))
	require.True(t, on)
	require.Error(t, f.Set("maybe"))
}
