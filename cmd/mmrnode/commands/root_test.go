package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/mmrnode/mmrnode/config"
	"github.com/mmrnode/mmrnode/libs/cli"
	"github.com/mmrnode/mmrnode/libs/log"
	tmos "github.com/mmrnode/mmrnode/libs/os"
)

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// clearConfig clears env vars, the given root dir, and resets viper.
func clearConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	require.NoError(t, os.Unsetenv("MMRNODEHOME"))
	require.NoError(t, os.Unsetenv("MMRNODE_HOME"))
	require.NoError(t, os.Unsetenv("MMRNODE_LOG_LEVEL"))
	require.NoError(t, os.RemoveAll(dir))

	viper.Reset()
	conf := config.DefaultConfig()
	conf.SetRoot(dir)
	return conf
}

// prepare new rootCmd
func testRootCmd(conf *config.Config) *cobra.Command {
	cmd := RootCommand(conf, log.NewNopLogger())
	cmd.RunE = func(cmd *cobra.Command, args []string) error { return nil }
	var l string
	cmd.PersistentFlags().String("log", l, "Log")
	return cmd
}

func testSetup(ctx context.Context, t *testing.T, conf *config.Config, args []string, env map[string]string) error {
	t.Helper()

	cmd := testRootCmd(conf)
	viper.Set(cli.HomeFlag, conf.RootDir)

	// run with the args and env
	args = append([]string{cmd.Use}, args...)
	return cli.RunWithArgs(ctx, cmd, args, env)
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{nil, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"MMRNODEHOME": newRoot}, newRoot},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, tc.root)

			err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.root, conf.RootDir)
			require.DirExists(t, filepath.Join(tc.root, "config"))
			require.DirExists(t, filepath.Join(tc.root, "data"))
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	defaults := config.DefaultConfig()
	defaultDir := t.TempDir()

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		{[]string{"--log", "debug"}, nil, defaults.LogLevel},            // wrong flag
		{[]string{"--log-level", "debug"}, nil, "debug"},                // right flag
		{nil, map[string]string{"MMRNODE_LOG_LEVEL": "debug"}, "debug"}, // right env
		{nil, map[string]string{"MMRNODE_LOW_LEVEL": "debug"}, "info"},  // wrong env
		{nil, map[string]string{"MMRNODELOG_LEVEL": "debug"}, "debug"},  // unprefixed env
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, defaultDir)

			err := testSetup(ctx, t, conf, tc.args, tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.logLevel, conf.LogLevel)
		})
	}
}

func TestRootConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// write non-default config
	nonDefaultLogLvl := "debug"
	cvals := map[string]string{
		"log-level": nonDefaultLogLvl,
	}

	cases := []struct {
		args   []string
		env    map[string]string
		logLvl string
	}{
		{nil, nil, nonDefaultLogLvl},                                    // should load config
		{[]string{"--log-level=info"}, nil, "info"},                     // flag over rides
		{nil, map[string]string{"MMRNODE_LOG_LEVEL": "error"}, "error"}, // env over rides
	}

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			defaultRoot := t.TempDir()
			conf := clearConfig(t, defaultRoot)

			configFilePath := filepath.Join(defaultRoot, "config")
			require.NoError(t, tmos.EnsureDir(configFilePath, 0700))

			// write the non-defaults to a different path
			require.NoError(t, writeConfigVals(configFilePath, cvals))

			// testSetup points the home flag at defaultRoot so the file is found
			require.NoError(t, testSetup(ctx, t, conf, tc.args, tc.env))

			require.Equal(t, tc.logLvl, conf.LogLevel)
			require.Equal(t, defaultRoot, conf.RootDir)
		})
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	err := testSetup(ctx, t, conf, []string{"--log-format", "xml"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log format")
}
