package cli

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/errors"
)

func TestAddGlobalFlags(t *testing.T) {
	t.Parallel()

	flags := &GlobalFlags{}
	cmd := &cobra.Command{Use: "test"}
	AddGlobalFlags(cmd, flags)

	assert.Equal(t, OutputText, flags.Output)
	assert.False(t, flags.Verbose)
	assert.False(t, flags.Quiet)

	for name, short := range map[string]string{"output": "o", "verbose": "v", "quiet": "q", "config": ""} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, short, f.Shorthand, name)
	}
}

func TestAddGlobalFlags_ParsesCorrectly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		output  string
		verbose bool
		quiet   bool
		config  string
	}{
		{name: "no flags", args: []string{}, output: OutputText},
		{name: "json short", args: []string{"-o", "json"}, output: OutputJSON},
		{name: "verbose long", args: []string{"--verbose"}, output: OutputText, verbose: true},
		{name: "quiet short", args: []string{"-q"}, output: OutputText, quiet: true},
		{name: "config file", args: []string{"--config", "/etc/overseer.yaml"}, output: OutputText, config: "/etc/overseer.yaml"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			flags := &GlobalFlags{}
			cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
			AddGlobalFlags(cmd, flags)
			cmd.SetArgs(tc.args)
			require.NoError(t, cmd.Execute())

			assert.Equal(t, tc.output, flags.Output)
			assert.Equal(t, tc.verbose, flags.Verbose)
			assert.Equal(t, tc.quiet, flags.Quiet)
			assert.Equal(t, tc.config, flags.ConfigFile)
		})
	}
}

func TestBindGlobalFlags(t *testing.T) {
	t.Parallel()

	flags := &GlobalFlags{}
	cmd := &cobra.Command{Use: "test"}
	AddGlobalFlags(cmd, flags)
	require.NoError(t, cmd.PersistentFlags().Set("output", "json"))

	v := viper.New()
	require.NoError(t, BindGlobalFlags(v, cmd))
	assert.Equal(t, "json", v.GetString("output"))
}

func TestIsValidOutputFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"text", "json"}, ValidOutputFormats())
	assert.True(t, IsValidOutputFormat("text"))
	assert.True(t, IsValidOutputFormat("json"))
	assert.False(t, IsValidOutputFormat("yaml"))
	assert.False(t, IsValidOutputFormat("JSON"))
	assert.False(t, IsValidOutputFormat(""))
}

func TestExitCodeForError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", stderrors.New("disk full"), ExitError},
		{"budget", fmt.Errorf("plan: %w", errors.ErrBudgetExceeded), ExitError},
		{"usage error", errors.NewUsageError(errors.ErrInvalidArgument), ExitInvalidInput},
		{"wrapped usage error", fmt.Errorf("override: %w", errors.NewUsageError(errors.ErrEmptyValue)), ExitInvalidInput},
		{"output format", fmt.Errorf("%w: yaml", errors.ErrInvalidOutputFormat), ExitInvalidInput},
		{"unknown flag", stderrors.New("unknown flag: --nope"), ExitInvalidInput},
		{"mutually exclusive", stderrors.New("if any flags in the group [verbose quiet] are set none of the others can be"), ExitInvalidInput},
		{"arg count", stderrors.New("accepts 1 arg(s), received 0"), ExitInvalidInput},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ExitCodeForError(tc.err))
		})
	}
}
