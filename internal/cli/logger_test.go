package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/overseer/internal/config"
	"github.com/mrz1836/overseer/internal/constants"
	"github.com/mrz1836/overseer/internal/logging"
)

func TestInitLogger_LogLevelPrecedence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		verbose       bool
		quiet         bool
		expectedLevel zerolog.Level
	}{
		{
			name:          "default is info level",
			expectedLevel: zerolog.InfoLevel,
		},
		{
			name:          "verbose enables debug level",
			verbose:       true,
			expectedLevel: zerolog.DebugLevel,
		},
		{
			name:          "quiet enables warn level",
			quiet:         true,
			expectedLevel: zerolog.WarnLevel,
		},
		{
			name:          "verbose takes precedence over quiet",
			verbose:       true,
			quiet:         true,
			expectedLevel: zerolog.DebugLevel,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := InitLoggerWithWriter(tc.verbose, tc.quiet, &buf)
			assert.Equal(t, tc.expectedLevel, logger.GetLevel())
			assert.Equal(t, tc.expectedLevel, selectLevel(tc.verbose, tc.quiet))
		})
	}
}

func TestSelectOutput_NonTTY(t *testing.T) {
	// Tests run without a terminal, so NO_COLOR has no visible effect.
	t.Setenv("NO_COLOR", "1")

	assert.Equal(t, os.Stderr, selectOutput())
}

func TestInitLoggerWithWriter_FieldNames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := InitLoggerWithWriter(true, false, &buf)

	logger.Debug().
		Int("iteration", 4).
		Str("goal", "tidy the inbox").
		Msg("iteration started")

	output := buf.String()
	assert.Contains(t, output, `"ts":`)
	assert.Contains(t, output, `"level":"debug"`)
	assert.Contains(t, output, `"event":"iteration started"`)
	assert.Contains(t, output, `"iteration":4`)
	assert.Contains(t, output, `"goal":"tidy the inbox"`)
}

func TestInitLoggerWithWriter_FlagsSensitiveMessages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := InitLoggerWithWriter(false, false, &buf)

	logger.Info().Msg("using key sk-ant-REDACTED")

	assert.Contains(t, buf.String(), `"contains_filtered_data":true`)
}

func TestConfigureZerologGlobals_Idempotent(t *testing.T) {
	t.Parallel()

	configureZerologGlobals()
	configureZerologGlobals()

	assert.Equal(t, "ts", zerolog.TimestampFieldName)
	assert.Equal(t, "event", zerolog.MessageFieldName)
}

func TestLogFilePath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(config.HomeEnvVar, tmpDir)

	path, err := LogFilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, constants.LogsDir, constants.CLILogFileName), path)
}

func TestCreateLogFileWriter(t *testing.T) {
	t.Run("creates directory and file", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv(config.HomeEnvVar, tmpDir)

		writer, err := createLogFileWriter()
		require.NoError(t, err)

		_, err = writer.Write([]byte(`{"level":"info","event":"test"}` + "\n"))
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		info, err := os.Stat(filepath.Join(tmpDir, constants.LogsDir, constants.CLILogFileName))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	})

	t.Run("fails when home is a file", func(t *testing.T) {
		filePath := filepath.Join(t.TempDir(), "not_a_directory")
		require.NoError(t, os.WriteFile(filePath, []byte("test"), 0o600))
		t.Setenv(config.HomeEnvVar, filePath)

		writer, err := createLogFileWriter()
		require.Error(t, err)
		assert.Nil(t, writer)
		assert.Contains(t, err.Error(), "failed to create log directory")
	})
}

func TestInitLogger_RedactsSecretsInFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(config.HomeEnvVar, tmpDir)
	logFileWriter = nil

	logger := InitLogger(false, false)
	logger.Info().Msg("planner token sk-ant-REDACTED loaded")
	CloseLogFile()

	data, err := os.ReadFile(filepath.Join(tmpDir, constants.LogsDir, constants.CLILogFileName)) //#nosec G304 -- test temp dir
	require.NoError(t, err)

	content := string(data)
	assert.NotContains(t, content, "verysecretkey")
	assert.Contains(t, content, logging.RedactedValue)
	assert.Contains(t, content, "planner token")
}

func TestCloseLogFile_NoOpWhenNil(_ *testing.T) {
	logFileWriter = nil
	CloseLogFile()
}

func TestFilteringWriteCloser(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fwc := &filteringWriteCloser{
		filter: logging.NewFilteringWriter(&buf),
		closer: io.NopCloser(&buf),
	}

	input := []byte("hello")
	n, err := fwc.Write(input)
	require.NoError(t, err)
	assert.Equal(t, len(input), n)
	assert.Equal(t, "hello", buf.String())
	require.NoError(t, fwc.Close())
}
