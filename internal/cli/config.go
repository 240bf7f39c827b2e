package cli

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/overseer/internal/config"
	"github.com/mrz1836/overseer/internal/logging"
)

// AddConfigCommand adds the config command group to the root command.
func AddConfigCommand(parent *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and check configuration",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd())
	parent.AddCommand(cmd)
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration after layering built-in defaults,
~/.overseer/config.yaml, .overseer/config.yaml and OVERSEER_* environment
variables. The text format is YAML that can be used as a config file.

Examples:
  overseer config show
  overseer config show -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(GetLogger().WithContext(cmd.Context()), cmd)
			if err != nil {
				return err
			}
			return runConfigShow(cmd.OutOrStdout(), outputFormat(cmd), cfg)
		},
	}
}

func runConfigShow(w io.Writer, output string, cfg *config.Config) error {
	tree := configTree(reflect.ValueOf(*cfg))
	if output == OutputJSON {
		return writeJSON(w, tree)
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(tree); err != nil {
		return err
	}
	return encoder.Close()
}

var durationType = reflect.TypeOf(time.Duration(0)) //nolint:gochecknoglobals // reflect type cache

// configTree turns the config into plain maps keyed by yaml tag, with
// durations as strings and string fields that hold secrets masked.
func configTree(v reflect.Value) any {
	switch {
	case v.Type() == durationType:
		return time.Duration(v.Int()).String()
	case v.Kind() == reflect.Struct:
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := range v.NumField() {
			key, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
			if key == "" || key == "-" {
				continue
			}
			field := v.Field(i)
			if field.Kind() == reflect.String {
				out[key] = logging.SafeValue(key, field.String())
				continue
			}
			out[key] = configTree(field)
		}
		return out
	case v.Kind() == reflect.Slice:
		out := make([]any, 0, v.Len())
		for i := range v.Len() {
			out = append(out, configTree(v.Index(i)))
		}
		return out
	default:
		return v.Interface()
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for invalid values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadConfig(GetLogger().WithContext(cmd.Context()), cmd); err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = "defaults, global and project files"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s).\n", path)
			return nil
		},
	}
}
