// Package cli is the command tree of the site-content binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stevemurr/site-content-server/config"
)

var unknownCommandPattern = regexp.MustCompile(`unknown command "([^"]+)"`)

// Dependencies wires runtime inputs.
type Dependencies struct {
	Version string
	// LoadConfig defaults to config.Load.
	LoadConfig func(envFile string) (config.Config, error)
}

type globalFlags struct {
	EnvFile string
	Backend string
	DataDir string
}

// NewRootCommand builds the complete command tree.
func NewRootCommand(deps Dependencies) *cobra.Command {
	if deps.LoadConfig == nil {
		deps.LoadConfig = config.Load
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "site-content",
		Short:         "Serve and manage the restaurant site's editable content.",
		Version:       deps.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	// --data_dir and --data-dir are the same flag.
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringVar(&flags.EnvFile, "env-file", ".env", "Optional .env file read before the environment.")
	root.PersistentFlags().StringVar(&flags.Backend, "backend", "", "Override STORE_BACKEND: json, sqlite, postgres or memory.")
	root.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "Override DATA_DIR.")

	load := func(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
		cfg, err := deps.LoadConfig(flags.EnvFile)
		if err != nil {
			return config.Config{}, nil, err
		}
		if flags.Backend != "" {
			cfg.StoreBackend = flags.Backend
		}
		if flags.DataDir != "" {
			cfg.DataDir = flags.DataDir
		}
		if err := cfg.Validate(); err != nil {
			return config.Config{}, nil, err
		}
		return cfg, config.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel), nil
	}

	root.AddCommand(newServeCommand(load))
	root.AddCommand(newContentCommand(load))
	root.AddCommand(newImagesCommand(load))
	root.AddCommand(newHashPasswordCommand())
	return root
}

type loader func(cmd *cobra.Command) (config.Config, *slog.Logger, error)

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string, deps Dependencies, stdout io.Writer, stderr io.Writer) int {
	cmd := NewRootCommand(deps)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if matches := unknownCommandPattern.FindStringSubmatch(err.Error()); len(matches) > 1 {
		_, _ = fmt.Fprintf(stderr, "No such command '%s'\n", matches[1])
		return 2
	}
	_, _ = fmt.Fprintln(stderr, "Error:", err)
	return 1
}
