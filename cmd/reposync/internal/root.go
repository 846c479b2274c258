package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces the environment variables bound to flags, e.g.
// REPOSYNC_LOG_LEVEL for --log-level.
const EnvPrefix = "REPOSYNC"

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reposync",
		Short: "Reposync releases one version across many repositories.",
		Long: `Reposync bumps the version file of every configured repository, opens and merges a
pull request from the origin branch into the target branch, publishes a release and creates
a branch named after the version. Repositories are processed in parallel and a failure in one
never stops the others.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetGlobalNormalizationFunc(normalizeFlagName)

	cmd.PersistentFlags().String("config", "", "Path to the release configuration file (JSON or YAML)")
	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	cmd.PersistentFlags().String("log-format", "console", "Log format: console or json")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	cmd.AddCommand(NewReleaseCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewCompletionCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// normalizeFlagName accepts snake_case spellings of flags, matching the keys
// of the configuration file.
func normalizeFlagName(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// newSettings binds every flag visible to cmd, including inherited ones, to a
// viper instance that also reads REPOSYNC_* environment variables.
func newSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("could not bind flags: %w", err)
	}
	return v, nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
