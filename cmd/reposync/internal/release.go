package internal

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dangazineu/reposync/internal/config"
	"github.com/dangazineu/reposync/internal/engine"
	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/github"
	"github.com/dangazineu/reposync/internal/interfaces"
	"github.com/dangazineu/reposync/internal/logging"
	"github.com/dangazineu/reposync/internal/report"
)

func NewReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release the target version in every configured repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := newSettings(cmd)
			if err != nil {
				return err
			}
			return runRelease(cmd, settings)
		},
	}

	cmd.Flags().String("tag", "", "Target version, overrides the version in the configuration file")
	cmd.Flags().String("api-url", "", "GitHub API base URL (defaults to https://api.github.com/)")
	cmd.Flags().Int("concurrency", 0, "Maximum repositories released at once, 0 for all")
	cmd.Flags().Bool("dry-run", false, "Detect and rewrite version files without changing any repository")
	cmd.Flags().String("filter", "", "CEL expression over owner, repo, name, origin and target selecting repositories")
	cmd.Flags().Int("read-retries", 0, "Retries for failed reads on transient errors, 0 disables retrying")
	return cmd
}

// plan is the validated input shared by release and validate.
type plan struct {
	config  *config.Config
	version string
	filter  *engine.RepositoryFilter
}

func loadPlan(settings *viper.Viper) (*plan, error) {
	path := settings.GetString("config")
	if path == "" {
		return nil, errors.New(errors.CodeConfiguration, "a configuration file is required, use --config or REPOSYNC_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	version := settings.GetString("tag")
	if version == "" {
		version = cfg.Version
	}
	if err := config.ValidateVersion(version); err != nil {
		return nil, err
	}

	expression := settings.GetString("filter")
	if expression == "" {
		expression = cfg.Filter
	}
	var filter *engine.RepositoryFilter
	if expression != "" {
		filter, err = engine.NewRepositoryFilter(expression)
		if err != nil {
			return nil, err
		}
	}

	return &plan{config: cfg, version: version, filter: filter}, nil
}

func runRelease(cmd *cobra.Command, settings *viper.Viper) error {
	logger, err := logging.NewLogger(settings.GetString("log-level"), settings.GetString("log-format"), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := loadPlan(settings)
	if err != nil {
		return err
	}

	token := p.config.Token()
	if token == "" {
		return errors.New(errors.CodeConfiguration, fmt.Sprintf("no GitHub token: set pat in the configuration file or one of %v", config.TokenEnvVars))
	}

	ghClient, err := github.NewClient(github.Options{
		Token:     token,
		BaseURL:   settings.GetString("api-url"),
		UserAgent: "reposync",
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeConfiguration, "could not create GitHub client")
	}

	var client interfaces.RepositoryClient = ghClient
	if retries := settings.GetInt("read-retries"); retries > 0 {
		retryConfig := engine.DefaultRetryConfig()
		retryConfig.MaxRetries = retries
		client = engine.NewRetryingClient(ghClient, retryConfig, logger)
	}

	concurrency := p.config.Concurrency
	if settings.IsSet("concurrency") {
		concurrency = settings.GetInt("concurrency")
	}

	orchestrator, err := engine.NewOrchestrator(client, logger, engine.Config{
		ConcurrencyLimit: concurrency,
		DryRun:           settings.GetBool("dry-run"),
		Filter:           p.filter,
	})
	if err != nil {
		return err
	}

	result, err := orchestrator.Run(cmd.Context(), engine.Plan{
		Version:      p.version,
		Intent:       p.config.Intent(),
		Repositories: p.config.RepositoryRefs(),
	})
	if err != nil {
		return err
	}

	if err := report.Render(cmd.OutOrStdout(), result, report.Options{NoColor: settings.GetBool("no-color")}); err != nil {
		logger.Warn("could not render report", zap.Error(err))
	}

	if failed := result.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d repositories failed", failed, result.Total())
	}
	return nil
}
