// Package config loads the release configuration file.
//
// The file is JSON or YAML:
//
//	{
//	  "pat": "ghp_...",
//	  "version": "2.0.0",
//	  "pattern": {"title": "Release {{version}}", "body": "..."},
//	  "repositories": [
//	    {"owner": "acme", "repo": "svc", "origin": "release/v2", "target": "main", "wait": 5}
//	  ]
//	}
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
)

// TokenEnvVars are consulted in order when the file carries no token.
var TokenEnvVars = []string{"GH_TOKEN", "GITHUB_TOKEN", "GITHUB_API_TOKEN"}

type Config struct {
	PAT          string       `yaml:"pat,omitempty" json:"pat,omitempty"`
	Version      string       `yaml:"version,omitempty" json:"version,omitempty"`
	Filter       string       `yaml:"filter,omitempty" json:"filter,omitempty"`
	Concurrency  int          `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Pattern      Pattern      `yaml:"pattern" json:"pattern"`
	Repositories []Repository `yaml:"repositories" json:"repositories"`
}

type Pattern struct {
	Title         string `yaml:"title" json:"title"`
	Body          string `yaml:"body,omitempty" json:"body,omitempty"`
	CommitMessage string `yaml:"commit_message,omitempty" json:"commit_message,omitempty"`
}

type Repository struct {
	Owner  string `yaml:"owner" json:"owner"`
	Repo   string `yaml:"repo" json:"repo"`
	Origin string `yaml:"origin" json:"origin"`
	Target string `yaml:"target" json:"target"`
	// Wait is a start delay in seconds.
	Wait float64 `yaml:"wait,omitempty" json:"wait,omitempty"`
}

func (r Repository) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Load reads and validates the configuration at path. A missing version is
// accepted here since the command line may supply it; see ValidateVersion.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "could not read config file")
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document. Documents starting
// with '{' are decoded as JSON, which tolerates tab indentation YAML rejects.
func Parse(data []byte) (*Config, error) {
	var config Config
	var err error
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		err = json.Unmarshal(data, &config)
	} else {
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConfiguration, "could not unmarshal config")
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if len(config.Repositories) == 0 {
		return invalid("at least one repository is required")
	}
	if strings.TrimSpace(config.Pattern.Title) == "" {
		return invalid("missing required field: pattern.title")
	}
	if config.Concurrency < 0 {
		return invalid("concurrency cannot be negative")
	}
	if config.Version != "" {
		if err := ValidateVersion(config.Version); err != nil {
			return err
		}
	}

	seen := make(map[string]int, len(config.Repositories))
	for i, repo := range config.Repositories {
		if err := validateRepository(repo); err != nil {
			return errors.Wrap(err, errors.CodeConfiguration, fmt.Sprintf("invalid repository %d", i))
		}
		key := strings.ToLower(repo.FullName())
		if first, exists := seen[key]; exists {
			return invalid(fmt.Sprintf("repository %s is listed twice (entries %d and %d)", repo.FullName(), first, i))
		}
		seen[key] = i
	}

	return nil
}

func validateRepository(repo Repository) error {
	required := []struct{ field, value string }{
		{"owner", repo.Owner},
		{"repo", repo.Repo},
		{"origin", repo.Origin},
		{"target", repo.Target},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("missing required field: %s", r.field)
		}
	}
	if repo.Origin == repo.Target {
		return fmt.Errorf("origin and target must differ, both are %q", repo.Origin)
	}
	if repo.Wait < 0 {
		return fmt.Errorf("wait cannot be negative")
	}
	return nil
}

var refComponent = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._+-]*$`)

// ValidateVersion checks that version can name both a tag and a branch.
func ValidateVersion(version string) error {
	if version == "" {
		return invalid("target version is required")
	}
	if !refComponent.MatchString(version) ||
		strings.Contains(version, "..") ||
		strings.HasSuffix(version, ".") ||
		strings.HasSuffix(version, ".lock") {
		return invalid(fmt.Sprintf("version %q is not a valid git ref name", version))
	}
	return nil
}

// Token returns the configured credential, falling back to the environment.
func (c *Config) Token() string {
	if c.PAT != "" {
		return c.PAT
	}
	for _, name := range TokenEnvVars {
		if token := os.Getenv(name); token != "" {
			return token
		}
	}
	return ""
}

// RepositoryRefs returns the repositories in file order.
func (c *Config) RepositoryRefs() []interfaces.RepositoryRef {
	refs := make([]interfaces.RepositoryRef, 0, len(c.Repositories))
	for _, r := range c.Repositories {
		refs = append(refs, interfaces.RepositoryRef{
			Owner:        r.Owner,
			Repo:         r.Repo,
			OriginBranch: r.Origin,
			TargetBranch: r.Target,
			Wait:         time.Duration(r.Wait * float64(time.Second)),
		})
	}
	return refs
}

func (c *Config) Intent() interfaces.ReleaseIntent {
	return interfaces.ReleaseIntent{
		Title:         c.Pattern.Title,
		Body:          c.Pattern.Body,
		CommitMessage: c.Pattern.CommitMessage,
	}
}

func invalid(message string) error {
	return errors.New(errors.CodeConfiguration, message)
}
