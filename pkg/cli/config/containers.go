package config

import (
	"os"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/m-mizutani/drover/pkg/domain/interfaces"
	"github.com/m-mizutani/drover/pkg/domain/model"
	"github.com/m-mizutani/drover/pkg/domain/types"
	githubinfra "github.com/m-mizutani/drover/pkg/infra/github"
	"github.com/m-mizutani/drover/pkg/usecase"
)

// Containers holds the container topology configuration
type Containers struct {
	Path string
}

// Flags returns CLI flags for container configuration
func (c *Containers) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Container topology file (YAML)",
			Required:    true,
			Destination: &c.Path,
			Sources:     cli.EnvVars("DROVER_CONFIG"),
		},
	}
}

// containerFile is the YAML schema of the topology file
type containerFile struct {
	Containers []containerDef `yaml:"containers"`
}

type containerDef struct {
	ID          string       `yaml:"id"`
	InitialScan *bool        `yaml:"initial_scan"`
	Sources     []sourceDef  `yaml:"sources"`
	Criteria    *criteriaDef `yaml:"criteria"`
	Strategies  []string     `yaml:"strategies"`
	Retention   retentionDef `yaml:"retention"`
}

type sourceDef struct {
	ID             string `yaml:"id"`
	Type           string `yaml:"type"`
	Owner          string `yaml:"owner"`
	Repo           string `yaml:"repo"`
	Token          string `yaml:"token"`
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

type criteriaDef struct {
	Include    []string `yaml:"include"`
	Exclude    []string `yaml:"exclude"`
	Categories []string `yaml:"categories"`
}

type retentionDef struct {
	KeepCount    int    `yaml:"keep_count"`
	KeepDuration string `yaml:"keep_duration"`
}

// Load parses the topology file and builds the configured containers.
// Source order in the file is rank order: the first source has the highest
// priority.
func (c *Containers) Load() ([]*usecase.Container, error) {
	raw, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read container config",
			goerr.V("path", c.Path), goerr.T(types.ErrTagConfig))
	}

	var file containerFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse container config",
			goerr.V("path", c.Path), goerr.T(types.ErrTagConfig))
	}
	if len(file.Containers) == 0 {
		return nil, goerr.New("no containers configured",
			goerr.V("path", c.Path), goerr.T(types.ErrTagConfig))
	}

	containers := make([]*usecase.Container, 0, len(file.Containers))
	seen := map[string]bool{}
	for _, def := range file.Containers {
		if def.ID == "" {
			return nil, goerr.New("container missing id", goerr.T(types.ErrTagConfig))
		}
		if seen[def.ID] {
			return nil, goerr.New("duplicate container id",
				goerr.V("container", def.ID), goerr.T(types.ErrTagConfig))
		}
		seen[def.ID] = true

		container, err := buildContainer(def)
		if err != nil {
			return nil, err
		}
		containers = append(containers, container)
	}
	return containers, nil
}

func buildContainer(def containerDef) (*usecase.Container, error) {
	if len(def.Sources) == 0 {
		return nil, goerr.New("container has no sources",
			goerr.V("container", def.ID), goerr.T(types.ErrTagConfig))
	}

	sources := make([]interfaces.Source, 0, len(def.Sources))
	seen := map[string]bool{}
	for _, sd := range def.Sources {
		if seen[sd.ID] {
			return nil, goerr.New("duplicate source id",
				goerr.V("container", def.ID), goerr.V("source", sd.ID),
				goerr.T(types.ErrTagConfig))
		}
		seen[sd.ID] = true

		src, err := buildSource(def.ID, sd)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	var opts []usecase.ContainerOption

	if def.Criteria != nil {
		categories := make([]model.HeadCategory, 0, len(def.Criteria.Categories))
		for _, cat := range def.Criteria.Categories {
			categories = append(categories, model.HeadCategory(cat))
		}
		criteria, err := usecase.NewRegexCriteria(def.Criteria.Include, def.Criteria.Exclude, categories)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid criteria", goerr.V("container", def.ID))
		}
		opts = append(opts, usecase.WithCriteria(criteria))
	}

	strategies, err := buildStrategies(def.ID, def.Strategies)
	if err != nil {
		return nil, err
	}
	if len(strategies) > 0 {
		opts = append(opts, usecase.WithStrategies(strategies...))
	}

	retention, err := buildRetention(def.ID, def.Retention)
	if err != nil {
		return nil, err
	}
	opts = append(opts, usecase.WithRetention(retention))

	if def.InitialScan != nil && !*def.InitialScan {
		opts = append(opts, usecase.WithoutInitialScan())
	}

	return usecase.NewContainer(def.ID, sources, opts...), nil
}

func buildSource(containerID string, def sourceDef) (interfaces.Source, error) {
	if def.ID == "" {
		return nil, goerr.New("source missing id",
			goerr.V("container", containerID), goerr.T(types.ErrTagConfig))
	}

	switch def.Type {
	case "github":
		if def.Owner == "" || def.Repo == "" {
			return nil, goerr.New("github source missing owner or repo",
				goerr.V("container", containerID), goerr.V("source", def.ID),
				goerr.T(types.ErrTagConfig))
		}
		client, err := buildGitHubClient(def)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build github client",
				goerr.V("container", containerID), goerr.V("source", def.ID))
		}
		return githubinfra.NewSource(def.ID, def.Owner, def.Repo, client), nil

	default:
		return nil, goerr.New("unknown source type",
			goerr.V("container", containerID), goerr.V("source", def.ID),
			goerr.V("type", def.Type), goerr.T(types.ErrTagConfig))
	}
}

func buildGitHubClient(def sourceDef) (*github.Client, error) {
	if def.Token != "" {
		return github.NewClient(nil).WithAuthToken(def.Token), nil
	}
	if def.AppID != 0 && def.InstallationID != 0 && def.PrivateKeyFile != "" {
		key, err := os.ReadFile(def.PrivateKeyFile)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read private key",
				goerr.V("path", def.PrivateKeyFile), goerr.T(types.ErrTagConfig))
		}
		return githubinfra.NewAppClient(def.AppID, def.InstallationID, key)
	}
	// Unauthenticated access works for public repositories
	return github.NewClient(nil), nil
}

func buildStrategies(containerID string, names []string) ([]interfaces.BuildStrategy, error) {
	strategies := make([]interfaces.BuildStrategy, 0, len(names))
	for _, name := range names {
		switch name {
		case "default":
			strategies = append(strategies, usecase.DefaultStrategy())
		case "build-tags":
			strategies = append(strategies, usecase.BuildTagsStrategy())
		default:
			return nil, goerr.New("unknown build strategy",
				goerr.V("container", containerID), goerr.V("strategy", name),
				goerr.T(types.ErrTagConfig))
		}
	}
	return strategies, nil
}

func buildRetention(containerID string, def retentionDef) (model.RetentionPolicy, error) {
	policy := model.RetentionPolicy{KeepCount: def.KeepCount}
	if def.KeepDuration != "" {
		d, err := time.ParseDuration(def.KeepDuration)
		if err != nil {
			return policy, goerr.Wrap(err, "invalid keep_duration",
				goerr.V("container", containerID), goerr.V("value", def.KeepDuration),
				goerr.T(types.ErrTagConfig))
		}
		policy.KeepDuration = d
	}
	return policy, nil
}
