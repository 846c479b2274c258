package e2e

import "fmt"

// FileDef is a file seeded at the root of both branches of a repository.
type FileDef struct {
	Path    string
	Content string
}

// RepositoryDef defines a repository within an environment.
type RepositoryDef struct {
	Name   string
	Origin string
	Target string
	Files  []FileDef
}

// TestEnvironmentDef defines the repository layout for a test world.
type TestEnvironmentDef struct {
	Name         string
	Repositories []RepositoryDef
}

const (
	nodeManifest   = "{\n  \"name\": \"%s\",\n  \"version\": \"1.0.0\"\n}\n"
	pythonManifest = "[project]\nname = \"%s\"\nversion = \"1.0.0\"\n"
)

// GetEnvironments returns the named release environments.
func GetEnvironments() map[string]TestEnvironmentDef {
	envs := map[string]TestEnvironmentDef{
		"single-node": {
			Name: "single-node",
			Repositories: []RepositoryDef{
				{
					Name:   "svc",
					Origin: "release/v2",
					Target: "main",
					Files:  []FileDef{{Path: "package.json", Content: "{\"version\": \"1.0.0\"}\n"}},
				},
			},
		},
		"mixed-ecosystems": {
			Name: "mixed-ecosystems",
			Repositories: []RepositoryDef{
				nodeRepo("web"),
				pythonRepo("worker"),
				{
					Name:   "hybrid",
					Origin: "develop",
					Target: "main",
					Files: []FileDef{
						{Path: "pyproject.toml", Content: fmt.Sprintf(pythonManifest, "hybrid")},
						{Path: "package.json", Content: fmt.Sprintf(nodeManifest, "hybrid")},
					},
				},
				{
					Name:   "docs",
					Origin: "develop",
					Target: "main",
					Files:  []FileDef{{Path: "README.md", Content: "# docs\n"}},
				},
				{
					Name:   "unversioned",
					Origin: "develop",
					Target: "main",
					Files:  []FileDef{{Path: "package.json", Content: "{\n  \"name\": \"unversioned\"\n}\n"}},
				},
			},
		},
	}

	fleet := TestEnvironmentDef{Name: "fleet"}
	for i := 0; i < 10; i++ {
		fleet.Repositories = append(fleet.Repositories, nodeRepo(fmt.Sprintf("svc-%02d", i)))
	}
	envs[fleet.Name] = fleet

	return envs
}

func nodeRepo(name string) RepositoryDef {
	return RepositoryDef{
		Name:   name,
		Origin: "develop",
		Target: "main",
		Files:  []FileDef{{Path: "package.json", Content: fmt.Sprintf(nodeManifest, name)}},
	}
}

func pythonRepo(name string) RepositoryDef {
	return RepositoryDef{
		Name:   name,
		Origin: "develop",
		Target: "main",
		Files:  []FileDef{{Path: "pyproject.toml", Content: fmt.Sprintf(pythonManifest, name)}},
	}
}

// Seed registers every repository of env under owner.
func (m *MockGitHubServer) Seed(owner string, env TestEnvironmentDef) {
	for _, repo := range env.Repositories {
		m.AddRepository(owner, repo.Name, repo.Origin, repo.Target)
		for _, file := range repo.Files {
			m.SetFile(owner, repo.Name, repo.Origin, file.Path, file.Content)
			m.SetFile(owner, repo.Name, repo.Target, file.Path, file.Content)
		}
	}
}
