// Package manifest detects the version-declaration file of a repository and
// rewrites the version it declares.
//
// Each supported project convention is an Ecosystem value carrying its
// filename, the pattern locating its version field and a syntax check for the
// rewritten file. Adding a convention means adding a value to
// DefaultEcosystems; detection code does not change.
package manifest

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Kind names a project ecosystem.
type Kind string

const (
	KindNode   Kind = "node"
	KindPython Kind = "python"
)

// Ecosystem is one manifest convention.
type Ecosystem struct {
	Kind     Kind
	Filename string
	// pattern must capture the current version value in exactly one of its
	// groups; the first participating group is replaced.
	pattern  *regexp.Regexp
	validate func(content []byte) error
}

var (
	// Node matches the "version" key of package.json.
	Node = Ecosystem{
		Kind:     KindNode,
		Filename: "package.json",
		pattern:  regexp.MustCompile(`"version"\s*:\s*"([^"\n]*)"`),
		validate: validateJSON,
	}

	// Python matches a `version = "..."` assignment of pyproject.toml. Both
	// basic and literal TOML strings are recognised.
	Python = Ecosystem{
		Kind:     KindPython,
		Filename: "pyproject.toml",
		pattern:  regexp.MustCompile(`(?m)^[ \t]*version[ \t]*=[ \t]*(?:"([^"\n]*)"|'([^'\n]*)')`),
		validate: validateTOML,
	}
)

// DefaultEcosystems returns the supported conventions in detection priority
// order: Node before Python.
func DefaultEcosystems() []Ecosystem {
	return []Ecosystem{Node, Python}
}

// Rewrite is the result of replacing a manifest's version.
type Rewrite struct {
	Content string
	// Previous is the version value that was replaced.
	Previous string
	// Found is false when the version field could not be located; Content is
	// then the unmodified input.
	Found bool
}

// Rewrite replaces the first version declaration in content with version.
// Every other byte of content is preserved.
func (e Ecosystem) Rewrite(content, version string) Rewrite {
	loc := e.pattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return Rewrite{Content: content}
	}

	for group := 1; 2*group+1 < len(loc); group++ {
		start, end := loc[2*group], loc[2*group+1]
		if start < 0 {
			continue
		}
		return Rewrite{
			Content:  content[:start] + version + content[end:],
			Previous: content[start:end],
			Found:    true,
		}
	}

	return Rewrite{Content: content}
}

// Validate checks that content is syntactically valid for the ecosystem.
func (e Ecosystem) Validate(content string) error {
	if e.validate == nil {
		return nil
	}
	return e.validate([]byte(content))
}

func (e Ecosystem) String() string {
	return fmt.Sprintf("%s (%s)", e.Kind, e.Filename)
}

func validateJSON(content []byte) error {
	if !json.Valid(content) {
		return fmt.Errorf("content is not valid JSON")
	}
	return nil
}

func validateTOML(content []byte) error {
	var doc map[string]interface{}
	if err := toml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("content is not valid TOML: %w", err)
	}
	return nil
}
