package manifest

import (
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
)

const packageJSON = `{
  "name": "svc",
  "version": "1.0.0",
  "dependencies": {
    "left-pad": "1.3.0"
  }
}
`

const pyproject = `[project]
name = "svc"
version = "1.0.0"
description = "a service"

[tool.poetry]
version = "0.0.0"
`

func file(name, content string) interfaces.RootFile {
	return interfaces.RootFile{Name: name, Path: name, Type: "file", ContentID: "sha-" + name, Content: content}
}

func TestDetectPrefersNodeOverPython(t *testing.T) {
	orders := [][]interfaces.RootFile{
		{file("package.json", packageJSON), file("pyproject.toml", pyproject)},
		{file("pyproject.toml", pyproject), file("package.json", packageJSON)},
		{file("README.md", "# svc"), file("pyproject.toml", pyproject), file("LICENSE", ""), file("package.json", packageJSON)},
	}

	detector := NewDetector()
	for _, files := range orders {
		vf, err := detector.Detect(files, "2.0.0")
		require.NoError(t, err)
		require.Equal(t, KindNode, vf.Kind)
		require.Equal(t, "package.json", vf.Path)
		require.Equal(t, "sha-package.json", vf.ContentID)
	}
}

func TestDetectNoMatch(t *testing.T) {
	files := []interfaces.RootFile{
		file("README.md", "# svc"),
		file("go.mod", "module svc\n"),
		{Name: "package.json", Path: "package.json", Type: "dir"},
		file("Package.json", packageJSON),
	}

	_, err := NewDetector().Detect(files, "2.0.0")
	require.Error(t, err)
	require.True(t, stderrors.Is(err, errors.ErrNoVersionFile))
	require.Contains(t, err.Error(), "package.json")
	require.Contains(t, err.Error(), "pyproject.toml")
}

func TestDetectEmptyRoot(t *testing.T) {
	_, err := NewDetector().Detect(nil, "2.0.0")
	require.True(t, stderrors.Is(err, errors.ErrNoVersionFile))
}

func TestRewriteChangesOnlyVersionValue(t *testing.T) {
	testCases := []struct {
		name      string
		ecosystem Ecosystem
		content   string
		expected  string
	}{
		{
			name:      "node manifest",
			ecosystem: Node,
			content:   packageJSON,
			expected:  strings.Replace(packageJSON, `"version": "1.0.0"`, `"version": "2.0.0"`, 1),
		},
		{
			name:      "node compact",
			ecosystem: Node,
			content:   "{\"version\": \"1.0.0\"}\n",
			expected:  "{\"version\": \"2.0.0\"}\n",
		},
		{
			name:      "node without spaces and trailing newline",
			ecosystem: Node,
			content:   `{"name":"x","version":"0.1.0-beta.1"}`,
			expected:  `{"name":"x","version":"2.0.0"}`,
		},
		{
			name:      "python replaces first assignment only",
			ecosystem: Python,
			content:   pyproject,
			expected:  strings.Replace(pyproject, `version = "1.0.0"`, `version = "2.0.0"`, 1),
		},
		{
			name:      "python literal string",
			ecosystem: Python,
			content:   "[project]\nversion='1.0.0'\n",
			expected:  "[project]\nversion='2.0.0'\n",
		},
		{
			name:      "python ignores inline dependency versions",
			ecosystem: Python,
			content:   "[deps]\nrequests = { version = \"^2\" }\n[project]\nversion = \"1.0.0\"\n",
			expected:  "[deps]\nrequests = { version = \"^2\" }\n[project]\nversion = \"2.0.0\"\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rewrite := tc.ecosystem.Rewrite(tc.content, "2.0.0")
			require.True(t, rewrite.Found)
			require.Equal(t, tc.expected, rewrite.Content)
			require.Equal(t, strings.Count(tc.content, "\n"), strings.Count(rewrite.Content, "\n"))
		})
	}
}

func TestRewriteRecordsPreviousVersion(t *testing.T) {
	rewrite := Node.Rewrite(packageJSON, "3.1.4")
	require.Equal(t, "1.0.0", rewrite.Previous)

	rewrite = Python.Rewrite("version = '0.9'\n", "1.0")
	require.Equal(t, "0.9", rewrite.Previous)
}

func TestRewriteWithoutVersionFieldIsPassthrough(t *testing.T) {
	content := "{\n  \"name\": \"svc\"\n}\n"
	rewrite := Node.Rewrite(content, "2.0.0")
	require.False(t, rewrite.Found)
	require.Equal(t, content, rewrite.Content)

	vf, err := NewDetector().Detect([]interfaces.RootFile{file("package.json", content)}, "2.0.0")
	require.NoError(t, err)
	require.False(t, vf.FieldFound)
	require.False(t, vf.Changed())
	require.Equal(t, content, vf.Rewritten)
}

func TestApplySameVersionIsUnchangedButFound(t *testing.T) {
	vf, err := Node.Apply(file("package.json", packageJSON), "1.0.0")
	require.NoError(t, err)
	require.True(t, vf.FieldFound)
	require.False(t, vf.Changed())
}

func TestApplyRejectsRewriteThatBreaksManifest(t *testing.T) {
	_, err := Python.Apply(file("pyproject.toml", pyproject), `2.0.0"broken`)
	require.Error(t, err)
	require.True(t, stderrors.Is(err, errors.ErrInvalidManifest))
}

func TestApplySkipsValidationForAlreadyInvalidManifest(t *testing.T) {
	content := "{\"version\": \"1.0.0\",}\n"
	vf, err := Node.Apply(file("package.json", content), "2.0.0")
	require.NoError(t, err)
	require.Equal(t, "{\"version\": \"2.0.0\",}\n", vf.Rewritten)
}

func TestCustomDetectionOrder(t *testing.T) {
	files := []interfaces.RootFile{file("package.json", packageJSON), file("pyproject.toml", pyproject)}

	vf, err := NewDetector(Python, Node).Detect(files, "2.0.0")
	require.NoError(t, err)
	require.Equal(t, KindPython, vf.Kind)

	var kinds []Kind
	for _, ecosystem := range NewDetector(Python, Node).Ecosystems() {
		kinds = append(kinds, ecosystem.Kind)
	}
	require.Equal(t, []Kind{KindPython, KindNode}, kinds)
}

func TestSelectDoesNotNeedContent(t *testing.T) {
	files := []interfaces.RootFile{{Name: "pyproject.toml", Path: "pyproject.toml", Type: "file", ContentID: "abc"}}
	ecosystem, selected, ok := NewDetector().Select(files)
	require.True(t, ok)
	require.Equal(t, KindPython, ecosystem.Kind)
	require.Equal(t, "abc", selected.ContentID)
}
