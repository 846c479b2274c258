package manifest

import (
	"fmt"

	"github.com/dangazineu/reposync/internal/errors"
	"github.com/dangazineu/reposync/internal/interfaces"
)

// VersionFile is a detected manifest together with its rewritten content.
type VersionFile struct {
	Path           string
	Kind           Kind
	ContentID      string
	CurrentVersion string
	Original       string
	Rewritten      string
	// FieldFound is false when the manifest was recognised by name but its
	// version field could not be located.
	FieldFound bool
}

// Changed reports whether the rewrite altered the content.
func (v VersionFile) Changed() bool {
	return v.Original != v.Rewritten
}

// Detector selects a repository's version file from its root entries.
type Detector struct {
	ecosystems []Ecosystem
}

// NewDetector returns a detector trying ecosystems in the given order. With
// no arguments DefaultEcosystems is used.
func NewDetector(ecosystems ...Ecosystem) *Detector {
	if len(ecosystems) == 0 {
		ecosystems = DefaultEcosystems()
	}
	ordered := make([]Ecosystem, len(ecosystems))
	copy(ordered, ecosystems)
	return &Detector{ecosystems: ordered}
}

// Ecosystems returns the detection order.
func (d *Detector) Ecosystems() []Ecosystem {
	out := make([]Ecosystem, len(d.ecosystems))
	copy(out, d.ecosystems)
	return out
}

// Select returns the highest priority ecosystem with a file in files, and
// that file. Names are compared exactly; directories never match.
func (d *Detector) Select(files []interfaces.RootFile) (Ecosystem, interfaces.RootFile, bool) {
	for _, ecosystem := range d.ecosystems {
		for _, file := range files {
			if file.IsFile() && file.Name == ecosystem.Filename {
				return ecosystem, file, true
			}
		}
	}
	return Ecosystem{}, interfaces.RootFile{}, false
}

// Locate is Select with the absence of a match reported as an
// errors.ErrNoVersionFile error.
func (d *Detector) Locate(files []interfaces.RootFile) (Ecosystem, interfaces.RootFile, error) {
	ecosystem, file, ok := d.Select(files)
	if !ok {
		return Ecosystem{}, interfaces.RootFile{}, errors.New(errors.CodeNoVersionFile,
			fmt.Sprintf("none of %s present at repository root", d.filenames()))
	}
	return ecosystem, file, nil
}

// Detect selects the version file among files, whose Content must be
// populated, and rewrites it to version.
func (d *Detector) Detect(files []interfaces.RootFile, version string) (VersionFile, error) {
	ecosystem, file, err := d.Locate(files)
	if err != nil {
		return VersionFile{}, err
	}
	return ecosystem.Apply(file, version)
}

// Apply rewrites file to version. A missing version field is not an error
// here; the returned VersionFile has FieldFound false and unmodified content.
// A rewrite that breaks a previously valid manifest fails with
// errors.ErrInvalidManifest.
func (e Ecosystem) Apply(file interfaces.RootFile, version string) (VersionFile, error) {
	rewrite := e.Rewrite(file.Content, version)

	path := file.Path
	if path == "" {
		path = file.Name
	}

	vf := VersionFile{
		Path:           path,
		Kind:           e.Kind,
		ContentID:      file.ContentID,
		CurrentVersion: rewrite.Previous,
		Original:       file.Content,
		Rewritten:      rewrite.Content,
		FieldFound:     rewrite.Found,
	}

	if rewrite.Found && vf.Changed() && e.Validate(file.Content) == nil {
		if err := e.Validate(rewrite.Content); err != nil {
			return VersionFile{}, errors.Wrap(err, errors.CodeInvalidManifest,
				fmt.Sprintf("rewriting %s to %q produced an invalid manifest", path, version))
		}
	}

	return vf, nil
}

func (d *Detector) filenames() []string {
	names := make([]string, 0, len(d.ecosystems))
	for _, ecosystem := range d.ecosystems {
		names = append(names, ecosystem.Filename)
	}
	return names
}
