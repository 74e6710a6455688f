package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// Manifest file names, in lookup order.
var manifestNames = []string{"blocks.cue", "blocks.yaml", "blocks.yml"}

// Manifest is the optional description of a block directory.
type Manifest struct {
	Path   string
	Engine string           // minimum engine version, e.g. "v0.3.0"
	Blocks map[string]Entry // keyed by block name
}

// Entry describes one block in a manifest.
//
// Code, when set, is the block source; otherwise the source is read from
// File (default "<name>.vue") next to the manifest. A nil ChildBlocks means
// "infer from imports"; an empty list declares a leaf.
type Entry struct {
	Code        string    `json:"code,omitempty" yaml:"code,omitempty"`
	File        string    `json:"file,omitempty" yaml:"file,omitempty"`
	ChildBlocks *[]string `json:"childBlocks,omitempty" yaml:"childBlocks,omitempty"`
}

// FindManifest returns the manifest path in dir, or "" when there is none.
func FindManifest(dir string) string {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadManifest parses a blocks.cue or blocks.yaml manifest.
// The engine requirement is checked against ir.EngineVersion.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, loadErrorf(ErrCodeNotFound, "manifest not found: %s", path)
		}
		return nil, loadErrorf(ErrCodeLoadFailed, "reading manifest: %v", err)
	}

	var m *Manifest
	switch filepath.Ext(path) {
	case ".cue":
		m, err = parseCUEManifest(path, data)
	case ".yaml", ".yml":
		m, err = parseYAMLManifest(path, data)
	default:
		return nil, loadErrorf(ErrCodeLoadFailed, "unsupported manifest format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	if err := checkEngine(m.Engine); err != nil {
		return nil, err
	}
	for name := range m.Blocks {
		if err := ir.ValidateName(name); err != nil {
			return nil, loadErrorf(ErrCodeBuildFailed, "%s: %v", path, err)
		}
	}
	return m, nil
}

func parseCUEManifest(path string, data []byte) (*Manifest, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, loadErrorf(ErrCodeLoadFailed, "loading CUE manifest: %v", err)
	}

	m := &Manifest{Path: path, Blocks: make(map[string]Entry)}

	if engineVal := value.LookupPath(cue.ParsePath("engine")); engineVal.Exists() {
		s, err := engineVal.String()
		if err != nil {
			return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("engine: %v", err), Pos: engineVal.Pos()}
		}
		m.Engine = s
	}

	blocksVal := value.LookupPath(cue.ParsePath("blocks"))
	if !blocksVal.Exists() {
		return m, nil
	}
	iter, err := blocksVal.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("iterating blocks: %v", err), Pos: blocksVal.Pos()}
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		var e Entry
		if err := iter.Value().Decode(&e); err != nil {
			return nil, &LoadError{
				Code:    ErrCodeBuildFailed,
				Message: fmt.Sprintf("blocks.%s: %v", name, err),
				Pos:     iter.Value().Pos(),
			}
		}
		m.Blocks[name] = e
	}
	return m, nil
}

func parseYAMLManifest(path string, data []byte) (*Manifest, error) {
	var raw struct {
		Engine string           `yaml:"engine"`
		Blocks map[string]Entry `yaml:"blocks"`
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, loadErrorf(ErrCodeLoadFailed, "loading YAML manifest %s: %v", path, err)
	}

	m := &Manifest{Path: path, Engine: raw.Engine, Blocks: raw.Blocks}
	if m.Blocks == nil {
		m.Blocks = make(map[string]Entry)
	}
	return m, nil
}

// checkEngine rejects a manifest that needs a newer engine.
func checkEngine(required string) error {
	if required == "" {
		return nil
	}
	if !semver.IsValid(required) {
		return loadErrorf(ErrCodeBuildFailed, "engine requirement %q is not a semantic version", required)
	}
	if semver.Compare(ir.EngineVersion, required) < 0 {
		return loadErrorf(ErrCodeEngineVersion, "manifest requires engine %s, running %s", required, ir.EngineVersion)
	}
	return nil
}
