package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// LoadMode controls how errors are handled during registry loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the results of loading a block directory.
type LoadResult struct {
	Registry  ir.BlockRegistry
	Manifest  *Manifest // nil when the directory has none
	FileCount int       // number of .vue files read
}

// InferChildren returns the block names imported by code through
// "./<Name>.vue" paths, in first-occurrence order. Names that cannot be
// block names are skipped.
func InferChildren(code string) []string {
	var names []string
	for _, name := range ir.ChildImports(code) {
		if ir.ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	return names
}

// LoadDir loads every block in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{loadErrorf(ErrCodeNotFound, "blocks directory not found: %s", dir)}
	}
	if err != nil {
		return nil, []error{loadErrorf(ErrCodeNotFound, "error accessing blocks directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, []error{loadErrorf(ErrCodeNotFound, "not a directory: %s", dir)}
	}

	files, err := FindVueFiles(dir)
	if err != nil {
		return nil, []error{loadErrorf(ErrCodeScanError, "error scanning directory: %v", err)}
	}

	result := &LoadResult{Registry: make(ir.BlockRegistry)}
	var errs []error
	fail := func(err error) bool {
		errs = append(errs, err)
		return mode == LoadModeFailFast
	}

	claimed := make(map[string]bool)
	if path := FindManifest(dir); path != "" {
		m, err := LoadManifest(path)
		if err != nil {
			return nil, []error{err}
		}
		result.Manifest = m

		names := make([]string, 0, len(m.Blocks))
		for name := range m.Blocks {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			entry := m.Blocks[name]
			block := ir.BlockDefinition{Name: name, Code: entry.Code, File: entry.File}
			if entry.Code == "" {
				file := block.FileName()
				claimed[file] = true
				code, err := readBlock(dir, file)
				if err != nil {
					if fail(err) {
						return result, errs
					}
					continue
				}
				block.Code = code
				result.FileCount++
			}
			if entry.ChildBlocks != nil {
				block.ChildBlocks = append([]string{}, (*entry.ChildBlocks)...)
			} else {
				block.ChildBlocks = InferChildren(block.Code)
			}
			result.Registry[name] = block
		}
	}

	for _, path := range files {
		file := filepath.Base(path)
		if claimed[file] {
			continue
		}
		name := strings.TrimSuffix(file, ".vue")
		if err := ir.ValidateName(name); err != nil {
			if fail(loadErrorf(ErrCodeBuildFailed, "%s: %v", path, err)) {
				return result, errs
			}
			continue
		}
		if _, ok := result.Registry[name]; ok {
			if fail(loadErrorf(ErrCodeBuildFailed, "%s: block %q is already defined by the manifest", path, name)) {
				return result, errs
			}
			continue
		}
		code, err := readBlock(dir, file)
		if err != nil {
			if fail(err) {
				return result, errs
			}
			continue
		}
		result.FileCount++
		result.Registry[name] = ir.BlockDefinition{
			Name:        name,
			Code:        code,
			ChildBlocks: InferChildren(code),
		}
	}

	if len(result.Registry) == 0 && len(errs) == 0 {
		errs = append(errs, loadErrorf(ErrCodeNoBlocks, "no blocks found in %s", dir))
	}

	return result, errs
}

// FindVueFiles returns the .vue files directly inside dir, sorted.
func FindVueFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".vue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

func readBlock(dir, file string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		if os.IsNotExist(err) {
			return "", loadErrorf(ErrCodeReadFailed, "block file not found: %s", file)
		}
		return "", &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading %s: %v", file, err)}
	}
	return string(data), nil
}
