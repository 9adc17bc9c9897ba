package parser

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/budgetdb/pkg/types"
)

// Source is a discovered document under the docs root
type Source struct {
	Path    string // Absolute or root-joined path
	RelPath string // Slash separated path relative to the root
	Kind    types.FileKind
	Size    int64
	ModTime int64 // UnixNano
}

// Discover walks root and returns every supported document sorted by
// relative path. Hidden files and directories, and Office lock files
// ("~$name.xlsx"), are skipped.
func Discover(root string) ([]Source, error) {
	var sources []Source

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		name := info.Name()
		if info.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			return nil
		}

		kind, ok := KindOf(path)
		if !ok {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		sources = append(sources, Source{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Kind:    kind,
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].RelPath < sources[j].RelPath
	})
	return sources, nil
}

// Partition splits sources by kind, keeping their order
func Partition(sources []Source) map[types.FileKind][]Source {
	out := make(map[types.FileKind][]Source)
	for _, s := range sources {
		out[s.Kind] = append(out[s.Kind], s)
	}
	return out
}
