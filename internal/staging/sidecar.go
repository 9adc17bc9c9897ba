package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/pkg/types"
)

// FormatVersion is the staging file layout version. Sidecars written by an
// older format are restaged.
const FormatVersion = "2.0.0"

const (
	dataSuffix    = ".parquet"
	sidecarSuffix = ".meta.json"
	metaFileName  = "_staging_meta.json"

	// mtimeTolerance absorbs filesystems that round modification times
	mtimeTolerance = time.Second
)

// ErrStagingDirMissing is returned when loading from a staging root that
// does not exist
var ErrStagingDirMissing = errors.New("staging directory does not exist")

// Sidecar is the JSON provenance record written next to each staged file
type Sidecar struct {
	SourceFile    string         `json:"source_file"`
	FileType      types.FileKind `json:"file_type"`
	SizeBytes     int64          `json:"size_bytes"`
	ModTimeNanos  int64          `json:"mtime_ns"`
	SHA256        string         `json:"sha256,omitempty"`
	FormatVersion string         `json:"format_version"`
	ParserVersion string         `json:"parser_version"`
	ExhibitType   string         `json:"exhibit_type,omitempty"`
	FiscalYear    string         `json:"fiscal_year,omitempty"`
	RowCount      int            `json:"row_count"`
	PageCount     int            `json:"page_count"`
	FYColumns     []string       `json:"fy_columns,omitempty"`
	Issues        []SidecarIssue `json:"issues,omitempty"`
	DataFile      string         `json:"data_file,omitempty"` // Relative to the sidecar
	Error         string         `json:"error,omitempty"`
	StagedAt      time.Time      `json:"staged_at"`

	path string
}

// SidecarIssue is a page-level extraction problem carried through staging
type SidecarIssue struct {
	PageNumber int    `json:"page_number"`
	IssueType  string `json:"issue_type"`
	Detail     string `json:"detail,omitempty"`
}

// Path returns where the sidecar was read from or written to
func (sc *Sidecar) Path() string {
	return sc.path
}

// DataPath returns the absolute path of the staged data file, or "" when the
// sidecar has none
func (sc *Sidecar) DataPath() string {
	if sc.DataFile == "" || sc.path == "" {
		return ""
	}
	return filepath.Join(filepath.Dir(sc.path), sc.DataFile)
}

// SidecarPath maps a source path relative to the docs root to its sidecar
func SidecarPath(stagingRoot, relPath string) string {
	return filepath.Join(stagingRoot, filepath.FromSlash(relPath)) + sidecarSuffix
}

// DataPath maps a source path relative to the docs root to its data file
func DataPath(stagingRoot, relPath string) string {
	return filepath.Join(stagingRoot, filepath.FromSlash(relPath)) + dataSuffix
}

// ReadSidecar loads one sidecar file
func ReadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("invalid sidecar %s: %w", path, err)
	}
	sc.path = path
	return &sc, nil
}

// writeJSONAtomic writes v to path through a temp file and rename so readers
// never see a partial file
func writeJSONAtomic(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func writeSidecar(path string, sc *Sidecar) error {
	if err := writeJSONAtomic(path, sc); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	sc.path = path
	return nil
}

// olderThan reports whether have is missing, unparsable or lower than want
func olderThan(have, want string) bool {
	hv, err := semver.NewVersion(have)
	if err != nil {
		return true
	}
	wv, err := semver.NewVersion(want)
	if err != nil {
		return false
	}
	return hv.LessThan(wv)
}

// NeedsRestaging reports whether source must be parsed again. It is false
// only when a sidecar exists for the same kind, size and mtime (within one
// second), was written by the current format and parser versions, recorded
// no error, and its data file is still present.
func NeedsRestaging(source, stagingRoot, docsRoot string, kind types.FileKind) bool {
	info, err := os.Stat(source)
	if err != nil {
		return true
	}
	rel := parser.Options{DocsRoot: docsRoot}.RelPath(source)

	sc, err := ReadSidecar(SidecarPath(stagingRoot, rel))
	if err != nil {
		return true
	}
	return !sc.matches(kind, info.Size(), info.ModTime())
}

func (sc *Sidecar) matches(kind types.FileKind, size int64, modTime time.Time) bool {
	if sc.Error != "" || sc.FileType != kind || sc.SizeBytes != size {
		return false
	}
	drift := modTime.Sub(time.Unix(0, sc.ModTimeNanos))
	if drift < -mtimeTolerance || drift > mtimeTolerance {
		return false
	}
	if olderThan(sc.FormatVersion, FormatVersion) || olderThan(sc.ParserVersion, parser.Version) {
		return false
	}
	if p := sc.DataPath(); p != "" {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
