package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atsume-io/atsume/internal/models"
)

// Recognized extension sets. The content set is fixed: routing ignores
// anything outside it.
var (
	textExts    = map[string]bool{".txt": true, ".log": true}
	contentExts = map[string]bool{".csv": true, ".txt": true, ".log": true}
	archiveExts = map[string]bool{".zip": true, ".tar": true, ".gz": true, ".tgz": true, ".rar": true, ".7z": true}
)

// KindForPath classifies a file path by extension.
func KindForPath(path string) models.FileKind {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".csv":
		return models.KindCSV
	case textExts[ext]:
		return models.KindText
	default:
		return models.KindIgnored
	}
}

// IsArchivePath reports whether path has a supported archive extension.
func IsArchivePath(path string) bool {
	return archiveExts[strings.ToLower(filepath.Ext(path))]
}

// ExpandPaths expands a list of file and directory paths into a flat,
// order-preserving list of absolute file paths. Directories are enumerated
// recursively. When exts is non-nil, only files with a listed extension are
// included. A path that does not exist yields zero matches.
func ExpandPaths(paths []string, exts map[string]bool) []string {
	var result []string
	for _, path := range paths {
		abs, err := filepath.Abs(expandUser(path))
		if err != nil {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if matchExt(abs, exts) {
				result = append(result, abs)
			}
			continue
		}
		_ = filepath.WalkDir(abs, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || d.IsDir() {
				return nil
			}
			if matchExt(p, exts) {
				result = append(result, p)
			}
			return nil
		})
	}
	return result
}

func matchExt(path string, exts map[string]bool) bool {
	if exts == nil {
		return true
	}
	return exts[strings.ToLower(filepath.Ext(path))]
}

// expandUser replaces a leading ~ with the current user's home directory.
func expandUser(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// FileStem returns the file name without its extension, used to derive
// deterministic record ids.
func FileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
