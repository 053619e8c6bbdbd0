package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// Migration is one SQL change discovered on disk. The set is rebuilt from
// the source directory on every invocation and never mutated.
type Migration struct {
	ID       string
	Filename string
	SQL      string
}

// Discover returns every *.sql file in fsys as a Migration, sorted
// lexicographically by filename. Callers name files so that sort order is
// apply order (zero-padded prefixes). Metadata and non-SQL files are
// ignored. Discover never touches the database.
func Discover(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	out := make([]Migration, 0, len(files))
	for _, file := range files {
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}
		out = append(out, Migration{
			ID:       strings.TrimSuffix(file, ".sql"),
			Filename: file,
			SQL:      string(body),
		})
	}
	return out, nil
}

// DiscoverDir reads migrations from a directory path.
func DiscoverDir(dir string) ([]Migration, error) {
	return Discover(os.DirFS(dir))
}
