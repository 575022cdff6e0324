// Package localdir seeds listings from a directory tree of images. Folder and
// file names become the listing's tags.
package localdir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/timmy/memehustle/internal/source"
)

const SourceID = "localdir"

// Adapter implements source.Source over a local directory.
type Adapter struct {
	root   string
	items  []source.Item
	loaded bool
}

// NewAdapter creates an adapter rooted at dir.
func NewAdapter(dir string) *Adapter {
	return &Adapter{root: dir}
}

func (a *Adapter) ID() string {
	return SourceID
}

// FetchBatch pages through the directory in path order. The cursor is the
// index of the next item.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if !a.loaded {
		if err := a.load(); err != nil {
			return nil, "", fmt.Errorf("failed to scan %s: %w", a.root, err)
		}
		a.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(a.items) {
		return []source.Item{}, "", nil
	}

	end := min(start+limit, len(a.items))
	next := ""
	if end < len(a.items) {
		next = strconv.Itoa(end)
	}
	return a.items[start:end], next, nil
}

// Count returns the number of images found.
func (a *Adapter) Count() (int, error) {
	if !a.loaded {
		if err := a.load(); err != nil {
			return 0, err
		}
		a.loaded = true
	}
	return len(a.items), nil
}

func (a *Adapter) load() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", a.root)
	}

	var items []source.Item
	err = filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			if d.IsDir() && path != a.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		format := formatOf(name)
		if format == "" {
			return nil
		}

		rel, _ := filepath.Rel(a.root, path)
		folder := filepath.Base(filepath.Dir(path))
		if filepath.Dir(rel) == "." {
			folder = ""
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		items = append(items, source.Item{
			SourceID:  filepath.ToSlash(rel),
			Title:     titleFrom(stem),
			Tags:      extractTags(folder, stem),
			Format:    format,
			LocalPath: path,
		})
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].SourceID < items[j].SourceID })
	a.items = items
	return nil
}

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	case ".gif":
		return "gif"
	case ".webp":
		return "webp"
	default:
		return ""
	}
}

// splitWords breaks a file stem on separators commonly used in meme dumps.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
}

func titleFrom(stem string) string {
	words := splitWords(stem)
	if len(words) == 0 {
		return stem
	}
	return strings.Join(words, " ")
}

// extractTags turns the folder name and the words of the file name into
// tags, skipping numbers and single characters.
func extractTags(folder, stem string) []string {
	seen := make(map[string]bool)
	tags := []string{}
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if len([]rune(t)) < 2 || isNumeric(t) || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	if folder != "" {
		add(folder)
	}
	for _, w := range splitWords(stem) {
		add(w)
	}
	return tags
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
