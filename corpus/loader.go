package corpus

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Document is one raw corpus file before chunking.
type Document struct {
	// Path is the document's path relative to the materials root. It is
	// the stable identity used for replace-on-reindex.
	Path string

	Category Category
	Text     string
}

// LoadRoot scans a materials root containing per-category subdirectories
// of plain-text documents. Unreadable files are skipped and logged, never
// fatal to the scan. A missing root is an error; an empty root yields an
// empty slice.
func LoadRoot(root string) ([]Document, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read materials root: %w", err)
	}

	var docs []Document
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		category := ParseCategory(entry.Name())
		dir := filepath.Join(root, entry.Name())

		files, err := os.ReadDir(dir)
		if err != nil {
			log.Printf("[CORPUS] skipping unreadable category dir %s: %v", dir, err)
			continue
		}
		for _, file := range files {
			if file.IsDir() || !isTextFile(file.Name()) {
				continue
			}
			path := filepath.Join(entry.Name(), file.Name())
			data, err := os.ReadFile(filepath.Join(root, path))
			if err != nil {
				log.Printf("[CORPUS] skipping unreadable file %s: %v", path, err)
				continue
			}
			text := strings.TrimSpace(string(data))
			if text == "" {
				continue
			}
			docs = append(docs, Document{Path: path, Category: category, Text: text})
		}
	}

	log.Printf("[CORPUS] loaded %d documents from %s", len(docs), root)
	return docs, nil
}

func isTextFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}
