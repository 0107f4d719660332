// Package bundle packs named files into a zip archive for download.
package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// Entry is one file in the archive.
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// Archive writes entries into a zip archive in order. Names must be unique
// relative paths.
func Archive(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("bundle: no entries")
	}
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := path.Clean(strings.ReplaceAll(strings.TrimSpace(entry.Name), "\\", "/"))
		if name == "." || name == "" || strings.HasPrefix(name, "../") || strings.HasPrefix(name, "/") {
			return nil, fmt.Errorf("bundle: invalid entry name %q", entry.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("bundle: duplicate entry %q", name)
		}
		seen[name] = struct{}{}

		header := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if !entry.Modified.IsZero() {
			header.Modified = entry.Modified
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("bundle: create %s: %w", name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("bundle: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bundle: close: %w", err)
	}
	return buf.Bytes(), nil
}
