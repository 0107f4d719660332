package bundle

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestArchiveContents(t *testing.T) {
	data, err := Archive([]Entry{
		{Name: "original.jpg", Data: []byte("orig")},
		{Name: "edited-image.png", Data: []byte("edit")},
		{Name: "message.txt", Data: []byte("Done")},
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	want := map[string]string{"original.jpg": "orig", "edited-image.png": "edit", "message.txt": "Done"}
	if len(zr.File) != len(want) {
		t.Fatalf("archive has %d files, want %d", len(zr.File), len(want))
	}
	for i, name := range []string{"original.jpg", "edited-image.png", "message.txt"} {
		f := zr.File[i]
		if f.Name != name {
			t.Fatalf("file %d = %q, want %q", i, f.Name, name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		if string(body) != want[name] {
			t.Fatalf("%s = %q, want %q", name, body, want[name])
		}
	}
}

func TestArchiveRejectsBadNames(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{name: "empty", entries: nil},
		{name: "blank name", entries: []Entry{{Name: " "}}},
		{name: "traversal", entries: []Entry{{Name: "../evil"}}},
		{name: "absolute", entries: []Entry{{Name: "/etc/passwd"}}},
		{name: "duplicate", entries: []Entry{{Name: "a.txt"}, {Name: "./a.txt"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Archive(tc.entries); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
