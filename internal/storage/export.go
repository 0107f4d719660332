package storage

import (
	"context"
	"fmt"
	"time"

	"photostudio/internal/domain"
	"photostudio/internal/imagecodec"
	"photostudio/pkg/bundle"
)

const (
	// ResultFilename is the download name of an edited image.
	ResultFilename = "edited-image.png"
	// BundleFilename is the download name of a result bundle.
	BundleFilename = "edited-image.zip"
	// NarrativeFilename holds the model's message inside a bundle.
	NarrativeFilename = "message.txt"
)

// ResultFiles lists what an export contains: the original (when known), the
// edited image and the narrative when the model sent one.
func ResultFiles(original *domain.Image, result domain.EditResult, at time.Time) ([]bundle.Entry, error) {
	edited, err := imagecodec.FromEncoded(result.EncodedImage)
	if err != nil {
		return nil, fmt.Errorf("storage: decode result: %w", err)
	}
	var entries []bundle.Entry
	if original != nil && !original.IsZero() {
		entries = append(entries, bundle.Entry{
			Name:     "original." + imagecodec.Extension(original.MIMEType),
			Data:     original.Data,
			Modified: at,
		})
	}
	entries = append(entries, bundle.Entry{Name: ResultFilename, Data: edited.Data, Modified: at})
	if result.Narrative != "" {
		entries = append(entries, bundle.Entry{Name: NarrativeFilename, Data: []byte(result.Narrative + "\n"), Modified: at})
	}
	return entries, nil
}

// ResultBundle zips ResultFiles.
func ResultBundle(original *domain.Image, result domain.EditResult, at time.Time) ([]byte, error) {
	entries, err := ResultFiles(original, result, at)
	if err != nil {
		return nil, err
	}
	return bundle.Archive(entries)
}

// ExportResult writes the edited image, and optionally a bundle, into the
// store. It returns the keys written.
func (s *FileStore) ExportResult(ctx context.Context, original *domain.Image, result domain.EditResult, withBundle bool) ([]string, error) {
	now := time.Now()
	entries, err := ResultFiles(original, result, now)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, entry := range entries {
		if entry.Name != ResultFilename {
			continue
		}
		key, err := s.Write(ctx, entry.Name, entry.Data)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	if withBundle {
		archive, err := bundle.Archive(entries)
		if err != nil {
			return keys, err
		}
		key, err := s.Write(ctx, BundleFilename, archive)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
