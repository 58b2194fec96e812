// Package export provides local data backup archives. An archive is a
// tar.gz holding a manifest and the owner's mirror data as JSON, with a
// checksum so a restore can verify integrity before touching anything.
package export

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fintrack-app/fintrack/backend/internal/models"
	"github.com/fintrack-app/fintrack/backend/internal/store"
)

// Service writes backup archives from the local mirror.
type Service struct {
	mirror *store.Mirror
}

// NewService creates a new export Service.
func NewService(mirror *store.Mirror) *Service {
	return &Service{mirror: mirror}
}

// Manifest describes an archive's contents.
type Manifest struct {
	Version    string    `json:"version"`
	OwnerID    string    `json:"owner_id"`
	ExportedAt time.Time `json:"exported_at"`
	ItemCount  int       `json:"item_count"`
	Checksum   string    `json:"checksum"`
}

// Result summarizes a completed export.
type Result struct {
	FilePath  string        `json:"file_path"`
	SizeBytes int64         `json:"size_bytes"`
	ItemCount int           `json:"item_count"`
	Checksum  string        `json:"checksum"`
	Duration  time.Duration `json:"duration"`
}

// archiveData is the JSON body stored inside the archive.
type archiveData struct {
	Accounts     []*models.Account     `json:"accounts"`
	Categories   []*models.Category    `json:"categories"`
	Transactions []*models.Transaction `json:"transactions"`
}

// Export writes the owner's data to a tar.gz archive at outputPath. An
// empty outputPath defaults to exports/fintrack_<timestamp>.tar.gz.
func (s *Service) Export(ctx context.Context, ownerID, outputPath string) (*Result, error) {
	startTime := time.Now()

	data, err := s.collect(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	itemCount := len(data.Accounts) + len(data.Categories) + len(data.Transactions)

	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}
	sum := sha256.Sum256(body)
	checksum := hex.EncodeToString(sum[:])

	manifest := Manifest{
		Version:    "1.0",
		OwnerID:    ownerID,
		ExportedAt: startTime,
		ItemCount:  itemCount,
		Checksum:   checksum,
	}
	manifestBody, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("exports/fintrack_%s.tar.gz",
			startTime.Format("20060102_150405"))
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create exports directory: %w", err)
	}

	sizeBytes, err := writeArchive(outputPath, map[string][]byte{
		"manifest.json": manifestBody,
		"data.json":     body,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		FilePath:  outputPath,
		SizeBytes: sizeBytes,
		ItemCount: itemCount,
		Checksum:  checksum,
		Duration:  time.Since(startTime),
	}, nil
}

func (s *Service) collect(ctx context.Context, ownerID string) (*archiveData, error) {
	accounts, err := s.mirror.QueryAccounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}
	categories, err := s.mirror.QueryCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read categories: %w", err)
	}
	transactions, err := s.mirror.QueryTransactions(ctx, ownerID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return &archiveData{
		Accounts:     accounts,
		Categories:   categories,
		Transactions: transactions,
	}, nil
}

// writeArchive writes the named files into a tar.gz at path, manifest
// first so a reader can validate before decoding the data.
func writeArchive(path string, files map[string][]byte) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	order := []string{"manifest.json", "data.json"}
	now := time.Now()
	for _, name := range order {
		content, ok := files[name]
		if !ok {
			continue
		}
		header := &tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(header); err != nil {
			return 0, fmt.Errorf("failed to write tar header: %w", err)
		}
		if _, err := tw.Write(content); err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finalize gzip: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ReadManifest opens an archive and returns its manifest, verifying the
// data checksum.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	var manifest *Manifest
	var dataChecksum string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive: %w", err)
		}
		switch header.Name {
		case "manifest.json":
			var m Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return nil, fmt.Errorf("invalid manifest: %w", err)
			}
			manifest = &m
		case "data.json":
			h := sha256.New()
			if _, err := io.Copy(h, tr); err != nil {
				return nil, fmt.Errorf("failed to hash data: %w", err)
			}
			dataChecksum = hex.EncodeToString(h.Sum(nil))
		}
	}

	if manifest == nil {
		return nil, fmt.Errorf("archive has no manifest")
	}
	if dataChecksum != "" && dataChecksum != manifest.Checksum {
		return nil, fmt.Errorf("checksum mismatch: archive is corrupt")
	}
	return manifest, nil
}
