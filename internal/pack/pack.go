// Package pack is the internet-side producer: it collects .vsix packages
// and builds the checksummed archive plus manifest that the deployer
// consumes on the other side of the air gap.
package pack

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vsixgate/vsixgate/internal/extension"
	"github.com/vsixgate/vsixgate/internal/fetch"
	"github.com/vsixgate/vsixgate/internal/integrity"
)

// DefaultMarketplaceURL is the Visual Studio Marketplace package endpoint.
// The {publisher}, {name}, and {version} placeholders are substituted per
// extension.
const DefaultMarketplaceURL = "https://marketplace.visualstudio.com/_apis/public/gallery/publishers/{publisher}/vsextensions/{name}/{version}/vspackage"

// File is one collected .vsix ready for packaging.
type File struct {
	Ref  extension.Ref
	Path string
}

// Packer builds archives and manifests from collected extensions.
type Packer struct {
	logger zerolog.Logger
}

// New creates a Packer.
func New(logger zerolog.Logger) *Packer {
	return &Packer{logger: logger}
}

// Fetch downloads the given extensions from the marketplace into
// downloadDir. With skipFailed set, a failed download is logged and the
// rest continue; otherwise the first failure aborts.
func (p *Packer) Fetch(ctx context.Context, refs []extension.Ref, marketplaceURL, downloadDir string, retries int, skipFailed bool) ([]File, error) {
	if marketplaceURL == "" {
		marketplaceURL = DefaultMarketplaceURL
	}
	if err := os.MkdirAll(downloadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating download dir: %w", err)
	}

	fetcher := fetch.New(retries, p.logger)

	var files []File
	for _, ref := range refs {
		url := strings.NewReplacer(
			"{publisher}", ref.Publisher,
			"{name}", ref.Name,
			"{version}", ref.Version,
		).Replace(marketplaceURL)

		dest := filepath.Join(downloadDir, ref.DirName()+".vsix")
		if _, err := fetcher.DownloadTo(ctx, url, dest); err != nil {
			if !skipFailed {
				return nil, fmt.Errorf("fetching %s: %w", ref, err)
			}
			p.logger.Error().Err(err).Str("extension", ref.String()).Msg("skipping failed download")
			continue
		}
		files = append(files, File{Ref: ref, Path: dest})
	}

	return files, nil
}

// Collect gathers already-downloaded .vsix files from a directory, taking
// each ref from the "publisher.name-version.vsix" filename.
func (p *Packer) Collect(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []File
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".vsix") {
			continue
		}
		ref, ok := extension.ParseDirName(strings.TrimSuffix(name, ".vsix"))
		if !ok {
			p.logger.Warn().Str("file", name).Msg("skipping unrecognized vsix filename")
			continue
		}
		files = append(files, File{Ref: ref, Path: filepath.Join(dir, name)})
	}

	return files, nil
}

// Build writes the archive zip and manifest into outputDir, expanding the
// {{date}} placeholder in nameTemplate. Returns (zipPath, manifestPath).
func (p *Packer) Build(files []File, outputDir, nameTemplate string) (string, string, error) {
	if len(files) == 0 {
		return "", "", fmt.Errorf("no extensions to package")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", "", fmt.Errorf("creating output dir: %w", err)
	}

	now := time.Now().UTC()
	zipName := strings.ReplaceAll(nameTemplate, "{{date}}", now.Format("2006-01-02"))
	if !strings.HasSuffix(zipName, ".zip") {
		zipName += ".zip"
	}
	zipPath := filepath.Join(outputDir, zipName)
	manifestPath := strings.TrimSuffix(zipPath, ".zip") + ".manifest.json"

	entries, err := p.writeArchive(zipPath, files)
	if err != nil {
		os.Remove(zipPath)
		return "", "", err
	}

	if err := writeManifest(manifestPath, now, entries); err != nil {
		os.Remove(zipPath)
		return "", "", err
	}

	p.logger.Info().
		Str("archive", zipPath).
		Str("manifest", manifestPath).
		Int("extensions", len(entries)).
		Msg("built archive")

	return zipPath, manifestPath, nil
}

// manifestEntry mirrors the manifest wire format written for each file.
type manifestEntry struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Path    string `json:"path"`
	SHA256  string `json:"sha256"`
	Size    int64  `json:"size"`
}

func (p *Packer) writeArchive(zipPath string, files []File) ([]manifestEntry, error) {
	out, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	entries := make([]manifestEntry, 0, len(files))

	for _, file := range files {
		memberPath := "extensions/" + file.Ref.DirName() + ".vsix"

		info, err := os.Stat(file.Path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", file.Path, err)
		}
		sum, err := integrity.FileSHA256(file.Path)
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", file.Path, err)
		}

		w, err := zw.Create(memberPath)
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", memberPath, err)
		}
		in, err := os.Open(file.Path)
		if err != nil {
			return nil, err
		}
		_, copyErr := io.Copy(w, in)
		in.Close()
		if copyErr != nil {
			return nil, fmt.Errorf("writing %s: %w", memberPath, copyErr)
		}

		entries = append(entries, manifestEntry{
			ID:      file.Ref.ID(),
			Version: file.Ref.Version,
			Path:    memberPath,
			SHA256:  sum,
			Size:    info.Size(),
		})
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return entries, out.Close()
}

func writeManifest(path string, created time.Time, entries []manifestEntry) error {
	doc := struct {
		Created    string          `json:"created"`
		Count      int             `json:"count"`
		Extensions []manifestEntry `json:"extensions"`
	}{
		Created:    created.Format(time.RFC3339),
		Count:      len(entries),
		Extensions: entries,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
