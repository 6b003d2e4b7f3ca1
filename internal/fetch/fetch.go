// Package fetch downloads the extension archive and manifest from the
// local distribution server. This is the only operation in a run that
// blocks on external latency, so it carries bounded retries.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const userAgent = "vsixgate-deployer"

// Fetcher downloads files over HTTP with retries and fixed backoff.
type Fetcher struct {
	client  *http.Client
	retries int
	backoff time.Duration
	logger  zerolog.Logger
}

// New creates a Fetcher. retries is the number of re-attempts after the
// first failure; values below zero are treated as zero.
func New(retries int, logger zerolog.Logger) *Fetcher {
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		client:  &http.Client{Timeout: 5 * time.Minute},
		retries: retries,
		backoff: 2 * time.Second,
		logger:  logger,
	}
}

// Download fetches rawURL into destDir, keeping the URL's base filename.
// Returns the local path of the downloaded file.
func (f *Fetcher) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", rawURL, err)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("url %q has no usable filename", rawURL)
	}
	return f.DownloadTo(ctx, rawURL, filepath.Join(destDir, name))
}

// DownloadTo fetches rawURL into the exact destination path.
func (f *Fetcher) DownloadTo(ctx context.Context, rawURL, destPath string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			f.logger.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Str("url", rawURL).
				Msg("retrying download")
			select {
			case <-time.After(f.backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		if lastErr = f.downloadOnce(ctx, rawURL, destPath); lastErr == nil {
			f.logger.Info().Str("url", rawURL).Str("dest", destPath).Msg("downloaded")
			return destPath, nil
		}
	}

	return "", fmt.Errorf("downloading %s after %d attempts: %w", rawURL, f.retries+1, lastErr)
}

func (f *Fetcher) downloadOnce(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	_, copyErr := io.Copy(out, resp.Body)
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(destPath)
		return fmt.Errorf("writing %s: %w", destPath, copyErr)
	}
	return nil
}
