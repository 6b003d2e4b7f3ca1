// Package remoteserver pre-seeds the VS Code server on the isolated
// machine from the bundle, so the first remote-SSH connection never
// attempts an online fetch.
package remoteserver

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// requiredFiles must exist and be executable after a preseed.
var requiredFiles = []string{"server.sh", "node", "bin/code-server"}

// Error reports a preseed that cannot complete cleanly.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "remote server: " + e.Reason }

// serverTarball returns the bundle-relative path of the server tarball for
// a VS Code client commit.
func serverTarball(commit string) string {
	return filepath.Join("vscode-server", commit, "server-linux-x64.tar.gz")
}

// PrepareBundleRoot extracts only the server tarball for the given commit
// from the archive zip into tempDir/bundle, so Preseed can run without
// unpacking the whole archive. The member may carry a leading "bundle/"
// prefix; both layouts are accepted.
func PrepareBundleRoot(archiveZip, commit, tempDir string) (string, error) {
	bundleRoot := filepath.Join(tempDir, "bundle")
	wanted := filepath.ToSlash(serverTarball(commit))

	r, err := zip.OpenReader(archiveZip)
	if err != nil {
		return "", &Error{Reason: fmt.Sprintf("invalid archive %s: %v", archiveZip, err)}
	}
	defer r.Close()

	var member *zip.File
	for _, f := range r.File {
		if f.Name == wanted || f.Name == "bundle/"+wanted {
			member = f
			break
		}
	}
	if member == nil {
		return "", &Error{Reason: fmt.Sprintf("archive %s does not contain %s", archiveZip, wanted)}
	}

	dest := filepath.Join(bundleRoot, wanted)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", &Error{Reason: err.Error()}
	}

	src, err := member.Open()
	if err != nil {
		return "", &Error{Reason: err.Error()}
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return "", &Error{Reason: err.Error()}
	}
	_, copyErr := io.Copy(out, src)
	if closeErr := out.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return "", &Error{Reason: copyErr.Error()}
	}

	return bundleRoot, nil
}

// Preseed unpacks the server tarball into home/.vscode-server/bin/<commit>
// and marks the key files executable. Returns the installed commit dir.
func Preseed(commit, bundleRoot, home string, logger zerolog.Logger) (string, error) {
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return "", &Error{Reason: "cannot resolve home directory: " + err.Error()}
		}
	}

	tarball := filepath.Join(bundleRoot, serverTarball(commit))
	if _, err := os.Stat(tarball); err != nil {
		return "", &Error{Reason: fmt.Sprintf("missing server tarball for commit %s: %s", commit, tarball)}
	}

	target := filepath.Join(home, ".vscode-server", "bin", commit)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", &Error{Reason: err.Error()}
	}

	if err := extractTarGz(tarball, target); err != nil {
		return "", &Error{Reason: fmt.Sprintf("extracting %s: %v", tarball, err)}
	}

	for _, rel := range requiredFiles {
		p := filepath.Join(target, rel)
		info, err := os.Stat(p)
		if err != nil {
			return "", &Error{Reason: "missing required server file: " + p}
		}
		if err := os.Chmod(p, info.Mode().Perm()|0111); err != nil {
			return "", &Error{Reason: err.Error()}
		}
	}

	logger.Info().Str("commit", commit).Str("target", target).Msg("preseeded VS Code server")
	return target, nil
}

// Validate checks that a preseeded commit tree is complete and executable.
func Validate(target string) error {
	var missing []string
	for _, rel := range requiredFiles {
		p := filepath.Join(target, rel)
		info, err := os.Stat(p)
		if err != nil || info.Mode().Perm()&0111 == 0 {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &Error{Reason: fmt.Sprintf("incomplete VS Code server under %s; missing or not executable: %s",
			target, strings.Join(missing, ", "))}
	}
	return nil
}

// extractTarGz unpacks a .tar.gz under destDir with traversal guarding.
func extractTarGz(tarball, destDir string) error {
	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		dest := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if dest != destDir && !strings.HasPrefix(dest, destDir+string(os.PathSeparator)) {
			return fmt.Errorf("member %q escapes extraction root", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			_, copyErr := io.Copy(out, tr)
			if closeErr := out.Close(); copyErr == nil {
				copyErr = closeErr
			}
			if copyErr != nil {
				return copyErr
			}
		}
	}
}
