// Package server is the distribution half: a static file server exposing
// archives and manifests to deployers inside the isolated network.
package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Server serves zips and manifests from a single files directory.
type Server struct {
	filesDir string
	logger   zerolog.Logger
}

// New creates a Server rooted at filesDir.
func New(filesDir string, logger zerolog.Logger) *Server {
	return &Server{filesDir: filesDir, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /zip/{name}", s.handleFile([]string{".zip"}, "application/zip"))
	mux.HandleFunc("GET /manifest/{name}", s.handleFile([]string{".json", ".manifest"}, "application/json"))
	return mux
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe(addr string) error {
	if err := os.MkdirAll(s.filesDir, 0755); err != nil {
		return err
	}
	s.logger.Info().Str("addr", addr).Str("files_dir", s.filesDir).Msg("serving files")
	return http.ListenAndServe(addr, s.Handler())
}

// index lists the available archives and manifests.
type index struct {
	Message   string   `json:"message"`
	Zips      []string `json:"zips"`
	Manifests []string `json:"manifests"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	idx := index{Message: "file server is running", Zips: []string{}, Manifests: []string{}}

	entries, err := os.ReadDir(s.filesDir)
	if err != nil && !os.IsNotExist(err) {
		http.Error(w, "cannot list files", http.StatusInternalServerError)
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".zip":
			idx.Zips = append(idx.Zips, entry.Name())
		case ".json", ".manifest":
			idx.Manifests = append(idx.Manifests, entry.Name())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(idx)
}

// handleFile serves one file by name, restricted to the given extensions.
func (s *Server) handleFile(allowedExts []string, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := sanitizeName(r.PathValue("name"))
		if name == "" {
			http.NotFound(w, r)
			return
		}

		ok := false
		ext := strings.ToLower(filepath.Ext(name))
		for _, allowed := range allowedExts {
			if ext == allowed {
				ok = true
				break
			}
		}
		if !ok {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(s.filesDir, name)
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		s.logger.Debug().Str("file", name).Str("remote", r.RemoteAddr).Msg("serving file")
		w.Header().Set("Content-Type", contentType)
		http.ServeFile(w, r, path)
	}
}

// sanitizeName strips any path components from a requested filename.
func sanitizeName(name string) string {
	name = filepath.Base(filepath.Clean(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
