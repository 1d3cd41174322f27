package server

import (
	"compress/gzip"
	"io"
	"net/http"
	"path"
	"strings"
)

// StaticFileHandler serves the site from dir for paths outside the API.
func StaticFileHandler(dir string) http.Handler {
	return http.FileServer(http.Dir(dir))
}

// staticSiteHandler wraps the file server with cache headers and gzip.
func (s *Server) staticSiteHandler(files http.Handler) http.HandlerFunc {
	return ChainMiddleware(files.ServeHTTP, s.CacheMiddleware, s.CompressionMiddleware)
}

// CacheMiddleware sets cache headers for static assets by file type.
func (s *Server) CacheMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case isImageAsset(r.URL.Path):
			w.Header().Set("Cache-Control", "public, max-age=3600, must-revalidate")
		case isOtherStaticAsset(r.URL.Path), isHTML(r.URL.Path):
			w.Header().Set("Cache-Control", "public, max-age=300, must-revalidate")
		}
		next(w, r)
	}
}

// gzipResponseWriter compresses the body. The file server's Content-Length
// describes the uncompressed file, so it is dropped before headers go out.
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) WriteHeader(status int) {
	w.ResponseWriter.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(status)
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	w.ResponseWriter.Header().Del("Content-Length")
	return w.Writer.Write(b)
}

// CompressionMiddleware gzips text assets for clients that accept it.
func (s *Server) CompressionMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.Header.Get("Range") != "" ||
			!strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") ||
			!shouldCompressPath(r.URL.Path) {
			next(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		next(gzipResponseWriter{Writer: gz, ResponseWriter: w}, r)
	}
}

// shouldCompressPath skips formats that are already compressed.
func shouldCompressPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".ico", ".woff", ".woff2", ".mp4", ".webm", ".zip", ".gz":
		return false
	}
	return true
}

func hasExt(p string, exts ...string) bool {
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func isImageAsset(p string) bool {
	return hasExt(p, ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp")
}

func isOtherStaticAsset(p string) bool {
	return hasExt(p, ".css", ".js", ".woff", ".woff2", ".ttf", ".json")
}

func isHTML(p string) bool {
	return hasExt(p, ".html") || strings.HasSuffix(p, "/")
}
