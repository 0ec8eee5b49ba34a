package server

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// missingFrontendPage is served when the static directory has no index.html.
const missingFrontendPage = "<h1>Error: Frontend not built. Run 'npm run build' first.</h1>"

const indexFile = "index.html"

// Routes answered by the server itself rather than the static directory.
const (
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// ContentType infers a response content type from a file name's extension.
// Names without an extension are treated as HTML.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case "":
		return "text/html"
	case ".html":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".wasm":
		return "application/wasm"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Resolve maps a request path to a file under root. "/" maps to index.html
// and paths that do not name a regular file fall back to index.html. The
// result never escapes root. It returns false if not even index.html exists.
func Resolve(root, urlPath string) (string, bool) {
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		clean = "/" + indexFile
	}

	candidate := filepath.Join(root, filepath.FromSlash(clean))
	if isRegularFile(candidate) {
		return candidate, true
	}

	index := filepath.Join(root, indexFile)
	if isRegularFile(index) {
		return index, true
	}
	return "", false
}

func isRegularFile(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode().IsRegular()
}

// serveContent answers a non-upgrade request and returns the status written.
func (s *Server) serveContent(w io.Writer, req *http.Request) (int, error) {
	header := http.Header{}
	header.Set("Access-Control-Allow-Origin", "*")
	withBody := req.Method != http.MethodHead

	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		header.Set("Allow", "GET, HEAD")
		return http.StatusMethodNotAllowed, writeResponse(w, http.StatusMethodNotAllowed, header,
			[]byte(http.StatusText(http.StatusMethodNotAllowed)+"\n"), withBody)
	}

	switch req.URL.Path {
	case healthPath:
		return http.StatusOK, writeResponse(w, http.StatusOK, header, []byte("ok"), withBody)

	case metricsPath:
		body, err := json.Marshal(s.Metrics())
		if err != nil {
			return http.StatusInternalServerError, writeResponse(w, http.StatusInternalServerError, header,
				[]byte(err.Error()), withBody)
		}
		header.Set("Content-Type", "application/json")
		return http.StatusOK, writeResponse(w, http.StatusOK, header, body, withBody)
	}

	body := []byte(missingFrontendPage)
	contentType := "text/html"

	if file, ok := Resolve(s.config.StaticDir, req.URL.Path); ok {
		data, err := os.ReadFile(file)
		if err == nil {
			body = data
			contentType = ContentType(file)
		}
	}

	header.Set("Content-Type", contentType)
	return http.StatusOK, writeResponse(w, http.StatusOK, header, body, withBody)
}
