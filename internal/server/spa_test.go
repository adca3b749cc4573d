package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHandleSPA(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>kiosk</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('borne')"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := handleSPA(dir)
	tests := []struct {
		method string
		path   string
		status int
		want   string
	}{
		{http.MethodGet, "/app.js", http.StatusOK, "borne"},
		{http.MethodGet, "/lobby/kiosk-7", http.StatusOK, "kiosk"},
		{http.MethodGet, "/", http.StatusOK, "kiosk"},
		{http.MethodGet, "/api/nope", http.StatusNotFound, "not found"},
		{http.MethodPost, "/lobby/kiosk-7", http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.want)
			}
		})
	}
}
