package http

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(dir string, limit int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", Health)
	r.POST("/upload", Upload(dir, limit))
	return r
}

func multipartBody(t *testing.T, field string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t.TempDir(), 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUpload_StoresFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "up")
	body, ctype := multipartBody(t, "files", map[string]string{"a.txt": "alpha", "../b.txt": "beta"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(dir, 1<<20).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Files, 2)
	for _, name := range resp.Files {
		require.NotContains(t, name, "/")
		_, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
	}
	var sawAlpha bool
	for _, name := range resp.Files {
		if strings.HasSuffix(name, "-a.txt") {
			b, err := os.ReadFile(filepath.Join(dir, name))
			require.NoError(t, err)
			require.Equal(t, "alpha", string(b))
			sawAlpha = true
		}
	}
	require.True(t, sawAlpha)
}

func TestUpload_Rejects(t *testing.T) {
	body, ctype := multipartBody(t, "other", map[string]string{"a.txt": "alpha"})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	newRouter(t.TempDir(), 1<<20).ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newRouter(t.TempDir(), 0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("x")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
