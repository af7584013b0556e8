// Package http holds the stateless HTTP handlers that need no session state.
package http

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const uploadField = "files"

type UploadResponse struct {
	Files []string `json:"files"`
}

// Health answers liveness probes.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Upload stores every multipart file under dir as <unixmillis>-<name>.
func Upload(dir string, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		files := form.File[uploadField]
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no files"})
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error().Err(err).Str("module", "transport.http").Str("dir", dir).Msg("upload dir")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}
		saved := make([]string, 0, len(files))
		for _, fh := range files {
			name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), filepath.Base(fh.Filename))
			if err := c.SaveUploadedFile(fh, filepath.Join(dir, name)); err != nil {
				log.Error().Err(err).Str("module", "transport.http").Str("file", name).Msg("save upload")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
				return
			}
			saved = append(saved, name)
		}
		log.Info().Str("module", "transport.http").Int("files", len(saved)).Msg("upload stored")
		c.JSON(http.StatusOK, UploadResponse{Files: saved})
	}
}
