package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Frodemaneskold/greenup/services"
)

// UploadController hands out presigned URLs for background images.
type UploadController struct {
	Auth    *AuthController
	Uploads *services.UploadService
	Log     *logrus.Logger
}

// NewUploadController creates a new instance of UploadController.
func NewUploadController(auth *AuthController, uploads *services.UploadService, log *logrus.Logger) *UploadController {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UploadController{Auth: auth, Uploads: uploads, Log: log}
}

type uploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// BackgroundUploadURL returns a presigned PUT URL for a new background image.
func (c *UploadController) BackgroundUploadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := c.Auth.Authenticate(w, r); !ok {
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.FileName == "" || req.ContentType == "" {
		http.Error(w, "file_name and content_type are required", http.StatusBadRequest)
		return
	}

	uploadURL, key, err := c.Uploads.BackgroundUploadURL(r.Context(), req.FileName, req.ContentType)
	if err != nil {
		c.Log.WithError(err).Error("presign upload failed")
		http.Error(w, "Failed to generate upload URL", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"upload_url": uploadURL,
		"key":        key,
	})
}

// BackgroundReadURL returns a presigned GET URL for a stored background key.
func (c *UploadController) BackgroundReadURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := c.Auth.Authenticate(w, r); !ok {
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}

	readURL, err := c.Uploads.BackgroundReadURL(r.Context(), key)
	if err != nil {
		c.Log.WithError(err).Error("presign read failed")
		http.Error(w, "Failed to generate read URL", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"read_url": readURL,
	})
}
