// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api defines the HTTP front end: job submission, status polling and
// download of the final video.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// SignedURLExpiry is the lifetime of a download URL.
const SignedURLExpiry = 15 * time.Minute

// Handlers serves the job API. Downloads may be nil when videos are not
// published to a bucket.
type Handlers struct {
	Store      *services.JobStore
	Dispatcher services.Dispatcher
	Downloads  *services.DownloadService
}

// NewRouter mounts the routes at the root and under /api/v1.
func NewRouter(h *Handlers, serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(cors.Default())

	r.GET("/", h.Health)
	h.Register(&r.RouterGroup)
	h.Register(r.Group("/api/v1"))
	return r
}

// Register adds the job routes to r.
func (h *Handlers) Register(r *gin.RouterGroup) {
	r.POST("/generate", h.Generate)
	r.POST("/generate_character", h.GenerateCharacter)
	r.GET("/status/:id", h.Status)
	r.GET("/download/:id", h.Download)
	r.GET("/download/:id/url", h.DownloadURL)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Story video engine is running"})
}

// Generate creates a story job and queues it.
func (h *Handlers) Generate(c *gin.Context) {
	var req model.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if strings.TrimSpace(req.Story) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "story must not be empty"})
		return
	}
	jobID, err := h.Store.Create(req)
	if err != nil {
		slog.ErrorContext(c, "unable to create job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "unable to create job"})
		return
	}
	h.dispatch(c, model.JobTask{JobID: jobID, Kind: model.JobKindStory})
}

// GenerateCharacter creates a character-only job and queues it. The body is
// optional; an empty prompt selects the default character.
func (h *Handlers) GenerateCharacter(c *gin.Context) {
	var req model.CharacterRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
	}
	jobID, err := h.Store.CreateCharacter(req)
	if err != nil {
		slog.ErrorContext(c, "unable to create character job", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "unable to create job"})
		return
	}
	h.dispatch(c, model.JobTask{JobID: jobID, Kind: model.JobKindCharacter})
}

func (h *Handlers) dispatch(c *gin.Context, task model.JobTask) {
	if err := h.Dispatcher.Dispatch(c.Request.Context(), task); err != nil {
		slog.ErrorContext(c, "unable to queue job", "job_id", task.JobID, "error", err)
		if werr := h.Store.WriteStatus(model.NewStatusRecord(task.JobID, model.StatusFailed, 0, "unable to queue job: "+err.Error())); werr != nil {
			slog.ErrorContext(c, "unable to record job failure", "job_id", task.JobID, "error", werr)
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "unable to queue job"})
		return
	}
	slog.InfoContext(c, "job queued", "job_id", task.JobID, "kind", task.Kind)
	c.JSON(http.StatusOK, model.JobResponse{JobID: task.JobID, Status: model.StatusQueued})
}

// Status returns the status record enriched with the available artifacts.
func (h *Handlers) Status(c *gin.Context) {
	status, err := h.Store.Status(c.Param("id"))
	if errors.Is(err, services.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Job not found"})
		return
	}
	if err != nil {
		slog.ErrorContext(c, "unable to read job status", "job_id", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "unable to read job status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Download streams the final video as an attachment.
func (h *Handlers) Download(c *gin.Context) {
	id := c.Param("id")
	path, err := h.Store.FinalVideo(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Video not ready"})
		return
	}
	// Set before serving; the built-in MIME table has no entry for .mp4.
	c.Header("Content-Type", "video/mp4")
	c.FileAttachment(path, "cartoon_"+id+".mp4")
}

// DownloadURL returns a signed URL of the published video.
func (h *Handlers) DownloadURL(c *gin.Context) {
	id := c.Param("id")
	u, err := h.Downloads.SignedURL(c.Request.Context(), id, SignedURLExpiry)
	switch {
	case errors.Is(err, services.ErrPublishingDisabled):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Video publishing is not configured"})
	case errors.Is(err, services.ErrVideoNotReady):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Video not ready"})
	case err != nil:
		slog.ErrorContext(c, "unable to sign download url", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not generate download URL"})
	default:
		c.JSON(http.StatusOK, gin.H{"url": u})
	}
}
