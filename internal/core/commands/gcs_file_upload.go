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

package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
)

// GCSFileUpload publishes the final video to the output bucket as
// videos/<job id>/final.mp4. Publication is best effort: the video already
// exists locally, so an upload error is logged and the job still completes.
type GCSFileUpload struct {
	cor.BaseCommand                 // Embeds the BaseCommand for common functionality like naming and metrics.
	client          *storage.Client // The GCS client for interacting with the storage service.
	bucket          string          // The name of the destination GCS bucket.
}

// NewGCSFileUpload is the constructor for creating a new GCSFileUpload command.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - client: An initialized *storage.Client for communicating with GCS.
//   - bucket: The name of the target GCS bucket for the upload.
//
// Outputs:
//   - *GCSFileUpload: A pointer to the newly instantiated command.
func NewGCSFileUpload(name string, client *storage.Client, bucket string) *GCSFileUpload {
	out := &GCSFileUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket}
	out.InputParamName = ParamFinalVideo
	out.OutputParamName = ParamPublished
	return out
}

func (c *GCSFileUpload) IsExecutable(context cor.Context) bool {
	return has(context, ParamFinalVideo, ParamJobID)
}

func (c *GCSFileUpload) Execute(context cor.Context) {
	path, _ := value[string](context, ParamFinalVideo)
	jobID, _ := value[string](context, ParamJobID)
	obj := cloud.FinalVideoObject(c.bucket, jobID)

	if err := c.upload(context, path, obj); err != nil {
		// Not recorded on the context: a failed upload must not fail the job.
		if c.ErrorCounter != nil {
			c.ErrorCounter.Add(context.GetContext(), 1)
		}
		slog.Warn("final video not published", "job_id", jobID, "uri", obj.URI(), "error", err)
		return
	}

	slog.Info("final video published", "job_id", jobID, "uri", obj.URI())
	c.Succeed(context)
	context.Add(cloud.GetGCSObjectName(), &obj)
	context.Add(c.GetOutputParam(), obj.URI())
}

func (c *GCSFileUpload) upload(context cor.Context, path string, obj cloud.GCSObject) error {
	dat, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer dat.Close()

	writer := c.client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(context.GetContext())
	writer.ContentType = obj.MIMEType
	if written, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy to GCS after %d bytes: %w", written, err)
	}
	// Close finalizes the object; its error is the upload result.
	return writer.Close()
}
