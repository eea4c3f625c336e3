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

package cloud

import (
	"fmt"
	"strings"
)

// GetGCSObjectName is the context key holding the GCSObject a command works on.
func GetGCSObjectName() string {
	return "__GCS__OBJ__"
}

// GCSObject identifies an object in Cloud Storage.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object (e.g., "video/mp4").
}

// URI returns the gs:// form of the object.
func (o GCSObject) URI() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Name)
}

// ParseGCSURI splits a gs://bucket/name URI.
func ParseGCSURI(uri string) (GCSObject, error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return GCSObject{}, fmt.Errorf("not a gs:// uri: %q", uri)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return GCSObject{}, fmt.Errorf("uri %q must name a bucket and an object", uri)
	}
	return GCSObject{Bucket: bucket, Name: name}, nil
}

// FinalVideoObject is the object a job's final video is published to.
func FinalVideoObject(bucket, jobID string) GCSObject {
	return GCSObject{Bucket: bucket, Name: fmt.Sprintf("videos/%s/final.mp4", jobID), MIMEType: "video/mp4"}
}
