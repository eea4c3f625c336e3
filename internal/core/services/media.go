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

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
)

// ErrPublishingDisabled is returned when no output bucket is configured.
var ErrPublishingDisabled = errors.New("video publishing is not configured")

// DownloadService issues signed URLs for final videos published to Cloud
// Storage.
type DownloadService struct {
	StorageClient *storage.Client                   // Client for interacting with Google Cloud Storage.
	IAMClient     *credentials.IamCredentialsClient // Signs URLs on behalf of SignerEmail; nil uses the ambient credentials.
	SignerEmail   string                            // The service account email used to sign URLs.
	Bucket        string                            // The bucket final videos are published to.
}

// SignedURL returns a GET URL for the published video of jobID, valid for
// expires.
func (s *DownloadService) SignedURL(ctx context.Context, jobID string, expires time.Duration) (string, error) {
	if s == nil || s.StorageClient == nil || s.Bucket == "" {
		return "", ErrPublishingDisabled
	}
	obj := cloud.FinalVideoObject(s.Bucket, jobID)
	if _, err := s.StorageClient.Bucket(obj.Bucket).Object(obj.Name).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return "", ErrVideoNotReady
		}
		return "", fmt.Errorf("lookup %s: %w", obj.URI(), err)
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expires),
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.GoogleAccessID = s.SignerEmail
		opts.SignBytes = func(payload []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: payload,
			})
			if err != nil {
				return nil, err
			}
			return resp.SignedBlob, nil
		}
	}

	u, err := s.StorageClient.Bucket(obj.Bucket).SignedURL(obj.Name, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).Object(%q).SignedURL: %w", obj.Bucket, obj.Name, err)
	}
	return u, nil
}
