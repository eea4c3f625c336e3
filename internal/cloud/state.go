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
	"context"
	"fmt"
	"log/slog"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

// ServiceClients holds every client the service uses to reach Google. Only
// the generative AI client is mandatory; the others are created when the
// configuration needs them and are nil otherwise.
type ServiceClients struct {
	StorageClient   *storage.Client                         // Set when an output bucket is configured.
	PubsubClient    *pubsub.Client                          // Set in pubsub dispatch mode.
	GenAIClient     *genai.Client                           // Gemini API or Vertex AI.
	IAMClient       *credentials.IamCredentialsClient       // Set when a signer service account is configured.
	PubSubListeners map[string]*PubSubListener              // Job task listeners keyed by subscription.
	AgentModels     map[string]*QuotaAwareGenerativeAIModel // Text models keyed by the logical name from the config.
	ImageModel      *QuotaAwareGenerativeAIModel            // Handle used for the character image models.
}

// Close releases the clients that hold connections.
func (c *ServiceClients) Close() {
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.IAMClient != nil {
		_ = c.IAMClient.Close()
	}
}

// AgentModel returns the text model named by [generation] agent_model, or
// any configured model when the name is empty.
func (c *ServiceClients) AgentModel(name string) (*QuotaAwareGenerativeAIModel, error) {
	if m, ok := c.AgentModels[name]; ok {
		return m, nil
	}
	if name == "" {
		for _, m := range c.AgentModels {
			return m, nil
		}
	}
	return nil, fmt.Errorf("agent model %q is not configured", name)
}

func clientOptions(config *Config) []option.ClientOption {
	if config.Storage.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(config.Storage.CredentialsFile)}
}

func newGenAIClient(ctx context.Context, config *Config) (*genai.Client, error) {
	if config.Application.GoogleProjectId == "" {
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.Application.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	})
}

// NewCloudServiceClients creates the clients required by config.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	cloud = &ServiceClients{
		PubSubListeners: make(map[string]*PubSubListener),
		AgentModels:     make(map[string]*QuotaAwareGenerativeAIModel),
	}
	defer func() {
		if err != nil {
			cloud.Close()
			cloud = nil
		}
	}()

	gc, err := newGenAIClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}
	cloud.GenAIClient = gc
	slog.Info("genai client ready", "vertex", config.Application.GoogleProjectId != "", "project", config.Application.GoogleProjectId)

	opts := clientOptions(config)

	if config.Storage.OutputBucket != "" {
		if cloud.StorageClient, err = storage.NewClient(ctx, opts...); err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
	}

	if config.Dispatch.Mode == DispatchPubSub {
		if cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId, opts...); err != nil {
			return nil, fmt.Errorf("error creating pubsub client: %w", err)
		}
		// The command is attached once the workflows are built.
		listener, lerr := NewPubSubListener(cloud.PubsubClient, config.Dispatch.Subscription, nil)
		if lerr != nil {
			return nil, lerr
		}
		cloud.PubSubListeners[config.Dispatch.Subscription] = listener
	}

	if config.Application.SignerServiceAccountEmail != "" {
		if cloud.IAMClient, err = credentials.NewIamCredentialsClient(ctx, opts...); err != nil {
			return nil, fmt.Errorf("error creating iam client: %w", err)
		}
	}

	for amKey, values := range config.AgentModels {
		modelConfig := &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](values.Temperature),
			TopP:             genai.Ptr[float32](values.TopP),
			TopK:             genai.Ptr[float32](values.TopK),
			MaxOutputTokens:  values.MaxTokens,
			SafetySettings:   DefaultSafetySettings,
			ResponseMIMEType: values.OutputFormat,
		}
		if values.SystemInstructions != "" {
			modelConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
		}
		cloud.AgentModels[amKey] = NewQuotaAwareModel(modelConfig, values.Model, gc.Models, values.RateLimit)
	}
	cloud.ImageModel = NewQuotaAwareModel(nil, config.ImageModels.Primary, gc.Models, config.ImageModels.RateLimit)

	return cloud, nil
}
