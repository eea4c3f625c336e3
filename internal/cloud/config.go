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

// Package cloud holds the configuration of the service and the clients it
// uses to reach Google Cloud and the Gemini API. The configuration structs
// map one-to-one onto the sections of the TOML files loaded by LoadConfig.
package cloud

import "google.golang.org/genai"

// DefaultSafetySettings relaxes the content filters so cartoon scripts with
// mild conflict are not blocked.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockOnlyHigh,
	},
}

// Dispatch modes.
const (
	DispatchLocal  = "local"
	DispatchPubSub = "pubsub"
)

// Logging controls the slog handler.
type Logging struct {
	Level string `toml:"level"` // debug, info, warn or error.
	File  string `toml:"file"`  // Optional file receiving a copy of every log line.
}

// Telemetry controls the OpenTelemetry exporters.
type Telemetry struct {
	Enabled bool `toml:"enabled"` // Export traces and metrics to Google Cloud.
}

// Dispatch selects how queued jobs reach a worker.
type Dispatch struct {
	Mode         string `toml:"mode"`         // local or pubsub.
	Workers      int    `toml:"workers"`      // Size of the local worker pool.
	QueueSize    int    `toml:"queue_size"`   // Capacity of the local queue.
	Topic        string `toml:"topic"`        // Pub/Sub topic receiving job tasks.
	Subscription string `toml:"subscription"` // Pub/Sub subscription the worker pulls from.
}

// Generation holds the retry protocol parameters.
type Generation struct {
	AgentModel  string `toml:"agent_model"`   // Key into AgentModels used by every planning stage.
	MaxRetries  int    `toml:"max_retries"`   // Retries after the first attempt.
	CallDelayMs int    `toml:"call_delay_ms"` // Fixed delay before every model call.
	Workers     int    `toml:"workers"`       // Concurrent tasks inside each fan-out group.
}

// ImageModels names the models used for the character asset.
type ImageModels struct {
	Primary   string `toml:"primary"`
	Fallback  string `toml:"fallback"`
	RateLimit int    `toml:"rate_limit"`
}

// Render holds the uniform encoding profile shared by every scene clip.
type Render struct {
	FFmpegPath      string `toml:"ffmpeg_path"`
	Width           int    `toml:"width"`
	Height          int    `toml:"height"`
	FPS             int    `toml:"fps"`
	Preset          string `toml:"preset"`
	CharacterHeight int    `toml:"character_height"`
	FontFile        string `toml:"font_file"` // Optional font for dialogue text.
}

// GeminiModel is the configuration of one text model.
type GeminiModel struct {
	Model              string  `toml:"model"`               // The model name.
	SystemInstructions string  `toml:"system_instructions"` // The system instructions for the model.
	Temperature        float32 `toml:"temperature"`         // The temperature parameter.
	TopP               float32 `toml:"top_p"`               // The top_p parameter.
	TopK               float32 `toml:"top_k"`               // The top_k parameter.
	MaxTokens          int32   `toml:"max_tokens"`          // The maximum number of output tokens.
	OutputFormat       string  `toml:"output_format"`       // The response MIME type for JSON calls.
	RateLimit          int     `toml:"rate_limit"`          // Requests per second.
}

// Storage configures the optional publication of final videos.
type Storage struct {
	OutputBucket    string `toml:"output_bucket"`    // Bucket receiving final videos; empty disables publication.
	CredentialsFile string `toml:"credentials_file"` // Optional service account key file.
}

// PromptTemplates are text/template sources rendered with a Profile.
type PromptTemplates struct {
	HeadWriter        string `toml:"head_writer"`
	SeriesBible       string `toml:"series_bible"`
	CharacterDesigner string `toml:"character_designer"`
	EpisodeDirector   string `toml:"episode_director"`
	SceneLayout       string `toml:"scene_layout"`
	Continuity        string `toml:"continuity"`
	PostProducer      string `toml:"post_producer"`
}

// Profile is a pipeline configuration: how many scenes and how long.
type Profile struct {
	Description      string `toml:"description"`
	SceneCount       int    `toml:"scene_count"`       // Fixed scene count; 0 derives it from the requested duration.
	TotalSeconds     int    `toml:"total_seconds"`     // Fixed total duration; 0 uses the requested duration.
	ToleranceSeconds int    `toml:"tolerance_seconds"` // Allowed deviation from the total duration.
	MinSceneSeconds  int    `toml:"min_scene_seconds"`
	MaxSceneSeconds  int    `toml:"max_scene_seconds"`
	MaxSpeakers      int    `toml:"max_speakers"`
}

// Config is the root of the configuration tree.
type Config struct {
	Application struct {
		Name                      string `toml:"name"`                         // The name of the application.
		GoogleProjectId           string `toml:"google_project_id"`            // The Google Cloud project ID; empty selects the Gemini API.
		GoogleLocation            string `toml:"location"`                     // The Google Cloud location.
		APIKey                    string `toml:"api_key"`                      // Gemini API key, normally supplied by the environment.
		JobsDir                   string `toml:"jobs_dir"`                     // Root of the per-job directories.
		AssetsDir                 string `toml:"assets_dir"`                   // Shared backgrounds and fallback character.
		ListenAddress             string `toml:"listen_address"`               // HTTP listen address.
		ThreadPoolSize            int    `toml:"thread_pool_size"`             // Size of the worker pool for parallel processing tasks.
		DefaultProfile            string `toml:"default_profile"`              // Profile used when a request names none.
		SignerServiceAccountEmail string `toml:"signer_service_account_email"` // The service account email used for signing GCS URLs.
	} `toml:"application"`
	Logging         Logging                `toml:"logging"`
	Telemetry       Telemetry              `toml:"telemetry"`
	Dispatch        Dispatch               `toml:"dispatch"`
	Generation      Generation             `toml:"generation"`
	AgentModels     map[string]GeminiModel `toml:"agent_models"` // Text models keyed by a logical name (e.g., "creative-flash").
	ImageModels     ImageModels            `toml:"image_models"`
	Render          Render                 `toml:"render"`
	Storage         Storage                `toml:"storage"`
	PromptTemplates PromptTemplates        `toml:"prompt_templates"`
	Profiles        map[string]Profile     `toml:"profiles"` // Pipeline profiles keyed by name (e.g., "teaser").
}

// NewConfig returns a Config with its maps allocated and the defaults that
// keep the pipeline usable with an empty file.
func NewConfig() *Config {
	c := &Config{
		AgentModels: make(map[string]GeminiModel),
		Profiles:    make(map[string]Profile),
	}
	c.Application.Name = "story-video"
	c.Application.JobsDir = "jobs"
	c.Application.AssetsDir = "assets"
	c.Application.ListenAddress = ":8080"
	c.Application.ThreadPoolSize = 4
	c.Application.DefaultProfile = "teaser"
	c.Logging.Level = "info"
	c.Dispatch.Mode = DispatchLocal
	c.Dispatch.Workers = 2
	c.Dispatch.QueueSize = 64
	c.Generation.MaxRetries = 2
	c.Generation.CallDelayMs = 2000
	c.Generation.Workers = 4
	c.Render = Render{
		FFmpegPath:      "ffmpeg",
		Width:           1280,
		Height:          720,
		FPS:             24,
		Preset:          "ultrafast",
		CharacterHeight: 500,
	}
	return c
}

// Profile returns the named profile, falling back to the default profile.
func (c *Config) Profile(name string) (string, Profile, bool) {
	if name == "" {
		name = c.Application.DefaultProfile
	}
	p, ok := c.Profiles[name]
	return name, p, ok
}
