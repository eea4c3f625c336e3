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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
)

// Environment variables that supply the Gemini API key.
var apiKeyVariables = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// configPrefix returns the configured directory with a trailing separator.
func configPrefix() string {
	prefix := os.Getenv(EnvConfigFilePrefix)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix = prefix + string(os.PathSeparator)
	}
	return prefix
}

// LoadConfig decodes the base file `.env.toml` and then the runtime file
// `.env.<GCP_RUNTIME>.toml` over it, both from the GCP_CONFIG_PREFIX
// directory. A plain `.env` file in the same directory, when present, is
// loaded into the process environment first so secrets stay out of TOML.
func LoadConfig(config *Config) error {
	prefix := configPrefix()

	secretsFile := prefix + ConfigFileBaseName
	if fileExists(secretsFile) {
		if err := godotenv.Load(secretsFile); err != nil {
			return fmt.Errorf("failed to load secrets file %s: %w", secretsFile, err)
		}
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := prefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := prefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension
	slog.Debug("loading configuration", "base", baseConfigFileName, "runtime", envConfigFileName)

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			continue
		}
		if _, err := toml.DecodeFile(name, config); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
	}

	if config.Application.APIKey == "" {
		for _, name := range apiKeyVariables {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				config.Application.APIKey = v
				break
			}
		}
	}
	return nil
}
