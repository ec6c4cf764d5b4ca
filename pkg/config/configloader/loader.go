// Package configloader builds typed configuration from a yaml file, an optional .env file
// and the process environment, in increasing order of priority.
package configloader

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	defaultConfigFile = "config.yaml"
	defaultEnvFile    = ".env"
)

type Validator interface {
	Validate() error
}

// Load reads config.yaml and .env from the working directory. Environment variables are
// expected as <SERVICE>_<KEY>, where underscores separate nested keys.
// <SERVICE>_CONFIG_FILE overrides the yaml location.
func Load[T Validator](serviceName string) (T, error) {
	configFile := defaultConfigFile
	if custom := os.Getenv(envPrefix(serviceName) + "CONFIG_FILE"); custom != "" {
		configFile = custom
	}
	return LoadFrom[T](serviceName, configFile, defaultEnvFile)
}

// LoadFrom is Load with explicit file locations. Missing files are skipped.
func LoadFrom[T Validator](serviceName, configFile, envFile string) (T, error) {
	var cfg T
	k := koanf.New(".")
	prefix := envPrefix(serviceName)

	// 1. yaml file
	if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("WARN: error loading YAML config file '%s': %v", configFile, err)
		}
	}

	// koanf keys are case sensitive, env keys are not: resolve them against known yaml keys
	// so that STOREFRONT_FILE_PRODUCTSPATH lands on file.productsPath.
	known := make(map[string]string)
	for _, key := range k.Keys() {
		known[strings.ToLower(key)] = key
	}
	envTransformer := func(key string) string {
		key = strings.ToLower(key)
		key = strings.TrimPrefix(key, strings.ToLower(prefix))
		key = strings.ReplaceAll(key, "_", ".")
		if original, ok := known[key]; ok {
			return original
		}
		return key
	}

	// 2. .env file
	if envFileMap, err := godotenv.Read(envFile); err == nil {
		envMap := make(map[string]any)
		for key, value := range envFileMap {
			if !strings.HasPrefix(strings.ToUpper(key), prefix) {
				continue
			}
			envMap[envTransformer(key)] = value
		}
		if err := k.Load(confmap.Provider(envMap, "."), nil); err != nil {
			log.Printf("WARN: error loading .env config: %v", err)
		}
	} else if !os.IsNotExist(err) {
		log.Printf("WARN: error reading .env file: %v", err)
	}

	// 3. system environment, the highest priority
	if err := k.Load(env.Provider(prefix, ".", envTransformer), nil); err != nil {
		log.Printf("WARN: error loading system env vars: %v", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func envPrefix(serviceName string) string {
	return fmt.Sprintf("%s_", strings.ToUpper(serviceName))
}
