package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable pattern: {{ env.VARIABLE_NAME }}
var envVarPattern = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)

// SubstituteEnvVars replaces {{ env.VARIABLE_NAME }} placeholders with
// environment variable values. A placeholder naming an unset variable is an
// error.
func SubstituteEnvVars(value string) (string, error) {
	result := value
	seen := make(map[string]bool)

	for _, match := range envVarPattern.FindAllStringSubmatch(value, -1) {
		placeholder, name := match[0], match[1]
		if seen[placeholder] {
			continue
		}
		seen[placeholder] = true

		envValue, exists := os.LookupEnv(name)
		if !exists {
			return "", fmt.Errorf("environment variable '%s' not found", name)
		}
		result = strings.ReplaceAll(result, placeholder, envValue)
	}

	return result, nil
}

func (c *Config) applyEnv() {
	overrideInt("FANOUT_MAX_CONCURRENCY", &c.MaxConcurrency)
	overrideDuration("FANOUT_QUERY_TIMEOUT", &c.QueryTimeout)
	overrideDuration("FANOUT_DISPATCH_TIMEOUT", &c.DispatchTimeout)
	overrideInt("FANOUT_MAX_ROWS", &c.MaxRows)
	overrideInt("FANOUT_POOL_SIZE", &c.PoolSize)
	overrideDuration("FANOUT_SCHEMA_CACHE_TTL", &c.SchemaCacheTTL)
	overrideString("FANOUT_PROFILES_PATH", &c.ProfilesPath)
	overrideString("FANOUT_REDIS_URL", &c.RedisURL)
	overrideInt("FANOUT_PORT", &c.Port)
	overrideInt("FANOUT_LOG_LEVEL", &c.LogLevel)
	overrideString("FANOUT_LOG_TAGS", &c.LogTags)
	overrideInt("FANOUT_RATE_LIMIT", &c.RateLimit)
}

func overrideString(name string, target *string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func overrideInt(name string, target *int) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err == nil {
		*target = parsed
	}
}

func overrideDuration(name string, target *time.Duration) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err == nil {
		*target = parsed
	}
}

// LoadEnvFiles attempts to load .env files from multiple locations and stops
// at the first directory that has one. Priority order:
// 1. From the provided directory (if not empty)
// 2. From the current working directory
// 3. From the directory containing the executable binary
// System environment variables always take precedence over .env file values.
func LoadEnvFiles(fromDir string) {
	envFiles := []string{".env.local", ".env.development", ".env"}

	dirs := []string{}
	if fromDir != "" {
		dirs = append(dirs, fromDir)
	}
	dirs = append(dirs, "")
	if execPath, err := os.Executable(); err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = realPath
		}
		dirs = append(dirs, filepath.Dir(execPath))
	}

	for _, dir := range dirs {
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(dir, envFile)); err == nil {
				return
			}
		}
	}
}
