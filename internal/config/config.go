// Package config holds the exporter settings.
//
// Values come from built-in defaults, then environment variables (optionally
// loaded from a .env file), then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Export modes.
const (
	// ModeTrace records one concrete execution with fixed shapes.
	ModeTrace = "trace"
	// ModeDynamic is shape-polymorphic capture. It is recognized so it can
	// be rejected explicitly.
	ModeDynamic = "dynamic"
)

// Supported opset window.
const (
	MinOpset = 13
	MaxOpset = 17
)

// Defaults.
const (
	DefaultModelID   = "speechbrain/spkrec-ecapa-voxceleb"
	DefaultModelsDir = "models"
	DefaultDuration  = 3
	DefaultOpset     = 14
	DefaultDevice    = "cpu"
	DefaultHubURL    = "https://huggingface.co"
	DefaultSeed      = 0
)

// Toolchain is the Go minor version exports must run under. It is not
// configurable.
const Toolchain = "go1.25"

var (
	// ErrToolchain is returned when the running toolchain is not the pinned one.
	ErrToolchain = errors.New("config: unsupported toolchain")

	// ErrInvalid is returned by Validate.
	ErrInvalid = errors.New("config: invalid configuration")
)

// Config is the full exporter configuration.
type Config struct {
	ModelID    string
	ModelsDir  string
	CacheDir   string
	Output     string
	Duration   int // seconds of audio the exported graph accepts; always DefaultDuration
	Opset      int
	Mode       string
	Device     string
	HubURL     string
	Offline    bool // never contact the hub; the cache must be populated
	Seed       uint64
	ExampleWAV string // optional real clip used as the trace example

	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ModelID:   DefaultModelID,
		ModelsDir: DefaultModelsDir,
		CacheDir:  filepath.Join(DefaultModelsDir, "cache"),
		Output:    filepath.Join(DefaultModelsDir, OutputName(DefaultModelID)),
		Duration:  DefaultDuration,
		Opset:     DefaultOpset,
		Mode:      ModeTrace,
		Device:    DefaultDevice,
		HubURL:    DefaultHubURL,
		Seed:      DefaultSeed,
	}
}

// OutputName derives the artifact file name from a model id:
// "speechbrain/spkrec-ecapa-voxceleb" -> "spkrec-ecapa-voxceleb.onnx".
func OutputName(modelID string) string {
	name := modelID
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name + ".onnx"
}

// Load reads the environment on top of the defaults. A missing envFile is
// not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	d := Default()
	modelsDir := getEnv("SPKREC_MODELS_DIR", d.ModelsDir)
	modelID := getEnv("SPKREC_MODEL_ID", d.ModelID)

	cfg := &Config{
		ModelID:     modelID,
		ModelsDir:   modelsDir,
		CacheDir:    getEnv("SPKREC_CACHE_DIR", filepath.Join(modelsDir, "cache")),
		Output:      getEnv("SPKREC_OUTPUT", filepath.Join(modelsDir, OutputName(modelID))),
		Duration:    d.Duration,
		Opset:       getEnvAsInt("SPKREC_OPSET", d.Opset),
		Mode:        getEnv("SPKREC_EXPORT_MODE", d.Mode),
		Device:      getEnv("SPKREC_DEVICE", d.Device),
		HubURL:      getEnv("SPKREC_HUB_URL", d.HubURL),
		Offline:     getEnvAsBool("SPKREC_OFFLINE", false),
		Seed:        uint64(getEnvAsInt("SPKREC_SEED", int(d.Seed))),
		ExampleWAV:  getEnv("SPKREC_EXAMPLE_WAV", ""),
		S3Region:    getEnv("SPKREC_S3_REGION", ""),
		S3Endpoint:  getEnv("SPKREC_S3_ENDPOINT", ""),
		S3PathStyle: getEnvAsBool("SPKREC_S3_PATH_STYLE", false),
	}
	return cfg, nil
}

// Validate checks value ranges. The export mode is checked later by the
// freezer so that an unsupported mode surfaces as an export error.
func (c *Config) Validate() error {
	switch {
	case c.ModelID == "":
		return fmt.Errorf("%w: model id is empty", ErrInvalid)
	case c.ModelsDir == "" || c.CacheDir == "" || c.Output == "":
		return fmt.Errorf("%w: models dir, cache dir and output are required", ErrInvalid)
	case c.Duration != DefaultDuration:
		return fmt.Errorf("%w: input duration is fixed at %d s, got %d", ErrInvalid, DefaultDuration, c.Duration)
	case c.Opset < MinOpset || c.Opset > MaxOpset:
		return fmt.Errorf("%w: opset %d outside supported range %d..%d", ErrInvalid, c.Opset, MinOpset, MaxOpset)
	case c.Mode != ModeTrace && c.Mode != ModeDynamic:
		return fmt.Errorf("%w: unknown export mode %q", ErrInvalid, c.Mode)
	}
	return nil
}

// goVersion is swapped in tests.
var goVersion = runtime.Version

// CheckToolchain verifies that the running toolchain matches Toolchain:
// "go1.25" accepts "go1.25", "go1.25.3" and "go1.25rc1" but not "go1.26"
// or "go1.250".
func CheckToolchain() error {
	return checkToolchain(Toolchain, goVersion())
}

func checkToolchain(want, got string) error {
	rest, ok := strings.CutPrefix(got, want)
	if ok && want != "" {
		if rest == "" || rest[0] == '.' || strings.HasPrefix(rest, "rc") || strings.HasPrefix(rest, "beta") || rest[0] == ' ' {
			return nil
		}
	}
	return fmt.Errorf("%w: running %s, %s required", ErrToolchain, got, want)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
