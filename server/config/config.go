package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cyclopcam/visiondemo/pkg/errs"
	"github.com/cyclopcam/visiondemo/pkg/kibi"
)

// EnvPrefix is the prefix of environment variables that override the config file
const EnvPrefix = "VISIONDEMO_"

type Config struct {
	Listen     string        `json:"listen" env:"LISTEN"`          // HTTP listen address, eg ":8080"
	ModelDir   string        `json:"modelDir" env:"MODEL_DIR"`     // Contains image-prediction-models/ and video-object-detection-models/
	StagingDir string        `json:"stagingDir" env:"STAGING_DIR"` // Root of the per-request scratch areas
	Staging    StagingConfig `json:"staging" envPrefix:"STAGING_"`
	Engine     EngineConfig  `json:"engine" envPrefix:"ENGINE_"`
	Image      ImageConfig   `json:"image" envPrefix:"IMAGE_"`
	Video      VideoConfig   `json:"video" envPrefix:"VIDEO_"`
	Upload     UploadConfig  `json:"upload" envPrefix:"UPLOAD_"`
}

type StagingConfig struct {
	MaxAgeMinutes int `json:"maxAgeMinutes" env:"MAX_AGE_MINUTES"` // Scratch areas older than this are deleted
}

type EngineConfig struct {
	Command        []string `json:"command" env:"COMMAND" envSeparator:" "` // Inference program and leading arguments
	MaxJobs        int      `json:"maxJobs" env:"MAX_JOBS"`                 // Maximum number of concurrent inference processes
	TimeoutSeconds int      `json:"timeoutSeconds" env:"TIMEOUT_SECONDS"`   // Maximum duration of one inference job. Must be shorter than staging.maxAgeMinutes.
}

type ImageConfig struct {
	ResultCount int `json:"resultCount" env:"RESULT_COUNT"` // Number of predictions per image
}

type VideoConfig struct {
	FramesPerSecond              float64 `json:"framesPerSecond" env:"FRAMES_PER_SECOND"`
	MinimumPercentageProbability float64 `json:"minimumPercentageProbability" env:"MINIMUM_PERCENTAGE_PROBABILITY"`
	GIFFramesPerSecond           int     `json:"gifFramesPerSecond" env:"GIF_FRAMES_PER_SECOND"`
	GIFWidth                     int     `json:"gifWidth" env:"GIF_WIDTH"`
	DisableTranscode             bool    `json:"disableTranscode" env:"DISABLE_TRANSCODE"` // Don't convert the annotated video to mp4 for browser playback
}

type UploadConfig struct {
	MaxSize           string `json:"maxSize" env:"MAX_SIZE"`                      // Maximum size of an upload request, eg "512 MB"
	RequestsPerMinute int    `json:"requestsPerMinute" env:"REQUESTS_PER_MINUTE"` // Per client IP. Zero disables rate limiting.
}

// Default returns a configuration that works out of the box when the server
// is started from the repository root, where scripts/imageai_bridge.py lives.
func Default() Config {
	return Config{
		Listen:     ":8080",
		ModelDir:   "models",
		StagingDir: "static/files",
		Staging: StagingConfig{
			MaxAgeMinutes: 60,
		},
		Engine: EngineConfig{
			Command:        []string{"python3", "scripts/imageai_bridge.py"},
			MaxJobs:        1,
			TimeoutSeconds: 30 * 60,
		},
		Image: ImageConfig{
			ResultCount: 5,
		},
		Video: VideoConfig{
			FramesPerSecond:              20,
			MinimumPercentageProbability: 30,
			GIFFramesPerSecond:           10,
			GIFWidth:                     480,
		},
		Upload: UploadConfig{
			MaxSize:           "512 MB",
			RequestsPerMinute: 10,
		},
	}
}

// LoadConfig reads filename on top of the defaults, and then applies environment overrides.
// If filename is empty, only the defaults and the environment are used.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		raw, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("Error loading %v: %w", filename, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from VISIONDEMO_* environment variables.
// If environment is nil, the process environment is used.
func (c *Config) ApplyEnv(environment map[string]string) error {
	opt := env.Options{
		Prefix:      EnvPrefix,
		Environment: environment,
	}
	if err := env.ParseWithOptions(c, opt); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidConfiguration, err)
	}
	return nil
}

func (c *Config) StagingMaxAge() time.Duration {
	return time.Duration(c.Staging.MaxAgeMinutes) * time.Minute
}

func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSeconds) * time.Second
}

// MaxUploadBytes returns zero if Upload.MaxSize is invalid. Validate() reports that case.
func (c *Config) MaxUploadBytes() int64 {
	n, _ := kibi.ParseBytes(c.Upload.MaxSize)
	return n
}

// Validate returns an error wrapping ErrInvalidConfiguration for the first invalid setting
func (c *Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: %v", errs.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
	}
	fps := c.Video.FramesPerSecond
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return fail("video.framesPerSecond must be positive (%v)", fps)
	}
	if p := c.Video.MinimumPercentageProbability; p < 0 || p > 100 || math.IsNaN(p) {
		return fail("video.minimumPercentageProbability must be between 0 and 100 (%v)", p)
	}
	if c.Video.GIFFramesPerSecond <= 0 {
		return fail("video.gifFramesPerSecond must be positive (%v)", c.Video.GIFFramesPerSecond)
	}
	if c.Image.ResultCount < 1 {
		return fail("image.resultCount must be at least 1 (%v)", c.Image.ResultCount)
	}
	if len(c.Engine.Command) == 0 || c.Engine.Command[0] == "" {
		return fail("engine.command is empty")
	}
	if c.Engine.MaxJobs < 1 {
		return fail("engine.maxJobs must be at least 1 (%v)", c.Engine.MaxJobs)
	}
	if c.Staging.MaxAgeMinutes < 1 {
		return fail("staging.maxAgeMinutes must be at least 1 (%v)", c.Staging.MaxAgeMinutes)
	}
	// The sweeper would otherwise delete the scratch area of a job that is still running
	if c.Engine.TimeoutSeconds < 1 || c.EngineTimeout() >= c.StagingMaxAge() {
		return fail("engine.timeoutSeconds must be between 1 and staging.maxAgeMinutes (%v seconds, %v minutes)", c.Engine.TimeoutSeconds, c.Staging.MaxAgeMinutes)
	}
	if n, err := kibi.ParseBytes(c.Upload.MaxSize); err != nil {
		return fail("upload.maxSize: %v", err)
	} else if n < 1024 {
		return fail("upload.maxSize must be at least 1 KB (%v)", c.Upload.MaxSize)
	}
	if c.Listen == "" {
		return fail("listen address is empty")
	}
	if c.StagingDir == "" {
		return fail("stagingDir is empty")
	}
	if st, err := os.Stat(c.ModelDir); err != nil || !st.IsDir() {
		return fail("modelDir '%v' is not a directory", c.ModelDir)
	}
	return nil
}
