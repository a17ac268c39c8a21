package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/menta2k/face-capture/internal/logging"
	"github.com/menta2k/face-capture/pkg/capture"
	"github.com/menta2k/face-capture/pkg/detection"
	"github.com/menta2k/face-capture/pkg/evaluator"
	"github.com/menta2k/face-capture/pkg/geometry"
	"github.com/menta2k/face-capture/pkg/lighting"
	"github.com/menta2k/face-capture/pkg/pose"
	"github.com/menta2k/face-capture/pkg/readiness"
	"github.com/menta2k/face-capture/pkg/session"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FACE_CAPTURE_"

// Config holds the application configuration
type Config struct {
	Lighting  LightingConfig  `json:"lighting"`
	Pose      PoseConfig      `json:"pose"`
	Readiness ReadinessConfig `json:"readiness"`
	Region    RegionConfig    `json:"region"`
	Session   SessionConfig   `json:"session"`
	Backend   BackendConfig   `json:"backend"`
	Capture   CaptureConfig   `json:"capture"`
	Store     StoreConfig     `json:"store"`
	Log       LogConfig       `json:"log"`
}

// LightingConfig holds the brightness and contrast gate
type LightingConfig struct {
	LightThreshold    float64 `json:"light_threshold" validate:"gte=0,lte=255"`
	ContrastThreshold float64 `json:"contrast_threshold" validate:"gte=0,lte=128"`
}

// PoseConfig holds the head pose tolerances
type PoseConfig struct {
	TiltThreshold             float64 `json:"tilt_threshold" validate:"gt=0,lte=90"`
	VerticalThreshold         float64 `json:"vertical_threshold" validate:"gte=0"`
	YawThreshold              float64 `json:"yaw_threshold" validate:"gte=0"`
	HeadTiltUpOrDownThreshold float64 `json:"head_tilt_up_or_down_threshold" validate:"gte=0"`
}

// ReadinessConfig holds the detector score and containment settings
type ReadinessConfig struct {
	ScoreThreshold float64 `json:"score_threshold" validate:"gte=0,lte=1"`
	EllipseMargin  float64 `json:"ellipse_margin" validate:"gt=0"`
}

// RegionConfig places the target ellipse in the frame
type RegionConfig struct {
	EllipseWidthRatio  float64 `json:"ellipse_width_ratio" validate:"gt=0,lte=1"`
	EllipseHeightRatio float64 `json:"ellipse_height_ratio" validate:"gt=0,lte=1"`
	Mirror             bool    `json:"mirror"`
}

// SessionConfig holds the capture session timing
type SessionConfig struct {
	Mode                  string `json:"mode" validate:"oneof=photo video"`
	TickIntervalMs        int    `json:"tick_interval_ms" validate:"gte=10"`
	StartDelayMs          int    `json:"start_delay_ms" validate:"gte=0"`
	PreRecordCountdownSec int    `json:"pre_record_countdown_sec" validate:"gte=0"`
	RecordDurationSec     int    `json:"record_duration_sec" validate:"gt=0"`
	VideoQuality          int    `json:"video_quality" validate:"gte=1,lte=100"`
	MaxVideoFrames        int    `json:"max_video_frames" validate:"gte=0"`
}

// BackendConfig selects and configures the face detector
type BackendConfig struct {
	Kind       string `json:"kind" validate:"oneof=ollama llamacpp ws"`
	URL        string `json:"url" validate:"omitempty,url"`
	Model      string `json:"model" validate:"required_unless=Kind ws"`
	TimeoutSec int    `json:"timeout_sec" validate:"gt=0"`
	MaxDim     int    `json:"max_dim" validate:"gte=64"`
	Quality    int    `json:"quality" validate:"gte=1,lte=100"`
}

// CaptureConfig holds the photo encoding settings
type CaptureConfig struct {
	Format   string `json:"format" validate:"oneof=png jpg jpeg webp"`
	Quality  int    `json:"quality" validate:"gte=1,lte=100"`
	Lossless bool   `json:"lossless"`
}

// StoreConfig selects where artifacts are written
type StoreConfig struct {
	Kind string        `json:"kind" validate:"oneof=none local s3"`
	Dir  string        `json:"dir" validate:"required_if=Kind local"`
	S3   S3StoreConfig `json:"s3"`
}

// S3StoreConfig holds the bucket settings; credentials come from the environment only
type S3StoreConfig struct {
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Prefix          string `json:"prefix"`
	Endpoint        string `json:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `json:"-"`
	SecretAccessKey string `json:"-"`
}

// LogConfig holds the logging settings
type LogConfig struct {
	Level    string `json:"level" validate:"oneof=panic fatal error warn warning info debug trace"`
	File     string `json:"file"`
	NoColors bool   `json:"no_colors"`
}

// Default returns a configuration with default values
func Default() *Config {
	lc := lighting.DefaultConfig()
	pc := pose.DefaultConfig()
	rc := readiness.DefaultConfig()
	vc := detection.DefaultVisionConfig()
	po := capture.DefaultPhotoOptions()

	return &Config{
		Lighting: LightingConfig{
			LightThreshold:    lc.LightThreshold,
			ContrastThreshold: lc.ContrastThreshold,
		},
		Pose: PoseConfig{
			TiltThreshold:             pc.TiltThreshold,
			VerticalThreshold:         pc.VerticalThreshold,
			YawThreshold:              pc.YawThreshold,
			HeadTiltUpOrDownThreshold: pc.HeadTiltThreshold,
		},
		Readiness: ReadinessConfig{
			ScoreThreshold: rc.ScoreThreshold,
			EllipseMargin:  rc.EllipseMargin,
		},
		Region: RegionConfig{
			EllipseWidthRatio:  geometry.DefaultWidthRatio,
			EllipseHeightRatio: geometry.DefaultHeightRatio,
			Mirror:             true,
		},
		Session: SessionConfig{
			Mode:                  "photo",
			TickIntervalMs:        500,
			StartDelayMs:          2000,
			PreRecordCountdownSec: 3,
			RecordDurationSec:     5,
			VideoQuality:          85,
		},
		Backend: BackendConfig{
			Kind:       "ollama",
			URL:        "http://localhost:11434",
			Model:      "qwen2.5vl:7b",
			TimeoutSec: 60,
			MaxDim:     vc.MaxDim,
			Quality:    vc.Quality,
		},
		Capture: CaptureConfig{
			Format:  po.Format,
			Quality: po.Quality,
		},
		Store: StoreConfig{
			Kind: "local",
			Dir:  "./captures",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
// Missing keys keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed the %q rule (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Backend.Kind == "ws" && c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required for the ws backend")
	}

	if c.Store.Kind == "s3" && c.Store.S3.Bucket == "" {
		return fmt.Errorf("store.s3.bucket is required for the s3 store")
	}

	if c.Session.Mode == "video" && c.Session.TickIntervalMs > c.Session.RecordDurationSec*1000 {
		return fmt.Errorf("session.tick_interval_ms must not exceed the recording duration")
	}

	return nil
}

// LoadEnv loads an optional .env file and applies FACE_CAPTURE_* overrides
func (c *Config) LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	for name, set := range c.envBindings() {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
	}

	return nil
}

func (c *Config) envBindings() map[string]func(string) error {
	return map[string]func(string) error{
		"LIGHT_THRESHOLD":                floatVar(&c.Lighting.LightThreshold),
		"CONTRAST_THRESHOLD":             floatVar(&c.Lighting.ContrastThreshold),
		"TILT_THRESHOLD":                 floatVar(&c.Pose.TiltThreshold),
		"VERTICAL_THRESHOLD":             floatVar(&c.Pose.VerticalThreshold),
		"YAW_THRESHOLD":                  floatVar(&c.Pose.YawThreshold),
		"HEAD_TILT_UP_OR_DOWN_THRESHOLD": floatVar(&c.Pose.HeadTiltUpOrDownThreshold),
		"SCORE_THRESHOLD":                floatVar(&c.Readiness.ScoreThreshold),
		"ELLIPSE_MARGIN":                 floatVar(&c.Readiness.EllipseMargin),
		"ELLIPSE_WIDTH_RATIO":            floatVar(&c.Region.EllipseWidthRatio),
		"ELLIPSE_HEIGHT_RATIO":           floatVar(&c.Region.EllipseHeightRatio),
		"MIRROR":                         boolVar(&c.Region.Mirror),
		"MODE":                           stringVar(&c.Session.Mode),
		"TICK_INTERVAL_MS":               intVar(&c.Session.TickIntervalMs),
		"START_DELAY_MS":                 intVar(&c.Session.StartDelayMs),
		"PRE_RECORD_COUNTDOWN_SEC":       intVar(&c.Session.PreRecordCountdownSec),
		"RECORD_DURATION_SEC":            intVar(&c.Session.RecordDurationSec),
		"BACKEND":                        stringVar(&c.Backend.Kind),
		"BACKEND_URL":                    stringVar(&c.Backend.URL),
		"MODEL":                          stringVar(&c.Backend.Model),
		"PHOTO_FORMAT":                   stringVar(&c.Capture.Format),
		"STORE":                          stringVar(&c.Store.Kind),
		"STORE_DIR":                      stringVar(&c.Store.Dir),
		"S3_BUCKET":                      stringVar(&c.Store.S3.Bucket),
		"S3_REGION":                      stringVar(&c.Store.S3.Region),
		"S3_PREFIX":                      stringVar(&c.Store.S3.Prefix),
		"S3_ENDPOINT":                    stringVar(&c.Store.S3.Endpoint),
		"S3_ACCESS_KEY_ID":               stringVar(&c.Store.S3.AccessKeyID),
		"S3_SECRET_ACCESS_KEY":           stringVar(&c.Store.S3.SecretAccessKey),
		"LOG_LEVEL":                      stringVar(&c.Log.Level),
		"LOG_FILE":                       stringVar(&c.Log.File),
	}
}

func stringVar(p *string) func(string) error {
	return func(v string) error {
		*p = v
		return nil
	}
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func floatVar(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "face-capture", "config.json")
}

// ToAnalyzer returns the lighting gate settings
func (l LightingConfig) ToAnalyzer() lighting.Config {
	return lighting.Config{
		LightThreshold:    l.LightThreshold,
		ContrastThreshold: l.ContrastThreshold,
	}
}

// ToValidator returns the pose tolerances
func (p PoseConfig) ToValidator() pose.Config {
	return pose.Config{
		TiltThreshold:     p.TiltThreshold,
		VerticalThreshold: p.VerticalThreshold,
		YawThreshold:      p.YawThreshold,
		HeadTiltThreshold: p.HeadTiltUpOrDownThreshold,
	}
}

// ToAggregator returns the aggregator settings
func (r ReadinessConfig) ToAggregator() readiness.Config {
	return readiness.Config{
		ScoreThreshold: r.ScoreThreshold,
		EllipseMargin:  r.EllipseMargin,
	}
}

// ToEvaluator returns the frame preparation settings
func (r RegionConfig) ToEvaluator() evaluator.Config {
	return evaluator.Config{
		Mirror:      r.Mirror,
		WidthRatio:  r.EllipseWidthRatio,
		HeightRatio: r.EllipseHeightRatio,
	}
}

// Aggregator builds a readiness aggregator from all threshold sections
func (c *Config) Aggregator() *readiness.Aggregator {
	return readiness.NewWithConfig(c.Readiness.ToAggregator(), c.Lighting.ToAnalyzer(), c.Pose.ToValidator())
}

// Video reports whether sessions record a clip instead of taking a photo
func (s SessionConfig) Video() bool {
	return s.Mode == "video"
}

// ToSession returns the session timing; Warmup is left for the caller
func (c *Config) ToSession() session.Config {
	s := session.DefaultConfig()
	s.TickInterval = time.Duration(c.Session.TickIntervalMs) * time.Millisecond
	s.StartDelay = time.Duration(c.Session.StartDelayMs) * time.Millisecond
	s.Countdown = time.Duration(c.Session.PreRecordCountdownSec) * time.Second
	s.RecordFor = time.Duration(c.Session.RecordDurationSec) * time.Second
	s.Photo = c.Capture.ToPhotoOptions()
	s.Recorder = capture.MJPEGFactory(c.Session.VideoQuality, c.Session.MaxVideoFrames)
	return s
}

// ToPhotoOptions returns the photo encoding settings
func (c CaptureConfig) ToPhotoOptions() capture.PhotoOptions {
	return capture.PhotoOptions{
		Format:   c.Format,
		Quality:  c.Quality,
		Lossless: c.Lossless,
	}
}

// ToVision returns the prompt and image settings for a vision model backend
func (b BackendConfig) ToVision() detection.VisionConfig {
	vc := detection.DefaultVisionConfig()
	vc.Model = b.Model
	vc.MaxDim = b.MaxDim
	vc.Quality = b.Quality
	return vc
}

// Timeout returns the per-request backend timeout
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSec) * time.Second
}

// ToS3 returns the S3 store settings
func (s StoreConfig) ToS3() capture.S3Config {
	return capture.S3Config{
		Bucket:          s.S3.Bucket,
		Region:          s.S3.Region,
		Prefix:          s.S3.Prefix,
		Endpoint:        s.S3.Endpoint,
		AccessKeyID:     s.S3.AccessKeyID,
		SecretAccessKey: s.S3.SecretAccessKey,
	}
}

// ToLogging returns the logger options
func (l LogConfig) ToLogging() logging.Options {
	return logging.Options{
		Level:    l.Level,
		File:     l.File,
		NoColors: l.NoColors,
	}
}
