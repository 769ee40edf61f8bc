// Package config resolves the pipeline's mapping-based configuration
// surface (spec §6) from flags, environment variables, a config file,
// and in-code defaults, in that order of precedence, using viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/nullbound/hevcstream/internal/capture"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

// Keys are the mapping-config field names from spec §6.
const (
	KeyTargetFrameRate         = "target_frame_rate"
	KeyKeyFrameInterval        = "key_frame_interval"
	KeyMaxBitrate              = "max_bitrate"
	KeyMinBitrate              = "min_bitrate"
	KeyPixelFormat             = "pixel_format"
	KeyColorSpace              = "color_space"
	KeyCaptureQueueDepth       = "capture_queue_depth"
	KeyFrameQuality            = "frame_quality"
	KeyLatencyMode             = "latency_mode"
	KeyEnableAdaptiveBitrate   = "enable_adaptive_bitrate"
	KeyDiagnostic              = "diagnostic"
	KeyPreheat                 = "preheat"
	KeyEnableProMotion         = "enable_pro_motion"
	KeyEnableTemporalDithering = "enable_temporal_dithering"
)

// EnvPrefix is the environment-variable prefix bound to every key,
// e.g. KeyTargetFrameRate resolves from HEVCSTREAM_TARGET_FRAME_RATE.
const EnvPrefix = "hevcstream"

// Config is the pipeline's resolved configuration, per spec §6's
// mapping-config field list plus the two platform-preference values
// from §6's "Persisted state" note.
type Config struct {
	TargetFrameRate       float64
	KeyFrameInterval      int
	MaxBitrate            int // 0 means unset
	MinBitrate            int // 0 means unset
	PixelFormat           pixfmt.Format
	ColorSpace            pixfmt.ColorSpace
	CaptureQueueDepth     int // 0 means "let the engine compute it"
	FrameQuality          float64
	LatencyMode           capture.LatencyMode
	EnableAdaptiveBitrate bool
	Diagnostic            bool
	Preheat               bool

	EnableProMotion         bool
	EnableTemporalDithering bool
}

// Loader resolves Config from flags (via Set), environment, an
// optional config file, and defaults, mirroring the precedence viper
// itself implements: explicit Set, then flag, then env, then file,
// then default.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a Loader with spec §6's defaults pre-populated.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyTargetFrameRate, 60.0)
	v.SetDefault(KeyKeyFrameInterval, 120)
	v.SetDefault(KeyMaxBitrate, 0)
	v.SetDefault(KeyMinBitrate, 0)
	v.SetDefault(KeyPixelFormat, "bgra8")
	v.SetDefault(KeyColorSpace, "sRGB")
	v.SetDefault(KeyCaptureQueueDepth, 0)
	v.SetDefault(KeyFrameQuality, 0.8)
	v.SetDefault(KeyLatencyMode, "balanced")
	v.SetDefault(KeyEnableAdaptiveBitrate, true)
	v.SetDefault(KeyDiagnostic, false)
	v.SetDefault(KeyPreheat, true)
	v.SetDefault(KeyEnableProMotion, true)
	v.SetDefault(KeyEnableTemporalDithering, false)

	for _, key := range []string{
		KeyTargetFrameRate, KeyKeyFrameInterval, KeyMaxBitrate, KeyMinBitrate,
		KeyPixelFormat, KeyColorSpace, KeyCaptureQueueDepth, KeyFrameQuality,
		KeyLatencyMode, KeyEnableAdaptiveBitrate, KeyDiagnostic, KeyPreheat,
		KeyEnableProMotion, KeyEnableTemporalDithering,
	} {
		v.BindEnv(key)
	}

	return &Loader{v: v}
}

// SetConfigFile points the loader at an explicit config file path; an
// absent file is not an error, matching viper's own ConfigFileNotFoundError
// tolerance for an optional file source.
func (l *Loader) SetConfigFile(path string) {
	l.v.SetConfigFile(path)
}

// ReadConfigFile loads the configured file if one was set and exists.
// A missing file is tolerated; any other read or parse error is
// returned.
func (l *Loader) ReadConfigFile() error {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read config file: %w", err)
	}
	return nil
}

// Set overrides key with an explicit value, the precedence a CLI flag
// occupies — clir binds flags directly into local variables rather
// than viper's pflag integration, so cmd/ callers route any
// explicitly-provided flag value through Set after parsing.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// Load resolves the final Config from all bound sources.
func (l *Loader) Load() (Config, error) {
	pixelFormat, err := parsePixelFormat(l.v.GetString(KeyPixelFormat))
	if err != nil {
		return Config{}, err
	}
	colorSpace, err := parseColorSpace(l.v.GetString(KeyColorSpace))
	if err != nil {
		return Config{}, err
	}
	latencyMode, err := parseLatencyMode(l.v.GetString(KeyLatencyMode))
	if err != nil {
		return Config{}, err
	}

	quality := l.v.GetFloat64(KeyFrameQuality)
	if quality < 0.02 || quality > 1.0 {
		return Config{}, fmt.Errorf("config: %s must be in [0.02, 1.0], got %v", KeyFrameQuality, quality)
	}

	return Config{
		TargetFrameRate:         l.v.GetFloat64(KeyTargetFrameRate),
		KeyFrameInterval:        l.v.GetInt(KeyKeyFrameInterval),
		MaxBitrate:              l.v.GetInt(KeyMaxBitrate),
		MinBitrate:              l.v.GetInt(KeyMinBitrate),
		PixelFormat:             pixelFormat,
		ColorSpace:              colorSpace,
		CaptureQueueDepth:       l.v.GetInt(KeyCaptureQueueDepth),
		FrameQuality:            quality,
		LatencyMode:             latencyMode,
		EnableAdaptiveBitrate:   l.v.GetBool(KeyEnableAdaptiveBitrate),
		Diagnostic:              l.v.GetBool(KeyDiagnostic),
		Preheat:                 l.v.GetBool(KeyPreheat),
		EnableProMotion:         l.v.GetBool(KeyEnableProMotion),
		EnableTemporalDithering: l.v.GetBool(KeyEnableTemporalDithering),
	}, nil
}

func parsePixelFormat(s string) (pixfmt.Format, error) {
	switch strings.ToLower(s) {
	case "bgra8":
		return pixfmt.BGRA8, nil
	case "bgr10a2":
		return pixfmt.BGR10A2, nil
	case "nv12":
		return pixfmt.NV12, nil
	case "p010":
		return pixfmt.P010, nil
	default:
		return 0, fmt.Errorf("config: unknown %s: %q", KeyPixelFormat, s)
	}
}

func parseColorSpace(s string) (pixfmt.ColorSpace, error) {
	switch s {
	case "sRGB":
		return pixfmt.ColorSpaceSRGB, nil
	case "displayP3":
		return pixfmt.ColorSpaceDisplayP3, nil
	default:
		return 0, fmt.Errorf("config: unknown %s: %q", KeyColorSpace, s)
	}
}

func parseLatencyMode(s string) (capture.LatencyMode, error) {
	switch strings.ToLower(s) {
	case "lowestlatency":
		return capture.LowestLatency, nil
	case "balanced":
		return capture.Balanced, nil
	case "smoothest":
		return capture.Smoothest, nil
	default:
		return 0, fmt.Errorf("config: unknown %s: %q", KeyLatencyMode, s)
	}
}
