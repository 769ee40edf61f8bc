package config

import (
	"testing"

	"github.com/nullbound/hevcstream/internal/capture"
	"github.com/nullbound/hevcstream/internal/pixfmt"
)

func TestLoadDefaults(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TargetFrameRate != 60.0 {
		t.Errorf("TargetFrameRate = %v, want 60", cfg.TargetFrameRate)
	}
	if cfg.PixelFormat != pixfmt.BGRA8 {
		t.Errorf("PixelFormat = %v, want BGRA8", cfg.PixelFormat)
	}
	if cfg.LatencyMode != capture.Balanced {
		t.Errorf("LatencyMode = %v, want Balanced", cfg.LatencyMode)
	}
	if !cfg.EnableAdaptiveBitrate {
		t.Error("expected EnableAdaptiveBitrate default true")
	}
}

func TestSetOverridesDefault(t *testing.T) {
	l := NewLoader()
	l.Set(KeyTargetFrameRate, 120.0)
	l.Set(KeyLatencyMode, "lowestLatency")
	l.Set(KeyPixelFormat, "p010")

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TargetFrameRate != 120.0 {
		t.Errorf("TargetFrameRate = %v, want 120", cfg.TargetFrameRate)
	}
	if cfg.LatencyMode != capture.LowestLatency {
		t.Errorf("LatencyMode = %v, want LowestLatency", cfg.LatencyMode)
	}
	if cfg.PixelFormat != pixfmt.P010 {
		t.Errorf("PixelFormat = %v, want P010", cfg.PixelFormat)
	}
}

func TestLoadRejectsOutOfRangeQuality(t *testing.T) {
	l := NewLoader()
	l.Set(KeyFrameQuality, 1.5)
	if _, err := l.Load(); err == nil {
		t.Fatal("expected an error for frame_quality out of [0.02, 1.0]")
	}
}

func TestLoadRejectsUnknownEnum(t *testing.T) {
	l := NewLoader()
	l.Set(KeyPixelFormat, "yuv420p")
	if _, err := l.Load(); err == nil {
		t.Fatal("expected an error for an unknown pixel_format")
	}
}

func TestReadConfigFileToleratesMissingFile(t *testing.T) {
	l := NewLoader()
	l.SetConfigFile("/nonexistent/path/to/config.yaml")
	if err := l.ReadConfigFile(); err != nil {
		t.Fatalf("expected a missing config file to be tolerated, got %v", err)
	}
}
