package scoring

import (
	"strings"

	"github.com/ayodejiio/gatelink/internal/models"
	"github.com/ayodejiio/gatelink/pkg/useragent"
)

// DeviceConsistencyAnalyzer cross-validates the platform string, touch
// support, screen class and renderer for contradictions a spoofed report
// cannot easily keep coherent.
type DeviceConsistencyAnalyzer struct{}

func NewDeviceConsistencyAnalyzer() *DeviceConsistencyAnalyzer {
	return &DeviceConsistencyAnalyzer{}
}

func (a *DeviceConsistencyAnalyzer) Category() models.Category {
	return models.CategoryDeviceConsistency
}

func (a *DeviceConsistencyAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryDeviceConsistency}

	info := useragent.Parse(report.UserAgent)
	platform := strings.ToLower(report.Platform)

	// UA operating system vs navigator.platform.
	switch info.OS {
	case "Windows":
		if platform != "" && !strings.Contains(platform, "win") {
			a.mismatch(&cs, 30)
		}
	case "macOS":
		if platform != "" && !strings.Contains(platform, "mac") {
			a.mismatch(&cs, 30)
		}
	case "Linux":
		if platform != "" && !strings.Contains(platform, "linux") && !strings.Contains(platform, "x11") {
			a.mismatch(&cs, 30)
		}
	case "Android":
		if platform != "" && !strings.Contains(platform, "linux") && !strings.Contains(platform, "arm") && !strings.Contains(platform, "android") {
			a.mismatch(&cs, 30)
		}
	case "iOS":
		if platform != "" && !strings.Contains(platform, "iphone") && !strings.Contains(platform, "ipad") {
			a.mismatch(&cs, 30)
		}
	}

	// Mobile UA without touch support.
	if info.IsMobile && report.MaxTouchPoints == 0 {
		a.mismatch(&cs, 35)
	}

	// Mobile UA with a desktop-class screen is the classic emulator tell.
	if info.IsMobile && report.ScreenWidth >= 1920 && report.PixelRatio <= 1 {
		a.mismatch(&cs, 20)
	}

	// Viewport larger than the screen it claims to live on.
	if report.ViewportWidth > 0 && report.ScreenWidth > 0 &&
		report.ViewportWidth > report.ScreenWidth {
		a.mismatch(&cs, 25)
	}

	// Apple platforms with a non-Apple GPU string.
	if info.OS == "iOS" && report.WebGLRenderer != "" {
		r := strings.ToLower(report.WebGLRenderer)
		if !strings.Contains(r, "apple") && !strings.Contains(r, "powervr") {
			a.mismatch(&cs, 25)
		}
	}

	return cs
}

func (a *DeviceConsistencyAnalyzer) mismatch(cs *models.CategoryScore, penalty int) {
	cs.Score -= penalty
	for _, f := range cs.Flags {
		if f == models.FlagDeviceMismatch {
			return
		}
	}
	cs.Flags = append(cs.Flags, models.FlagDeviceMismatch)
}
