package scoring

import (
	"github.com/ayodejiio/gatelink/internal/models"
)

// MousePatternAnalyzer applies statistical tests to the motion telemetry.
// Human pointer movement has messy velocity and acceleration; injected
// events are either perfectly smooth or perfectly absent.
type MousePatternAnalyzer struct {
	th Thresholds
}

func NewMousePatternAnalyzer(th Thresholds) *MousePatternAnalyzer {
	return &MousePatternAnalyzer{th: th}
}

func (a *MousePatternAnalyzer) Category() models.Category {
	return models.CategoryMousePattern
}

func (a *MousePatternAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryMousePattern}
	b := report.Behavior

	if len(b.VelocitySamples) < a.th.MinVelocitySamps {
		// Too little motion to test. The behavior analyzer already charges
		// for absent interaction; don't double-penalize here.
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("mouse_pattern"))
		return cs
	}

	velVar := variance(b.VelocitySamples)
	velMean := mean(b.VelocitySamples)

	// Constant-velocity paths: injected mousemove streams interpolate
	// linearly between waypoints.
	if velMean > 0 && velVar/(velMean*velMean) < 0.01 {
		cs.Score -= 35
		cs.Flags = append(cs.Flags, models.FlagLinearMouse)
	}

	if len(b.AccelerationSamples) >= a.th.MinVelocitySamps {
		if variance(b.AccelerationSamples) < 0.001 {
			cs.Score -= 25
			cs.Flags = append(cs.Flags, models.FlagLinearMouse)
		}
	}

	// Hands shake. A long trajectory with no micro-tremor reads synthetic.
	if b.MicroTremorScore > 0 && b.MicroTremorScore < 0.15 && b.MouseMoves > 30 {
		cs.Score -= 20
		cs.Flags = append(cs.Flags, models.FlagNoMicroTremor)
	}

	// Straight-line travel: humans change direction even on short paths.
	if b.MouseMoves > 50 && b.DirectionChanges < 3 {
		cs.Score -= 20
		cs.Flags = append(cs.Flags, models.FlagLinearMouse)
	}

	return cs
}
