package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ayodejiio/gatelink/internal/models"
)

var (
	slugRegex     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	timezoneRegex = regexp.MustCompile(`^[A-Za-z]+(/[A-Za-z_+-]+)*$`)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type Validator struct {
	errors []ValidationError
}

func New() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

func (v *Validator) ErrorMap() map[string]string {
	result := make(map[string]string)
	for _, err := range v.errors {
		result[err.Field] = err.Message
	}
	return result
}

// ValidateVisitRequest bounds-checks the collector payload before it
// reaches the engine. The report comes from a hostile client; string
// fields are sanitized in place and anything outside plausible browser
// ranges is rejected up front.
func ValidateVisitRequest(req *models.VisitRequest) error {
	v := New()

	if req.Slug == "" {
		v.AddError("slug", "required")
	} else if !slugRegex.MatchString(req.Slug) {
		v.AddError("slug", "invalid format")
	}

	req.Report.UserAgent = SanitizeString(req.Report.UserAgent)
	req.Report.Platform = SanitizeString(req.Report.Platform)

	r := req.Report
	if len(r.UserAgent) > 1000 {
		v.AddError("user_agent", "too long")
	}
	if len(r.Languages) > 32 {
		v.AddError("languages", "too many entries")
	}
	if r.TimeZone != "" && len(r.TimeZone) > 64 {
		v.AddError("timezone", "too long")
	} else if r.TimeZone != "" && !timezoneRegex.MatchString(r.TimeZone) {
		v.AddError("timezone", "invalid format")
	}

	if r.ScreenWidth < 0 || r.ScreenWidth > 16384 || r.ScreenHeight < 0 || r.ScreenHeight > 16384 {
		v.AddError("screen", "out of range")
	}
	if r.HardwareConcurrency < 0 || r.HardwareConcurrency > 256 {
		v.AddError("hardware_concurrency", "out of range")
	}
	if r.DeviceMemory < 0 || r.DeviceMemory > 1024 {
		v.AddError("device_memory", "out of range")
	}
	if len(r.LocalIPs) > 16 {
		v.AddError("local_ips", "too many entries")
	}

	b := r.Behavior
	if b.MouseMoves < 0 || b.KeyPressCount < 0 || b.ClickCount < 0 || b.DwellMs < 0 {
		v.AddError("behavior", "negative counter")
	}
	if len(b.VelocitySamples) > 4096 || len(b.AccelerationSamples) > 4096 || len(b.KeyIntervalsMs) > 4096 {
		v.AddError("behavior", "sample buffer too large")
	}
	if b.ScrollDepth < 0 || b.ScrollDepth > 1 {
		v.AddError("scroll_depth", "out of range")
	}

	if !v.IsValid() {
		return fmt.Errorf("validation failed: %v", v.ErrorMap())
	}
	return nil
}

func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	var result strings.Builder
	for _, r := range s {
		if r >= 32 || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}
