package scoring

import (
	"strings"

	"github.com/ayodejiio/gatelink/internal/models"
)

var expectedBrowserHeaders = []string{
	"accept", "accept-language", "accept-encoding", "user-agent",
}

// HeadersAnalyzer cross-checks the HTTP request surface against the
// client-reported fingerprint. Emits the fingerprint category: mismatches
// here mean the reported device and the wire-level client disagree.
type HeadersAnalyzer struct{}

func NewHeadersAnalyzer() *HeadersAnalyzer {
	return &HeadersAnalyzer{}
}

func (a *HeadersAnalyzer) Category() models.Category {
	return models.CategoryFingerprint
}

func (a *HeadersAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryFingerprint}

	missing := 0
	for _, h := range expectedBrowserHeaders {
		if rctx.Headers[h] == "" {
			missing++
		}
	}
	if missing > 1 {
		cs.Score -= 25
		cs.Flags = append(cs.Flags, models.FlagMissingHeaders)
	}

	if al := rctx.AcceptLanguage; al == "" || al == "*" {
		cs.Score -= 15
		cs.Flags = append(cs.Flags, models.FlagMissingHeaders)
	} else if len(report.Languages) > 0 {
		// The first reported navigator language should appear somewhere in
		// Accept-Language; scripted clients routinely fake only one side.
		primary := normalizeLang(report.Languages[0])
		if primary != "" && !strings.Contains(strings.ToLower(al), primary) {
			cs.Score -= 20
			cs.Flags = append(cs.Flags, models.FlagLanguageMismatch)
		}
	}

	if enc := rctx.Headers["accept-encoding"]; enc != "" &&
		!strings.Contains(enc, "gzip") && !strings.Contains(enc, "br") {
		cs.Score -= 10
		cs.Flags = append(cs.Flags, models.FlagMissingHeaders)
	}

	// Client fingerprint anomalies.
	switch report.Canvas2DHash {
	case "":
		cs.Score -= 10
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("canvas"))
	case "error", "blocked":
		cs.Score -= 15
		cs.Flags = append(cs.Flags, models.FlagCanvasBlocked)
	}
	if report.AudioHash == "" {
		cs.Score -= 5
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("audio"))
	}

	renderer := strings.ToLower(report.WebGLRenderer)
	if strings.Contains(renderer, "swiftshader") ||
		strings.Contains(renderer, "llvmpipe") ||
		strings.Contains(renderer, "mesa offscreen") ||
		report.WebGLVendor == "Brian Paul" {
		cs.Score -= 30
		cs.Flags = append(cs.Flags, models.FlagSoftwareRenderer)
	}

	// Hardware values a real browser never reports as zero.
	if report.HardwareConcurrency == 0 || report.DeviceMemory == 0 {
		cs.Score -= 15
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("hardware"))
	}

	return cs
}

// normalizeLang reduces "en-US" to "en" for containment matching.
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}
