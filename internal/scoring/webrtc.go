package scoring

import (
	"net"

	"github.com/ayodejiio/gatelink/internal/models"
)

// WebRTCAnalyzer compares the locally-discovered addresses against the
// publicly observed one. A public local address that differs from the
// request IP is a strong VPN/proxy indicator. Whether that blocks the
// visit is policy; here it only dents the sub-score.
type WebRTCAnalyzer struct{}

func NewWebRTCAnalyzer() *WebRTCAnalyzer {
	return &WebRTCAnalyzer{}
}

func (a *WebRTCAnalyzer) Category() models.Category {
	return models.CategoryWebRTC
}

func (a *WebRTCAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryWebRTC}

	if len(report.LocalIPs) == 0 {
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("webrtc"))
		return cs
	}

	observed := net.ParseIP(rctx.IP)
	for _, raw := range report.LocalIPs {
		ip := net.ParseIP(raw)
		if ip == nil || isPrivate(ip) {
			continue
		}
		if observed == nil || !ip.Equal(observed) {
			cs.Score -= 35
			cs.Flags = append(cs.Flags, models.FlagWebRTCMismatch)
			break
		}
	}

	return cs
}

func isPrivate(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
