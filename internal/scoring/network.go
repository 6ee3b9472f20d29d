package scoring

import (
	"net"
	"strings"

	"github.com/ayodejiio/gatelink/internal/models"
)

// Known datacenter/cloud ranges. Coarse on purpose: a proper IP intelligence
// feed can replace this table without touching the analyzer.
var datacenterCIDRs = []string{
	// AWS
	"3.0.0.0/8", "13.0.0.0/8", "18.0.0.0/8", "34.0.0.0/8", "35.0.0.0/8",
	"52.0.0.0/8", "54.0.0.0/8",
	// Google Cloud
	"34.64.0.0/10", "35.184.0.0/13", "104.154.0.0/15", "104.196.0.0/14",
	// Azure
	"13.64.0.0/11", "20.0.0.0/8", "40.64.0.0/10", "52.224.0.0/11",
	// DigitalOcean
	"64.225.0.0/16", "68.183.0.0/16", "104.131.0.0/16", "134.209.0.0/16",
	"138.68.0.0/16", "139.59.0.0/16", "142.93.0.0/16", "157.245.0.0/16",
	"159.65.0.0/16", "159.89.0.0/16", "165.227.0.0/16", "167.99.0.0/16",
	"178.128.0.0/16", "188.166.0.0/16", "192.241.0.0/16", "206.189.0.0/16",
	// Linode
	"45.33.0.0/16", "45.79.0.0/16", "139.162.0.0/16", "172.104.0.0/15",
	// Vultr
	"45.32.0.0/16", "45.76.0.0/16", "45.77.0.0/16", "108.61.0.0/16",
	"140.82.0.0/16", "144.202.0.0/16", "149.28.0.0/16",
	// Hetzner
	"5.9.0.0/16", "46.4.0.0/14", "78.46.0.0/15", "88.99.0.0/16",
	"95.216.0.0/14", "116.202.0.0/15", "135.181.0.0/16", "138.201.0.0/16",
	"144.76.0.0/16", "148.251.0.0/16", "157.90.0.0/16", "168.119.0.0/16",
	"176.9.0.0/16", "178.63.0.0/16", "195.201.0.0/16",
	// OVH
	"51.38.0.0/16", "51.68.0.0/16", "51.75.0.0/16", "51.77.0.0/16",
	"51.83.0.0/16", "51.89.0.0/16", "51.91.0.0/16", "54.36.0.0/16",
	"54.37.0.0/16", "54.38.0.0/16", "135.125.0.0/16", "137.74.0.0/16",
	"141.94.0.0/16", "144.217.0.0/16", "145.239.0.0/16", "147.135.0.0/16",
	"149.56.0.0/16", "151.80.0.0/16", "158.69.0.0/16", "164.132.0.0/16",
	"167.114.0.0/16", "176.31.0.0/16", "178.32.0.0/15", "188.165.0.0/16",
	"192.99.0.0/16", "193.70.0.0/16",
}

var hostingISPKeywords = []string{
	"amazon", "google cloud", "microsoft azure", "digitalocean", "linode",
	"vultr", "hetzner", "ovh", "m247", "datacamp", "choopa", "leaseweb",
	"contabo", "scaleway", "hosting", "datacenter", "colocation",
}

var proxyHeaderNames = []string{
	"via", "forwarded", "x-originating-ip", "x-proxy-id", "proxy-connection",
}

var datacenterNets []*net.IPNet

func init() {
	for _, cidr := range datacenterCIDRs {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			datacenterNets = append(datacenterNets, ipNet)
		}
	}
}

// IsDatacenterIP reports whether ip falls inside a known datacenter range.
func IsDatacenterIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range datacenterNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// NetworkAnalyzer scores the network reputation of the observed address.
// It only consumes pre-resolved context; any blocking lookup (geo, rDNS)
// happens upstream with its own timeout.
type NetworkAnalyzer struct{}

func NewNetworkAnalyzer() *NetworkAnalyzer {
	return &NetworkAnalyzer{}
}

func (a *NetworkAnalyzer) Category() models.Category {
	return models.CategoryNetwork
}

func (a *NetworkAnalyzer) Analyze(report *models.FingerprintReport, rctx *models.RequestContext) models.CategoryScore {
	cs := models.CategoryScore{Category: models.CategoryNetwork}

	if IsDatacenterIP(rctx.IP) {
		cs.Score -= 40
		cs.Flags = append(cs.Flags, models.FlagDatacenterIP)
	} else if isp := strings.ToLower(rctx.ISP); isp != "" {
		for _, kw := range hostingISPKeywords {
			if strings.Contains(isp, kw) {
				cs.Score -= 30
				cs.Flags = append(cs.Flags, models.FlagDatacenterIP)
				break
			}
		}
	}

	for _, name := range proxyHeaderNames {
		if _, ok := rctx.Headers[name]; ok {
			cs.Score -= 15
			cs.Flags = append(cs.Flags, models.FlagProxyHeaders)
			break
		}
	}

	// Geo resolution failed or timed out upstream: conservative dent, plus
	// a degraded-signal flag for the audit trail.
	if rctx.Country == "" {
		cs.Score -= 5
		cs.Flags = append(cs.Flags, models.FlagSignalUnavailable("geo"))
	}

	return cs
}
