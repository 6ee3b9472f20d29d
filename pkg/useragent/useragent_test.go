package useragent

import "testing"

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Class
	}{
		{
			name: "standard chrome on windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			want: ClassStandard,
		},
		{
			name: "whatsapp preview",
			ua:   "WhatsApp/2.23.20.0",
			want: ClassPreviewCrawler,
		},
		{
			name: "facebook external hit",
			ua:   "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
			want: ClassPreviewCrawler,
		},
		{
			name: "googlebot",
			ua:   "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			want: ClassSearchCrawler,
		},
		{
			name: "adsbot",
			ua:   "AdsBot-Google (+http://www.google.com/adsbot.html)",
			want: ClassAdVerification,
		},
		{
			name: "ahrefs spy",
			ua:   "Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)",
			want: ClassSpyTool,
		},
		{
			name: "headless chrome",
			ua:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/119.0.0.0 Safari/537.36",
			want: ClassHeadless,
		},
		{
			name: "curl",
			ua:   "curl/8.4.0",
			want: ClassScriptedClient,
		},
		{
			name: "python requests",
			ua:   "python-requests/2.31.0",
			want: ClassScriptedClient,
		},
		{
			name: "empty ua",
			ua:   "",
			want: ClassScriptedClient,
		},
		{
			name: "instagram in-app",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 Instagram 300.0.0.0",
			want: ClassInAppBrowser,
		},
		{
			name: "generic bot fallback",
			ua:   "SomeRandomBot/1.0",
			want: ClassScriptedClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.ua)
			if got.Class != tt.want {
				t.Errorf("Parse(%q).Class = %s, want %s", tt.ua, got.Class, tt.want)
			}
		})
	}
}

func TestParseBrowserAndOS(t *testing.T) {
	info := Parse("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	if info.Browser != "Chrome" || info.Version != "120" {
		t.Errorf("expected Chrome 120, got %s %s", info.Browser, info.Version)
	}
	if info.OS != "Windows" {
		t.Errorf("expected Windows, got %s", info.OS)
	}
	if info.IsMobile {
		t.Error("desktop UA classified as mobile")
	}

	mobile := Parse("Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36")
	if !mobile.IsMobile || mobile.OS != "Android" {
		t.Errorf("expected Android mobile, got %s mobile=%v", mobile.OS, mobile.IsMobile)
	}
}

func TestDeviceClass(t *testing.T) {
	if got := DeviceClass(Parse("curl/8.4.0")); got != "bot" {
		t.Errorf("expected bot, got %s", got)
	}
	if got := DeviceClass(Parse("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1")); got != "mobile" {
		t.Errorf("expected mobile, got %s", got)
	}
	if got := DeviceClass(Parse("Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0 Safari/537.36")); got != "desktop" {
		t.Errorf("expected desktop, got %s", got)
	}
}
