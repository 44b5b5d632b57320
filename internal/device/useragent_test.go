package device

import (
	"strings"
	"testing"

	"studyhub/backend/internal/device/domain"
)

func TestDescribe_Class(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want domain.Class
	}{
		{"empty", "", domain.ClassUnknown},
		{"desktop firefox", "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0", domain.ClassDesktop},
		{"iphone", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1", domain.ClassMobile},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1", domain.ClassTablet},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", domain.ClassBot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.ua).Class; got != tt.want {
				t.Errorf("Describe(%q).Class = %q, want %q", tt.ua, got, tt.want)
			}
		})
	}
}

func TestDescribe_Browser(t *testing.T) {
	d := Describe("Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0")
	if d.Browser != "Firefox" || d.BrowserVersion != "120.0" {
		t.Errorf("browser = %q %q, want Firefox 120.0", d.Browser, d.BrowserVersion)
	}
	if !strings.Contains(d.Label(), "Firefox on ") {
		t.Errorf("Label = %q", d.Label())
	}
}

func TestDescribe_TruncatesLongHeader(t *testing.T) {
	d := Describe(strings.Repeat("x", 10*maxUserAgent))
	if d.Class == "" {
		t.Error("class should always be set")
	}
}
