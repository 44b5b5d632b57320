package domain

// Class is the coarse kind of client a session was opened from.
type Class string

const (
	ClassDesktop Class = "desktop"
	ClassMobile  Class = "mobile"
	ClassTablet  Class = "tablet"
	ClassBot     Class = "bot"
	ClassUnknown Class = "unknown"
)

// ClientDescriptor summarises a user agent for display in a device list.
type ClientDescriptor struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Class          Class  `json:"class"`
}

// Label renders a short human-readable name, e.g. "Firefox on Linux x86_64".
func (d ClientDescriptor) Label() string {
	switch {
	case d.Browser != "" && d.OS != "":
		return d.Browser + " on " + d.OS
	case d.Browser != "":
		return d.Browser
	case d.OS != "":
		return d.OS
	default:
		return string(d.Class)
	}
}
