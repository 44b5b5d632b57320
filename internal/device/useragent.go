// Package device derives client descriptors from user agent strings.
package device

import (
	"strings"

	"github.com/mssola/useragent"

	"studyhub/backend/internal/device/domain"
)

// maxUserAgent bounds how much of a header is parsed.
const maxUserAgent = 512

// Describe parses a raw User-Agent header. An empty or unrecognised header yields ClassUnknown.
func Describe(raw string) domain.ClientDescriptor {
	raw = strings.TrimSpace(raw)
	if len(raw) > maxUserAgent {
		raw = raw[:maxUserAgent]
	}
	if raw == "" {
		return domain.ClientDescriptor{Class: domain.ClassUnknown}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	d := domain.ClientDescriptor{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Platform:       ua.Platform(),
	}
	d.Class = classify(ua, raw)
	return d
}

func classify(ua *useragent.UserAgent, raw string) domain.Class {
	lower := strings.ToLower(raw)
	switch {
	case ua.Bot():
		return domain.ClassBot
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") ||
		(strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")):
		return domain.ClassTablet
	case ua.Mobile():
		return domain.ClassMobile
	case ua.OS() != "" || ua.Platform() != "":
		return domain.ClassDesktop
	default:
		return domain.ClassUnknown
	}
}
