package utils

import (
	"fmt"
	"net/url"

	"sokol-player/work/config"
)

// LogURL returns either the original URL or an obfuscated version for logging,
// depending on the obfuscation setting.
func LogURL(cfg *config.Config, raw string) string {
	if cfg.ObfuscateUrls {
		return ObfuscateURL(raw)
	}
	return raw
}

// ObfuscateURL strips the path, query and fragment from a URL, keeping only
// scheme and host so provider credentials embedded in paths never hit the logs.
func ObfuscateURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}

// FormatBytes renders a byte count as a human readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
