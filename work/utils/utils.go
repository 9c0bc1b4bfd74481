package utils

import (
	"fmt"

	"zeex-stream/work/config"
)

// LogURL returns either the original URL or an obfuscated version for
// logging. Upstream URLs embed the bot token, so production configs keep
// obfuscation on.
func LogURL(cfg *config.Config, url string) string {
	if cfg.ObfuscateUrls {
		return config.ObfuscateURL(url)
	}
	return url
}

// FormatBytes renders a byte count in human-readable form.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
