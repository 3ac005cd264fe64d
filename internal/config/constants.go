package config

import "time"

const (
	// Generation request ceiling, matching the backend's worst-case
	// render time
	GenerateTimeout = 3 * time.Minute

	// Auth and chat API timeout
	RequestTimeout = 30 * time.Second

	// Pending OAuth states are dropped after this
	OAuthStateTTL = 10 * time.Minute

	// Generation request defaults
	DefaultSceneClass = "GeneratedScene"
	DefaultQuality    = "low"
	DefaultScriptName = "script.py"
	DefaultMaxRetries = 2

	// Fixed keys in the per-chat key-value store
	AccessTokenKey = "access_token"
	UserInfoKey    = "user_info"
	QualityKey     = "quality"

	// Telegram limits
	MaxTelegramMessageLen = 4096

	// Projects shown per /projects call
	ProjectsPerPage = 10
)

// Qualities accepted by the render backend.
var Qualities = []string{"low", "medium", "high"}

// IsValidQuality reports whether q is a known quality tier.
func IsValidQuality(q string) bool {
	for _, known := range Qualities {
		if q == known {
			return true
		}
	}
	return false
}
