// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

import (
	"github.com/caddyserver/caddy/v2"
)

// Config holds the configuration for the Bouncer middleware.
type Config struct {
	// Presets names the built-in rule categories to enable.
	// Recognized values are "wordpress", "php", and "config".
	Presets []string `json:"presets,omitempty"`

	// CustomPaths is a list of additional exact-match request paths that
	// trigger a ban.
	CustomPaths []string `json:"custom_paths,omitempty"`

	// BanDuration is how long an IP stays banned after requesting a blocked
	// path. Defaults to 1h.
	BanDuration caddy.Duration `json:"ban_duration,omitempty"`

	// BannedStatus is the status code returned to requests from an IP with a
	// live ban. Defaults to 403.
	BannedStatus int `json:"banned_status,omitempty"`

	// BlockedStatus is the status code returned for the request that trips a
	// rule and earns the ban. Defaults to 403.
	BlockedStatus int `json:"blocked_status,omitempty"`

	// LogLevel is the severity at which denials are logged. One of error,
	// warn, info, debug or trace. Defaults to debug.
	LogLevel string `json:"log_level,omitempty"`

	// SlackWebhook is an optional Slack incoming-webhook URL notified of
	// every new ban.
	SlackWebhook string `json:"slack_webhook,omitempty"`

	// DiscordWebhook is an optional Discord webhook URL notified of every
	// new ban.
	DiscordWebhook string `json:"discord_webhook,omitempty"`
}
