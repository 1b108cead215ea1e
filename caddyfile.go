package caddy_bouncer

import (
	"strconv"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
)

func init() {
	httpcaddyfile.RegisterHandlerDirective("bouncer", parseCaddyfile)
}

// parseCaddyfile unmarshals tokens from h into a new Bouncer middleware handler.
func parseCaddyfile(h httpcaddyfile.Helper) (caddyhttp.MiddlewareHandler, error) {
	var m Bouncer

	err := m.UnmarshalCaddyfile(h.Dispenser)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler. Syntax:
//
//	bouncer {
//	    presets         <name...>
//	    custom_paths    <path...>
//	    ban_duration    <duration>
//	    banned_status   <code>
//	    blocked_status  <code>
//	    log_level       <level>
//	    slack_webhook   <url>
//	    discord_webhook <url>
//	}
func (m *Bouncer) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	// Skip the directive name
	d.Next()

	// Process the block
	for d.NextBlock(0) {
		switch d.Val() {
		case "presets":
			args := d.RemainingArgs()
			if len(args) == 0 {
				return d.ArgErr()
			}
			m.Presets = append(m.Presets, args...)

		case "custom_paths":
			args := d.RemainingArgs()
			if len(args) == 0 {
				return d.ArgErr()
			}
			m.CustomPaths = append(m.CustomPaths, args...)

		case "ban_duration":
			if !d.NextArg() {
				return d.ArgErr()
			}
			dur, err := caddy.ParseDuration(d.Val())
			if err != nil {
				return d.Errf("parsing ban_duration: %v", err)
			}
			m.BanDuration = caddy.Duration(dur)

		case "banned_status":
			if !d.NextArg() {
				return d.ArgErr()
			}
			code, err := strconv.Atoi(d.Val())
			if err != nil {
				return d.Errf("parsing banned_status: %v", err)
			}
			m.BannedStatus = code

		case "blocked_status":
			if !d.NextArg() {
				return d.ArgErr()
			}
			code, err := strconv.Atoi(d.Val())
			if err != nil {
				return d.Errf("parsing blocked_status: %v", err)
			}
			m.BlockedStatus = code

		case "log_level":
			if !d.NextArg() {
				return d.ArgErr()
			}
			m.LogLevel = d.Val()

		case "slack_webhook":
			if !d.NextArg() {
				return d.ArgErr()
			}
			m.SlackWebhook = d.Val()

		case "discord_webhook":
			if !d.NextArg() {
				return d.ArgErr()
			}
			m.DiscordWebhook = d.Val()

		default:
			return d.Errf("unknown subdirective %q", d.Val())
		}
	}

	return nil
}

var _ caddyfile.Unmarshaler = (*Bouncer)(nil)
