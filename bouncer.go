// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func init() {
	caddy.RegisterModule(Bouncer{})
}

var testClockInject clockwork.Clock

// Bouncer is middleware that denies requests from banned IPs and bans IPs
// that request a blocked path.
type Bouncer struct {
	// Embed the configuration directly
	Config

	// Logger for the middleware
	logger *zap.Logger

	// Severity for denial events, parsed from Config.LogLevel
	logLevel zapcore.Level

	// Paths that trigger a ban
	ruleset map[string]struct{}

	// Shared ban state
	banlist *Banlist

	// Optional webhook notifier, nil when no webhook is configured
	notifier *Notifier

	// clock provides access to time functions via the clockwork interface
	clock clockwork.Clock
}

// CaddyModule returns the Caddy module information.
func (Bouncer) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.bouncer",
		New: func() caddy.Module { return new(Bouncer) },
	}
}

// Provision sets up the middleware.
func (m *Bouncer) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger(m)
	var clock clockwork.Clock
	if testClockInject != nil {
		clock = testClockInject
	} else {
		clock = clockwork.NewRealClock()
	}
	m.clock = clock

	// Apply defaults and validate configuration
	if m.BanDuration < 0 {
		return fmt.Errorf("ban_duration must not be negative")
	}
	if m.BanDuration == 0 {
		m.BanDuration = caddy.Duration(time.Hour)
	}
	if m.BannedStatus == 0 {
		m.BannedStatus = http.StatusForbidden
	}
	if m.BlockedStatus == 0 {
		m.BlockedStatus = http.StatusForbidden
	}
	if m.BannedStatus < 100 || m.BannedStatus > 599 {
		return fmt.Errorf("banned_status must be a valid HTTP status code: %d", m.BannedStatus)
	}
	if m.BlockedStatus < 100 || m.BlockedStatus > 599 {
		return fmt.Errorf("blocked_status must be a valid HTTP status code: %d", m.BlockedStatus)
	}

	level, err := parseLogLevel(m.LogLevel)
	if err != nil {
		return err
	}
	m.logLevel = level

	// Build the set of paths that earn a ban
	m.ruleset = buildRuleset(m.Presets, m.CustomPaths)

	// Get the singleton banlist instance
	m.banlist = getBanlist()

	// Attempt to configure the singleton banlist
	wasConfigured := m.banlist.Configure(clock, m.logger)

	if !wasConfigured {
		m.logger.Debug("bouncer banlist is already configured; sharing the existing ban state")
	}

	if m.SlackWebhook != "" || m.DiscordWebhook != "" {
		m.notifier = newNotifier(m.SlackWebhook, m.DiscordWebhook, m.logger)
	}

	m.logger.Info("Bouncer middleware configured",
		zap.Strings("presets", m.Presets),
		zap.Int("custom_paths", len(m.CustomPaths)),
		zap.Int("blocked_paths", len(m.ruleset)),
		zap.Duration("ban_duration", time.Duration(m.BanDuration)),
		zap.Int("banned_status", m.BannedStatus),
		zap.Int("blocked_status", m.BlockedStatus))

	return nil
}

// parseLogLevel resolves a configured level name to a zap level. The trace
// level maps to debug, zap's lowest severity.
func parseLogLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "":
		return zapcore.DebugLevel, nil
	case "trace":
		return zapcore.DebugLevel, nil
	case "error", "warn", "info", "debug":
		return zapcore.ParseLevel(strings.ToLower(name))
	default:
		return 0, fmt.Errorf("unrecognized log_level %q", name)
	}
}

// ServeHTTP implements caddyhttp.MiddlewareHandler.
func (m *Bouncer) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	// Extract the client IP address
	ip, ok := clientAddr(r)
	if !ok {
		// No usable client address, nothing to hold a ban against
		return next.ServeHTTP(w, r)
	}

	now := m.clock.Now()

	// Check for a live ban before consulting the ruleset, so banned clients
	// are denied on every path, not just blocked ones
	if expires, found := m.banlist.Lookup(ip); found {
		if expires.After(now) {
			m.logDenial("Banned IP attempted access", ip, r.URL.Path, true, false)
			w.WriteHeader(m.BannedStatus)
			return nil
		}

		// The ban has lapsed, clear it and treat the client as new
		m.banlist.removeExpired(ip, now)
	}

	if _, blocked := m.ruleset[r.URL.Path]; blocked {
		expires := now.Add(time.Duration(m.BanDuration))
		m.banlist.Insert(ip, expires)
		m.logDenial("Blocked path accessed, IP banned", ip, r.URL.Path, false, true)

		if m.notifier != nil {
			m.notifier.NotifyBan(ip, r.URL.Path, expires)
		}

		w.WriteHeader(m.BlockedStatus)
		return nil
	}

	// Continue with the request
	return next.ServeHTTP(w, r)
}

// logDenial emits the structured denial event at the configured severity.
func (m *Bouncer) logDenial(msg string, ip netip.Addr, path string, banned, blocked bool) {
	if ce := m.logger.Check(m.logLevel, msg); ce != nil {
		ce.Write(
			zap.String("ip", ip.String()),
			zap.String("path", path),
			zap.Bool("banned", banned),
			zap.Bool("blocked", blocked))
	}
}

// clientAddr extracts the client IP address for ban decisions. A proxy-set
// header wins over the transport peer address so bans land on the client
// rather than an intermediary.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	// Check for the X-Real-IP header first
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if ip, err := netip.ParseAddr(realIP); err == nil {
			return ip, true
		}
	}

	// Check for the client IP the server resolved from trusted proxies and
	// attached to the request before handlers ran
	if v, ok := caddyhttp.GetVar(r.Context(), caddyhttp.ClientIPVarKey).(string); ok && v != "" {
		if ip, err := netip.ParseAddr(v); err == nil {
			return ip, true
		}
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}

	return ip, true
}

// Interface guards
var (
	_ caddy.Provisioner           = (*Bouncer)(nil)
	_ caddyhttp.MiddlewareHandler = (*Bouncer)(nil)
)
