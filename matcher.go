// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

import (
	"net/http"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/caddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(BannedIPMatcher{})
}

// BannedIPMatcher is a request matcher that matches requests whose client IP
// address has a live ban. It never mutates the ban state; lapsed bans are
// cleared by the bouncer handler, not the matcher.
type BannedIPMatcher struct {
	// Logger for the matcher
	logger *zap.Logger
}

// CaddyModule returns the Caddy module information.
func (BannedIPMatcher) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.matchers.banned_ip",
		New: func() caddy.Module { return new(BannedIPMatcher) },
	}
}

// Provision sets up the matcher.
func (m *BannedIPMatcher) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger(m)
	return nil
}

func (BannedIPMatcher) CELLibrary(ctx caddy.Context) (cel.Library, error) {
	return caddyhttp.CELMatcherImpl(
		// name of the macro, this is the function name that users see when writing expressions.
		"banned_ip",
		// name of the function that the macro will be rewritten to call.
		"request_ip_match_banned_ip",
		// internal data type of the matcher value; the matcher takes no
		// configuration, so the strings are accepted and ignored.
		[]*cel.Type{cel.ListType(cel.StringType)},
		// function to convert a constant list of strings to a matcher instance.
		func(data ref.Val) (caddyhttp.RequestMatcherWithError, error) {
			m := BannedIPMatcher{}
			err := m.Provision(ctx)
			return m, err
		},
	)
}

// Match returns true if the request's client IP address has a live ban.
func (m BannedIPMatcher) Match(r *http.Request) bool {
	match, _ := m.MatchWithError(r)
	return match
}

// MatchWithError returns true if the request's client IP address has a live ban.
func (m BannedIPMatcher) MatchWithError(r *http.Request) (bool, error) {
	// Extract the client IP address
	ip, ok := clientAddr(r)
	if !ok {
		return false, nil
	}

	// Check if a bouncer handler has brought up the shared banlist
	if globalBanlist == nil {
		m.logger.Debug("No banlist available for matching")
		return false, nil
	}

	expires, found := globalBanlist.Lookup(ip)
	live := found && expires.After(globalBanlist.clock.Now())

	m.logger.Debug("Matching client IP against banlist",
		zap.String("ip", ip.String()),
		zap.Bool("match", live),
		zap.Int("ban_count", globalBanlist.Count()))

	return live, nil
}

// UnmarshalCaddyfile implements caddyfile.Unmarshaler.
func (m *BannedIPMatcher) UnmarshalCaddyfile(d *caddyfile.Dispenser) error {
	for d.Next() {
		// No arguments needed for this matcher
		if d.NextArg() {
			return d.ArgErr()
		}

		// No block support
		if d.NextBlock(0) {
			return d.Err("banned_ip matcher does not support blocks")
		}
	}
	return nil
}

var _ caddyhttp.RequestMatcherWithError = (*BannedIPMatcher)(nil)
var _ caddyhttp.CELLibraryProducer = (*BannedIPMatcher)(nil)
