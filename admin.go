// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"sort"
	"strings"

	"github.com/caddyserver/caddy/v2"
	"go.uber.org/zap"
)

func init() {
	caddy.RegisterModule(adminAPI{})
}

// adminAPI is a module that serves endpoints on the admin interface for
// inspecting and lifting bans.
type adminAPI struct {
	log *zap.Logger
}

// CaddyModule returns the Caddy module information.
func (adminAPI) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "admin.api.bouncer",
		New: func() caddy.Module { return new(adminAPI) },
	}
}

// Provision sets up the adminAPI module.
func (a *adminAPI) Provision(ctx caddy.Context) error {
	a.log = ctx.Logger(a)
	return nil
}

// Routes returns the admin routes for the bouncer.
func (a *adminAPI) Routes() []caddy.AdminRoute {
	return []caddy.AdminRoute{
		{
			Pattern: "/bouncer/bans",
			Handler: caddy.AdminHandlerFunc(a.handleBans),
		},
		{
			Pattern: "/bouncer/bans/",
			Handler: caddy.AdminHandlerFunc(a.handleBan),
		},
	}
}

// handleBans lists the live bans as a JSON array sorted by IP. Entries whose
// expiry has passed are left out of the view but stay in the banlist until
// the handler or an unban clears them.
func (a *adminAPI) handleBans(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		return caddy.APIError{
			HTTPStatus: http.StatusMethodNotAllowed,
			Err:        fmt.Errorf("method not allowed"),
		}
	}

	banlist := getBanlist()
	now := banlist.clock.Now()

	entries := banlist.Snapshot()
	live := make([]BanEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Expires.After(now) {
			live = append(live, entry)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].IP.Less(live[j].IP)
	})

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(live)
}

// handleBan lifts the ban for the IP named by the trailing path segment.
func (a *adminAPI) handleBan(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodDelete {
		return caddy.APIError{
			HTTPStatus: http.StatusMethodNotAllowed,
			Err:        fmt.Errorf("method not allowed"),
		}
	}

	ipStr := strings.TrimPrefix(r.URL.Path, "/bouncer/bans/")
	ip, err := netip.ParseAddr(ipStr)
	if err != nil {
		return caddy.APIError{
			HTTPStatus: http.StatusBadRequest,
			Err:        fmt.Errorf("invalid IP address %q: %v", ipStr, err),
		}
	}

	banlist := getBanlist()
	if _, found := banlist.Lookup(ip); !found {
		return caddy.APIError{
			HTTPStatus: http.StatusNotFound,
			Err:        fmt.Errorf("no ban found for %s", ip),
		}
	}

	banlist.Remove(ip)
	a.log.Info("Ban lifted via admin API", zap.String("ip", ip.String()))

	w.WriteHeader(http.StatusOK)
	return nil
}

// Interface guards
var (
	_ caddy.AdminRouter = (*adminAPI)(nil)
	_ caddy.Provisioner = (*adminAPI)(nil)
)
