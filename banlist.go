// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

import (
	"net/netip"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.uber.org/zap"
)

// BanEntry is one stored ban, as reported by Snapshot and the admin API.
type BanEntry struct {
	IP      netip.Addr `json:"ip"`
	Expires time.Time  `json:"expires"`
}

// Banlist maps banned client addresses to their ban expiry times. The map is
// sharded internally, so requests from different addresses do not contend on
// a single lock.
type Banlist struct {
	bans cmap.ConcurrentMap[netip.Addr, time.Time]

	// Guards one-time configuration
	mu         sync.Mutex
	configured bool

	// clock provides access to time functions via the clockwork interface
	clock clockwork.Clock

	// Logger for the banlist
	logger *zap.Logger
}

// newBanlist creates an empty Banlist with a real clock and a no-op logger.
// Configure replaces both when the first handler is provisioned.
func newBanlist() *Banlist {
	return &Banlist{
		bans:   cmap.NewStringer[netip.Addr, time.Time](),
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
}

// Configure attaches the clock and logger on first call and reports whether
// this call performed the configuration. Later calls leave the existing
// configuration in place and return false.
func (b *Banlist) Configure(clock clockwork.Clock, logger *zap.Logger) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.configured {
		return false
	}
	b.clock = clock
	b.logger = logger
	b.configured = true
	return true
}

// Insert bans ip until expires. An existing entry for ip is overwritten.
func (b *Banlist) Insert(ip netip.Addr, expires time.Time) {
	b.bans.Set(ip, expires)
	b.logger.Debug("Inserted ban",
		zap.String("ip", ip.String()),
		zap.Time("expires", expires))
}

// Lookup returns the stored expiry for ip, if an entry exists. Expired
// entries are still returned; callers decide whether to honor or remove them.
func (b *Banlist) Lookup(ip netip.Addr) (time.Time, bool) {
	return b.bans.Get(ip)
}

// Remove deletes the entry for ip regardless of expiry.
func (b *Banlist) Remove(ip netip.Addr) {
	b.bans.Remove(ip)
	b.logger.Debug("Removed ban", zap.String("ip", ip.String()))
}

// removeExpired deletes the entry for ip only if it is still expired as of
// now. The check runs under the shard lock, so a fresh ban inserted by a
// concurrent request is never deleted on the strength of a stale read.
func (b *Banlist) removeExpired(ip netip.Addr, now time.Time) {
	removed := b.bans.RemoveCb(ip, func(key netip.Addr, expires time.Time, exists bool) bool {
		return exists && !expires.After(now)
	})
	if removed {
		b.logger.Debug("Removed expired ban", zap.String("ip", ip.String()))
	}
}

// Count returns the number of stored entries, expired ones included.
func (b *Banlist) Count() int {
	return b.bans.Count()
}

// Snapshot returns a point-in-time copy of all stored entries. The copy is
// assembled shard by shard and is safe to read without further locking.
func (b *Banlist) Snapshot() []BanEntry {
	items := b.bans.Items()
	entries := make([]BanEntry, 0, len(items))
	for ip, expires := range items {
		entries = append(entries, BanEntry{IP: ip, Expires: expires})
	}
	return entries
}

// The banlist is shared process-wide so that every handler instance, the
// banned_ip matcher, and the admin API observe the same ban state, and so
// bans carry across config reloads.
var (
	globalBanlist *Banlist
	banlistOnce   sync.Once
)

// getBanlist returns the process-wide Banlist, creating it on first use.
func getBanlist() *Banlist {
	banlistOnce.Do(func() {
		globalBanlist = newBanlist()
	})
	return globalBanlist
}
