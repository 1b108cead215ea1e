package caddy_bouncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAdminAPI() *adminAPI {
	return &adminAPI{log: zap.NewNop()}
}

// TestAdminListBans verifies that the ban listing returns live bans sorted
// by IP and leaves lapsed entries out of the view without removing them.
func TestAdminListBans(t *testing.T) {
	resetBanlist(t)
	banlist := getBanlist()
	now := banlist.clock.Now()

	second := netip.MustParseAddr("10.0.0.2")
	first := netip.MustParseAddr("10.0.0.1")
	lapsed := netip.MustParseAddr("10.0.0.3")
	banlist.Insert(second, now.Add(time.Hour))
	banlist.Insert(first, now.Add(time.Hour))
	banlist.Insert(lapsed, now.Add(-time.Minute))

	a := newTestAdminAPI()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/bouncer/bans", nil)
	require.NoError(t, a.handleBans(rec, req))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var entries []BanEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].IP)
	assert.Equal(t, second, entries[1].IP)

	// The lapsed entry is hidden, not removed
	_, found := banlist.Lookup(lapsed)
	assert.True(t, found)
}

// TestAdminListBansEmpty verifies the listing encodes an empty array rather
// than null when nothing is banned.
func TestAdminListBansEmpty(t *testing.T) {
	resetBanlist(t)

	a := newTestAdminAPI()
	rec := httptest.NewRecorder()
	require.NoError(t, a.handleBans(rec, httptest.NewRequest("GET", "/bouncer/bans", nil)))
	assert.Equal(t, "[]\n", rec.Body.String())
}

// TestAdminDeleteBan verifies that an unban removes the entry even before
// its expiry.
func TestAdminDeleteBan(t *testing.T) {
	resetBanlist(t)
	banlist := getBanlist()
	ip := netip.MustParseAddr("10.0.0.7")
	banlist.Insert(ip, banlist.clock.Now().Add(time.Hour))

	a := newTestAdminAPI()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("DELETE", "/bouncer/bans/10.0.0.7", nil)
	require.NoError(t, a.handleBan(rec, req))
	assert.Equal(t, http.StatusOK, rec.Code)

	_, found := banlist.Lookup(ip)
	assert.False(t, found)
}

// TestAdminErrors verifies the error statuses for bad methods, bad
// addresses and unknown bans.
func TestAdminErrors(t *testing.T) {
	resetBanlist(t)
	a := newTestAdminAPI()

	assertAPIError := func(err error, wantStatus int) {
		t.Helper()
		var apiErr caddy.APIError
		require.True(t, errors.As(err, &apiErr), "expected a caddy.APIError, got %v", err)
		assert.Equal(t, wantStatus, apiErr.HTTPStatus)
	}

	err := a.handleBans(httptest.NewRecorder(), httptest.NewRequest("POST", "/bouncer/bans", nil))
	assertAPIError(err, http.StatusMethodNotAllowed)

	err = a.handleBan(httptest.NewRecorder(), httptest.NewRequest("GET", "/bouncer/bans/10.0.0.7", nil))
	assertAPIError(err, http.StatusMethodNotAllowed)

	err = a.handleBan(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/bouncer/bans/not-an-ip", nil))
	assertAPIError(err, http.StatusBadRequest)

	err = a.handleBan(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/bouncer/bans/10.0.0.250", nil))
	assertAPIError(err, http.StatusNotFound)
}

// TestAdminRoutes verifies the route table exposed to the admin endpoint.
func TestAdminRoutes(t *testing.T) {
	a := newTestAdminAPI()
	routes := a.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "/bouncer/bans", routes[0].Pattern)
	assert.Equal(t, "/bouncer/bans/", routes[1].Pattern)
}

// TestAdminEndToEnd drives the admin API against a running server: a ban
// earned through the bouncer shows up in the listing, and deleting it lets
// the IP through again.
func TestAdminEndToEnd(t *testing.T) {
	resetBanlist(t)
	setupFakeClock(t)

	tester := createTester(t, `
    localhost:9080 {
        route {
            bouncer {
                custom_paths /trap
            }
            respond "OK"
        }
    }
  `)

	attacker := "9.9.1.1"

	// Earn a ban
	resp := sendBouncerRequest(t, tester, "GET", "http://localhost:9080/trap", attacker)
	defer resp.Body.Close()
	if resp.StatusCode != 403 {
		t.Fatalf("Expected blocked status 403 for the probe, but got %d", resp.StatusCode)
	}

	// The ban is visible through the admin endpoint
	listResp, err := http.Get("http://localhost:2999/bouncer/bans")
	if err != nil {
		t.Fatalf("Failed to list bans via admin API: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != 200 {
		t.Fatalf("Expected status code 200 from the admin listing, but got %d", listResp.StatusCode)
	}
	var entries []BanEntry
	if err := json.NewDecoder(listResp.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode ban listing: %v", err)
	}
	if len(entries) != 1 || entries[0].IP != netip.MustParseAddr(attacker) {
		t.Fatalf("Expected the listing to contain exactly the banned IP, got %v", entries)
	}

	// Lift the ban
	delReq, err := http.NewRequest("DELETE", fmt.Sprintf("http://localhost:2999/bouncer/bans/%s", attacker), nil)
	if err != nil {
		t.Fatalf("Failed to create unban request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(delReq)
	if err != nil {
		t.Fatalf("Failed to unban via admin API: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != 200 {
		t.Fatalf("Expected status code 200 from the unban, but got %d", delResp.StatusCode)
	}

	// The IP is clear again
	resp = sendBouncerRequest(t, tester, "GET", "http://localhost:9080/", attacker)
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("Expected status code 200 after the unban, but got %d", resp.StatusCode)
	}
}
