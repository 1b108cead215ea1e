package caddy_bouncer

import (
	"net/http"
	"testing"
	"time"

	"github.com/caddyserver/caddy/v2/caddytest"
	"github.com/jonboulle/clockwork"
)

// All tests share a single fake clock. The banlist singleton captures the
// clock of the first handler provisioned in the process, so every test has
// to advance the same instance for banlist, matcher and handler to agree on
// the time.
var sharedFakeClock *clockwork.FakeClock

// setupFakeClock injects the shared fake clock into handlers provisioned
// while the test runs, and returns it for advancing.
func setupFakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	if sharedFakeClock == nil {
		sharedFakeClock = clockwork.NewFakeClockAt(time.Unix(0, 0))
	}
	testClockInject = sharedFakeClock
	t.Cleanup(func() { testClockInject = nil })
	return sharedFakeClock
}

// resetBanlist empties the shared banlist before and after the test, so
// tests only ever observe their own bans.
func resetBanlist(t *testing.T) {
	t.Helper()
	clearBans()
	t.Cleanup(clearBans)
}

func clearBans() {
	banlist := getBanlist()
	for _, entry := range banlist.Snapshot() {
		banlist.Remove(entry.IP)
	}
}

// createTester initializes a new caddytest.Tester with a standard header
// and the provided caddyfileFragment.
func createTester(t *testing.T, caddyfileFragment string) *caddytest.Tester {
	tester := caddytest.NewTester(t)
	fullCaddyfile := `
  {
    admin localhost:2999
    http_port     9080
    https_port    9443
    grace_period  1ns
		log {
		  format console
		}
		debug
  }

` + caddyfileFragment

	tester.InitServer(fullCaddyfile, "caddyfile")
	return tester
}

// sendBouncerRequest sends a request through the tester, optionally carrying
// an X-Real-IP header so the test controls the client address the handler
// sees. The caller closes the response body.
func sendBouncerRequest(t *testing.T, tester *caddytest.Tester, method, url, realIP string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	if realIP != "" {
		req.Header.Set("X-Real-IP", realIP)
	}

	resp, err := tester.Client.Do(req)
	if err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	return resp
}
