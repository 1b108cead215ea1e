// package caddy_bouncer provides Caddy middleware that bans IPs probing for
// well-known exploit paths.
package caddy_bouncer

// presetPaths maps preset names to the exploit probe paths they cover.
// The lists are exact-match request paths, not prefixes or globs.
var presetPaths = map[string][]string{
	"wordpress": {
		"/wp-login.php",
		"/cms/wp-includes/wlwmanifest.xml",
		"/xmlrpc.php",
		"/wp-json/wp/v2",
	},
	"php": {
		"/phpmyadmin",
		"/admin.php",
		"/config.php",
		"/setup.php",
		"/test.php",
		"/dbadmin",
		"/mysql",
		"/pma",
		"/phpinfo.php",
		"/vendor/phpunit/phpunit/src/Util/PHP/eval-stdin.php",
	},
	"config": {
		"/.env",
		"/env",
		"/config.json",
		"/config.yaml",
		"/config.inc.php",
	},
}

// buildRuleset unions the named presets with any custom paths into a single
// deduplicated set. Unknown preset names contribute nothing.
func buildRuleset(presets, custom []string) map[string]struct{} {
	ruleset := make(map[string]struct{})
	for _, preset := range presets {
		for _, path := range presetPaths[preset] {
			ruleset[path] = struct{}{}
		}
	}
	for _, path := range custom {
		ruleset[path] = struct{}{}
	}
	return ruleset
}
