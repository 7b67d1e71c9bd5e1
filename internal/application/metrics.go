package application

import "expvar"

// Counters published at /api/debug/vars.
var (
	registrations     = expvar.NewInt("auth_registrations")
	logins            = expvar.NewInt("auth_logins")
	loginFailures     = expvar.NewInt("auth_login_failures")
	twoFactorFailures = expvar.NewInt("auth_two_factor_failures")
	backupCodesUsed   = expvar.NewInt("auth_backup_codes_used")
	oauthLogins       = expvar.NewInt("auth_oauth_logins")
)
