package constants

// Database pool settings.
const (
	DatabaseMaxOpenConns    = 25
	DatabaseMaxIdleConns    = 5
	DatabaseConnMaxLifetime = 30 // minutes
	DatabaseSSLMode         = "disable"
)

// Sync tuning defaults. All overridable through config.
const (
	DefaultSyncIntervalSeconds   = 1800 // 30 minutes between scheduled calendar syncs
	DefaultSyncCooldownSeconds   = 60   // wait after a failed cycle before retrying
	DefaultStalenessSeconds      = 3600 // facts older than this trigger an on-demand refresh
	DefaultAdapterTimeoutSeconds = 10   // per upstream fetch
	DefaultSyncWindowDays        = 30   // how far ahead scheduled syncs look
)

// Google Calendar API.
const (
	GoogleCalendarAPIBase    = "https://www.googleapis.com/calendar/v3"
	GoogleCalendarMaxResults = 100
)
