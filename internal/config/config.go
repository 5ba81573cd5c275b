package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Smart-Village/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName        = "Smart Village"
	KeyringService = "com.github.tartampluch.smart-village"
	EnvPrefix      = "VILLAGE"
	DotEnvFile     = ".env"
	LogFileName    = "server.log"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeUsage   = 2
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	FilePermUserRW fs.FileMode = 0600

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1
)

// -----------------------------------------------------------------------------
// CLI Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	FlagVersion           = "version"
	FlagDebug             = "debug"
	FlagLogFile           = "log-file"
	FlagHost              = "host"
	FlagPort              = "port"
	FlagStore             = "store"
	FlagDatabaseURL       = "database-url"
	FlagTimezone          = "timezone"
	FlagCORSOrigins       = "cors-origins"
	FlagRedisAddr         = "redis-addr"
	FlagRedisPassword     = "redis-password"
	FlagMongoURI          = "mongo-uri"
	FlagMongoDB           = "mongo-db"
	FlagMinioEndpoint     = "minio-endpoint"
	FlagMinioAccessKey    = "minio-access-key"
	FlagMinioSecretKey    = "minio-secret-key"
	FlagMinioBucket       = "minio-bucket"
	FlagMinioSSL          = "minio-ssl"
	FlagTwilioSID         = "twilio-account-sid"
	FlagTwilioToken       = "twilio-auth-token"
	FlagTwilioFrom        = "twilio-from"
	FlagSMSTestMode       = "sms-test-mode"
	FlagSMSRate           = "sms-rate"
	FlagCountryCode       = "country-code"
	FlagRecomputeInterval = "recompute-interval"
	FlagStrategy          = "strategy"
	FlagOffsetDays        = "offset-days"
	FlagConfirm           = "confirm"

	FlagDescVersion           = "Show application version and exit"
	FlagDescDebug             = "Enable debug logging"
	FlagDescLogFile           = "Also write logs to this file"
	FlagDescHost              = "Listen address"
	FlagDescPort              = "Listen port"
	FlagDescStore             = "Record store backend (postgres or memory)"
	FlagDescDatabaseURL       = "PostgreSQL connection string"
	FlagDescTimezone          = "Civil calendar used for \"today\" (IANA name)"
	FlagDescCORSOrigins       = "Comma separated list of allowed CORS origins"
	FlagDescRedisAddr         = "Redis address for import key locks (empty: in-process locks)"
	FlagDescRedisPassword     = "Redis password"
	FlagDescMongoURI          = "MongoDB URI for SMS history (empty: use the record store)"
	FlagDescMongoDB           = "MongoDB database name"
	FlagDescMinioEndpoint     = "MinIO endpoint for backup snapshots (empty: disabled)"
	FlagDescMinioAccessKey    = "MinIO access key"
	FlagDescMinioSecretKey    = "MinIO secret key (falls back to the OS keyring)"
	FlagDescMinioBucket       = "MinIO bucket for backup snapshots"
	FlagDescMinioSSL          = "Use TLS for MinIO"
	FlagDescTwilioSID         = "Twilio account SID"
	FlagDescTwilioToken       = "Twilio auth token (falls back to the OS keyring)"
	FlagDescTwilioFrom        = "Twilio sender number"
	FlagDescSMSTestMode       = "Log SMS instead of sending them"
	FlagDescSMSRate           = "Maximum SMS sent per second"
	FlagDescCountryCode       = "Country calling code used to read local phone numbers"
	FlagDescRecomputeInterval = "Birthday flag recomputation interval (0 disables)"
	FlagDescStrategy          = "Duplicate handling: skip, update or error"
	FlagDescOffsetDays        = "Days added to every stored date of birth"
	FlagDescConfirm           = "Confirm a one-time data migration"

	MsgVersionOutput = "%s version %s (%s/%s)\n"

	CmdImport       = "import"
	CmdRecompute    = MaintenanceRecompute
	CmdBackfill     = MaintenanceBackfill
	CmdBackupExport = "backup-export"
	CmdSnapshot     = "backup-snapshot"

	MsgAdminUsage = `Usage: village-admin <command> [flags]

Commands:
  import <file.xlsx> [--strategy skip|update|error]
  recompute-flags
  fix-birth-dates --offset-days N --confirm
  backup-export [file.json]     (stdout when omitted)
  backup-snapshot
`
	ErrUnknownCommand = "unknown command"
	ErrMissingArg     = "missing argument"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	StoreModePostgres = "postgres"
	StoreModeMemory   = "memory"

	DefaultHost             = "0.0.0.0"
	DefaultPort             = 4000
	DefaultStore            = StoreModePostgres
	DefaultTimezone         = "Asia/Kolkata"
	DefaultCORSOrigin       = "https://smart-village1.netlify.app"
	DefaultMongoDB          = "smart_village"
	DefaultMinioBucket      = "village-backups"
	DefaultCountryCode      = "+91"
	DefaultSMSRate          = 5.0
	DefaultLanguage         = "en"
	DefaultRecomputeMinutes = 0
	DisabledInterval        = 0

	// ISTOffsetSeconds is used when the tz database has no Asia/Kolkata entry.
	ISTOffsetSeconds = 5*60*60 + 30*60
	ISTZoneName      = "IST"

	WeekWindowDays      = 7
	DefaultUpcomingDays = 30
	MaxUpcomingDays     = 366
	MaxPageSize         = 500
	HistoryLimit        = 500

	StrategySkip   = "skip"
	StrategyUpdate = "update"
	StrategyError  = "error"

	MaintenanceBackfill   = "fix-birth-dates"
	MaintenanceRecompute  = "recompute-flags"
	BackfillConfirmToken  = "FIX-BIRTH-DATES"
	BackupFilePrefix      = "smart-village-backup-"
	BackupFileExt         = ".json"
	TemplateFileName      = "Smart-Village-Template.xlsx"
	ExportFileName        = "smart-village-records.xlsx"
	ContactsFileName      = "smart-village-contacts.vcf"
	NamePlaceholder       = "[NAME]"
	LockKeyPrefix         = "village:lock:"
	LockTTL               = 30 * time.Second
	LockRetryDelay        = 50 * time.Millisecond
	ImportProgressEvery   = 50
	UIDSalt               = "smart-village-v1-"
	UIDHashLength         = 16
	FormatHashInput       = "%s|%s|%s"
	FormatUID             = "%s-%d@%s"
	FormatContactUID      = "urn:smart-village:record:%d"
	BackupObjectPrefix    = "backups/"
	FormatBackupObjectKey = BackupObjectPrefix + "%s" + BackupFileExt
	FormatSnapshotStamp   = "20060102T150405Z"
)

// -----------------------------------------------------------------------------
// Spreadsheet Serial Dates
// -----------------------------------------------------------------------------

const (
	// SerialEpochYear/Month/Day is serial day 0, with the historical 1900 leap-year
	// bug baked in: serial 25569 is 1970-01-01.
	SerialEpochYear  = 1899
	SerialEpochMonth = time.December
	SerialEpochDay   = 30
)

// -----------------------------------------------------------------------------
// Data Formats
// -----------------------------------------------------------------------------

const (
	DateFormatISO = "2006-01-02"
	DateSeparator = "-"
	FormatDMY     = "%02d-%02d-%04d"
	FormatISO     = "%04d-%02d-%02d"
)

// -----------------------------------------------------------------------------
// Workbook Columns
// -----------------------------------------------------------------------------

const (
	ColMandal         = "MANDAL NAME"
	ColMandalLegacy   = "MANADAL NAME"
	ColVillage        = "VILLAGE NAME"
	ColRationCard     = "RATION CARD"
	ColVoterCard      = "VOTER CARD"
	ColName           = "NAME"
	ColNameLong       = "NAME OF THE PERSON"
	ColFamilyPersons  = "NUMBER OF FAMILY PERSONS"
	ColAddress        = "ADDRESS"
	ColPhone          = "PHONE NUMBER"
	ColAadhar         = "AADHAR"
	ColGender         = "GENDER"
	ColDateOfBirth    = "DATE OF BIRTH"
	ColQualification  = "QUALIFICATION"
	ColCaste          = "CASTE"
	ColSubCaste       = "SUB CASTE"
	ColOccupation     = "OCCUPATION"
	ColNeedEmployment = "NEED ANY EMPLOYEEMENT"
	ColArogyasri      = "AROGYASRI CARD NUMBER"
	ColSHGMember      = "SHG MEMBER"
	ColSchemes        = "SCHEMES ELIGIBLE FOR"
	ColRemarks        = "REMARKS"

	SheetRecords  = "Records"
	SheetTemplate = "Template"
	FirstDataRow  = 2
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion = "2.0"
	ICalProdid  = "-//Smart Village//Birthdays//EN"
	ICalCalName = "Village Birthdays"
	ICalMethod  = "PUBLISH"
	ICalScale   = "GREGORIAN"
	ICalDomain  = "smartvillage"

	PropUID        = "UID"
	PropSummary    = "SUMMARY"
	PropDTStart    = "DTSTART"
	PropDTStamp    = "DTSTAMP"
	PropRefresh    = "REFRESH-INTERVAL"
	PropVersion    = "VERSION"
	PropProdid     = "PRODID"
	PropXWRCalName = "X-WR-CALNAME"
	PropCalScale   = "CALSCALE"
	PropMethod     = "METHOD"
	PropLocation   = "LOCATION"

	DefaultICalRefresh = 6 * time.Hour

	// StubVCalendar is the minimal valid iCalendar object used when no events are found.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"

	VCardNoteFormat = "%s, %s"
	VCardTypeCell   = "cell"
	FormatVCardDate = "%04d%02d%02d"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 10 * time.Second
	ServerReadTimeout   = 30 * time.Second
	ServerWriteTimeout  = 2 * time.Minute
	ServerIdleTimeout   = 60 * time.Second
	SMSSendTimeout      = 15 * time.Second
	CORSMaxAge          = 300
	MaxUploadSize       = 32 << 20
	MaxHTTPResponseSize = 64 << 20
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
	UploadFormField     = "file"
	QueryPage           = "page"
	QueryPageSize       = "pageSize"
	QueryDays           = "days"
	QueryStrategy       = "strategy"
	QueryLang           = "lang"
	QueryLimit          = "limit"
	QueryMinAge         = "minAge"
	QueryMaxAge         = "maxAge"
	ExtXLSX             = ".xlsx"
)

// -----------------------------------------------------------------------------
// HTTP Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	HeaderContentType        = "Content-Type"
	HeaderContentDisposition = "Content-Disposition"
	HeaderCacheControl       = "Cache-Control"
	HeaderETag               = "ETag"
	HeaderLastModified       = "Last-Modified"
	HeaderXContentType       = "X-Content-Type-Options"
	HeaderUserAgent          = "User-Agent"
	HeaderIfNoneMatch        = "If-None-Match"
	HeaderIfModifiedSince    = "If-Modified-Since"

	MimeJSON            = "application/json"
	MimeXLSX            = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeVCard           = "text/vcard; charset=utf-8"
	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeNoSniff         = "nosniff"
	CacheControlPrivate = "private, no-cache"

	FormatETag       = `"%s"`
	FormatAttachment = `attachment; filename="%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrAppFailed        = "application failed unexpectedly"
	ErrLogFile          = "failed to open log file"
	ErrSettings         = "invalid settings"
	ErrSMSRate          = "SMS rate must not be negative"
	ErrInterval         = "recompute interval must not be negative"
	ErrTimezone         = "unknown timezone"
	ErrStoreMode        = "unsupported store backend"
	ErrDatabaseURL      = "database URL is required for the postgres store"
	ErrServerStartup    = "server startup failed"
	ErrServerShutdown   = "server shutdown failed"
	ErrPortRange        = "server port must be between 1 and 65535"
	ErrInvalidURL       = "invalid URL structure"
	ErrProtocol         = "unsupported protocol scheme (http/https only)"
	ErrFetch            = "network error during fetch"
	ErrFetchStatus      = "server returned unexpected status"
	ErrResponseTooLarge = "response too large"
	ErrDBOpen           = "failed to open database"
	ErrDBMigrate        = "failed to migrate database"
	ErrDBQuery          = "database query failed"
	ErrMongoConnect     = "failed to connect to MongoDB"
	ErrRedisConnect     = "failed to connect to Redis"
	ErrMinioConnect     = "failed to initialize MinIO"
	ErrLockAcquire      = "failed to acquire record lock"
	ErrLockRelease      = "failed to release record lock"
	ErrWorkbookOpen     = "failed to open workbook"
	ErrWorkbookEmpty    = "workbook has no header row"
	ErrWorkbookWrite    = "failed to write workbook"
	ErrVCardEncode      = "failed to encode vCard data"
	ErrICalEncode       = "failed to encode iCalendar data"
	ErrBackupFormat     = "invalid backup file format"
	ErrBackupArchive    = "backup archive is not configured"
	ErrBackupUpload     = "failed to upload backup snapshot"
	ErrNotifierConfig   = "invalid SMS notifier configuration"
	ErrSMSSend          = "failed to send SMS"
	ErrSMSNoRecipients  = "no valid phone numbers"
	ErrSMSEmptyMessage  = "message is empty"
	ErrLocalesAccess    = "failed to access embedded locales"
	ErrLocaleLoad       = "failed to load locale file"
	ErrKeyring          = "keyring lookup failed"
	ErrRecordNotFound   = "record not found"
	ErrRecordDuplicate  = "duplicate record"
	ErrRecordInvalid    = "invalid record"
	ErrConfirmRequired  = "explicit confirmation is required"
	ErrOffsetZero       = "offset must not be zero"
	ErrStrategyUnknown  = "unknown duplicate strategy"
	ErrDuplicateAborted = "duplicate found, import stopped"
	ErrWriteResp        = "failed to write response body"
)

// -----------------------------------------------------------------------------
// HTTP Server Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgRunning        = "Smart Village API is running!"
	HTTPMsgInvalidBody    = "invalid request body"
	HTTPMsgInvalidID      = "invalid record id"
	HTTPMsgInvalidDays    = "days must be an integer between 0 and 366"
	HTTPMsgInvalidAge     = "minAge and maxAge must be non-negative integers"
	HTTPMsgInvalidPage    = "page and pageSize must be positive integers"
	HTTPMsgNoFile         = "No file uploaded"
	HTTPMsgBadFileType    = "unsupported file type"
	HTTPMsgTooLarge       = "remote workbook is too large"
	HTTPMsgDuplicate      = "Duplicate skipped"
	HTTPMsgDeleted        = "Record deleted successfully"
	HTTPMsgImportDone     = "Excel import complete"
	HTTPMsgRestoreDone    = "Backup restore completed successfully."
	HTTPMsgInternalErr    = "Internal Server Error"
	HTTPMsgNotImplemented = "feature not configured"
	HTTPMsgSnapshotDone   = "Backup snapshot uploaded"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting      = "Starting application"
	MsgAppStop          = "Application stopped gracefully"
	MsgLogWarning       = "Warning: %s at %s: %v\n"
	MsgServerListen     = "HTTP server listening"
	MsgServerStop       = "Shutting down HTTP server..."
	MsgStoreReady       = "Record store ready"
	MsgRecordCreated    = "Record created"
	MsgRecordUpdated    = "Record updated"
	MsgRecordDeleted    = "Record deleted"
	MsgDuplicateSkipped = "Duplicate skipped"
	MsgBulkDeleted      = "Records deleted in bulk"
	MsgImportStarted    = "Import started"
	MsgImportRowInvalid = "Skipping invalid row"
	MsgImportRowFailed  = "Row import failed"
	MsgImportProgress   = "Import progress"
	MsgImportDone       = "Import completed"
	MsgInvalidDOB       = "Date of birth not recognized, treated as absent"
	MsgRestoreDone      = "Backup restore completed"
	MsgRestoreRowBad    = "Skipping unreadable backup entry"
	MsgSnapshotUploaded = "Backup snapshot uploaded"
	MsgFlagsRecomputed  = "Birthday flags recomputed"
	MsgBackfillDone     = "Birth date backfill applied"
	MsgBackfillRepeat   = "Birth date backfill already ran before; dates may now be shifted twice"
	MsgWorkerStart      = "Background worker started"
	MsgWorkerStop       = "Worker stopping due to context cancellation"
	MsgWorkerDisabled   = "Background worker disabled"
	MsgSMSSent          = "SMS batch processed"
	MsgSMSFailed        = "SMS delivery failed"
	MsgSMSTestMode      = "SMS test mode: message not sent"
	MsgLocaleSkip       = "Skipping non-locale file"
	MsgLocaleLoaded     = "Locale loaded successfully"
	MsgTransMissing     = "Missing translation key"
	MsgKeyringSecret    = "Secret loaded from OS keyring"
	MsgCacheUpdated     = "Calendar cache updated"
	MsgCalendarBuilt    = "Birthday calendar generated"
	MsgFetchStart       = "Initiating workbook download"
	MsgContactsExported = "Contacts exported"
	MsgAPIError         = "API error response"
	MsgRequest          = "HTTP request"
	MsgWorkerFailed     = "Background job failed"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyKey       = "key"
	LogKeyAddr      = "addr"
	LogKeyStore     = "store"
	LogKeyInterval  = "interval"
	LogKeyID        = "id"
	LogKeyVillage   = "village"
	LogKeyRow       = "row"
	LogKeyValue     = "value"
	LogKeyStats     = "stats"
	LogKeyCount     = "count"
	LogKeyTotal     = "total"
	LogKeyInserted  = "inserted"
	LogKeyUpdated   = "updated"
	LogKeySkipped   = "skipped"
	LogKeyFailed    = "failed"
	LogKeySent      = "sent"
	LogKeyInvalid   = "invalid"
	LogKeyStrategy  = "strategy"
	LogKeyOffset    = "offset_days"
	LogKeyPrevious  = "previous_runs"
	LogKeyToday     = "today"
	LogKeyBatch     = "batch_id"
	LogKeyTestMode  = "test_mode"
	LogKeyObject    = "object"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"
	LogKeyCode      = "code"
	LogKeyMethod    = "method"
	LogKeyPath      = "path"
	LogKeyDuration  = "duration_ms"

	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain     = "main"
	CompAdmin    = "admin"
	CompConfig   = "config"
	CompEngine   = "engine"
	CompFetcher  = "fetcher"
	CompRecords  = "records"
	CompImport   = "import"
	CompStore    = "store"
	CompBackup   = "backup"
	CompSMS      = "sms"
	CompI18n     = "i18n"
	CompServer   = "server"
	CompWorker   = "worker"
	CompCalendar = "calendar"
	CompContacts = "contacts"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyTplCustom       = "tpl_custom"
	TKeyTplBirthday     = "tpl_birthday"
	TKeyEvtSummary      = "event_summary"       // Requires Name
	TKeyEvtSummaryAge   = "event_summary_age"   // Requires Name, Age
	TKeyEvtSummaryBirth = "event_summary_birth" // Requires Name (For age 0)

	TKeyNameSuffix = "_name"
	TKeyTplPrefix  = "tpl_"

	LocalesDir    = "locales"
	LocalePrefix  = "active."
	LocaleSuffix  = ".json"
	LocaleFormat  = "json"
	TemplateNamed = "Name"
	TemplateAge   = "Age"
)

// SMSTemplateIDs lists the message templates offered to operators, in display order.
// "custom" has a name but no text.
var SMSTemplateIDs = []string{"custom", "birthday", "meeting", "announcement", "scheme", "emergency", "festival"}

// -----------------------------------------------------------------------------
// Fallbacks
// -----------------------------------------------------------------------------

const (
	FallbackSummaryAge   = "Birthday: %s (%d)"
	FallbackSummaryBirth = "Birthday: %s (birth)"
	FallbackBirthdaySMS  = "Happy Birthday " + NamePlaceholder + "! Wishing you a wonderful year ahead filled with joy and success. - Smart Village Team"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

const (
	MetricNamespace       = "smart_village"
	MetricInFlight        = "http_in_flight_requests"
	MetricRequests        = "http_requests_total"
	MetricDuration        = "http_request_duration_seconds"
	MetricImportedRecords = "records_imported_total"
	MetricSMS             = "sms_messages_total"
	MetricLabelMethod     = "method"
	MetricLabelRoute      = "route"
	MetricLabelStatus     = "status"
	MetricLabelOutcome    = "outcome"
	MetricLabelResult     = "result"
)
