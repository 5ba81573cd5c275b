package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"
)

// Settings is the runtime configuration of the API server and the admin tool.
// Values come from flags, then VILLAGE_* environment variables, then a .env file.
type Settings struct {
	Debug       bool
	LogFile     string
	Host        string
	Port        int
	Store       string
	DatabaseURL string
	Timezone    string
	CORSOrigins []string

	RedisAddr     string
	RedisPassword string

	MongoURI string
	MongoDB  string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioSSL       bool

	TwilioSID   string
	TwilioToken string
	TwilioFrom  string
	SMSTestMode bool
	SMSRate     float64
	CountryCode string

	RecomputeInterval time.Duration
}

// RegisterFlags declares the shared flags.
func RegisterFlags(flags *flag.FlagSet) {
	flags.Bool(FlagDebug, false, FlagDescDebug)
	flags.String(FlagLogFile, "", FlagDescLogFile)
	flags.String(FlagHost, DefaultHost, FlagDescHost)
	flags.Int(FlagPort, DefaultPort, FlagDescPort)
	flags.String(FlagStore, DefaultStore, FlagDescStore)
	flags.String(FlagDatabaseURL, "", FlagDescDatabaseURL)
	flags.String(FlagTimezone, DefaultTimezone, FlagDescTimezone)
	flags.StringSlice(FlagCORSOrigins, []string{DefaultCORSOrigin}, FlagDescCORSOrigins)

	flags.String(FlagRedisAddr, "", FlagDescRedisAddr)
	flags.String(FlagRedisPassword, "", FlagDescRedisPassword)
	flags.String(FlagMongoURI, "", FlagDescMongoURI)
	flags.String(FlagMongoDB, DefaultMongoDB, FlagDescMongoDB)

	flags.String(FlagMinioEndpoint, "", FlagDescMinioEndpoint)
	flags.String(FlagMinioAccessKey, "", FlagDescMinioAccessKey)
	flags.String(FlagMinioSecretKey, "", FlagDescMinioSecretKey)
	flags.String(FlagMinioBucket, DefaultMinioBucket, FlagDescMinioBucket)
	flags.Bool(FlagMinioSSL, false, FlagDescMinioSSL)

	flags.String(FlagTwilioSID, "", FlagDescTwilioSID)
	flags.String(FlagTwilioToken, "", FlagDescTwilioToken)
	flags.String(FlagTwilioFrom, "", FlagDescTwilioFrom)
	flags.Bool(FlagSMSTestMode, false, FlagDescSMSTestMode)
	flags.Float64(FlagSMSRate, DefaultSMSRate, FlagDescSMSRate)
	flags.String(FlagCountryCode, DefaultCountryCode, FlagDescCountryCode)

	flags.Duration(FlagRecomputeInterval, DefaultRecomputeMinutes*time.Minute, FlagDescRecomputeInterval)
}

// Load resolves the settings for a parsed flag set. A missing .env file is not an error.
func Load(flags *flag.FlagSet) (Settings, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("%s: %w", ErrSettings, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", ErrSettings, err)
	}

	s := Settings{
		Debug:       v.GetBool(FlagDebug),
		LogFile:     v.GetString(FlagLogFile),
		Host:        v.GetString(FlagHost),
		Port:        v.GetInt(FlagPort),
		Store:       strings.ToLower(strings.TrimSpace(v.GetString(FlagStore))),
		DatabaseURL: v.GetString(FlagDatabaseURL),
		Timezone:    v.GetString(FlagTimezone),
		CORSOrigins: splitList(v.GetStringSlice(FlagCORSOrigins)),

		RedisAddr:     v.GetString(FlagRedisAddr),
		RedisPassword: v.GetString(FlagRedisPassword),
		MongoURI:      v.GetString(FlagMongoURI),
		MongoDB:       v.GetString(FlagMongoDB),

		MinioEndpoint:  v.GetString(FlagMinioEndpoint),
		MinioAccessKey: v.GetString(FlagMinioAccessKey),
		MinioSecretKey: v.GetString(FlagMinioSecretKey),
		MinioBucket:    v.GetString(FlagMinioBucket),
		MinioSSL:       v.GetBool(FlagMinioSSL),

		TwilioSID:   v.GetString(FlagTwilioSID),
		TwilioToken: v.GetString(FlagTwilioToken),
		TwilioFrom:  v.GetString(FlagTwilioFrom),
		SMSTestMode: v.GetBool(FlagSMSTestMode),
		SMSRate:     v.GetFloat64(FlagSMSRate),
		CountryCode: v.GetString(FlagCountryCode),

		RecomputeInterval: v.GetDuration(FlagRecomputeInterval),
	}

	if s.MinioEndpoint != "" && s.MinioSecretKey == "" {
		s.MinioSecretKey = secret(FlagMinioSecretKey)
	}
	if s.TwilioSID != "" && s.TwilioToken == "" {
		s.TwilioToken = secret(FlagTwilioToken)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// secret reads a value stored under the flag name in the OS keyring.
func secret(name string) string {
	val, err := keyring.Get(KeyringService, name)
	if err != nil {
		if !errors.Is(err, keyring.ErrNotFound) {
			slog.Warn(ErrKeyring, LogKeyComponent, CompConfig, LogKeyError, err)
		}
		return ""
	}
	slog.Debug(MsgKeyringSecret, LogKeyComponent, CompConfig, LogKeyValue, name)
	return val
}

// splitList accepts both repeated flags and one comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the settings that cannot be caught by flag parsing.
func (s Settings) Validate() error {
	switch {
	case s.Port <= 0 || s.Port > 65535:
		return fmt.Errorf("%s: %s", ErrSettings, ErrPortRange)
	case s.Store != StoreModePostgres && s.Store != StoreModeMemory:
		return fmt.Errorf("%s: %s %q", ErrSettings, ErrStoreMode, s.Store)
	case s.Store == StoreModePostgres && s.DatabaseURL == "":
		return fmt.Errorf("%s: %s", ErrSettings, ErrDatabaseURL)
	case s.SMSRate < 0:
		return fmt.Errorf("%s: %s", ErrSettings, ErrSMSRate)
	case s.RecomputeInterval < DisabledInterval:
		return fmt.Errorf("%s: %s", ErrSettings, ErrInterval)
	}
	return nil
}
