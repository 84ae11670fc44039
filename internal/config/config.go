package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"parkwise/internal/logger"
)

const (
	EnvPort              = "PORT"
	EnvAPIURL            = "API_URL"
	EnvSocketURL         = "SOCKET_URL"
	EnvPushTransport     = "PUSH_TRANSPORT"
	EnvKafkaBrokers      = "KAFKA_BROKERS"
	EnvKafkaTopic        = "KAFKA_SLOT_TOPIC"
	EnvKafkaGroupID      = "KAFKA_GROUP_ID"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvLogLevel          = "LOG_LEVEL"
	EnvLogFormat         = "LOG_FORMAT"
	EnvTimezone          = "TIMEZONE"
	EnvAllowedOrigins    = "ALLOWED_ORIGINS"
	EnvBackendTimeout    = "BACKEND_TIMEOUT"
	EnvReconnectDelay    = "PUSH_RECONNECT_DELAY"
	EnvServiceFee        = "SERVICE_FEE"
	EnvMinBooking        = "MIN_BOOKING_DURATION"
	EnvPastGrace         = "PAST_START_GRACE"
	EnvPriceDebounce     = "PRICE_DEBOUNCE"
	EnvRedirectDelay     = "REDIRECT_DELAY"
	EnvRedirectTarget    = "REDIRECT_TARGET"
	EnvPageIdleTimeout   = "PAGE_IDLE_TIMEOUT"
	EnvSweepSchedule     = "SWEEP_SCHEDULE"
	EnvSessionPurge      = "SESSION_PURGE_SCHEDULE"
	EnvSessionTTL        = "SESSION_TTL"
	EnvSendgridKey       = "SENDGRID_API_KEY"
	EnvSendgridFrom      = "SENDGRID_FROM_EMAIL"
	EnvSendgridFromName  = "SENDGRID_FROM_NAME"
	EnvTwilioAccountSID  = "TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken   = "TWILIO_AUTH_TOKEN"
	EnvTwilioFromNumber  = "TWILIO_FROM_NUMBER"
	EnvReadTimeout       = "READ_TIMEOUT"
	EnvWriteTimeout      = "WRITE_TIMEOUT"
	EnvShutdownTimeout   = "SHUTDOWN_TIMEOUT"
	EnvDefaultLanguage   = "DEFAULT_LANGUAGE"
	EnvSecureCookies     = "SECURE_COOKIES"
	PushTransportSocket  = "websocket"
	PushTransportKafka   = "kafka"
	DefaultPort          = "8080"
	DefaultAPIURL        = "http://localhost:5000/api"
	DefaultSocketURL     = "ws://localhost:5000/ws"
	DefaultKafkaTopic    = "slot-updates"
	DefaultKafkaGroupID  = "parkwise-edge"
	DefaultTimezone      = "Asia/Ho_Chi_Minh"
	DefaultServiceFee    = 5000
	DefaultRedirect      = "/dashboard?bookingSuccess=true"
	DefaultSweepSchedule = "@every 1m"
	DefaultSessionPurge  = "@every 15m"
	DefaultLanguage      = "vi"
)

type Config struct {
	Port string

	APIURL         string
	SocketURL      string
	PushTransport  string
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string // prefix; each instance appends a unique suffix
	BackendTimeout time.Duration
	ReconnectDelay time.Duration

	DatabaseURL string

	Location       *time.Location
	AllowedOrigins []string
	SecureCookies  bool

	ServiceFee         int64
	MinBookingDuration time.Duration
	PastStartGrace     time.Duration
	PriceDebounce      time.Duration
	RedirectDelay      time.Duration
	RedirectTarget     string
	DefaultLanguage    string

	PageIdleTimeout      time.Duration
	SweepSchedule        string
	SessionPurgeSchedule string
	SessionTTL           time.Duration

	SendgridAPIKey   string
	SendgridFrom     string
	SendgridFromName string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Log *logger.Logger
}

// Load reads .env (if present) and the process environment.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:     getEnvStr(EnvLogLevel, logger.INFO),
		Format:    getEnvStr(EnvLogFormat, logger.JSON),
		AddSource: true,
		Service:   serviceName,
	})

	tzName := getEnvStr(EnvTimezone, DefaultTimezone)
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		log.Warn("Unknown timezone, falling back to UTC+7", "timezone", tzName, "error", err)
		loc = time.FixedZone("ICT", 7*60*60)
	}

	cfg := &Config{
		Port: getEnvStr(EnvPort, DefaultPort),

		APIURL:         strings.TrimRight(getEnvStr(EnvAPIURL, DefaultAPIURL), "/"),
		SocketURL:      getEnvStr(EnvSocketURL, DefaultSocketURL),
		PushTransport:  getEnvStr(EnvPushTransport, PushTransportSocket),
		KafkaBrokers:   getEnvList(EnvKafkaBrokers),
		KafkaTopic:     getEnvStr(EnvKafkaTopic, DefaultKafkaTopic),
		KafkaGroupID:   getEnvStr(EnvKafkaGroupID, DefaultKafkaGroupID),
		BackendTimeout: getEnvDuration(EnvBackendTimeout, 15*time.Second),
		ReconnectDelay: getEnvDuration(EnvReconnectDelay, 3*time.Second),

		DatabaseURL: getEnvStr(EnvDatabaseURL, ""),

		Location:       loc,
		AllowedOrigins: getEnvList(EnvAllowedOrigins),
		SecureCookies:  getEnvStr(EnvSecureCookies, "false") == "true",

		ServiceFee:         int64(getEnvNum(EnvServiceFee, DefaultServiceFee)),
		MinBookingDuration: getEnvDuration(EnvMinBooking, 30*time.Minute),
		PastStartGrace:     getEnvDuration(EnvPastGrace, 5*time.Minute),
		PriceDebounce:      getEnvDuration(EnvPriceDebounce, 500*time.Millisecond),
		RedirectDelay:      getEnvDuration(EnvRedirectDelay, 3*time.Second),
		RedirectTarget:     getEnvStr(EnvRedirectTarget, DefaultRedirect),
		DefaultLanguage:    getEnvStr(EnvDefaultLanguage, DefaultLanguage),

		PageIdleTimeout:      getEnvDuration(EnvPageIdleTimeout, 30*time.Minute),
		SweepSchedule:        getEnvStr(EnvSweepSchedule, DefaultSweepSchedule),
		SessionPurgeSchedule: getEnvStr(EnvSessionPurge, DefaultSessionPurge),
		SessionTTL:           getEnvDuration(EnvSessionTTL, 24*time.Hour),

		SendgridAPIKey:   getEnvStr(EnvSendgridKey, ""),
		SendgridFrom:     getEnvStr(EnvSendgridFrom, ""),
		SendgridFromName: getEnvStr(EnvSendgridFromName, "ParkWise"),
		TwilioAccountSID: getEnvStr(EnvTwilioAccountSID, ""),
		TwilioAuthToken:  getEnvStr(EnvTwilioAuthToken, ""),
		TwilioFromNumber: getEnvStr(EnvTwilioFromNumber, ""),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, 15*time.Second),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, 15*time.Second),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, 30*time.Second),

		Log: log,
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}
	if !regexp.MustCompile(`^https?://`).MatchString(cfg.APIURL) {
		errors = append(errors, fmt.Sprintf("API_URL must start with http:// or https://, got: %s", cfg.APIURL))
	}

	switch cfg.PushTransport {
	case PushTransportSocket:
		if !regexp.MustCompile(`^wss?://`).MatchString(cfg.SocketURL) {
			errors = append(errors, fmt.Sprintf("SOCKET_URL must start with ws:// or wss://, got: %s", cfg.SocketURL))
		}
	case PushTransportKafka:
		if len(cfg.KafkaBrokers) == 0 {
			errors = append(errors, "KAFKA_BROKERS cannot be empty when PUSH_TRANSPORT=kafka")
		}
		if cfg.KafkaTopic == "" {
			errors = append(errors, "KAFKA_SLOT_TOPIC cannot be empty")
		}
	default:
		errors = append(errors, fmt.Sprintf("PUSH_TRANSPORT must be %q or %q, got: %s", PushTransportSocket, PushTransportKafka, cfg.PushTransport))
	}

	if cfg.ServiceFee < 0 {
		errors = append(errors, fmt.Sprintf("SERVICE_FEE cannot be negative, got: %d", cfg.ServiceFee))
	}
	if cfg.MinBookingDuration <= 0 {
		errors = append(errors, fmt.Sprintf("MIN_BOOKING_DURATION must be positive, got: %s", cfg.MinBookingDuration))
	}
	if cfg.PastStartGrace < 0 {
		errors = append(errors, fmt.Sprintf("PAST_START_GRACE cannot be negative, got: %s", cfg.PastStartGrace))
	}
	if cfg.PriceDebounce <= 0 {
		errors = append(errors, fmt.Sprintf("PRICE_DEBOUNCE must be positive, got: %s", cfg.PriceDebounce))
	}
	if cfg.RedirectDelay < 0 {
		errors = append(errors, fmt.Sprintf("REDIRECT_DELAY cannot be negative, got: %s", cfg.RedirectDelay))
	}
	if cfg.BackendTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("BACKEND_TIMEOUT must be positive, got: %s", cfg.BackendTimeout))
	}
	if cfg.PageIdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PAGE_IDLE_TIMEOUT must be positive, got: %s", cfg.PageIdleTimeout))
	}
	if cfg.SessionTTL <= 0 {
		errors = append(errors, fmt.Sprintf("SESSION_TTL must be positive, got: %s", cfg.SessionTTL))
	}
	if cfg.DefaultLanguage != "vi" && cfg.DefaultLanguage != "en" {
		errors = append(errors, fmt.Sprintf("DEFAULT_LANGUAGE must be vi or en, got: %s", cfg.DefaultLanguage))
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		errors = append(errors, "READ_TIMEOUT, WRITE_TIMEOUT and SHUTDOWN_TIMEOUT must be positive")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"port", cfg.Port,
		"api_url", cfg.APIURL,
		"push_transport", cfg.PushTransport,
		"socket_url", cfg.SocketURL,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_topic", cfg.KafkaTopic,
		"database_url", redactDatabaseURL(cfg.DatabaseURL),
		"timezone", cfg.Location.String(),
		"service_fee", cfg.ServiceFee,
		"min_booking_duration", cfg.MinBookingDuration,
		"price_debounce", cfg.PriceDebounce,
		"redirect_delay", cfg.RedirectDelay,
		"page_idle_timeout", cfg.PageIdleTimeout,
		"session_ttl", cfg.SessionTTL,
		"default_language", cfg.DefaultLanguage,
		"sendgrid_configured", cfg.SendgridAPIKey != "" && cfg.SendgridFrom != "",
		"twilio_configured", cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "",
	)
}

func redactDatabaseURL(url string) string {
	credentialRegex := regexp.MustCompile(`(postgres(ql)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(url, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
