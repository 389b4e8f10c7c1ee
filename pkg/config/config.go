package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StorageDriverMinio = "minio"
	StorageDriverLocal = "local"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Consent     ConsentConfig
	Submissions SubmissionsConfig
	VoiceClone  VoiceCloneConfig
	Storage     StorageConfig
	QC          QCConfig
	Messaging   MessagingConfig
	Jobs        JobsConfig
	Sync        SyncConfig
	Dashboard   DashboardConfig
	Cleanup     CleanupConfig
	RateLimit   RateLimitConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ConsentConfig controls OTP issuance and verification.
type ConsentConfig struct {
	OTPLength    int
	OTPTTL       time.Duration
	MaxAttempts  int
	SendOnIntake bool
	MessageTmpl  string
}

// SubmissionsConfig bounds intake payloads.
type SubmissionsConfig struct {
	MaxLanguages      int
	MaxAudioFiles     int
	MaxUploadBytes    int64
	AllowedImageMIMEs []string
	AllowedAudioMIMEs []string
}

// VoiceCloneConfig points at the external voice-cloning provider.
type VoiceCloneConfig struct {
	BaseURL          string
	APIKey           string
	ModelID          string
	Timeout          time.Duration
	ReleaseCooldown  time.Duration
	MasterAudioKey   string
	RemoveBackground bool
}

// StorageConfig selects the object store used for uploads and generated media.
type StorageConfig struct {
	Driver          string
	Endpoint        string
	AccessKey       string
	SecretKey       string
	Bucket          string
	UseSSL          bool
	PublicBaseURL   string
	LocalDir        string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// QCConfig tunes the review lease.
type QCConfig struct {
	ReviewLease time.Duration
}

// MessagingConfig configures the outbound messaging gateway.
type MessagingConfig struct {
	Enabled    bool
	GatewayURL string
	Token      string
	Sender     string
	Timeout    time.Duration
}

// JobsConfig sizes the in-process side-effect queue.
type JobsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// SyncConfig governs the spreadsheet projection sync.
type SyncConfig struct {
	Enabled     bool
	WorkbookKey string
}

// DashboardConfig governs dashboard exposure and cache tuning.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// CleanupConfig toggles the scheduled voice-clone release sweep.
type CleanupConfig struct {
	VoiceReleaseEnabled bool
	VoiceReleaseSpec    string
	BatchSize           int
}

// RateLimitConfig expresses limiter rates in "<limit>-<period>" form, e.g. "5-M".
type RateLimitConfig struct {
	Enabled    bool
	ConsentOTP string
	Default    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:      v.GetString("LOG_LEVEL"),
		Format:     v.GetString("LOG_FORMAT"),
		File:       v.GetString("LOG_FILE"),
		MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
		MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
		MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
	}

	cfg.Consent = ConsentConfig{
		OTPLength:    v.GetInt("OTP_LENGTH"),
		OTPTTL:       parseDuration(v.GetString("OTP_TTL"), 10*time.Minute),
		MaxAttempts:  v.GetInt("OTP_MAX_ATTEMPTS"),
		SendOnIntake: v.GetBool("OTP_SEND_ON_INTAKE"),
		MessageTmpl:  v.GetString("OTP_MESSAGE_TEMPLATE"),
	}

	maxUpload := v.GetInt64("MAX_UPLOAD_SIZE")
	if maxUpload <= 0 {
		maxUpload = 25 * 1024 * 1024
	}
	cfg.Submissions = SubmissionsConfig{
		MaxLanguages:      v.GetInt("MAX_LANGUAGES"),
		MaxAudioFiles:     v.GetInt("MAX_AUDIO_FILES"),
		MaxUploadBytes:    maxUpload,
		AllowedImageMIMEs: splitAndTrim(v.GetString("ALLOWED_IMAGE_MIME_TYPES")),
		AllowedAudioMIMEs: splitAndTrim(v.GetString("ALLOWED_AUDIO_MIME_TYPES")),
	}

	cfg.VoiceClone = VoiceCloneConfig{
		BaseURL:          v.GetString("VOICE_API_BASE_URL"),
		APIKey:           v.GetString("VOICE_API_KEY"),
		ModelID:          v.GetString("VOICE_MODEL_ID"),
		Timeout:          parseDuration(v.GetString("VOICE_API_TIMEOUT"), 2*time.Minute),
		ReleaseCooldown:  parseDuration(v.GetString("VOICE_RELEASE_COOLDOWN"), 24*time.Hour),
		MasterAudioKey:   v.GetString("VOICE_MASTER_AUDIO_KEY"),
		RemoveBackground: v.GetBool("VOICE_REMOVE_BACKGROUND_NOISE"),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		Endpoint:        v.GetString("MINIO_ENDPOINT"),
		AccessKey:       v.GetString("MINIO_ACCESS_KEY"),
		SecretKey:       v.GetString("MINIO_SECRET_KEY"),
		Bucket:          v.GetString("MINIO_BUCKET"),
		UseSSL:          v.GetBool("MINIO_USE_SSL"),
		PublicBaseURL:   v.GetString("MINIO_PUBLIC_BASE"),
		LocalDir:        v.GetString("STORAGE_LOCAL_DIR"),
		SignedURLSecret: v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 24*time.Hour),
	}

	cfg.QC = QCConfig{
		ReviewLease: parseDuration(v.GetString("QC_REVIEW_LEASE"), 30*time.Minute),
	}

	cfg.Messaging = MessagingConfig{
		Enabled:    v.GetBool("ENABLE_MESSAGING"),
		GatewayURL: v.GetString("MESSAGING_GATEWAY_URL"),
		Token:      v.GetString("MESSAGING_TOKEN"),
		Sender:     v.GetString("MESSAGING_SENDER"),
		Timeout:    parseDuration(v.GetString("MESSAGING_TIMEOUT"), 10*time.Second),
	}

	cfg.Jobs = JobsConfig{
		Workers:    v.GetInt("JOBS_WORKERS"),
		BufferSize: v.GetInt("JOBS_BUFFER_SIZE"),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("JOBS_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Sync = SyncConfig{
		Enabled:     v.GetBool("ENABLE_SHEET_SYNC"),
		WorkbookKey: v.GetString("SHEET_SYNC_WORKBOOK_KEY"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD_CACHE"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 2*time.Minute),
	}

	cfg.Cleanup = CleanupConfig{
		VoiceReleaseEnabled: v.GetBool("ENABLE_VOICE_CLEANUP"),
		VoiceReleaseSpec:    v.GetString("VOICE_CLEANUP_CRON"),
		BatchSize:           v.GetInt("VOICE_CLEANUP_BATCH_SIZE"),
	}

	cfg.RateLimit = RateLimitConfig{
		Enabled:    v.GetBool("ENABLE_RATE_LIMIT"),
		ConsentOTP: v.GetString("RATE_LIMIT_CONSENT"),
		Default:    v.GetString("RATE_LIMIT_DEFAULT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "doctor_voice")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 14)

	v.SetDefault("OTP_LENGTH", 6)
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_SEND_ON_INTAKE", true)
	v.SetDefault("OTP_MESSAGE_TEMPLATE", "Your consent code for the doctor voice campaign is %s. It expires in %d minutes.")

	v.SetDefault("MAX_LANGUAGES", 5)
	v.SetDefault("MAX_AUDIO_FILES", 5)
	v.SetDefault("MAX_UPLOAD_SIZE", 25*1024*1024)
	v.SetDefault("ALLOWED_IMAGE_MIME_TYPES", "image/jpeg,image/png,image/webp")
	v.SetDefault("ALLOWED_AUDIO_MIME_TYPES", "audio/mpeg,audio/wav,audio/x-wav,audio/wave,audio/mp4,audio/x-m4a,audio/ogg,audio/webm")

	v.SetDefault("VOICE_API_BASE_URL", "https://api.elevenlabs.io")
	v.SetDefault("VOICE_API_KEY", "")
	v.SetDefault("VOICE_MODEL_ID", "eleven_multilingual_sts_v2")
	v.SetDefault("VOICE_API_TIMEOUT", "2m")
	v.SetDefault("VOICE_RELEASE_COOLDOWN", "24h")
	v.SetDefault("VOICE_MASTER_AUDIO_KEY", "master/{lang}.mp3")
	v.SetDefault("VOICE_REMOVE_BACKGROUND_NOISE", true)

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "doctor-voice")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_PUBLIC_BASE", "")
	v.SetDefault("STORAGE_LOCAL_DIR", "./media")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_media_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "24h")

	v.SetDefault("QC_REVIEW_LEASE", "30m")

	v.SetDefault("ENABLE_MESSAGING", false)
	v.SetDefault("MESSAGING_GATEWAY_URL", "")
	v.SetDefault("MESSAGING_TOKEN", "")
	v.SetDefault("MESSAGING_SENDER", "DOCVOX")
	v.SetDefault("MESSAGING_TIMEOUT", "10s")

	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_BUFFER_SIZE", 64)
	v.SetDefault("JOBS_MAX_RETRIES", 3)
	v.SetDefault("JOBS_RETRY_DELAY", "2s")

	v.SetDefault("ENABLE_SHEET_SYNC", false)
	v.SetDefault("SHEET_SYNC_WORKBOOK_KEY", "sync/submissions.xlsx")

	v.SetDefault("ENABLE_DASHBOARD_CACHE", false)
	v.SetDefault("DASHBOARD_CACHE_TTL", "2m")

	v.SetDefault("ENABLE_VOICE_CLEANUP", false)
	v.SetDefault("VOICE_CLEANUP_CRON", "0 3 * * *")
	v.SetDefault("VOICE_CLEANUP_BATCH_SIZE", 50)

	v.SetDefault("ENABLE_RATE_LIMIT", true)
	v.SetDefault("RATE_LIMIT_CONSENT", "10-M")
	v.SetDefault("RATE_LIMIT_DEFAULT", "300-M")
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such file")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
