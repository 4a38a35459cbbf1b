package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Audio     AudioConfig
	Retention RetentionConfig
	Office    OfficeConfig
	AWS       AWSConfig
	Agent     AgentConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/attendance?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	CookieName  string
}

// AudioConfig holds audio pipeline settings: storage layout, encoder profile,
// subprocess paths and timeouts, device binding.
type AudioConfig struct {
	StorageRoot         string // root directory for per-user audio directories
	FFmpegPath          string
	FFprobePath         string
	BitrateKbps         int // canonical encode bitrate (also used for byte-size duration estimates)
	SampleRate          int
	TranscodeTimeoutSec int
	DeviceBinding       bool // reject uploads whose token device id conflicts with the bound device
}

// RetentionConfig bounds total stored bytes and recording age.
type RetentionConfig struct {
	MaxTotalBytes    int64
	MaxAgeDays       int
	SweepIntervalMin int
}

// OfficeConfig holds the check-in geofence.
type OfficeConfig struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

// AWSConfig holds AWS credentials and the archive bucket for closed masters.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// AgentConfig holds capture agent settings (cmd/agent).
type AgentConfig struct {
	ServerURL      string
	Token          string
	DeviceID       string
	InputDevice    string // ffmpeg capture device, e.g. "default" for alsa
	SegmentSeconds int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/attendance?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "attendance"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
			CookieName:  getEnv("JWT_COOKIE_NAME", "attend_token"),
		},
		Audio: AudioConfig{
			StorageRoot:         getEnv("AUDIO_STORAGE_ROOT", "./data/audio"),
			FFmpegPath:          getEnv("AUDIO_FFMPEG_PATH", "ffmpeg"),
			FFprobePath:         getEnv("AUDIO_FFPROBE_PATH", "ffprobe"),
			BitrateKbps:         getEnvInt("AUDIO_BITRATE_KBPS", 64),
			SampleRate:          getEnvInt("AUDIO_SAMPLE_RATE", 44100),
			TranscodeTimeoutSec: getEnvInt("AUDIO_TRANSCODE_TIMEOUT_SEC", 60),
			DeviceBinding:       getEnvBool("AUDIO_DEVICE_BINDING", false),
		},
		Retention: RetentionConfig{
			MaxTotalBytes:    getEnvInt64("RETENTION_MAX_TOTAL_BYTES", 10*1024*1024*1024),
			MaxAgeDays:       getEnvInt("RETENTION_MAX_AGE_DAYS", 30),
			SweepIntervalMin: getEnvInt("RETENTION_SWEEP_INTERVAL_MIN", 60),
		},
		Office: OfficeConfig{
			Latitude:     getEnvFloat("OFFICE_LATITUDE", 0),
			Longitude:    getEnvFloat("OFFICE_LONGITUDE", 0),
			RadiusMeters: getEnvFloat("OFFICE_RADIUS_METERS", 200),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", "attendance-recordings-archive"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Agent: AgentConfig{
			ServerURL:      getEnv("AGENT_SERVER_URL", "http://localhost:8080"),
			Token:          getEnv("AGENT_TOKEN", ""),
			DeviceID:       getEnv("AGENT_DEVICE_ID", ""),
			InputDevice:    getEnv("AGENT_INPUT_DEVICE", "default"),
			SegmentSeconds: getEnvInt("AGENT_SEGMENT_SECONDS", 60),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
