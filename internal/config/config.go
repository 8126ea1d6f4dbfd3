package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTP      HTTPConfig
	Extractor ExtractorConfig
	Matcher   MatcherConfig
	Storage   StorageConfig
	AWS       AWSConfig
	Dedup     DedupConfig
	Schedule  ScheduleConfig
	MQTT      MQTTConfig
}

type HTTPConfig struct {
	Host string // defaults to 0.0.0.0
	Port int    // defaults to 8080
}

type ExtractorConfig struct {
	URL string // face extractor service URL, defaults to http://localhost:8000
	Dim int    // embedding dimension, defaults to 128
}

type MatcherConfig struct {
	Threshold float64 // max euclidean distance for a match, defaults to 0.5
}

type StorageConfig struct {
	Backend    string // dynamo, postgres, mariadb or file (default file)
	URL        string // PostgreSQL connection URL
	MariaDBDSN string // MariaDB DSN (e.g., user:pass@tcp(mariadb:3306)/attendance)
	DataDir    string // directory for the file backend, defaults to ./data
}

type AWSConfig struct {
	Region          string // defaults to eu-north-1
	Bucket          string // S3 bucket for face photos, defaults to facerecognition
	FacesTable      string // DynamoDB table for embeddings, defaults to FacesTable
	AttendanceTable string // DynamoDB table for attendance, defaults to Attendance
}

type DedupConfig struct {
	Policy       string        // calendar or cooldown (default calendar)
	Cooldown     time.Duration // cooldown window, defaults to 5m
	BucketLayout string        // time layout for calendar buckets, defaults to 20060102
}

type ScheduleConfig struct {
	File string // path to class-hours YAML, empty disables schedule gating
}

type MQTTConfig struct {
	Broker      string // e.g., tcp://localhost:1883, empty disables the worker
	ClientID    string // defaults to face-attendance-worker
	FrameTopic  string // defaults to attendance/frames
	ResultTopic string // defaults to attendance/results
	LogResults  bool   // log recognized frames into the attendance ledger
}

// envStr reads an environment variable, falling back to a default when unset.
func envStr(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a non-negative
// float. Returns the default value if unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable and parses it as a positive
// duration (e.g., "5m"). Returns the default value if unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean ("true", "1", ...).
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func Load() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host: envStr("HTTP_HOST", "0.0.0.0"),
			Port: envInt("HTTP_PORT", 8080),
		},
		Extractor: ExtractorConfig{
			URL: envStr("EXTRACTOR_URL", "http://localhost:8000"),
			Dim: envInt("EMBEDDING_DIM", 128),
		},
		Matcher: MatcherConfig{
			Threshold: envFloat("MATCH_THRESHOLD", 0.5),
		},
		Storage: StorageConfig{
			Backend:    envStr("STORAGE_BACKEND", "file"),
			URL:        os.Getenv("DATABASE_URL"),
			MariaDBDSN: os.Getenv("MARIADB_DSN"),
			DataDir:    envStr("DATA_DIR", "./data"),
		},
		AWS: AWSConfig{
			Region:          envStr("AWS_REGION", "eu-north-1"),
			Bucket:          envStr("S3_BUCKET", "facerecognition"),
			FacesTable:      envStr("FACES_TABLE", "FacesTable"),
			AttendanceTable: envStr("ATTENDANCE_TABLE", "Attendance"),
		},
		Dedup: DedupConfig{
			Policy:       envStr("DEDUP_POLICY", "calendar"),
			Cooldown:     envDuration("DEDUP_COOLDOWN", 5*time.Minute),
			BucketLayout: envStr("DEDUP_BUCKET_LAYOUT", "20060102"),
		},
		Schedule: ScheduleConfig{
			File: os.Getenv("SCHEDULE_FILE"),
		},
		MQTT: MQTTConfig{
			Broker:      os.Getenv("MQTT_BROKER"),
			ClientID:    envStr("MQTT_CLIENT_ID", "face-attendance-worker"),
			FrameTopic:  envStr("MQTT_FRAME_TOPIC", "attendance/frames"),
			ResultTopic: envStr("MQTT_RESULT_TOPIC", "attendance/results"),
			LogResults:  envBool("MQTT_LOG_RESULTS", false),
		},
	}
}
