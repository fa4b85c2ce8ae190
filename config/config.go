// server/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// --- Sub-structs, mirroring the layout of config.yaml ---

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	GinMode string `mapstructure:"ginMode"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"accessKeyID"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	Prefix          string `mapstructure:"prefix"`
}

type TrackingConfig struct {
	LocationTTL        time.Duration `mapstructure:"locationTTL"`
	OverspeedThreshold float64       `mapstructure:"overspeedThreshold"`
	Timezone           string        `mapstructure:"timezone"`
}

// QueueConfig holds the worker and retry policy of one named queue.
type QueueConfig struct {
	Concurrency     int           `mapstructure:"concurrency"`
	Attempts        int           `mapstructure:"attempts"`
	Backoff         time.Duration `mapstructure:"backoff"`
	KeepCompleted   int           `mapstructure:"keepCompleted"`
	KeepFailed      int           `mapstructure:"keepFailed"`
	FailedThreshold int64         `mapstructure:"failedThreshold"`
}

type JobsConfig struct {
	Trip           QueueConfig   `mapstructure:"trip"`
	Analytics      QueueConfig   `mapstructure:"analytics"`
	Cleanup        QueueConfig   `mapstructure:"cleanup"`
	HealthInterval time.Duration `mapstructure:"healthInterval"`
}

type RetentionConfig struct {
	TripDays      int      `mapstructure:"tripDays"`
	AlertDays     int      `mapstructure:"alertDays"`
	FeedbackDays  int      `mapstructure:"feedbackDays"`
	ArchiveDays   int      `mapstructure:"archiveDays"`
	CachePatterns []string `mapstructure:"cachePatterns"`

	CleanupSchedule   string `mapstructure:"cleanupSchedule"`
	AnalyticsSchedule string `mapstructure:"analyticsSchedule"`
	CacheSchedule     string `mapstructure:"cacheSchedule"`
	ArchiveSchedule   string `mapstructure:"archiveSchedule"`
}

// --- Root Config, composed of all sub-structs ---

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	S3        S3Config        `mapstructure:"s3"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// Location resolves the tracking timezone used for the daily trip window.
func (c Config) Location() (*time.Location, error) {
	if c.Tracking.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Tracking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid tracking.timezone: %w", err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.ginMode", "release")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.dbName", "ku_fleet")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("nats.subjectPrefix", "fleet")

	v.SetDefault("tracking.locationTTL", 300*time.Second)
	v.SetDefault("tracking.overspeedThreshold", 80.0)

	v.SetDefault("jobs.trip.concurrency", 5)
	v.SetDefault("jobs.trip.attempts", 3)
	v.SetDefault("jobs.trip.backoff", 2*time.Second)
	v.SetDefault("jobs.trip.keepCompleted", 100)
	v.SetDefault("jobs.trip.keepFailed", 50)
	v.SetDefault("jobs.trip.failedThreshold", 10)

	v.SetDefault("jobs.analytics.concurrency", 3)
	v.SetDefault("jobs.analytics.attempts", 3)
	v.SetDefault("jobs.analytics.backoff", 2*time.Second)
	v.SetDefault("jobs.analytics.keepCompleted", 50)
	v.SetDefault("jobs.analytics.keepFailed", 25)
	v.SetDefault("jobs.analytics.failedThreshold", 5)

	// Sweeps are not retried in-run; the next scheduled run is the retry.
	v.SetDefault("jobs.cleanup.concurrency", 2)
	v.SetDefault("jobs.cleanup.attempts", 1)
	v.SetDefault("jobs.cleanup.backoff", 2*time.Second)
	v.SetDefault("jobs.cleanup.keepCompleted", 20)
	v.SetDefault("jobs.cleanup.keepFailed", 10)
	v.SetDefault("jobs.cleanup.failedThreshold", 5)

	v.SetDefault("jobs.healthInterval", 5*time.Minute)

	v.SetDefault("retention.tripDays", 7)
	v.SetDefault("retention.alertDays", 30)
	v.SetDefault("retention.feedbackDays", 90)
	v.SetDefault("retention.archiveDays", 30)
	v.SetDefault("retention.cachePatterns", []string{"analytics:*", "bus:location:*"})
	v.SetDefault("retention.cleanupSchedule", "0 2 * * *")
	v.SetDefault("retention.analyticsSchedule", "0 1 * * *")
	v.SetDefault("retention.cacheSchedule", "0 */6 * * *")
	v.SetDefault("retention.archiveSchedule", "0 3 * * 0")
}

// LoadConfig reads config.yaml from path and overrides it with environment variables.
func LoadConfig(path string) (config Config, err error) {
	// A .env file is optional; real environment variables still win.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit bindings for the keys deployments usually override.
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.ginMode", "GIN_MODE")
	v.BindEnv("mongo.uri", "MONGO_URI")
	v.BindEnv("mongo.dbName", "MONGO_DBNAME")
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("nats.url", "NATS_URL")
	v.BindEnv("nats.subjectPrefix", "NATS_SUBJECT_PREFIX")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("s3.bucket", "S3_BUCKET")
	v.BindEnv("s3.region", "S3_REGION")
	v.BindEnv("s3.accessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("s3.secretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("s3.prefix", "S3_ARCHIVE_PREFIX")
	v.BindEnv("tracking.locationTTL", "LOCATION_CACHE_TTL")
	v.BindEnv("tracking.overspeedThreshold", "OVERSPEED_THRESHOLD")
	v.BindEnv("tracking.timezone", "TZ")
	v.BindEnv("jobs.trip.attempts", "TRIP_JOB_ATTEMPTS")
	v.BindEnv("jobs.trip.backoff", "TRIP_JOB_BACKOFF")
	v.BindEnv("retention.tripDays", "TRIP_RETENTION_DAYS")
	v.BindEnv("retention.alertDays", "ALERT_RETENTION_DAYS")
	v.BindEnv("retention.feedbackDays", "FEEDBACK_RETENTION_DAYS")
	v.BindEnv("retention.archiveDays", "ARCHIVE_DAYS")

	// Without config.yaml we run on defaults plus environment.
	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	return
}
