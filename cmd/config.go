package main

import (
	"chat-core/storage"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host            string        `env:"HOST,default=localhost"`
	Port            int           `env:"PORT,default=8080"`
	LogLevel        string        `env:"LOG_LEVEL,default=INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	CorsOrigins     string        `env:"CORS_ORIGINS,default=http://localhost:5173"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	IndexFilepath  string `env:"INDEX_FILEPATH,required=true"`

	TokenSecret string        `env:"ACCESS_TOKEN_SECRET,required=true"`
	TokenTTL    time.Duration `env:"ACCESS_TOKEN_TTL,default=24h"`

	FanoutShards         int           `env:"FANOUT_SHARDS,default=4"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=1m"`
	LowCapacityThreshold float64       `env:"LOW_CAPACITY_THRESHOLD,default=0.8"`
	ConnectionBuffer     int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout         time.Duration `env:"WS_WRITE_TIMEOUT,default=5s"`
	PingInterval         time.Duration `env:"WS_PING_INTERVAL,default=30s"`

	ModerationEnabled         bool   `env:"MODERATION_ENABLED,default=false"`
	ModerationDictionary      string `env:"MODERATION_DICTIONARY"`
	ModerationCharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	// Attachments go to S3 when a bucket is set, to UploadsDir otherwise.
	UploadsDir string `env:"UPLOADS_DIR,default=./public/uploads"`
	UploadsURL string `env:"UPLOADS_URL,default=http://localhost:8080/uploads"`
	// MaxAttachmentSize is in bytes.
	MaxAttachmentSize int64  `env:"MAX_ATTACHMENT_SIZE,default=10485760"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION,default=us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKey       string `env:"S3_ACCESS_KEY"`
	S3SecretKey       string `env:"S3_SECRET_KEY"`
	S3Folder          string `env:"S3_FOLDER,default=attachments"`
	S3PublicURL       string `env:"S3_PUBLIC_URL"`
}

func (c Config) CharacterRune() (rune, error) {
	r := []rune(c.ModerationCharReplacement)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			c.ModerationCharReplacement,
		)
	}
	return r[0], nil
}

func (c Config) AllowedOrigins() []string {
	return lo.Compact(lo.Map(strings.Split(c.CorsOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	}))
}

func (c Config) S3() storage.S3Config {
	return storage.S3Config{
		Endpoint:  c.S3Endpoint,
		Region:    c.S3Region,
		Bucket:    c.S3Bucket,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Folder:    c.S3Folder,
		PublicURL: c.S3PublicURL,
	}
}
