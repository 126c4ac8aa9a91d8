package s3export

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
)

// Config holds S3 export configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-west-001"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("PAYMENT_EXPORT_S3_ENABLED", false),
	}

	// Validate required fields if the upload is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when export upload is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when export upload is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when export upload is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if export upload is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey returns the storage key for an export created at t.
// Format: payments/exports/YYYY/MM/<id>.csv
func ObjectKey(t time.Time, id string) string {
	t = t.UTC()
	return fmt.Sprintf("payments/exports/%04d/%02d/%s.csv", t.Year(), int(t.Month()), id)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "prod")
}
