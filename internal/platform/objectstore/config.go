package objectstore

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/sitechat-backend/internal/platform/envutil"
)

type Mode string

const (
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
	ModeS3          Mode = "s3"
	ModeMemory      Mode = "memory"
	ModeDisabled    Mode = "disabled"
)

type Config struct {
	Mode           Mode
	EmulatorHost   string
	AvatarBucket   string
	SnapshotBucket string
	PublicBaseURL  string
	AvatarCDN      string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

func IsSupportedMode(mode Mode) bool {
	switch mode {
	case ModeGCS, ModeGCSEmulator, ModeS3, ModeMemory, ModeDisabled:
		return true
	default:
		return false
	}
}

type ConfigErrorCode string

const (
	ConfigErrorInvalidMode         ConfigErrorCode = "invalid_mode"
	ConfigErrorMissingEmulatorHost ConfigErrorCode = "missing_emulator_host"
	ConfigErrorInvalidURL          ConfigErrorCode = "invalid_url"
	ConfigErrorMissingBucket       ConfigErrorCode = "missing_bucket"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Mode  string
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid object storage config"
	}
	switch e.Code {
	case ConfigErrorInvalidMode:
		return fmt.Sprintf("invalid OBJECT_STORAGE_MODE=%q (allowed: gcs, gcs_emulator, s3, memory, disabled)", e.Mode)
	case ConfigErrorMissingEmulatorHost:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", e.Mode)
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid URL %q; expected absolute URL like http://localhost:4443", e.Value)
	case ConfigErrorMissingBucket:
		return fmt.Sprintf("OBJECT_STORAGE_MODE=%q requires %s", e.Mode, e.Value)
	default:
		return "invalid object storage config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ResolveConfigFromEnv reads OBJECT_STORAGE_MODE and friends. An empty mode
// means gcs_emulator when STORAGE_EMULATOR_HOST is set and disabled when no
// bucket is configured at all.
func ResolveConfigFromEnv() (Config, error) {
	cfg := Config{
		EmulatorHost:   envutil.String("STORAGE_EMULATOR_HOST", ""),
		AvatarBucket:   envutil.String("AVATAR_BUCKET_NAME", ""),
		SnapshotBucket: envutil.String("SNAPSHOT_BUCKET_NAME", ""),
		PublicBaseURL:  strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
		AvatarCDN:      envutil.String("AVATAR_CDN_DOMAIN", ""),
		S3Region:       envutil.String("S3_REGION", "us-east-1"),
		S3Endpoint:     envutil.String("S3_ENDPOINT", ""),
		S3AccessKey:    envutil.String("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:    envutil.String("S3_SECRET_ACCESS_KEY", ""),
	}
	raw := envutil.String("OBJECT_STORAGE_MODE", "")
	mode := Mode(strings.ToLower(raw))
	switch {
	case mode == "" && cfg.EmulatorHost != "":
		cfg.Mode = ModeGCSEmulator
	case mode == "" && cfg.AvatarBucket == "" && cfg.SnapshotBucket == "":
		cfg.Mode = ModeDisabled
	case mode == "":
		cfg.Mode = ModeGCS
	case IsSupportedMode(mode):
		cfg.Mode = mode
	default:
		return cfg, &ConfigError{Code: ConfigErrorInvalidMode, Mode: raw}
	}
	return cfg, Validate(cfg)
}

func Validate(cfg Config) error {
	if !IsSupportedMode(cfg.Mode) {
		return &ConfigError{Code: ConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
	if cfg.PublicBaseURL != "" {
		if err := validateAbsURL(cfg.PublicBaseURL); err != nil {
			return err
		}
	}
	switch cfg.Mode {
	case ModeMemory, ModeDisabled:
		return nil
	case ModeGCSEmulator:
		if cfg.EmulatorHost == "" {
			return &ConfigError{Code: ConfigErrorMissingEmulatorHost, Mode: string(cfg.Mode)}
		}
		if err := validateAbsURL(cfg.EmulatorHost); err != nil {
			return err
		}
	case ModeS3:
		if cfg.S3Endpoint != "" {
			if err := validateAbsURL(cfg.S3Endpoint); err != nil {
				return err
			}
		}
	}
	if cfg.AvatarBucket == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode), Value: "AVATAR_BUCKET_NAME"}
	}
	if cfg.SnapshotBucket == "" {
		return &ConfigError{Code: ConfigErrorMissingBucket, Mode: string(cfg.Mode), Value: "SNAPSHOT_BUCKET_NAME"}
	}
	return nil
}

func validateAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: raw, Cause: err}
	}
	return nil
}
