// Package config aggregates runtime settings for the booking server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/bookings/pkg/booking"
)

const (
	defaultListenAddr    = ":8080"
	defaultDatabaseURL   = "sqlite:///tmp/bookings.db"
	defaultAllowedOrigin = "http://localhost:8000"
	defaultTokenIssuer   = "bookings"
	defaultStartingGrant = 20
	defaultReapSpec      = "*/5 * * * *"
	defaultFinalizeSpec  = "0 * * * *"
	defaultCapacitySpec  = "0 22 * * *"
)

// Config aggregates runtime settings for the booking server.
type Config struct {
	ListenAddr     string
	DatabaseURL    string
	AllowedOrigins []string

	TokenSigningKey string
	TokenIssuer     string

	StartingGrant int64

	ReservationTimeout time.Duration
	CancellationWindow time.Duration
	AttendanceLock     time.Duration
	CheckInWindow      time.Duration
	TransferLock       time.Duration

	ReapSpec     string
	FinalizeSpec string
	CapacitySpec string
}

// Validate fills defaults and ensures the configuration contains sane
// values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.TokenIssuer = defaultIfEmpty(cfg.TokenIssuer, defaultTokenIssuer)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.StartingGrant < 0 {
		return fmt.Errorf("starting grant must not be negative")
	}
	if cfg.StartingGrant == 0 {
		cfg.StartingGrant = defaultStartingGrant
	}

	stock := booking.DefaultPolicy()
	if cfg.ReservationTimeout <= 0 {
		cfg.ReservationTimeout = stock.ReservationTimeout
	}
	if cfg.CancellationWindow <= 0 {
		cfg.CancellationWindow = stock.CancellationWindow
	}
	if cfg.AttendanceLock <= 0 {
		cfg.AttendanceLock = stock.AttendanceLock
	}
	if cfg.CheckInWindow <= 0 {
		cfg.CheckInWindow = stock.CheckInWindow
	}
	if cfg.TransferLock <= 0 {
		cfg.TransferLock = stock.TransferLock
	}

	cfg.ReapSpec = defaultIfEmpty(cfg.ReapSpec, defaultReapSpec)
	cfg.FinalizeSpec = defaultIfEmpty(cfg.FinalizeSpec, defaultFinalizeSpec)
	cfg.CapacitySpec = defaultIfEmpty(cfg.CapacitySpec, defaultCapacitySpec)

	if len(cfg.TokenSigningKey) == 0 {
		return fmt.Errorf("token signing key is required")
	}
	return nil
}

// Policy maps the configured windows onto the service policy.
func (cfg *Config) Policy() booking.Policy {
	policy := booking.DefaultPolicy()
	policy.ReservationTimeout = cfg.ReservationTimeout
	policy.CancellationWindow = cfg.CancellationWindow
	policy.AttendanceLock = cfg.AttendanceLock
	policy.CheckInWindow = cfg.CheckInWindow
	policy.TransferLock = cfg.TransferLock
	return policy
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
