// Package config loads runtime settings from the environment.
//
// Settings are read once at startup and passed by value into constructors.
// Nothing in this package keeps global state; callers own their copy.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied by FromEnv when the corresponding variable is unset.
const (
	DefaultEDXBaseURL = "https://edx.netl.doe.gov/api/3/action"
	DefaultEDXGroup   = "claimm-mine-waste"
	DefaultUserAgent  = "EDX-USER"

	// Byte budgets for partial downloads during schema detection. CSV headers
	// almost always fit in the first 8 KiB; zip-container spreadsheets need a
	// larger prefix before the workbook structure is readable.
	DefaultCSVFetchBytes   = 8192
	DefaultSheetFetchBytes = 65536

	DefaultHTTPTimeout = 30 * time.Second
)

// Settings holds every externally tunable knob.
type Settings struct {
	// EDX / CKAN API access.
	EDXAPIKey  string
	EDXBaseURL string
	EDXGroup   string

	// UN Comtrade subscription key (optional; public quota without it).
	ComtradeAPIKey string

	// Partial-download byte budgets for schema detection.
	CSVFetchBytes   int
	SheetFetchBytes int

	// Outbound HTTP behavior shared by all clients.
	HTTPTimeout time.Duration
	UserAgent   string
}

// FromEnv builds Settings from the process environment, applying defaults
// for anything unset. Malformed numeric variables are reported rather than
// silently replaced.
func FromEnv() (Settings, error) {
	s := Settings{
		EDXAPIKey:       os.Getenv("EDX_API_KEY"),
		EDXBaseURL:      envOr("EDX_BASE_URL", DefaultEDXBaseURL),
		EDXGroup:        envOr("CLAIMM_GROUP", DefaultEDXGroup),
		ComtradeAPIKey:  os.Getenv("UNCOMTRADE_API_KEY"),
		CSVFetchBytes:   DefaultCSVFetchBytes,
		SheetFetchBytes: DefaultSheetFetchBytes,
		HTTPTimeout:     DefaultHTTPTimeout,
		UserAgent:       envOr("EDX_USER_AGENT", DefaultUserAgent),
	}

	var err error
	if s.CSVFetchBytes, err = envInt("DETECT_CSV_BYTES", s.CSVFetchBytes); err != nil {
		return Settings{}, err
	}
	if s.SheetFetchBytes, err = envInt("DETECT_SHEET_BYTES", s.SheetFetchBytes); err != nil {
		return Settings{}, err
	}
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			return Settings{}, fmt.Errorf("config: HTTP_TIMEOUT=%q: %w", v, perr)
		}
		s.HTTPTimeout = d
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects settings no component can run with. An empty EDXAPIKey is
// allowed here: only the EDX client requires one and it checks at that point.
func (s Settings) Validate() error {
	if s.CSVFetchBytes <= 0 {
		return fmt.Errorf("config: csv fetch budget must be positive, got %d", s.CSVFetchBytes)
	}
	if s.SheetFetchBytes <= 0 {
		return fmt.Errorf("config: sheet fetch budget must be positive, got %d", s.SheetFetchBytes)
	}
	if s.HTTPTimeout <= 0 {
		return fmt.Errorf("config: http timeout must be positive, got %s", s.HTTPTimeout)
	}
	if s.EDXBaseURL == "" {
		return fmt.Errorf("config: edx base url must not be empty")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q: %w", key, v, err)
	}
	return n, nil
}
