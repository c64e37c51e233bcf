package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"parking_lifecycle/internal/domain"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	ServerPort   string `envconfig:"SERVER_PORT" default:"8080"`
	StoreBackend string `envconfig:"STORE_BACKEND" default:"postgres"`

	DBDriver       string `envconfig:"DB_DRIVER" default:"pgx"`
	DBHost         string `envconfig:"DB_HOST" default:"localhost"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"parking"`
	DBPassword     string `envconfig:"DB_PASSWORD" default:"parking"`
	DBName         string `envconfig:"DB_NAME" default:"parking_db"`
	DBSslMode      string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`

	SweepIntervalSeconds     int `envconfig:"SWEEP_INTERVAL_SECONDS" default:"60"`
	SweepTimeoutSeconds      int `envconfig:"SWEEP_TIMEOUT_SECONDS" default:"30"`
	ReservationTTLSeconds    int `envconfig:"RESERVATION_TTL_SECONDS" default:"1800"`
	MaxReservationTTLSeconds int `envconfig:"MAX_RESERVATION_TTL_SECONDS" default:"86400"`

	TotalSpaces        int    `envconfig:"TOTAL_SPACES" default:"100"`
	SpacesPerZone      int    `envconfig:"SPACES_PER_ZONE" default:"50"`
	ZoneVehicleClasses string `envconfig:"ZONE_VEHICLE_CLASSES" default:""` // e.g. A=car,B=truck
	ProvisionOnStart   bool   `envconfig:"PROVISION_ON_START" default:"false"`

	JWTSecret string `envconfig:"JWT_SECRET" default:""`

	AWSRegion            string `envconfig:"AWS_REGION" default:"ap-southeast-1"`
	SQSOccupancyQueueURL string `envconfig:"SQS_OCCUPANCY_QUEUE_URL" default:""`

	RabbitURL       string `envconfig:"RABBIT_URL" default:""`
	RabbitExchange  string `envconfig:"RABBIT_EXCHANGE" default:"parking.events"`
	NotifyQueueSize int    `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:""`
	CORSOrigins  string `envconfig:"CORS_ORIGINS" default:"*"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Config: could not load .env file: %v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendPostgres, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StoreBackend))
	}
	switch c.DBDriver {
	case "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be \"pgx\" or \"postgres\", got %q", c.DBDriver))
	}
	if c.SweepIntervalSeconds <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be positive"))
	}
	if c.SweepTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("SWEEP_TIMEOUT_SECONDS must be positive"))
	}
	if c.ReservationTTLSeconds <= 0 {
		errs = append(errs, errors.New("RESERVATION_TTL_SECONDS must be positive"))
	}
	if c.MaxReservationTTLSeconds < c.ReservationTTLSeconds {
		errs = append(errs, errors.New("MAX_RESERVATION_TTL_SECONDS must not be below RESERVATION_TTL_SECONDS"))
	}
	if c.TotalSpaces < 0 {
		errs = append(errs, errors.New("TOTAL_SPACES must not be negative"))
	}
	if c.SpacesPerZone <= 0 || c.SpacesPerZone > 999 {
		errs = append(errs, errors.New("SPACES_PER_ZONE must be between 1 and 999"))
	}
	if c.SpacesPerZone > 0 && c.TotalSpaces > 26*c.SpacesPerZone {
		errs = append(errs, errors.New("TOTAL_SPACES needs more than 26 zones"))
	}
	if c.NotifyQueueSize <= 0 {
		errs = append(errs, errors.New("NOTIFY_QUEUE_SIZE must be positive"))
	}
	if _, err := c.ZoneClasses(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) SweepTimeout() time.Duration {
	return time.Duration(c.SweepTimeoutSeconds) * time.Second
}

func (c *Config) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSeconds) * time.Second
}

func (c *Config) MaxReservationTTL() time.Duration {
	return time.Duration(c.MaxReservationTTLSeconds) * time.Second
}

// ZoneClasses parses ZONE_VEHICLE_CLASSES ("A=car,B=truck") into a zone to class map.
func (c *Config) ZoneClasses() (map[string]domain.VehicleClass, error) {
	out := make(map[string]domain.VehicleClass)
	if strings.TrimSpace(c.ZoneVehicleClasses) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.ZoneVehicleClasses, ",") {
		zone, class, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("ZONE_VEHICLE_CLASSES: malformed entry %q", pair)
		}
		vc, err := domain.ParseVehicleClass(class)
		if err != nil {
			return nil, fmt.Errorf("ZONE_VEHICLE_CLASSES: %w", err)
		}
		out[strings.ToUpper(strings.TrimSpace(zone))] = vc
	}
	return out, nil
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
