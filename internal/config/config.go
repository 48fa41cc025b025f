package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Provider  ProviderConfig
	Data      DataConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Refresh   RefreshConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ProviderConfig identifies this fleet operator in rendered MDS entities.
type ProviderConfig struct {
	ID         string
	Name       string
	MDSVersion string
	APIPrefix  string
}

// DataConfig carries the materialization and retention knobs. It is built once
// at startup and passed by reference; components never read ambient config.
type DataConfig struct {
	// MinLocationAccuracy is the maximum acceptable horizontal error of a GPS
	// sample. Samples above it are discarded, never averaged or interpolated.
	MinLocationAccuracy  float64
	EventRetentionDays   int
	VehicleRetentionDays int
	// OperationsStart bounds every historical query; hours before it are
	// rejected as no_operation.
	OperationsStart time.Time
	StatusCacheTTL  time.Duration
	// CommsLossGap is the silence between consecutive samples after which a
	// robot is considered non-contactable and a comms_lost event is emitted.
	CommsLossGap        time.Duration
	CoordinatePrecision int
	// SnapshotLookback bounds how far before an hour's end the materializer
	// searches for each robot's most recent acceptable sample.
	SnapshotLookback time.Duration
}

type JWTConfig struct {
	Secret string
}

type RateLimitConfig struct {
	GeneralRPS   float64 // Requests per second for general endpoints
	GeneralBurst int     // Burst size for general endpoints
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// RefreshConfig configures the MQTT channel the external scheduler uses to
// trigger hourly materialization. Empty Broker disables the listener.
type RefreshConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      int
	// RunTimeout caps a single materialization run so a stuck warehouse
	// query cannot block subsequent scheduled refreshes.
	RunTimeout time.Duration
}

const operationsStartLayout = "2006-01-02"

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(homeDir)
	}
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}

	operationsStart, err := time.ParseInLocation(operationsStartLayout, viper.GetString("OPERATIONS_START"), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATIONS_START: %w", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("ENVIRONMENT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		Provider: ProviderConfig{
			ID:         viper.GetString("MDS_PROVIDER_ID"),
			Name:       viper.GetString("MDS_PROVIDER_NAME"),
			MDSVersion: viper.GetString("MDS_VERSION"),
			APIPrefix:  viper.GetString("MDS_API_PREFIX"),
		},
		Data: DataConfig{
			MinLocationAccuracy:  viper.GetFloat64("MIN_LOCATION_ACCURACY"),
			EventRetentionDays:   viper.GetInt("EVENT_RETENTION_DAYS"),
			VehicleRetentionDays: viper.GetInt("VEHICLE_RETENTION_DAYS"),
			OperationsStart:      operationsStart,
			StatusCacheTTL:       viper.GetDuration("STATUS_CACHE_TTL"),
			CommsLossGap:         viper.GetDuration("COMMS_LOSS_GAP"),
			CoordinatePrecision:  viper.GetInt("COORDINATE_PRECISION"),
			SnapshotLookback:     viper.GetDuration("SNAPSHOT_LOOKBACK"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   viper.GetFloat64("RATE_LIMIT_GENERAL_RPS"),
			GeneralBurst: viper.GetInt("RATE_LIMIT_GENERAL_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   viper.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   viper.GetStringSlice("CORS_ALLOWED_HEADERS"),
			ExposedHeaders:   viper.GetStringSlice("CORS_EXPOSED_HEADERS"),
			AllowCredentials: viper.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           viper.GetInt("CORS_MAX_AGE"),
		},
		Refresh: RefreshConfig{
			Broker:     viper.GetString("REFRESH_MQTT_BROKER"),
			ClientID:   viper.GetString("REFRESH_MQTT_CLIENT_ID"),
			Username:   viper.GetString("REFRESH_MQTT_USERNAME"),
			Password:   viper.GetString("REFRESH_MQTT_PASSWORD"),
			Topic:      viper.GetString("REFRESH_MQTT_TOPIC"),
			QoS:        viper.GetInt("REFRESH_MQTT_QOS"),
			RunTimeout: viper.GetDuration("REFRESH_RUN_TIMEOUT"),
		},
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("MDS_PROVIDER_ID", "fleet-delivery-robots")
	viper.SetDefault("MDS_PROVIDER_NAME", "Fleet Delivery Robots")
	viper.SetDefault("MDS_VERSION", "2.0.0")
	viper.SetDefault("MDS_API_PREFIX", "/v1/provider")

	viper.SetDefault("MIN_LOCATION_ACCURACY", 10.0)
	viper.SetDefault("EVENT_RETENTION_DAYS", 14)
	viper.SetDefault("VEHICLE_RETENTION_DAYS", 30)
	viper.SetDefault("OPERATIONS_START", "2021-05-01")
	viper.SetDefault("STATUS_CACHE_TTL", "60s")
	viper.SetDefault("COMMS_LOSS_GAP", "1h")
	viper.SetDefault("COORDINATE_PRECISION", 6)
	viper.SetDefault("SNAPSHOT_LOOKBACK", "24h")

	viper.SetDefault("RATE_LIMIT_GENERAL_RPS", 100.0)
	viper.SetDefault("RATE_LIMIT_GENERAL_BURST", 50)

	viper.SetDefault("CORS_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("CORS_ALLOWED_METHODS", []string{"GET", "OPTIONS"})
	viper.SetDefault("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"})
	viper.SetDefault("CORS_MAX_AGE", 300)

	viper.SetDefault("REFRESH_MQTT_CLIENT_ID", "mds-materializer")
	viper.SetDefault("REFRESH_MQTT_TOPIC", "fleet/materialize/hour")
	viper.SetDefault("REFRESH_MQTT_QOS", 1)
	viper.SetDefault("REFRESH_RUN_TIMEOUT", "5m")
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// EventRetention returns the event retention horizon as a duration.
func (d *DataConfig) EventRetention() time.Duration {
	return time.Duration(d.EventRetentionDays) * 24 * time.Hour
}

// VehicleRetention returns the vehicle retention horizon as a duration.
func (d *DataConfig) VehicleRetention() time.Duration {
	return time.Duration(d.VehicleRetentionDays) * 24 * time.Hour
}
