package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Routing   RoutingConfig
	Optimizer OptimizerConfig
	Emissions EmissionsConfig
}

type ServiceConfig struct {
	Name        string
	Environment string
	Version     string
	LogLevel    string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

// RoutingConfig configures the Valhalla routing engine client
type RoutingConfig struct {
	BaseURL string
	Timeout time.Duration
	Costing string
}

// OptimizerConfig configures the solver
type OptimizerConfig struct {
	SolverBudget      time.Duration // wall-time per category group, cross-company
	SingleGroupBudget time.Duration // wall-time per category group, single-company
	SearchWorkers     int           // parallel category groups
	ServiceTimeMin    int           // default on-site service time
	DefaultReturnKm   float64       // conservative deadhead estimate
	DropPenalty       int64         // cost of dropping a trip in routing mode
}

// EmissionsConfig configures the KPI attribution factors
type EmissionsConfig struct {
	FuelPerKmL     float64 // liters of diesel per km
	CO2PerLiterKg  float64 // kg CO2 per liter of diesel
	PricePerLiter  float64 // fuel price
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        getEnv("SERVICE_NAME", "trip-optimizer"),
			Environment: getEnv("ENVIRONMENT", "development"),
			Version:     getEnv("VERSION", "1.0.0"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "logistic"),
			Password:        getEnv("DB_PASSWORD", "logistic"),
			Database:        getEnv("DB_NAME", "logistic"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
		},
		Routing: RoutingConfig{
			BaseURL: getEnv("VALHALLA_URL", "http://localhost:8002"),
			Timeout: getEnvDuration("VALHALLA_TIMEOUT", 30*time.Second),
			Costing: getEnv("VALHALLA_COSTING", "truck"),
		},
		Optimizer: OptimizerConfig{
			SolverBudget:      getEnvDuration("SOLVER_BUDGET", 300*time.Second),
			SingleGroupBudget: getEnvDuration("SINGLE_GROUP_BUDGET", 10*time.Second),
			SearchWorkers:     getEnvInt("SEARCH_WORKERS", runtime.GOMAXPROCS(0)),
			ServiceTimeMin:    getEnvInt("SERVICE_TIME_MIN", 30),
			DefaultReturnKm:   getEnvFloat("DEFAULT_RETURN_KM", 20.0),
			DropPenalty:       int64(getEnvInt("DROP_PENALTY", 1_000_000_000)),
		},
		Emissions: EmissionsConfig{
			FuelPerKmL:    getEnvFloat("FUEL_PER_KM_L", 0.30),
			CO2PerLiterKg: getEnvFloat("CO2_PER_LITER_KG", 2.68),
			PricePerLiter: getEnvFloat("FUEL_PRICE_PER_LITER", 1.50),
		},
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, s := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}
