package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	InfluxHost     string
	InfluxPort     uint16
	InfluxDatabase string
	InfluxUsername string
	InfluxPassword string

	PoolMaxSize           int
	PoolMinIdle           int
	PoolConnectionTimeout time.Duration
	PoolIdleTimeout       time.Duration
	PoolMaxLifetime       time.Duration
	PoolTestOnCheckOut    bool
	PoolMaxPools          int

	HTTPAddr string
	Env      string
}

// Load reads the configuration from the environment. Missing or malformed
// values fall back to defaults.
func Load() Config {
	return Config{
		InfluxHost:     getenv("INFLUX_HOST", "localhost"),
		InfluxPort:     getenvPort("INFLUX_PORT", 8086),
		InfluxDatabase: getenv("INFLUX_DATABASE", "tutorial"),
		InfluxUsername: os.Getenv("INFLUX_USERNAME"),
		InfluxPassword: os.Getenv("INFLUX_PASSWORD"),

		PoolMaxSize:           getenvInt("POOL_MAX_SIZE", 15),
		PoolMinIdle:           getenvInt("POOL_MIN_IDLE", 0),
		PoolConnectionTimeout: getenvDuration("POOL_CONNECTION_TIMEOUT", time.Second),
		PoolIdleTimeout:       getenvDuration("POOL_IDLE_TIMEOUT", 10*time.Minute),
		PoolMaxLifetime:       getenvDuration("POOL_MAX_LIFETIME", 30*time.Minute),
		PoolTestOnCheckOut:    getenvBool("POOL_TEST_ON_CHECKOUT", true),
		PoolMaxPools:          getenvInt("POOL_MAX_POOLS", 8),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),
		Env:      getenv("ENV", "dev"),
	}
}

// HasAuthentication reports whether a username was configured.
func (c Config) HasAuthentication() bool {
	return c.InfluxUsername != ""
}

func getenv(key, defaultValue string) string {
	v := os.Getenv(key)
	if v != "" {
		return v
	}
	return defaultValue
}

func getenvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getenvPort(key string, defaultValue uint16) uint16 {
	v, err := strconv.ParseUint(os.Getenv(key), 10, 16)
	if err != nil {
		return defaultValue
	}
	return uint16(v)
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getenvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}
