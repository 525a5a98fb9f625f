package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string

	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	RedisAddr string
	RedisPass string
	RedisDB   int

	IdempTTLSecs int

	// Chain gateway: where ledger operations are submitted and read back.
	LedgerGatewayURL    string
	LedgerSubmitTimeout time.Duration

	// Reconciliation prober schedule.
	ProbeInterval time.Duration
	ProbeWorkers  int
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	c := &Config{
		AppPort:   getenv("APP_PORT", "8080"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "lendsmart"),
		MySQLUser: getenv("MYSQL_USER", "lendsmart"),
		MySQLPass: getenv("MYSQL_PASS", "lendsmart"),

		RedisAddr:    getenv("REDIS_ADDR", "redis:6379"),
		RedisPass:    getenv("REDIS_PASS", ""),
		RedisDB:      getint("REDIS_DB", 0),
		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		LedgerGatewayURL:    getenv("LEDGER_GATEWAY_URL", "http://chain-gateway:8545"),
		LedgerSubmitTimeout: time.Duration(getint("LEDGER_SUBMIT_TIMEOUT_SECONDS", 30)) * time.Second,

		ProbeInterval: time.Duration(getint("PROBE_INTERVAL_SECONDS", 60)) * time.Second,
		ProbeWorkers:  getint("PROBE_WORKERS", 4),
	}
	return c
}

func (c *Config) Validate() error {
	if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
		return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
	}
	// ensure port is valid
	if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
		return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.LedgerGatewayURL == "" {
		return errors.New("missing LEDGER_GATEWAY_URL")
	}
	if c.LedgerSubmitTimeout <= 0 {
		return errors.New("LEDGER_SUBMIT_TIMEOUT_SECONDS must be positive")
	}
	if c.ProbeInterval <= 0 {
		return errors.New("PROBE_INTERVAL_SECONDS must be positive")
	}
	return nil
}

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}
