package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTIssuer       string
	JWTSecret       string
	JWTTTL          time.Duration
	InternalToken   string
	WebSocketOrigin string

	OrderExecutionDelay time.Duration
	OrderWorker         WorkerConfig
	PnLWorker           PnLWorkerConfig
}

type WorkerConfig struct {
	Interval   time.Duration
	BatchLimit int
}

type PnLWorkerConfig struct {
	Interval        time.Duration
	BatchLimit      int
	UpdateThreshold string
}

// Load reads the API server configuration from the environment.
func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTIssuer = os.Getenv("JWT_ISSUER")
	if c.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	jwtTTL := os.Getenv("JWT_TTL")
	if jwtTTL == "" {
		missing = append(missing, "JWT_TTL")
	} else {
		d, err := time.ParseDuration(jwtTTL)
		if err != nil {
			return c, err
		}
		c.JWTTTL = d
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	delay, err := LoadExecutionDelay()
	if err != nil {
		return c, err
	}
	c.OrderExecutionDelay = delay
	c.OrderWorker, err = LoadOrderWorker()
	if err != nil {
		return c, err
	}
	c.PnLWorker, err = LoadPnLWorker()
	if err != nil {
		return c, err
	}
	if len(missing) > 0 {
		return c, errors.New("missing required env: " + join(missing))
	}
	return c, nil
}

// DSN reads the database connection string, the one setting every process
// needs.
func DSN() (string, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return "", errors.New("missing required env: DB_DSN")
	}
	return dsn, nil
}

// LoadExecutionDelay reads the simulated exchange round-trip delay applied
// between order placement and execution.
func LoadExecutionDelay() (time.Duration, error) {
	return millis("ORDER_EXECUTION_DELAY_MS", 3000)
}

// LoadOrderWorker reads the execution worker tunables. Used standalone by
// cmd/orderworker so the worker process never depends on API-only settings.
func LoadOrderWorker() (WorkerConfig, error) {
	var w WorkerConfig
	interval, err := millis("ORDER_WORKER_INTERVAL_MS", 750)
	if err != nil {
		return w, err
	}
	w.Interval = interval
	w.BatchLimit, err = integer("ORDER_WORKER_BATCH_LIMIT", 50)
	if err != nil {
		return w, err
	}
	return w, nil
}

// LoadPnLWorker reads the mark-to-market worker tunables.
func LoadPnLWorker() (PnLWorkerConfig, error) {
	var w PnLWorkerConfig
	interval, err := millis("POSITION_PNL_WORKER_INTERVAL_MS", 3000)
	if err != nil {
		return w, err
	}
	w.Interval = interval
	w.BatchLimit, err = integer("POSITION_PNL_WORKER_BATCH_LIMIT", 500)
	if err != nil {
		return w, err
	}
	w.UpdateThreshold = os.Getenv("POSITION_PNL_UPDATE_THRESHOLD")
	if w.UpdateThreshold == "" {
		w.UpdateThreshold = "0.05"
	}
	return w, nil
}

func millis(key string, def int64) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(def) * time.Millisecond, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return time.Duration(v) * time.Millisecond, nil
}

func integer(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func join(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for i := 1; i < len(items); i++ {
		out += "," + items[i]
	}
	return out
}
