package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	MQTTBroker      string
	MQTTPort        int
	MQTTClientID    string
	MQTTTopicPrefix string

	BLEEnabled bool
	BLEAdapter string

	// DeviceStationID is the station id for CozyTime devices missing from Stations.
	DeviceStationID string
	// Stations maps upper-case BLE addresses to station ids (COZYTIME_STATIONS).
	Stations           map[string]string
	PublishMinInterval time.Duration
	HealthInterval     time.Duration
	StaleAfter         time.Duration

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLiteLogQueries      bool

	ReferenceSensorEnabled bool
	BME280Address          uint16
	SensorPollInterval     time.Duration
	ReferenceStationID     string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("MQTT_PORT out of range: %d", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "cozytime-bridge-" + uuid.NewString()[:8]
	}

	topicPrefix := strings.Trim(envOr("MQTT_TOPIC_PREFIX", "stations"), "/")
	if topicPrefix == "" || strings.ContainsAny(topicPrefix, "+#") {
		return Config{}, fmt.Errorf("invalid MQTT_TOPIC_PREFIX %q", os.Getenv("MQTT_TOPIC_PREFIX"))
	}

	bleEnabled, err := parseBool("BLE_ENABLED", "true")
	if err != nil {
		return Config{}, err
	}

	stations, err := ParseStations(os.Getenv("COZYTIME_STATIONS"))
	if err != nil {
		return Config{}, err
	}

	publishMinInterval, err := parseDuration("PUBLISH_MIN_INTERVAL", "30s", true)
	if err != nil {
		return Config{}, err
	}
	healthInterval, err := parseDuration("HEALTH_INTERVAL", "60s", false)
	if err != nil {
		return Config{}, err
	}
	staleAfter, err := parseDuration("STALE_AFTER", "5m", false)
	if err != nil {
		return Config{}, err
	}

	maxOpenConns, err := parseInt("DB_MAX_OPEN_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := parseInt("DB_MAX_IDLE_CONNS", "1")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := parseDuration("DB_CONN_MAX_LIFETIME", "0s", true)
	if err != nil {
		return Config{}, err
	}
	logQueries, err := parseBool("DB_LOG_SQL", "false")
	if err != nil {
		return Config{}, err
	}

	refEnabled, err := parseBool("REFERENCE_SENSOR_ENABLED", "false")
	if err != nil {
		return Config{}, err
	}
	bme280AddressStr := envOr("BME280_ADDRESS", "0x76")
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, fmt.Errorf("invalid BME280_ADDRESS %q: %w", bme280AddressStr, err)
	}
	sensorPollInterval, err := parseDuration("SENSOR_POLL_INTERVAL", "30s", false)
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),

		MQTTBroker:      envOr("MQTT_BROKER", "localhost"),
		MQTTPort:        mqttPort,
		MQTTClientID:    mqttClientID,
		MQTTTopicPrefix: topicPrefix,

		BLEEnabled: bleEnabled,
		BLEAdapter: envOr("BLE_ADAPTER", "hci0"),

		DeviceStationID:    envOr("DEVICE_STATION_ID", "cozytime"),
		Stations:           stations,
		PublishMinInterval: publishMinInterval,
		HealthInterval:     healthInterval,
		StaleAfter:         staleAfter,

		SQLiteDriver:          envOr("DB_DRIVER", "sqlite3"),
		SQLiteDSN:             strings.TrimSpace(os.Getenv("DB_DSN")),
		SQLitePath:            envOr("SQLITE_PATH", "data/cozytime.db"),
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLiteLogQueries:      logQueries,

		ReferenceSensorEnabled: refEnabled,
		BME280Address:          uint16(bme280Address),
		SensorPollInterval:     sensorPollInterval,
		ReferenceStationID:     envOr("REFERENCE_STATION_ID", "gateway"),
	}, nil
}

// ParseStations parses "AA:BB:CC:DD:EE:FF=bedroom,11:22:33:44:55:66=attic".
// Addresses are upper-cased.
func ParseStations(s string) (map[string]string, error) {
	out := make(map[string]string)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		addr, station, ok := strings.Cut(pair, "=")
		addr = strings.ToUpper(strings.TrimSpace(addr))
		station = strings.TrimSpace(station)
		if !ok || addr == "" || station == "" {
			return nil, fmt.Errorf("invalid COZYTIME_STATIONS entry %q (want address=station)", pair)
		}
		if strings.ContainsAny(station, "/+#") {
			return nil, fmt.Errorf("invalid station id %q in COZYTIME_STATIONS", station)
		}
		if _, dup := out[addr]; dup {
			return nil, fmt.Errorf("duplicate address %q in COZYTIME_STATIONS", addr)
		}
		out[addr] = station
	}
	return out, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseInt(key, def string) (int, error) {
	s := envOr(key, def)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func parseBool(key, def string) (bool, error) {
	s := envOr(key, def)
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return b, nil
}

func parseDuration(key, def string, allowZero bool) (time.Duration, error) {
	s := envOr(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
