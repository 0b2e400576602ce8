package app

import "time"

// Store backend names accepted by PODIUM_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// PublicKeyFile and PublicKeyPEM configure token verification; at least
	// one must be set or the server refuses to start.
	PublicKeyFile string
	PublicKeyPEM  string

	// StoreBackend selects the IndexedStore implementation at startup.
	// Swapping backends is a deploy-time decision, never a runtime mutation.
	StoreBackend string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	SQLitePath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("PODIUM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("PODIUM_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("PODIUM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("PODIUM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("PODIUM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("PODIUM_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("PODIUM_HTTP_MAX_HEADER_BYTES", 1<<20),

		PublicKeyFile: EnvString("PODIUM_PUBLIC_KEY_FILE", ""),
		PublicKeyPEM:  EnvString("PODIUM_PUBLIC_KEY", ""),

		StoreBackend: EnvString("PODIUM_STORE", StoreMemory),

		DatabaseURL: EnvString("PODIUM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("PODIUM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("PODIUM_DB_MIN_CONNS", 0),

		SQLitePath: EnvString("PODIUM_SQLITE_PATH", "podium.db"),

		RedisAddr:     EnvString("PODIUM_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: EnvString("PODIUM_REDIS_PASSWORD", ""),
		RedisDB:       int(EnvInt32("PODIUM_REDIS_DB", 0)),
	}
}
