package ApiTypes

import (
	"time"
)

// RequestIDKey is the echo context key of the request id.
const RequestIDKey = "request_id"

// DBConfig describes one warehouse connection. DSN is only used by the
// sqlite backend; mysql and pg build their DSN from the other fields.
type DBConfig struct {
	DBType          string `mapstructure:"db_type"`
	PGDriver        string `mapstructure:"pg_driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	UserName        string `mapstructure:"user_name"`
	Password        string `mapstructure:"-"`
	DbName          string `mapstructure:"db_name"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_sec"`
}

func (c DBConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Second
}

// WarehouseTables holds the physical table names the stores read from.
type WarehouseTables struct {
	Categories    string `mapstructure:"categories"`
	Subcategories string `mapstructure:"subcategories"`
	Datasets      string `mapstructure:"datasets"`
	Variables     string `mapstructure:"variables"`
	Entities      string `mapstructure:"entities"`
	DataValues    string `mapstructure:"data_values"`
}

func DefaultWarehouseTables() WarehouseTables {
	return WarehouseTables{
		Categories:    "dataset_categories",
		Subcategories: "dataset_subcategories",
		Datasets:      "datasets",
		Variables:     "variables",
		Entities:      "entities",
		DataValues:    "data_values",
	}
}

// All returns the table names in a fixed order, used for validation and DDL.
func (t WarehouseTables) All() []string {
	return []string{t.Categories, t.Subcategories, t.Datasets, t.Variables, t.Entities, t.DataValues}
}

// ServerConfig is the [server] section.
type ServerConfig struct {
	Host              string   `mapstructure:"host"`
	Port              int      `mapstructure:"port"`
	BasePath          string   `mapstructure:"base_path"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec"`
	ShutdownSec       int      `mapstructure:"shutdown_timeout_sec"`
	AllowOrigins      []string `mapstructure:"allow_origins"`
	RateLimit         float64  `mapstructure:"rate_limit"`
	RateBurst         int      `mapstructure:"rate_burst"`
	StrictIDs         bool     `mapstructure:"strict_ids"`
}

func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSec) * time.Second
}

type ProcLogDef struct {
	Format          string `mapstructure:"format"`
	Level           string `mapstructure:"level"`
	FileMaxSizeInMB int    `mapstructure:"max_size_in_mb"`
	NumLogFiles     int    `mapstructure:"num_log_files"`
	MaxAgeInDays    int    `mapstructure:"max_age_in_days"`
	NeedCompress    bool   `mapstructure:"compress"`
}

type ActivityLogDef struct {
	LogID        int64   `json:"log_id"`
	ActivityName string  `json:"activity_name"`
	ActivityType string  `json:"activity_type"`
	AppName      string  `json:"app_name"`
	ModuleName   string  `json:"module_name"`
	ActivityMsg  *string `json:"activity_msg"`
	CallerLoc    string  `json:"caller_loc"`
	CreatedAt    *string `json:"created_at"`
}

func IsValidDBType(db_type string) bool {
	return db_type == MysqlName || db_type == PgName || db_type == SqliteName
}
