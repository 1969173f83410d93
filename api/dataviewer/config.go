// //////////////////////////////////////////////////////////
//
// Description:
// Configuration of the dataviewer service. Values come from a TOML
// file (DATAVIEWER_CONFIG or --config), overridden by DATAVIEWER_*
// environment variables. The database password is only read from the
// environment.
// //////////////////////////////////////////////////////////
package dataviewer

import (
	"fmt"
	"os"
	"strings"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/ApiUtils"
	"github.com/chendingplano/dataviewer/api/databaseutil"
	"github.com/chendingplano/dataviewer/api/query"
	"github.com/chendingplano/dataviewer/api/sysdatastores"
	"github.com/spf13/viper"
)

// Location codes for config operations
const (
	LOC_CFG_LOAD  = "DVW_CFG_001"
	LOC_CFG_VALID = "DVW_CFG_002"
	LOC_CFG_PATH  = "DVW_CFG_003"
)

const ConfigEnvVar = "DATAVIEWER_CONFIG"

type Config struct {
	Server      ApiTypes.ServerConfig           `mapstructure:"server"`
	Database    ApiTypes.DBConfig               `mapstructure:"database"`
	Tables      ApiTypes.WarehouseTables        `mapstructure:"tables"`
	Query       query.Config                    `mapstructure:"query"`
	Log         ApiTypes.ProcLogDef             `mapstructure:"log"`
	ActivityLog sysdatastores.ActivityLogConfig `mapstructure:"activity_log"`

	// ConfigFile is the file the config was read from, empty when the
	// config came from defaults and the environment only.
	ConfigFile string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/dataviewer/api")
	v.SetDefault("server.request_timeout_sec", 30)
	v.SetDefault("server.shutdown_timeout_sec", 10)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.strict_ids", false)

	v.SetDefault("database.db_type", ApiTypes.PgName)
	v.SetDefault("database.pg_driver", ApiTypes.PGDriverPQ)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user_name", "")
	v.SetDefault("database.db_name", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime_sec", 300)

	tables := ApiTypes.DefaultWarehouseTables()
	v.SetDefault("tables.categories", tables.Categories)
	v.SetDefault("tables.subcategories", tables.Subcategories)
	v.SetDefault("tables.datasets", tables.Datasets)
	v.SetDefault("tables.variables", tables.Variables)
	v.SetDefault("tables.entities", tables.Entities)
	v.SetDefault("tables.data_values", tables.DataValues)

	v.SetDefault("query.max_filter_size", query.DefaultMaxFilterSize)

	v.SetDefault("log.format", ApiTypes.LogFormatPretty)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_in_mb", 500)
	v.SetDefault("log.num_log_files", 20)
	v.SetDefault("log.max_age_in_days", 20)
	v.SetDefault("log.compress", false)

	v.SetDefault("activity_log.enabled", false)
	v.SetDefault("activity_log.table_name", sysdatastores.DefaultActivityLogTable)
	v.SetDefault("activity_log.flush_interval_sec", 10)
	v.SetDefault("activity_log.max_buffered", 10000)
}

// LoadConfig reads the config file at path, or at $DATAVIEWER_CONFIG when
// path is empty. With neither set, defaults and the environment are used.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		configPath, err := ApiUtils.ExpandPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w (%s)", err, LOC_CFG_PATH)
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (%s)", configPath, LOC_CFG_LOAD)
		}

		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w (%s)", configPath, err, LOC_CFG_LOAD)
		}
		path = configPath
	}

	// DATAVIEWER_SERVER_PORT overrides server.port, and so on.
	v.SetEnvPrefix("DATAVIEWER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w (%s)", err, LOC_CFG_LOAD)
	}
	config.ConfigFile = path
	config.Database.Password = passwordFromEnv(config.Database.DBType)
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// passwordFromEnv checks DB_PASSWORD first, then the backend's own
// variable.
func passwordFromEnv(db_type string) string {
	if pwd := os.Getenv("DB_PASSWORD"); pwd != "" {
		return pwd
	}
	switch db_type {
	case ApiTypes.PgName:
		return os.Getenv("PG_PASSWORD")
	case ApiTypes.MysqlName:
		return os.Getenv("MYSQL_PASSWORD")
	}
	return ""
}

func (c *Config) applyDefaults() {
	if c.Database.Port == 0 {
		switch c.Database.DBType {
		case ApiTypes.PgName:
			c.Database.Port = 5432
		case ApiTypes.MysqlName:
			c.Database.Port = 3306
		}
	}
	if c.Query.MaxFilterSize <= 0 {
		c.Query.MaxFilterSize = query.DefaultMaxFilterSize
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d (%s)", c.Server.Port, LOC_CFG_VALID)
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/': %q (%s)", c.Server.BasePath, LOC_CFG_VALID)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative (%s)", LOC_CFG_VALID)
	}

	if !ApiTypes.IsValidDBType(c.Database.DBType) {
		return fmt.Errorf("database.db_type not supported: %q (%s)", c.Database.DBType, LOC_CFG_VALID)
	}
	if c.Database.DBType == ApiTypes.SqliteName {
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for sqlite (%s)", LOC_CFG_VALID)
		}
	} else if c.Database.DbName == "" {
		return fmt.Errorf("database.db_name is required (%s)", LOC_CFG_VALID)
	}
	if err := databaseutil.ValidateTables(c.Tables); err != nil {
		return fmt.Errorf("%w (%s)", err, LOC_CFG_VALID)
	}

	switch c.Log.Format {
	case ApiTypes.LogFormatPretty, ApiTypes.LogFormatJSON, ApiTypes.LogFormatText:
	default:
		return fmt.Errorf("log.format not supported: %q (%s)", c.Log.Format, LOC_CFG_VALID)
	}

	if c.ActivityLog.Enabled && !databaseutil.IsValidTableName(c.ActivityLog.TableName) {
		return fmt.Errorf("activity_log.table_name invalid: %q (%s)", c.ActivityLog.TableName, LOC_CFG_VALID)
	}
	return nil
}
