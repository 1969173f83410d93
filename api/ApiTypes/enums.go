package ApiTypes

const (
	ActivityType_DataIntegrity string = "data_integrity"
)

const (
	ActivityName_Metadata string = "metadata"
	ActivityName_Query    string = "query"
)

const (
	AppName_DataViewer string = "dataviewer"
)

const (
	ModuleName_Aggregator  string = "aggregator"
	ModuleName_QueryEngine string = "query_engine"
)

const (
	MysqlName  = "mysql"
	PgName     = "pg"
	SqliteName = "sqlite"
)

const (
	PGDriverPQ  = "postgres"
	PGDriverPGX = "pgx"
)

const (
	LogFormatPretty = "pretty"
	LogFormatJSON   = "json"
	LogFormatText   = "text"
)
