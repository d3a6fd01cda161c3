package dictionary

import (
	"context"
	"database/sql"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/tablekit/log"
	"github.com/hatlonely/tablekit/meta"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLDictionaryOptions struct {
	Driver string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3"`
	// 设置后忽略下面的连接参数
	DSN string `cfg:"dsn"`

	Host     string `cfg:"host" def:"localhost"`
	Port     int    `cfg:"port" def:"3306"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`

	MaxOpenConns    int           `cfg:"maxOpenConns" def:"10"`
	MaxIdleConns    int           `cfg:"maxIdleConns" def:"2"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"1h"`

	// mysql 建表使用的存储引擎
	StorageEngine string `cfg:"storageEngine" def:"InnoDB"`
}

// dialect 不同数据库的数据字典查询
type dialect interface {
	name() string
	quote(ident string) string
	defaultDatabase(ctx context.Context, db queryer) (string, error)
	listTables(ctx context.Context, db queryer, database string) ([]string, error)
	describe(ctx context.Context, db queryer, database, table string) (*tableDescription, error)
	createTable(table *meta.TableMetadata) ([]string, error)
	dropTable(database, table string) string
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLDictionary 通过 database/sql 读取 information_schema 或 sqlite PRAGMA
type SQLDictionary struct {
	db      *sql.DB
	dialect dialect
	logger  log.Logger
	owned   bool
}

type SQLOption func(*SQLDictionary)

func WithSQLLogger(logger log.Logger) SQLOption {
	return func(d *SQLDictionary) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// FormatDSN 根据配置生成连接串，mysql 使用 mysql.Config 拼装
func (o *SQLDictionaryOptions) FormatDSN() (string, error) {
	if o.DSN != "" {
		return o.DSN, nil
	}
	switch o.Driver {
	case "mysql":
		cfg := mysql.NewConfig()
		cfg.User = o.Username
		cfg.Passwd = o.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
		cfg.DBName = o.Database
		cfg.ParseTime = true
		cfg.Loc = time.Local
		if o.Charset != "" {
			cfg.Params = map[string]string{"charset": o.Charset}
		}
		return cfg.FormatDSN(), nil
	case "sqlite3":
		if o.Database == "" {
			return ":memory:", nil
		}
		return o.Database, nil
	}
	return "", errors.Errorf("unsupported driver: %s", o.Driver)
}

func NewSQLDictionaryWithOptions(options *SQLDictionaryOptions, opts ...SQLOption) (*SQLDictionary, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	dsn, err := options.FormatDSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open failed. driver: %s", options.Driver)
	}
	maxOpen := options.MaxOpenConns
	// 内存库每个连接都是独立的数据库
	if options.Driver == "sqlite3" && strings.Contains(dsn, ":memory:") {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(options.MaxIdleConns)
	db.SetConnMaxLifetime(options.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db.Ping failed")
	}

	d, err := NewSQLDictionary(db, options.Driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if my, ok := d.dialect.(*mysqlDialect); ok && options.StorageEngine != "" {
		my.engine = options.StorageEngine
	}
	d.owned = true
	return d, nil
}

// NewSQLDictionary 使用已有连接，Close 不会关闭 db
func NewSQLDictionary(db *sql.DB, driver string, opts ...SQLOption) (*SQLDictionary, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	var dl dialect
	switch driver {
	case "mysql":
		dl = &mysqlDialect{engine: "InnoDB"}
	case "sqlite3", "sqlite":
		dl = sqliteDialect{}
	default:
		return nil, errors.Errorf("unsupported driver: %s", driver)
	}
	d := &SQLDictionary{db: db, dialect: dl, logger: log.Default()}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("dictionary", dl.name())
	return d, nil
}

func (d *SQLDictionary) DB() *sql.DB {
	return d.db
}

func (d *SQLDictionary) database(ctx context.Context, database string) (string, error) {
	if database != "" {
		return database, nil
	}
	name, err := d.dialect.defaultDatabase(ctx, d.db)
	if err != nil {
		return "", errors.WithMessage(err, "resolve default database failed")
	}
	return name, nil
}

func (d *SQLDictionary) ListTables(ctx context.Context, database string) ([]string, error) {
	database, err := d.database(ctx, database)
	if err != nil {
		return nil, err
	}
	tables, err := d.dialect.listTables(ctx, d.db, database)
	if err != nil {
		return nil, errors.WithMessagef(err, "list tables of %s failed", database)
	}
	d.logger.DebugContext(ctx, "list tables", "database", database, "count", len(tables))
	return tables, nil
}

func (d *SQLDictionary) GetTableMetadata(ctx context.Context, database, table string) (*meta.TableMetadata, error) {
	database, err := d.database(ctx, database)
	if err != nil {
		return nil, err
	}
	desc, err := d.dialect.describe(ctx, d.db, database, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "describe %s failed", qualifiedName(database, table))
	}
	tm, err := desc.build(database, table)
	if err != nil {
		return nil, err
	}
	d.logger.DebugContext(ctx, "table metadata loaded",
		"table", tm.QualifiedName(),
		"columns", len(tm.Columns),
		"indexes", len(tm.Indexes),
	)
	return tm, nil
}

// CreateTable 按元数据建表，表已存在时不做任何事
func (d *SQLDictionary) CreateTable(ctx context.Context, table *meta.TableMetadata) error {
	if table == nil {
		return errors.New("table cannot be nil")
	}
	if err := table.Validate(); err != nil {
		return err
	}
	stmts, err := d.dialect.createTable(table)
	if err != nil {
		return errors.WithMessagef(err, "create table %s failed", table.QualifiedName())
	}
	for _, stmt := range stmts {
		d.logger.DebugContext(ctx, "create table", "sql", stmt)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "create table %s failed", table.QualifiedName())
		}
	}
	return nil
}

func (d *SQLDictionary) DropTable(ctx context.Context, database, table string) error {
	stmt := d.dialect.dropTable(database, table)
	d.logger.DebugContext(ctx, "drop table", "sql", stmt)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrapf(err, "drop table %s failed", qualifiedName(database, table))
	}
	return nil
}

func (d *SQLDictionary) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}

// collect 读取单列字符串结果
func collect(ctx context.Context, db queryer, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "db.QueryContext failed")
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}
		result = append(result, s)
	}
	return result, errors.Wrap(rows.Err(), "rows.Err")
}
