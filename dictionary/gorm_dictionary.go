package dictionary

import (
	"context"
	"strings"

	"github.com/hatlonely/tablekit/log"
	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type GormDictionaryOptions struct {
	Driver   string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite"`
	DSN      string `cfg:"dsn" validate:"required"`
	LogLevel string `cfg:"logLevel" def:"silent" validate:"omitempty,oneof=silent error warn info"`
}

// GormDictionary 基于 gorm Migrator 的数据字典，只能访问连接的当前库，不读取外键
type GormDictionary struct {
	db     *gorm.DB
	logger log.Logger
}

func NewGormDictionaryWithOptions(options *GormDictionaryOptions) (*GormDictionary, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}

	var dialector gorm.Dialector
	switch options.Driver {
	case "mysql":
		dialector = mysql.Open(options.DSN)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(options.DSN)
	default:
		return nil, errors.Errorf("unsupported driver: %s", options.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormLogLevel(options.LogLevel))})
	if err != nil {
		return nil, errors.Wrap(err, "gorm.Open failed")
	}
	if strings.Contains(options.DSN, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(err, "gorm.DB failed")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewGormDictionary(db), nil
}

func NewGormDictionary(db *gorm.DB) *GormDictionary {
	return &GormDictionary{db: db, logger: log.Default().With("dictionary", "gorm")}
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	}
	return gormlogger.Silent
}

func (d *GormDictionary) DB() *gorm.DB {
	return d.db
}

func (d *GormDictionary) migrator(ctx context.Context, database string) (gorm.Migrator, string, error) {
	m := d.db.WithContext(ctx).Migrator()
	current := m.CurrentDatabase()
	if database != "" && database != current {
		return nil, "", errors.Errorf("database %s is not the current database %s", database, current)
	}
	return m, current, nil
}

func (d *GormDictionary) ListTables(ctx context.Context, database string) ([]string, error) {
	m, _, err := d.migrator(ctx, database)
	if err != nil {
		return nil, err
	}
	tables, err := m.GetTables()
	if err != nil {
		return nil, errors.Wrap(err, "migrator.GetTables failed")
	}
	// sqlite 会列出内部表
	result := tables[:0]
	for _, t := range tables {
		if !strings.HasPrefix(t, "sqlite_") {
			result = append(result, t)
		}
	}
	return result, nil
}

func (d *GormDictionary) GetTableMetadata(ctx context.Context, database, table string) (*meta.TableMetadata, error) {
	m, current, err := d.migrator(ctx, database)
	if err != nil {
		return nil, err
	}
	if !m.HasTable(table) {
		return nil, errors.Wrapf(ErrTableNotFound, "%s", qualifiedName(current, table))
	}

	columnTypes, err := m.ColumnTypes(table)
	if err != nil {
		return nil, errors.Wrapf(err, "migrator.ColumnTypes failed. table: %s", table)
	}
	desc := &tableDescription{}
	for _, ct := range columnTypes {
		typ, ok := ct.ColumnType()
		if !ok || typ == "" {
			typ = ct.DatabaseTypeName()
		}
		c := meta.NewColumn(ct.Name(), typ)
		if nullable, ok := ct.Nullable(); ok {
			c.IsNullable = nullable
		}
		if autoIncrement, ok := ct.AutoIncrement(); ok {
			c.IsAutoincrement = autoIncrement
		}
		if dflt, ok := ct.DefaultValue(); ok {
			c.HasDefault = true
			c.DefaultValue = dflt
		}
		desc.columns = append(desc.columns, c)
		if pk, ok := ct.PrimaryKey(); ok && pk {
			desc.primaryKey = append(desc.primaryKey, ct.Name())
		}
	}

	indexes, err := m.GetIndexes(table)
	if err != nil {
		return nil, errors.Wrapf(err, "migrator.GetIndexes failed. table: %s", table)
	}
	for _, idx := range indexes {
		if pk, ok := idx.PrimaryKey(); ok && pk {
			if len(desc.primaryKey) == 0 {
				desc.primaryKey = idx.Columns()
			}
			continue
		}
		unique, _ := idx.Unique()
		desc.indexes = append(desc.indexes, indexDescription{name: idx.Name(), unique: unique, columns: idx.Columns()})
	}

	tm, err := desc.build(current, table)
	if err != nil {
		return nil, err
	}
	d.logger.DebugContext(ctx, "table metadata loaded", "table", tm.QualifiedName(), "columns", len(tm.Columns))
	return tm, nil
}

// CreateTableFromModel 用 gorm 模型建表，元数据可由 meta.FromGormModel 得到
func (d *GormDictionary) CreateTableFromModel(ctx context.Context, model any) error {
	if err := d.db.WithContext(ctx).Migrator().AutoMigrate(model); err != nil {
		return errors.Wrap(err, "migrator.AutoMigrate failed")
	}
	return nil
}

func (d *GormDictionary) DropTable(ctx context.Context, database, table string) error {
	m, _, err := d.migrator(ctx, database)
	if err != nil {
		return err
	}
	return errors.Wrap(m.DropTable(table), "migrator.DropTable failed")
}

func (d *GormDictionary) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return errors.Wrap(err, "gorm.DB failed")
	}
	return sqlDB.Close()
}
