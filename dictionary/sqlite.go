package dictionary

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/hatlonely/tablekit/meta"
	"github.com/hatlonely/tablekit/query"
	"github.com/pkg/errors"
)

type sqliteDialect struct{}

func (sqliteDialect) name() string { return "sqlite3" }

func (sqliteDialect) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (sqliteDialect) defaultDatabase(ctx context.Context, db queryer) (string, error) {
	return "main", nil
}

func (s sqliteDialect) listTables(ctx context.Context, db queryer, database string) ([]string, error) {
	return collect(ctx, db, fmt.Sprintf(
		"SELECT name FROM %s.sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name",
		s.quote(database),
	))
}

func (s sqliteDialect) describe(ctx context.Context, db queryer, database, table string) (*tableDescription, error) {
	desc := &tableDescription{}
	if err := s.describeColumns(ctx, db, database, table, desc); err != nil {
		return nil, err
	}
	if len(desc.columns) == 0 {
		return desc, nil
	}
	if err := s.describeIndexes(ctx, db, database, table, desc); err != nil {
		return nil, err
	}
	if err := s.describeForeignKeys(ctx, db, database, table, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func (sqliteDialect) describeColumns(ctx context.Context, db queryer, database, table string, desc *tableDescription) error {
	rows, err := db.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?, ?) ORDER BY cid`,
		table, database,
	)
	if err != nil {
		return errors.Wrap(err, "query table_info failed")
	}
	defer rows.Close()

	type pkColumn struct {
		name string
		pos  int
	}
	var pks []pkColumn
	for rows.Next() {
		var (
			name, typ string
			notNull   bool
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&name, &typ, &notNull, &dflt, &pk); err != nil {
			return errors.Wrap(err, "rows.Scan failed")
		}
		c := meta.NewColumn(name, typ)
		c.IsNullable = !notNull
		if dflt.Valid {
			c.HasDefault = true
			c.DefaultValue = dflt.String
		}
		desc.columns = append(desc.columns, c)
		if pk > 0 {
			pks = append(pks, pkColumn{name: name, pos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "rows.Err")
	}

	sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })
	for _, pk := range pks {
		desc.primaryKey = append(desc.primaryKey, pk.name)
	}
	// INTEGER PRIMARY KEY 是 rowid 的别名，插入时自动分配
	if len(pks) == 1 {
		for _, c := range desc.columns {
			if c.Name == pks[0].name && strings.EqualFold(c.ColumnType, "INTEGER") {
				c.IsAutoincrement = true
			}
		}
	}
	return nil
}

func (sqliteDialect) describeIndexes(ctx context.Context, db queryer, database, table string, desc *tableDescription) error {
	rows, err := db.QueryContext(ctx,
		`SELECT name, "unique", origin FROM pragma_index_list(?, ?) ORDER BY name`,
		table, database,
	)
	if err != nil {
		return errors.Wrap(err, "query index_list failed")
	}
	type index struct {
		name   string
		unique bool
	}
	var indexes []index
	for rows.Next() {
		var (
			name, origin string
			unique       bool
		)
		if err := rows.Scan(&name, &unique, &origin); err != nil {
			rows.Close()
			return errors.Wrap(err, "rows.Scan failed")
		}
		// 主键已经单独处理
		if origin == "pk" {
			continue
		}
		indexes = append(indexes, index{name: name, unique: unique})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "rows.Err")
	}

	// 内存库只有一个连接，必须先关闭上一个结果集
	for _, idx := range indexes {
		columns, err := collect(ctx, db,
			`SELECT name FROM pragma_index_info(?, ?) ORDER BY seqno`,
			idx.name, database,
		)
		if err != nil {
			return errors.WithMessagef(err, "query index_info of %s failed", idx.name)
		}
		desc.indexes = append(desc.indexes, indexDescription{name: idx.name, unique: idx.unique, columns: columns})
	}
	return nil
}

func (sqliteDialect) describeForeignKeys(ctx context.Context, db queryer, database, table string, desc *tableDescription) error {
	rows, err := db.QueryContext(ctx,
		`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?, ?) ORDER BY id, seq`,
		table, database,
	)
	if err != nil {
		return errors.Wrap(err, "query foreign_key_list failed")
	}
	defer rows.Close()

	byID := map[int]*meta.ForeignKeyMetadata{}
	for rows.Next() {
		var (
			id     int
			target string
			from   string
			to     sql.NullString
		)
		if err := rows.Scan(&id, &target, &from, &to); err != nil {
			return errors.Wrap(err, "rows.Scan failed")
		}
		fk, ok := byID[id]
		if !ok {
			fk = &meta.ForeignKeyMetadata{
				Name:           fmt.Sprintf("fk_%s_%d", table, id),
				TargetDatabase: database,
				TargetTable:    target,
			}
			byID[id] = fk
			desc.foreignKeys = append(desc.foreignKeys, fk)
		}
		fk.ColumnNames = append(fk.ColumnNames, from)
		// 省略目标列时引用目标表主键，留空由调用方解析
		fk.TargetColumnNames = append(fk.TargetColumnNames, to.String)
	}
	return errors.Wrap(rows.Err(), "rows.Err")
}

func (s sqliteDialect) createTable(table *meta.TableMetadata) ([]string, error) {
	pk := table.PrimaryKey()
	// 单列整型自增主键只能内联声明
	inlinePK := len(pk.ColumnNumbers) == 1 && table.Columns[pk.ColumnNumbers[0]].IsAutoincrement

	var defs []string
	for _, c := range table.Columns {
		def := s.quote(c.Name) + " " + sqliteColumnType(c)
		if inlinePK && c.ColumnNumber == pk.ColumnNumbers[0] {
			def += " PRIMARY KEY AUTOINCREMENT"
		} else if !c.IsNullable {
			def += " NOT NULL"
		}
		if c.HasDefault {
			literal, err := defaultLiteral(query.ANSI, c.DefaultValue)
			if err != nil {
				return nil, errors.WithMessagef(err, "default of column %s", c.Name)
			}
			def += " DEFAULT " + literal
		}
		defs = append(defs, def)
	}
	if !inlinePK {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", s.columnList(table, pk.ColumnNumbers)))
	}
	for _, fk := range table.ForeignKeys {
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			s.names(fk.ColumnNames), s.quote(fk.TargetTable), s.names(fk.TargetColumnNames)))
	}

	schema := table.Database
	if schema == "" {
		schema = "main"
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (\n  %s\n)",
		s.quote(schema), s.quote(table.Name), strings.Join(defs, ",\n  "))}

	for _, idx := range secondaryIndexes(table) {
		kind := "INDEX"
		if idx.IsUnique {
			kind = "UNIQUE INDEX"
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s IF NOT EXISTS %s.%s ON %s (%s)",
			kind, s.quote(schema), s.quote(idx.Name), s.quote(table.Name), s.columnList(table, idx.ColumnNumbers)))
	}
	return stmts, nil
}

func (s sqliteDialect) dropTable(database, table string) string {
	if database == "" {
		database = "main"
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s.%s", s.quote(database), s.quote(table))
}

func (s sqliteDialect) columnList(table *meta.TableMetadata, numbers []int) string {
	names := make([]string, len(numbers))
	for i, n := range numbers {
		names[i] = table.Columns[n].Name
	}
	return s.names(names)
}

func (s sqliteDialect) names(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = s.quote(n)
	}
	return strings.Join(quoted, ", ")
}

// sqliteColumnType 自增主键必须声明为 INTEGER
func sqliteColumnType(c *meta.ColumnMetadata) string {
	if c.IsAutoincrement {
		return "INTEGER"
	}
	if c.ColumnType == "" {
		return "BLOB"
	}
	return c.ColumnType
}
