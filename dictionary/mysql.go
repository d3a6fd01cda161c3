package dictionary

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hatlonely/tablekit/meta"
	"github.com/hatlonely/tablekit/query"
	"github.com/pkg/errors"
)

type mysqlDialect struct {
	engine string
}

func (*mysqlDialect) name() string { return "mysql" }

func (*mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (*mysqlDialect) defaultDatabase(ctx context.Context, db queryer) (string, error) {
	names, err := collect(ctx, db, "SELECT IFNULL(DATABASE(), '')")
	if err != nil {
		return "", err
	}
	if len(names) == 0 || names[0] == "" {
		return "", errors.New("no database selected")
	}
	return names[0], nil
}

func (*mysqlDialect) listTables(ctx context.Context, db queryer, database string) ([]string, error) {
	return collect(ctx, db,
		"SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME",
		database,
	)
}

const (
	mysqlColumnsQuery = "SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_KEY, EXTRA, CHARACTER_SET_NAME " +
		"FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"
	mysqlIndexesQuery = "SELECT INDEX_NAME, NON_UNIQUE, COLUMN_NAME " +
		"FROM information_schema.STATISTICS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY INDEX_NAME = 'PRIMARY' DESC, INDEX_NAME, SEQ_IN_INDEX"
	mysqlForeignKeysQuery = "SELECT CONSTRAINT_NAME, COLUMN_NAME, REFERENCED_TABLE_SCHEMA, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME " +
		"FROM information_schema.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND REFERENCED_TABLE_NAME IS NOT NULL " +
		"ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION"
)

func (d *mysqlDialect) describe(ctx context.Context, db queryer, database, table string) (*tableDescription, error) {
	desc := &tableDescription{}
	if err := d.describeColumns(ctx, db, database, table, desc); err != nil {
		return nil, err
	}
	if len(desc.columns) == 0 {
		return desc, nil
	}
	if err := d.describeIndexes(ctx, db, database, table, desc); err != nil {
		return nil, err
	}
	if err := d.describeForeignKeys(ctx, db, database, table, desc); err != nil {
		return nil, err
	}
	return desc, nil
}

func (*mysqlDialect) describeColumns(ctx context.Context, db queryer, database, table string, desc *tableDescription) error {
	rows, err := db.QueryContext(ctx, mysqlColumnsQuery, database, table)
	if err != nil {
		return errors.Wrap(err, "query information_schema.COLUMNS failed")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, typ, nullable, key, extra string
			dflt, charset                   sql.NullString
		)
		if err := rows.Scan(&name, &typ, &nullable, &dflt, &key, &extra, &charset); err != nil {
			return errors.Wrap(err, "rows.Scan failed")
		}
		c := meta.NewColumn(name, typ)
		c.IsNullable = nullable == "YES"
		c.IsAutoincrement = strings.Contains(strings.ToLower(extra), "auto_increment")
		c.CharsetName = charset.String
		if dflt.Valid {
			c.HasDefault = true
			c.DefaultValue = dflt.String
		}
		desc.columns = append(desc.columns, c)
	}
	return errors.Wrap(rows.Err(), "rows.Err")
}

func (*mysqlDialect) describeIndexes(ctx context.Context, db queryer, database, table string, desc *tableDescription) error {
	rows, err := db.QueryContext(ctx, mysqlIndexesQuery, database, table)
	if err != nil {
		return errors.Wrap(err, "query information_schema.STATISTICS failed")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name      string
			nonUnique bool
			column    sql.NullString
		)
		if err := rows.Scan(&name, &nonUnique, &column); err != nil {
			return errors.Wrap(err, "rows.Scan failed")
		}
		// 函数索引没有列名
		if !column.Valid {
			continue
		}
		if name == "PRIMARY" {
			desc.primaryKey = append(desc.primaryKey, column.String)
			continue
		}
		desc.addIndexColumn(name, !nonUnique, column.String)
	}
	return errors.Wrap(rows.Err(), "rows.Err")
}

func (*mysqlDialect) describeForeignKeys(ctx context.Context, db queryer, database, table string, desc *tableDescription) error {
	rows, err := db.QueryContext(ctx, mysqlForeignKeysQuery, database, table)
	if err != nil {
		return errors.Wrap(err, "query information_schema.KEY_COLUMN_USAGE failed")
	}
	defer rows.Close()

	byName := map[string]*meta.ForeignKeyMetadata{}
	for rows.Next() {
		var name, column, targetDatabase, targetTable, targetColumn string
		if err := rows.Scan(&name, &column, &targetDatabase, &targetTable, &targetColumn); err != nil {
			return errors.Wrap(err, "rows.Scan failed")
		}
		fk, ok := byName[name]
		if !ok {
			fk = &meta.ForeignKeyMetadata{Name: name, TargetDatabase: targetDatabase, TargetTable: targetTable}
			byName[name] = fk
			desc.foreignKeys = append(desc.foreignKeys, fk)
		}
		fk.ColumnNames = append(fk.ColumnNames, column)
		fk.TargetColumnNames = append(fk.TargetColumnNames, targetColumn)
	}
	return errors.Wrap(rows.Err(), "rows.Err")
}

func (d *mysqlDialect) createTable(table *meta.TableMetadata) ([]string, error) {
	var defs []string
	for _, c := range table.Columns {
		def := d.quote(c.Name) + " " + mysqlColumnType(c)
		if !c.IsNullable {
			def += " NOT NULL"
		}
		if c.IsAutoincrement {
			def += " AUTO_INCREMENT"
		} else if c.HasDefault {
			literal, err := defaultLiteral(query.MySQL, c.DefaultValue)
			if err != nil {
				return nil, errors.WithMessagef(err, "default of column %s", c.Name)
			}
			def += " DEFAULT " + literal
		}
		if c.CharsetName != "" && c.Length > 0 && !c.IsBinary {
			def += " CHARACTER SET " + c.CharsetName
		}
		defs = append(defs, def)
	}
	defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", d.columnList(table, table.PrimaryKey().ColumnNumbers)))
	for _, idx := range secondaryIndexes(table) {
		kind := "KEY"
		if idx.IsUnique {
			kind = "UNIQUE KEY"
		}
		defs = append(defs, fmt.Sprintf("%s %s (%s)", kind, d.quote(idx.Name), d.columnList(table, idx.ColumnNumbers)))
	}
	for _, fk := range table.ForeignKeys {
		target := d.quote(fk.TargetTable)
		if fk.TargetDatabase != "" {
			target = d.quote(fk.TargetDatabase) + "." + target
		}
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.quote(fk.Name), d.names(fk.ColumnNames), target, d.names(fk.TargetColumnNames)))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.tableName(table.Database, table.Name), strings.Join(defs, ",\n  "))
	if d.engine != "" {
		stmt += " ENGINE=" + d.engine
	}
	return []string{stmt}, nil
}

func (d *mysqlDialect) dropTable(database, table string) string {
	return "DROP TABLE IF EXISTS " + d.tableName(database, table)
}

func (d *mysqlDialect) tableName(database, table string) string {
	if database == "" {
		return d.quote(table)
	}
	return d.quote(database) + "." + d.quote(table)
}

func (d *mysqlDialect) columnList(table *meta.TableMetadata, numbers []int) string {
	names := make([]string, len(numbers))
	for i, n := range numbers {
		names[i] = table.Columns[n].Name
	}
	return d.names(names)
}

func (d *mysqlDialect) names(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.quote(n)
	}
	return strings.Join(quoted, ",")
}

func mysqlColumnType(c *meta.ColumnMetadata) string {
	if c.ColumnType == "" {
		return "VARCHAR(255)"
	}
	return c.ColumnType
}
