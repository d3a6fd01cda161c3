package query

import (
	"encoding/hex"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidLiteral 值无法表示为 SQL 字面量，例如 NaN 和 ±Inf
var ErrInvalidLiteral = errors.New("invalid sql literal")

// Dialect 决定字符串字面量的转义方式
type Dialect int

const (
	// ANSI 只加倍单引号，sqlite 使用
	ANSI Dialect = iota
	// MySQL 默认 sql_mode 下反斜杠是转义符，需要一并转义
	MySQL
)

func (d Dialect) String() string {
	if d == MySQL {
		return "mysql"
	}
	return "ansi"
}

// SQL WHERE 子句片段，FormalParameters 按 ? 出现的顺序排列
type SQL struct {
	Text             string
	FormalParameters []*Parameter
}

// EmitSQL 后序遍历生成 SQL：命名参数变成 ?，字面量按 ANSI 规则转义后内联
func EmitSQL(p Predicate) SQL {
	return ANSI.EmitSQL(p)
}

// EmitSQL 按方言转义字面量
func (d Dialect) EmitSQL(p Predicate) SQL {
	if p == nil {
		return SQL{}
	}
	e := &emitter{dialect: d}
	text := e.emit(p)
	return SQL{Text: text, FormalParameters: e.params}
}

type emitter struct {
	dialect Dialect
	params  []*Parameter
}

func (e *emitter) emit(p Predicate) string {
	switch n := p.(type) {
	case *Comparator:
		return n.Field.QualifiedColumn() + n.Op.Symbol() + e.operand(n.Operand)
	case *Between:
		lower := e.operand(n.Lower)
		upper := e.operand(n.Upper)
		return n.Field.QualifiedColumn() + " BETWEEN " + lower + " AND " + upper
	case *In:
		return n.Field.QualifiedColumn() + " IN (" + e.inList(n.Operand) + ")"
	case *NullTest:
		if n.Negated {
			return n.Field.QualifiedColumn() + " IS NOT NULL"
		}
		return n.Field.QualifiedColumn() + " IS NULL"
	case *Conjunction:
		return e.join(n.Operands, " AND ")
	case *Disjunction:
		return e.join(n.Operands, " OR ")
	case *Negation:
		return "NOT (" + e.emit(n.Operand) + ")"
	}
	panic(fmt.Sprintf("unknown predicate %T", p))
}

func (e *emitter) join(operands []Predicate, op string) string {
	var sb strings.Builder
	for i, child := range operands {
		if i > 0 {
			sb.WriteString(op)
		}
		sb.WriteString("(")
		sb.WriteString(e.emit(child))
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *emitter) operand(v any) string {
	if p, ok := v.(*Parameter); ok {
		e.params = append(e.params, p)
		return "?"
	}
	return e.dialect.Literal(v)
}

// inList 字面量切片展开为逗号分隔的列表，空切片渲染为 NULL
func (e *emitter) inList(v any) string {
	if isParameter(v) {
		return e.operand(v)
	}
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type() == bytesType {
		return e.dialect.Literal(v)
	}
	if rv.Len() == 0 {
		return "NULL"
	}
	items := make([]string, rv.Len())
	for i := range items {
		items[i] = e.dialect.Literal(rv.Index(i).Interface())
	}
	return strings.Join(items, ", ")
}

var bytesType = reflect.TypeOf([]byte(nil))

// Literal 按 ANSI 规则把值转成 SQL 字面量，字符串中的单引号加倍
func Literal(v any) string {
	return ANSI.Literal(v)
}

// Literal 值无法表示时 panic，谓词构造时已拒绝这类操作数
func (d Dialect) Literal(v any) string {
	s, err := d.FormatLiteral(v)
	if err != nil {
		panic(err)
	}
	return s
}

// FormatLiteral 把值转成 SQL 字面量，NaN 和 ±Inf 返回 ErrInvalidLiteral
func (d Dialect) FormatLiteral(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return d.quote(x), nil
	case []byte:
		return "X'" + hex.EncodeToString(x) + "'", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case time.Time:
		return d.quote(x.Format("2006-01-02 15:04:05.999999")), nil
	case int:
		return strconv.FormatInt(int64(x), 10), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		if !isFinite(float64(x)) {
			return "", errors.Wrapf(ErrInvalidLiteral, "%v", x)
		}
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		if !isFinite(x) {
			return "", errors.Wrapf(ErrInvalidLiteral, "%v", x)
		}
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case fmt.Stringer:
		return d.quote(x.String()), nil
	}
	return d.quote(fmt.Sprint(v)), nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `''`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func (d Dialect) quote(s string) string {
	if d == MySQL {
		return "'" + mysqlEscaper.Replace(s) + "'"
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
