package query

import (
	"fmt"
	"reflect"

	"github.com/hatlonely/tablekit/bitmask"
)

// IllegalOperationError 字段不支持该比较操作，构造谓词时立即 panic
type IllegalOperationError struct {
	Op    string
	Field string
	Kind  string
}

func (e *IllegalOperationError) Error() string {
	return fmt.Sprintf("illegal operation %s for %s %s", e.Op, e.Kind, e.Field)
}

// Field 可查询字段，由 DomainType 根据表处理器构建
type Field struct {
	Name string
	// ColumnName 单列字段的列名；关联字段为目标表主键首列
	ColumnName   string
	ColumnNumber int
	ColumnMask   *bitmask.BitMask
	// Alias 表别名，形如 t1.
	Alias        string
	Relationship bool
	MultiColumn  bool
}

// QualifiedColumn 带别名的列名
func (f *Field) QualifiedColumn() string {
	return f.Alias + f.ColumnName
}

func (f *Field) checkScalar(op string) {
	if f.Relationship {
		panic(&IllegalOperationError{Op: op, Field: f.Name, Kind: "relationship"})
	}
	if f.MultiColumn {
		panic(&IllegalOperationError{Op: op, Field: f.Name, Kind: "multi-column field"})
	}
}

// checkOperand 字面量操作数必须能内联成 SQL，NaN 和 ±Inf 直接 panic
func checkOperand(operand any) {
	if operand == nil || isParameter(operand) {
		return
	}
	rv := reflect.ValueOf(operand)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type() != bytesType {
		for i := 0; i < rv.Len(); i++ {
			checkOperand(rv.Index(i).Interface())
		}
		return
	}
	if _, err := ANSI.FormatLiteral(operand); err != nil {
		panic(err)
	}
}

func (f *Field) compare(op Op, operand any) *Comparator {
	f.checkScalar(op.String())
	checkOperand(operand)
	return newComparator(f, op, operand)
}

func (f *Field) Eq(operand any) *Comparator { return f.compare(OpEq, operand) }
func (f *Field) Ne(operand any) *Comparator { return f.compare(OpNe, operand) }
func (f *Field) Lt(operand any) *Comparator { return f.compare(OpLt, operand) }
func (f *Field) Le(operand any) *Comparator { return f.compare(OpLe, operand) }
func (f *Field) Gt(operand any) *Comparator { return f.compare(OpGt, operand) }
func (f *Field) Ge(operand any) *Comparator { return f.compare(OpGe, operand) }

// Between lower <= f <= upper
func (f *Field) Between(lower, upper any) *Between {
	f.checkScalar("between")
	checkOperand(lower)
	checkOperand(upper)
	return newBetween(f, lower, upper)
}

// In operand 为命名参数或字面量切片
func (f *Field) In(operand any) *In {
	f.checkScalar("in")
	checkOperand(operand)
	return newIn(f, operand)
}

// IsNull 关联字段也支持
func (f *Field) IsNull() *NullTest {
	if f.MultiColumn {
		panic(&IllegalOperationError{Op: "isNull", Field: f.Name, Kind: "multi-column field"})
	}
	return newNullTest(f, false)
}

func (f *Field) IsNotNull() *NullTest {
	if f.MultiColumn {
		panic(&IllegalOperationError{Op: "isNotNull", Field: f.Name, Kind: "multi-column field"})
	}
	return newNullTest(f, true)
}

func (f *Field) String() string {
	return f.Name
}
