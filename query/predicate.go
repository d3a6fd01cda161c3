package query

import (
	"fmt"
	"slices"
)

// PredicateType 谓词节点类型
type PredicateType string

const (
	PredicateTypeComparator  PredicateType = "comparator"
	PredicateTypeBetween     PredicateType = "between"
	PredicateTypeIn          PredicateType = "in"
	PredicateTypeNullTest    PredicateType = "null_test"
	PredicateTypeConjunction PredicateType = "and"
	PredicateTypeDisjunction PredicateType = "or"
	PredicateTypeNegation    PredicateType = "not"
)

// Predicate 谓词树节点，节点类型是封闭的，只有本包中的七种
// 节点构建后不可变，组合总是返回新节点
type Predicate interface {
	Type() PredicateType
	And(others ...Predicate) Predicate
	Or(others ...Predicate) Predicate
	AndNot(other Predicate) Predicate
	OrNot(other Predicate) Predicate
	Not() Predicate
	String() string

	sealed()
}

// Parameter 命名参数，执行时按名字取值
type Parameter struct {
	Name string
}

func Param(name string) *Parameter {
	return &Parameter{Name: name}
}

func (p *Parameter) String() string {
	return "?" + p.Name
}

func isParameter(v any) bool {
	_, ok := v.(*Parameter)
	return ok
}

// Op 比较运算符
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (o Op) String() string {
	switch o {
	case OpEq:
		return "eq"
	case OpNe:
		return "ne"
	case OpLt:
		return "lt"
	case OpLe:
		return "le"
	case OpGt:
		return "gt"
	case OpGe:
		return "ge"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Symbol SQL 运算符
func (o Op) Symbol() string {
	return [...]string{" = ", " != ", " < ", " <= ", " > ", " >= "}[o]
}

// combinators 为各节点提供链式组合方法
type combinators struct {
	self Predicate
}

// And 接收者本身是 AND 节点时，把 others 追加到它的操作数之后，得到新的扁平节点
func (c combinators) And(others ...Predicate) Predicate {
	if a, ok := c.self.(*Conjunction); ok {
		return And(append(slices.Clone(a.Operands), others...)...)
	}
	return And(append([]Predicate{c.self}, others...)...)
}

func (c combinators) Or(others ...Predicate) Predicate {
	if o, ok := c.self.(*Disjunction); ok {
		return Or(append(slices.Clone(o.Operands), others...)...)
	}
	return Or(append([]Predicate{c.self}, others...)...)
}

func (c combinators) AndNot(other Predicate) Predicate {
	return c.And(Not(other))
}

func (c combinators) OrNot(other Predicate) Predicate {
	return c.Or(Not(other))
}

func (c combinators) Not() Predicate {
	return Not(c.self)
}

func (c combinators) String() string {
	return EmitSQL(c.self).Text
}

func (combinators) sealed() {}

// Comparator 字段与一个操作数比较
type Comparator struct {
	combinators
	Field   *Field
	Op      Op
	Operand any
}

func (p *Comparator) Type() PredicateType { return PredicateTypeComparator }

// Between 闭区间
type Between struct {
	combinators
	Field *Field
	Lower any
	Upper any
}

func (p *Between) Type() PredicateType { return PredicateTypeBetween }

// In 操作数为命名参数或字面量切片
type In struct {
	combinators
	Field   *Field
	Operand any
}

func (p *In) Type() PredicateType { return PredicateTypeIn }

// NullTest IS NULL，Negated 时为 IS NOT NULL
type NullTest struct {
	combinators
	Field   *Field
	Negated bool
}

func (p *NullTest) Type() PredicateType { return PredicateTypeNullTest }

type Conjunction struct {
	combinators
	Operands []Predicate
}

func (p *Conjunction) Type() PredicateType { return PredicateTypeConjunction }

type Disjunction struct {
	combinators
	Operands []Predicate
}

func (p *Disjunction) Type() PredicateType { return PredicateTypeDisjunction }

type Negation struct {
	combinators
	Operand Predicate
}

func (p *Negation) Type() PredicateType { return PredicateTypeNegation }

// And 创建 AND 节点
func And(operands ...Predicate) *Conjunction {
	p := &Conjunction{Operands: operands}
	p.self = p
	return p
}

// Or 创建 OR 节点
func Or(operands ...Predicate) *Disjunction {
	p := &Disjunction{Operands: operands}
	p.self = p
	return p
}

// Not 创建 NOT 节点
func Not(operand Predicate) *Negation {
	p := &Negation{Operand: operand}
	p.self = p
	return p
}

func newComparator(f *Field, op Op, operand any) *Comparator {
	p := &Comparator{Field: f, Op: op, Operand: operand}
	p.self = p
	return p
}

func newBetween(f *Field, lower, upper any) *Between {
	p := &Between{Field: f, Lower: lower, Upper: upper}
	p.self = p
	return p
}

func newIn(f *Field, operand any) *In {
	p := &In{Field: f, Operand: operand}
	p.self = p
	return p
}

func newNullTest(f *Field, negated bool) *NullTest {
	p := &NullTest{Field: f, Negated: negated}
	p.self = p
	return p
}
