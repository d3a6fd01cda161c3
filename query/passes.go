package query

import (
	"fmt"

	"github.com/hatlonely/tablekit/bitmask"
	"github.com/hatlonely/tablekit/handler"
)

// Annotation 编译后附加在节点上的信息
type Annotation struct {
	// Constant 节点不含命名参数
	Constant bool
	Masks    handler.Masks
}

// Annotations 按节点保存编译结果，节点本身保持不可变
type Annotations map[Predicate]*Annotation

func (a Annotations) of(p Predicate) *Annotation {
	an, ok := a[p]
	if !ok {
		an = &Annotation{Masks: handler.NewMasks(0)}
		a[p] = an
	}
	return an
}

// Constant 节点是否是常量，未编译的节点返回 false
func (a Annotations) Constant(p Predicate) bool {
	if an, ok := a[p]; ok {
		return an.Constant
	}
	return false
}

// Masks 节点的列掩码，未编译的节点返回空掩码
func (a Annotations) Masks(p Predicate) handler.Masks {
	if an, ok := a[p]; ok {
		return an.Masks
	}
	return handler.NewMasks(0)
}

// Compile 依次执行常量标记和掩码标记
func Compile(p Predicate) Annotations {
	a := Annotations{}
	if p == nil {
		return a
	}
	MarkConstants(p, a)
	MarkMasks(p, a)
	return a
}

// MarkConstants 后序遍历：叶子节点的操作数全部是字面量时为常量；组合节点的子节点全部是常量时为常量
func MarkConstants(p Predicate, a Annotations) bool {
	var constant bool
	switch n := p.(type) {
	case *Comparator:
		constant = !isParameter(n.Operand)
	case *Between:
		constant = !isParameter(n.Lower) && !isParameter(n.Upper)
	case *In:
		constant = !isParameter(n.Operand)
	case *NullTest:
		constant = true
	case *Conjunction:
		constant = allConstant(n.Operands, a)
	case *Disjunction:
		constant = allConstant(n.Operands, a)
	case *Negation:
		constant = MarkConstants(n.Operand, a)
	default:
		panic(fmt.Sprintf("unknown predicate %T", p))
	}
	a.of(p).Constant = constant
	return constant
}

func allConstant(operands []Predicate, a Annotations) bool {
	constant := true
	for _, op := range operands {
		if !MarkConstants(op, a) {
			constant = false
		}
	}
	return constant
}

// MarkMasks 后序遍历：只有等值比较产生等值掩码；AND 合并两种掩码；OR 只合并用到的列；NOT 清空等值掩码
func MarkMasks(p Predicate, a Annotations) handler.Masks {
	var m handler.Masks
	switch n := p.(type) {
	case *Comparator:
		m = leafMasks(n.Field, n.Op == OpEq)
	case *Between:
		m = leafMasks(n.Field, false)
	case *In:
		m = leafMasks(n.Field, false)
	case *NullTest:
		m = leafMasks(n.Field, false)
	case *Conjunction:
		m = handler.NewMasks(0)
		for _, op := range n.Operands {
			child := MarkMasks(op, a)
			m.Used.OrWith(child.Used)
			m.Equal.OrWith(child.Equal)
		}
	case *Disjunction:
		m = handler.NewMasks(0)
		for _, op := range n.Operands {
			m.Used.OrWith(MarkMasks(op, a).Used)
		}
	case *Negation:
		child := MarkMasks(n.Operand, a)
		m = handler.Masks{Used: child.Used.Clone(), Equal: bitmask.New(0)}
	default:
		panic(fmt.Sprintf("unknown predicate %T", p))
	}
	a.of(p).Masks = m
	return m
}

func leafMasks(f *Field, equal bool) handler.Masks {
	m := handler.Masks{Used: f.ColumnMask.Clone(), Equal: bitmask.New(0)}
	if equal && !f.MultiColumn && !f.Relationship {
		m.Equal = f.ColumnMask.Clone()
	}
	return m
}

// TopLevelPredicates AND 节点返回其子节点，OR 节点返回空，其余返回节点本身
func TopLevelPredicates(p Predicate) []Predicate {
	switch n := p.(type) {
	case nil:
		return nil
	case *Conjunction:
		return append([]Predicate(nil), n.Operands...)
	case *Disjunction:
		return nil
	}
	return []Predicate{p}
}
