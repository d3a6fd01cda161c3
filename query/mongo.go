package query

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

var mongoOps = map[Op]string{
	OpNe: "$ne",
	OpLt: "$lt",
	OpLe: "$lte",
	OpGt: "$gt",
	OpGe: "$gte",
}

// ToMongo 把谓词转成 mongo 过滤条件，键为列名，命名参数从 params 取值
func ToMongo(p Predicate, params map[string]any) (bson.M, error) {
	if p == nil {
		return bson.M{}, nil
	}

	switch n := p.(type) {
	case *Comparator:
		v, err := resolve(n.Operand, params)
		if err != nil {
			return nil, err
		}
		if n.Op == OpEq {
			return bson.M{n.Field.ColumnName: v}, nil
		}
		return bson.M{n.Field.ColumnName: bson.M{mongoOps[n.Op]: v}}, nil
	case *Between:
		lower, err := resolve(n.Lower, params)
		if err != nil {
			return nil, err
		}
		upper, err := resolve(n.Upper, params)
		if err != nil {
			return nil, err
		}
		return bson.M{n.Field.ColumnName: bson.M{"$gte": lower, "$lte": upper}}, nil
	case *In:
		v, err := resolve(n.Operand, params)
		if err != nil {
			return nil, err
		}
		return bson.M{n.Field.ColumnName: bson.M{"$in": asArray(v)}}, nil
	case *NullTest:
		if n.Negated {
			return bson.M{n.Field.ColumnName: bson.M{"$ne": nil}}, nil
		}
		return bson.M{n.Field.ColumnName: nil}, nil
	case *Conjunction:
		children, err := mongoChildren(n.Operands, params)
		if err != nil {
			return nil, err
		}
		return bson.M{"$and": children}, nil
	case *Disjunction:
		children, err := mongoChildren(n.Operands, params)
		if err != nil {
			return nil, err
		}
		return bson.M{"$or": children}, nil
	case *Negation:
		child, err := ToMongo(n.Operand, params)
		if err != nil {
			return nil, err
		}
		return bson.M{"$nor": bson.A{child}}, nil
	}
	panic(fmt.Sprintf("unknown predicate %T", p))
}

func mongoChildren(operands []Predicate, params map[string]any) (bson.A, error) {
	children := make(bson.A, 0, len(operands))
	for _, op := range operands {
		child, err := ToMongo(op, params)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// resolve 命名参数取实际值，字面量原样返回
func resolve(v any, params map[string]any) (any, error) {
	p, ok := v.(*Parameter)
	if !ok {
		return v, nil
	}
	value, ok := params[p.Name]
	if !ok {
		return nil, errors.Wrapf(ErrMissingParameter, "parameter %s", p.Name)
	}
	return value, nil
}

func asArray(v any) bson.A {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type() == bytesType {
		return bson.A{v}
	}
	result := make(bson.A, rv.Len())
	for i := range result {
		result[i] = rv.Index(i).Interface()
	}
	return result
}
