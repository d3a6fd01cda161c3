package query

import (
	"fmt"
	"slices"

	"github.com/hatlonely/tablekit/bitmask"
	"github.com/hatlonely/tablekit/handler"
	"github.com/pkg/errors"
)

// reservedNames 与 DomainType 方法同名的字段名，只能通过 Field(name) 访问
var reservedNames = map[string]bool{
	"where":   true,
	"param":   true,
	"field":   true,
	"execute": true,
	"not":     true,
}

// IsReserved 字段名是否与构建方法冲突
func IsReserved(name string) bool {
	return reservedNames[name]
}

// DomainType 一张表的查询入口，字段表在创建时一次性构建
type DomainType struct {
	handler *handler.TableHandler
	alias   string
	fields  map[string]*Field
	names   []string

	relations map[string]*DomainType
}

type DomainOption func(*DomainType)

// WithAlias 生成的列名带 t<n>. 前缀
func WithAlias(n int) DomainOption {
	return func(d *DomainType) {
		d.alias = fmt.Sprintf("t%d.", n)
	}
}

// WithRelation 把关联字段绑定到目标表：IsNull/IsNotNull 检查目标表别名下的主键首列
func WithRelation(name string, target *DomainType) DomainOption {
	return func(d *DomainType) {
		if d.relations == nil {
			d.relations = map[string]*DomainType{}
		}
		d.relations[name] = target
	}
}

func NewDomainType(th *handler.TableHandler, opts ...DomainOption) (*DomainType, error) {
	if th == nil {
		return nil, errors.New("table handler is nil")
	}
	if !th.IsValid() {
		return nil, errors.WithMessage(handler.ErrInvalidHandler, th.Err().Error())
	}

	d := &DomainType{handler: th, fields: map[string]*Field{}}
	for _, opt := range opts {
		opt(d)
	}
	for _, hf := range th.Fields() {
		f := &Field{
			Name:         hf.Name,
			ColumnName:   hf.ColumnName,
			ColumnNumber: hf.ColumnNumber,
			ColumnMask:   hf.ColumnMask.Clone(),
			Alias:        d.alias,
			Relationship: hf.IsRelationship(),
			MultiColumn:  hf.IsMultiColumn(),
		}
		if f.Relationship {
			f.ColumnName = hf.Name
			f.ColumnMask = bitmask.New(th.NumberOfColumns())
		}
		d.fields[f.Name] = f
		d.names = append(d.names, f.Name)
	}
	for name, target := range d.relations {
		if err := d.relate(name, target); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *DomainType) relate(name string, target *DomainType) error {
	f, ok := d.fields[name]
	if !ok || !f.Relationship {
		return errors.Errorf("field %s is not a relationship of %s", name, d.handler.Table().QualifiedName())
	}
	if target == nil {
		return errors.Errorf("relationship %s has no target", name)
	}
	pk := target.handler.Table().PrimaryKey()
	if pk == nil || len(pk.ColumnNumbers) == 0 {
		return errors.Errorf("target table %s has no primary key", target.handler.Table().QualifiedName())
	}
	f.ColumnName = target.handler.Table().Columns[pk.ColumnNumbers[0]].Name
	f.Alias = target.alias
	return nil
}

func (d *DomainType) Handler() *handler.TableHandler {
	return d.handler
}

func (d *DomainType) Alias() string {
	return d.alias
}

// Field 按名字取字段，保留名同样可以取到，未知字段返回 nil
func (d *DomainType) Field(name string) *Field {
	return d.fields[name]
}

// Lookup 按名字取字段，保留名视为不存在
func (d *DomainType) Lookup(name string) (*Field, bool) {
	if reservedNames[name] {
		return nil, false
	}
	f, ok := d.fields[name]
	return f, ok
}

// FieldNames 字段名，按映射顺序
func (d *DomainType) FieldNames() []string {
	return slices.Clone(d.names)
}

func (d *DomainType) Param(name string) *Parameter {
	return Param(name)
}

func (d *DomainType) Not(p Predicate) Predicate {
	return Not(p)
}

// Where 编译谓词并选择访问路径，p 为 nil 时全表扫描
func (d *DomainType) Where(p Predicate, opts ...Option) (*QueryHandler, error) {
	return NewQueryHandler(d.handler, p, opts...)
}
