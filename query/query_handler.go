package query

import (
	"github.com/hatlonely/tablekit/handler"
	"github.com/hatlonely/tablekit/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ErrMissingParameter 执行时没有提供命名参数的值
	ErrMissingParameter = errors.New("missing query parameter")
	// ErrSelectionInvariant 索引列找不到固定它的等值节点，说明掩码与索引选择不一致
	ErrSelectionInvariant = errors.New("selection invariant violated")
	// ErrNotKeyLookup 访问路径不是主键或唯一键查找
	ErrNotKeyLookup = errors.New("access path is not a key lookup")
)

// AccessPath 访问路径
type AccessPath int

const (
	PrimaryKeyLookup AccessPath = iota
	UniqueKeyLookup
	IndexScan
	TableScan
)

func (a AccessPath) String() string {
	switch a {
	case PrimaryKeyLookup:
		return "primary_key_lookup"
	case UniqueKeyLookup:
		return "unique_key_lookup"
	case IndexScan:
		return "index_scan"
	}
	return "table_scan"
}

// IsKeyLookup 是否按键查找
func (a AccessPath) IsKeyLookup() bool {
	return a == PrimaryKeyLookup || a == UniqueKeyLookup
}

var accessPathsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "tablekit_query_access_path_total",
	Help: "Query handlers built per chosen access path",
}, []string{"path"})

func init() {
	prometheus.MustRegister(accessPathsTotal)
}

// QueryHandler 一次查询的编译结果，不持有参数值，可以重复执行
type QueryHandler struct {
	table       *handler.TableHandler
	predicate   Predicate
	annotations Annotations
	path        AccessPath
	index       *handler.IndexHandler
	dialect     Dialect

	logger log.Logger
}

type Option func(*QueryHandler)

func WithLogger(logger log.Logger) Option {
	return func(q *QueryHandler) {
		q.logger = logger
	}
}

// WithDialect 生成 SQL 时的字面量转义方式，默认 ANSI
func WithDialect(d Dialect) Option {
	return func(q *QueryHandler) {
		q.dialect = d
	}
}

// NewQueryHandler 标记常量与掩码后选择访问路径：
// 等值掩码覆盖的唯一索引（主键优先），其次得分最高的有序索引，否则全表扫描
func NewQueryHandler(th *handler.TableHandler, p Predicate, opts ...Option) (*QueryHandler, error) {
	if th == nil {
		return nil, errors.New("table handler is nil")
	}
	if !th.IsValid() {
		return nil, errors.WithMessage(handler.ErrInvalidHandler, th.Err().Error())
	}

	q := &QueryHandler{table: th, predicate: p, path: TableScan, logger: log.Default()}
	for _, opt := range opts {
		opt(q)
	}

	q.annotations = Compile(p)
	if p != nil {
		masks := q.annotations.Masks(p)
		if ih := th.ChooseUniqueIndex(masks); ih != nil {
			q.index = ih
			q.path = UniqueKeyLookup
			if ih.IsPrimaryKey() {
				q.path = PrimaryKeyLookup
			}
		} else if ih := th.ChooseOrderedIndex(masks); ih != nil {
			q.index = ih
			q.path = IndexScan
		}
	}

	accessPathsTotal.WithLabelValues(q.path.String()).Inc()
	q.logger.Debug("access path chosen", "table", th.Table().QualifiedName(), "path", q.path.String(),
		"index", q.IndexName(), "predicate", predicateString(p))
	return q, nil
}

func predicateString(p Predicate) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func (q *QueryHandler) AccessPath() AccessPath {
	return q.path
}

// IndexHandler 选中的索引，全表扫描时为 nil
func (q *QueryHandler) IndexHandler() *handler.IndexHandler {
	return q.index
}

func (q *QueryHandler) IndexName() string {
	if q.index == nil {
		return ""
	}
	return q.index.Index().Name
}

func (q *QueryHandler) Predicate() Predicate {
	return q.predicate
}

func (q *QueryHandler) Annotations() Annotations {
	return q.annotations
}

func (q *QueryHandler) TableHandler() *handler.TableHandler {
	return q.table
}

// SQL 生成 WHERE 子句，没有谓词时为空
func (q *QueryHandler) SQL() SQL {
	return q.dialect.EmitSQL(q.predicate)
}

// Keys 按索引列顺序取键值，值来自命名参数或等值节点上的字面量
func (q *QueryHandler) Keys(params map[string]any) ([]any, error) {
	if !q.path.IsKeyLookup() {
		return nil, errors.Wrapf(ErrNotKeyLookup, "access path %s", q.path)
	}
	columns := q.index.ColumnNumbers()
	keys := make([]any, 0, len(columns))
	for _, n := range columns {
		node := q.pinningNode(q.predicate, n)
		if node == nil {
			return nil, errors.Wrapf(ErrSelectionInvariant, "no equality node pins column %s of index %s",
				q.table.Column(n).Name, q.IndexName())
		}
		v, err := resolve(node.Operand, params)
		if err != nil {
			return nil, err
		}
		keys = append(keys, v)
	}
	return keys, nil
}

// pinningNode 沿等值掩码包含该列的节点向下查找等值比较
func (q *QueryHandler) pinningNode(p Predicate, column int) *Comparator {
	if !q.annotations.Masks(p).Equal.IsSet(column) {
		return nil
	}
	switch n := p.(type) {
	case *Comparator:
		if n.Op == OpEq && n.Field.ColumnNumber == column {
			return n
		}
	case *Conjunction:
		for _, op := range n.Operands {
			if node := q.pinningNode(op, column); node != nil {
				return node
			}
		}
	}
	return nil
}
