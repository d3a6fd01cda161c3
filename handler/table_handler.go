package handler

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hatlonely/tablekit/bitmask"
	"github.com/hatlonely/tablekit/log"
	"github.com/hatlonely/tablekit/mapping"
	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
)

// TableHandler 结合表元数据与字段映射，负责对象与行之间的编解码以及索引选择
// 构建完成后不可变，可以在多个 goroutine 间共享
type TableHandler struct {
	table    *meta.TableMetadata
	resolved *mapping.TableMapping

	columns      []*Column
	columnByName map[string]int
	fields       map[string]*Field
	fieldOrder   []*Field

	indexHandlers      []*IndexHandler
	foreignKeys        map[string]*meta.ForeignKeyMetadata
	relationshipFields []*Field
	excluded           map[string]bool

	sparseContainer string
	is1to1          bool
	autoIncColumn   int
	autoIncField    string
	lobColumns      int

	errs        []string
	valid       atomic.Bool
	invalidated atomic.Bool

	newObject func() Object
	logger    log.Logger
}

type Option func(*TableHandler)

// WithLogger 设置日志，默认使用 log.Default()
func WithLogger(logger log.Logger) Option {
	return func(h *TableHandler) {
		h.logger = logger
	}
}

// WithConstructor 设置结果对象的构造函数，默认创建 MapObject
func WithConstructor(fn func() Object) Option {
	return func(h *TableHandler) {
		h.newObject = fn
	}
}

// New 创建表处理器，tm 为 nil 时按列名映射全部列
// 总是返回处理器；映射有误时处理器无效，Err() 返回全部错误信息
func New(table *meta.TableMetadata, tm *mapping.TableMapping, opts ...Option) *TableHandler {
	constructorCalls.Inc()

	h := &TableHandler{
		table:         table,
		columnByName:  map[string]int{},
		fields:        map[string]*Field{},
		foreignKeys:   map[string]*meta.ForeignKeyMetadata{},
		excluded:      map[string]bool{},
		is1to1:        true,
		autoIncColumn: -1,
		newObject:     func() Object { return MapObject{} },
		logger:        log.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if table == nil || len(table.Columns) == 0 {
		h.reportError("Table metadata has no columns")
		return h.finish()
	}
	handlersCreated.WithLabelValues(table.QualifiedName()).Inc()

	if tm != nil {
		mappingsTotal.WithLabelValues("explicit").Inc()
		if err := tm.Validate(); err != nil {
			h.reportError(err.Error())
			return h.finish()
		}
	} else {
		mappingsTotal.WithLabelValues("default").Inc()
		tm = mapping.NewTableMapping(table.Name)
		tm.Database = table.Database
	}

	h.resolved = tm.Clone()
	h.resolved.MapAllColumns = false

	sparse := h.resolveSparseContainer(tm)
	h.resolveColumns(tm, sparse)
	h.resolveFields(tm)
	h.resolveExclusions()

	for _, c := range h.columns {
		if c.Metadata.IsAutoincrement && h.autoIncColumn < 0 {
			h.autoIncColumn = c.Number
			if len(c.FieldNames) > 0 {
				h.autoIncField = c.FieldNames[0]
			}
		}
		if c.Metadata.IsLob {
			h.lobColumns++
		}
		if c.Shape == ShapeShared || c.Shape == ShapePartial {
			h.is1to1 = false
		}
	}

	if len(h.errs) == 0 {
		for _, idx := range table.Indexes {
			if h.hasColumnsFromTable(idx.ColumnNumbers) {
				h.indexHandlers = append(h.indexHandlers, newIndexHandler(h, idx))
			}
		}
	}
	for _, fk := range table.ForeignKeys {
		h.foreignKeys[fk.Name] = fk
	}

	return h.finish()
}

func (h *TableHandler) finish() *TableHandler {
	if len(h.errs) > 0 {
		invalidHandlers.Inc()
		h.logger.Debug("table handler is invalid", "table", h.tableName(), "errors", h.errs)
		return h
	}
	h.valid.Store(true)
	h.logger.Debug("table handler created", "handler", h.String())
	return h
}

func (h *TableHandler) reportError(msg string) {
	h.errs = append(h.errs, msg)
}

func (h *TableHandler) tableName() string {
	if h.table == nil {
		return ""
	}
	return h.table.QualifiedName()
}

// resolveSparseContainer 映射中指定的容器优先；表级容器只在没有字段占用该列时生效
func (h *TableHandler) resolveSparseContainer(tm *mapping.TableMapping) string {
	if tm.SparseContainer != nil {
		name := tm.SparseContainer.ColumnName
		if h.table.Column(name) == nil {
			h.reportError(fmt.Sprintf("Sparse container column %s does not exist", name))
			return ""
		}
		return name
	}

	name := h.table.SparseContainer
	if name == "" || h.table.Column(name) == nil {
		return ""
	}
	for _, fm := range tm.Fields {
		if !fm.Persistent || fm.Relationship {
			continue
		}
		if fm.ColumnName == name || (fm.ColumnName == "" && len(fm.ToManyColumns) == 0 && fm.FieldName == name) ||
			slices.Contains(fm.ToManyColumns, name) {
			return ""
		}
	}
	h.resolved.MapSparseFields(name)
	return name
}

// resolveColumns 默认模式使用全部列，否则只使用被持久化字段引用的列和稀疏容器列，顺序与表元数据一致
func (h *TableHandler) resolveColumns(tm *mapping.TableMapping, sparse string) {
	used := map[string]bool{}
	if sparse != "" {
		used[sparse] = true
	}
	if !tm.MapAllColumns {
		for _, fm := range tm.Fields {
			if !fm.Persistent || fm.Relationship {
				continue
			}
			if len(fm.ToManyColumns) > 0 {
				for _, name := range fm.ToManyColumns {
					used[name] = true
				}
				continue
			}
			if fm.ColumnName != "" {
				used[fm.ColumnName] = true
			} else {
				used[fm.FieldName] = true
			}
		}
	}

	for _, md := range h.table.Columns {
		if !tm.MapAllColumns && !used[md.Name] {
			continue
		}
		c := newColumn(len(h.columns), md, tm.ColumnConverters[md.Name])
		h.columnByName[md.Name] = c.Number
		h.columns = append(h.columns, c)
	}

	if sparse != "" {
		h.sparseContainer = sparse
		h.columns[h.columnByName[sparse]].setSparse(h.resolved.SparseContainer, h.excluded)
	}
}

func (h *TableHandler) resolveFields(tm *mapping.TableMapping) {
	for _, fm := range h.resolved.Fields {
		if fm.Persistent || fm.Relationship {
			h.addField(fm)
		}
	}

	// 默认模式下，尚未被映射的列映射为同名字段
	if tm.MapAllColumns {
		for _, c := range h.columns {
			if c.IsMapped() {
				continue
			}
			if _, exists := h.fields[c.Name]; exists {
				h.logger.Debug("column is unmappable", "table", h.tableName(), "column", c.Name)
				continue
			}
			fm := mapping.Field(c.Name).Column(c.Name)
			h.resolved.MapField(fm)
			h.addField(fm)
		}
	}
}

func (h *TableHandler) addField(fm *mapping.FieldMapping) {
	if _, exists := h.fields[fm.FieldName]; exists {
		h.reportError(fmt.Sprintf("Attempt to map field %s more than once", fm.FieldName))
		return
	}
	f := newField(fm, len(h.columns))
	h.fields[fm.FieldName] = f
	h.fieldOrder = append(h.fieldOrder, f)
	if fm.Relationship {
		h.relationshipFields = append(h.relationshipFields, f)
		return
	}

	if len(fm.ToManyColumns) > 0 {
		n := 0
		for _, c := range h.columns {
			if !slices.Contains(fm.ToManyColumns, c.Name) {
				continue
			}
			if msg := c.mapPartial(fm, n, fm.ToManyColumns); msg != "" {
				h.reportError(msg)
			}
			f.mapToColumn(c)
			n++
		}
		if n != len(fm.ToManyColumns) {
			h.reportError(fmt.Sprintf("Bad column list in field %s: %s (used %d)",
				fm.FieldName, strings.Join(fm.ToManyColumns, ","), n))
		}
		return
	}

	target := fm.ColumnName
	if target == "" {
		target = fm.FieldName
	}
	if id, ok := h.columnByName[target]; ok {
		c := h.columns[id]
		if msg := c.addFieldMapping(fm); msg != "" {
			h.reportError(msg)
		}
		f.mapToColumn(c)
		fm.ColumnName = c.Name
		return
	}
	if fm.ColumnName != "" {
		h.reportError(fmt.Sprintf("Column %s does not exist", fm.ColumnName))
		return
	}
	if h.sparseContainer != "" {
		c := h.columns[h.columnByName[h.sparseContainer]]
		c.addFieldMapping(fm)
		f.mapToColumn(c)
		fm.ColumnName = c.Name
		return
	}
	h.reportError(fmt.Sprintf("No column mapped for field %s", fm.FieldName))
}

// resolveExclusions 稀疏容器排除映射中声明的字段以及所有不落在容器里的字段
func (h *TableHandler) resolveExclusions() {
	for _, name := range h.resolved.ExcludedFieldNames {
		h.excluded[name] = true
	}
	for _, fm := range h.resolved.Fields {
		if h.sparseContainer == "" || !fm.Persistent || fm.Relationship || fm.ColumnName != h.sparseContainer {
			h.excluded[fm.FieldName] = true
		}
	}
	if h.resolved.SparseContainer != nil {
		h.resolved.ExcludedFieldNames = h.resolved.ExcludedFieldNames[:0]
		for name := range h.excluded {
			h.resolved.ExcludedFieldNames = append(h.resolved.ExcludedFieldNames, name)
		}
		sort.Strings(h.resolved.ExcludedFieldNames)
	}
}

func (h *TableHandler) hasColumnsFromTable(columnNumbers []int) bool {
	for _, n := range columnNumbers {
		if n < 0 || n >= len(h.table.Columns) {
			return false
		}
		if _, ok := h.columnByName[h.table.Columns[n].Name]; !ok {
			return false
		}
	}
	return true
}

// IsValid 映射是否解析成功且未失效
func (h *TableHandler) IsValid() bool {
	return h.valid.Load()
}

// Err 无效时返回全部错误信息
func (h *TableHandler) Err() error {
	if h.invalidated.Load() {
		return errors.Wrapf(ErrInvalidHandler, "table handler for %s was invalidated", h.tableName())
	}
	if len(h.errs) == 0 {
		return nil
	}
	return errors.Wrap(ErrMapping, strings.Join(h.errs, "\n"))
}

func (h *TableHandler) check() error {
	if h.valid.Load() {
		return nil
	}
	return errors.WithMessage(ErrInvalidHandler, h.Err().Error())
}

// Invalidate 表结构变化后标记处理器失效
func (h *TableHandler) Invalidate() {
	if h.valid.CompareAndSwap(true, false) {
		h.invalidated.Store(true)
		h.logger.Debug("table handler invalidated", "table", h.tableName())
	}
}

func (h *TableHandler) Table() *meta.TableMetadata {
	return h.table
}

// ResolvedMapping 解析后的映射，包含默认映射补全的字段
func (h *TableHandler) ResolvedMapping() *mapping.TableMapping {
	return h.resolved
}

func (h *TableHandler) NumberOfColumns() int {
	return len(h.columns)
}

// Column 第 n 个解析后的列，越界返回 nil
func (h *TableHandler) Column(n int) *Column {
	if n < 0 || n >= len(h.columns) {
		return nil
	}
	return h.columns[n]
}

func (h *TableHandler) ColumnMetadata(n int) *meta.ColumnMetadata {
	if c := h.Column(n); c != nil {
		return c.Metadata
	}
	return nil
}

// ColumnNumber 列名对应的解析后列序号
func (h *TableHandler) ColumnNumber(name string) (int, bool) {
	n, ok := h.columnByName[name]
	return n, ok
}

func (h *TableHandler) Field(name string) *Field {
	return h.fields[name]
}

// Fields 持久化字段与关联字段，按映射顺序
func (h *TableHandler) Fields() []*Field {
	return slices.Clone(h.fieldOrder)
}

// QueryFields 解析后映射中的全部字段映射
func (h *TableHandler) QueryFields() []*mapping.FieldMapping {
	if h.resolved == nil {
		return nil
	}
	return slices.Clone(h.resolved.Fields)
}

// ColumnMaskForField 字段涉及的列，未知字段返回 nil
func (h *TableHandler) ColumnMaskForField(name string) *bitmask.BitMask {
	if f, ok := h.fields[name]; ok {
		return f.ColumnMask
	}
	return nil
}

func (h *TableHandler) RelationshipFields() []*Field {
	return slices.Clone(h.relationshipFields)
}

// SparseContainer 稀疏容器列名，没有时为空
func (h *TableHandler) SparseContainer() string {
	return h.sparseContainer
}

// Is1to1 是否所有列都是一对一映射
func (h *TableHandler) Is1to1() bool {
	return h.is1to1
}

// AutoincrementField 自增列对应的字段名
func (h *TableHandler) AutoincrementField() string {
	return h.autoIncField
}

func (h *TableHandler) NumberOfLobColumns() int {
	return h.lobColumns
}

func (h *TableHandler) ForeignKey(name string) *meta.ForeignKeyMetadata {
	return h.foreignKeys[name]
}

func (h *TableHandler) ForeignKeyNames() []string {
	names := make([]string, 0, len(h.foreignKeys))
	for name := range h.foreignKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexHandlers 所有列都已映射的索引，顺序与表元数据一致
func (h *TableHandler) IndexHandlers() []*IndexHandler {
	return slices.Clone(h.indexHandlers)
}

func (h *TableHandler) String() string {
	if !h.IsValid() {
		return "Invalid TableHandler with error: " + h.Err().Error()
	}
	mapped := 0
	for _, c := range h.columns {
		if c.IsMapped() && c.Shape != ShapeSparse {
			mapped++
		}
	}
	s := fmt.Sprintf("TableHandler for table %s with %d fields mapped to %d columns and %d relationships",
		h.tableName(), len(h.fieldOrder)-len(h.relationshipFields), mapped, len(h.relationshipFields))
	if h.sparseContainer != "" {
		s += " and sparse column " + h.sparseContainer
	}
	return s
}
