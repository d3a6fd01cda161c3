package query

import (
	"math"
	"testing"
	"time"

	"github.com/hatlonely/tablekit/handler"
	"github.com/hatlonely/tablekit/meta"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func newDomain(t *testing.T, opts ...DomainOption) *DomainType {
	table, err := meta.NewTableMetadataBuilder().
		Database("test").Table("item").
		AddColumn(meta.NewColumn("id", "INT")).
		AddColumn(meta.NewColumn("a", "INT")).
		AddColumn(meta.NewColumn("b", "VARCHAR(16)")).
		AddColumn(meta.NewColumn("x", "INT")).
		AddColumn(meta.NewColumn("y", "INT")).
		AddColumn(meta.NewColumn("z", "INT")).
		AddColumn(meta.NewColumn("name", "VARCHAR(32)")).
		PrimaryKey("id").
		AddIndex("uk_ab", true, "a", "b").
		AddIndex("idx_xyz", false, "x", "y", "z").
		Build()
	require.NoError(t, err)
	th := handler.New(table, nil)
	require.NoError(t, th.Err())
	d, err := NewDomainType(th, opts...)
	require.NoError(t, err)
	return d
}

func panicMessage(fn func()) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = r.(error).Error()
		}
	}()
	fn()
	return ""
}

func TestPredicateBuilder(t *testing.T) {
	d := newDomain(t)
	a, b, x := d.Field("a"), d.Field("b"), d.Field("x")

	Convey("同类组合得到扁平节点", t, func() {
		p := a.Eq(1).And(b.Eq(2))
		So(p.Type(), ShouldEqual, PredicateTypeConjunction)
		So(len(p.(*Conjunction).Operands), ShouldEqual, 2)

		p3 := p.And(x.Gt(3))
		So(len(p3.(*Conjunction).Operands), ShouldEqual, 3)
		So(len(p.(*Conjunction).Operands), ShouldEqual, 2)

		o := a.Eq(1).Or(a.Eq(2)).Or(a.Eq(3))
		So(len(o.(*Disjunction).Operands), ShouldEqual, 3)

		mixed := a.Eq(1).Or(a.Eq(2)).And(b.Eq(3))
		So(mixed.Type(), ShouldEqual, PredicateTypeConjunction)
		So(mixed.(*Conjunction).Operands[0].Type(), ShouldEqual, PredicateTypeDisjunction)
	})

	Convey("AndNot / OrNot / Not", t, func() {
		p := a.Eq(1).AndNot(b.IsNull())
		So(p.String(), ShouldEqual, "(a = 1) AND (NOT (b IS NULL))")

		p = a.Eq(1).OrNot(b.IsNotNull())
		So(p.String(), ShouldEqual, "(a = 1) OR (NOT (b IS NOT NULL))")

		So(a.Eq(1).Not().Type(), ShouldEqual, PredicateTypeNegation)
		So(d.Not(a.Eq(1)).String(), ShouldEqual, "NOT (a = 1)")
	})

	Convey("关联字段只支持空值判断", t, func() {
		f := &Field{Name: "owner", ColumnName: "owner", Relationship: true}
		So(panicMessage(func() { f.Eq(1) }), ShouldEqual, "illegal operation eq for relationship owner")
		So(panicMessage(func() { f.Between(1, 2) }), ShouldEqual, "illegal operation between for relationship owner")
		So(panicMessage(func() { f.In([]int{1}) }), ShouldEqual, "illegal operation in for relationship owner")
		So(func() { f.IsNull() }, ShouldNotPanic)
		So(func() { f.IsNotNull() }, ShouldNotPanic)
	})

	Convey("多列字段不能比较", t, func() {
		f := &Field{Name: "address", MultiColumn: true}
		So(panicMessage(func() { f.Ge(1) }), ShouldEqual, "illegal operation ge for multi-column field address")
		So(func() { f.IsNull() }, ShouldPanic)
	})
}

func TestCompilerPasses(t *testing.T) {
	d := newDomain(t)
	a, b, x := d.Field("a"), d.Field("b"), d.Field("x")

	Convey("常量标记", t, func() {
		literal := a.Eq(1).And(b.Between("p", "q"), x.In([]int{1, 2}), x.IsNull()).Or(a.Ne(3).Not())
		an := Compile(literal)
		So(an.Constant(literal), ShouldBeTrue)

		withParam := a.Eq(1).And(b.Eq(Param("b")))
		an = Compile(withParam)
		So(an.Constant(withParam), ShouldBeFalse)
		So(an.Constant(withParam.(*Conjunction).Operands[0]), ShouldBeTrue)

		between := b.Between(1, Param("hi"))
		So(Compile(between).Constant(between), ShouldBeFalse)
		in := x.In(Param("xs"))
		So(Compile(in).Constant(in), ShouldBeFalse)
		not := Not(a.Eq(Param("a")))
		So(Compile(not).Constant(not), ShouldBeFalse)
	})

	Convey("掩码标记", t, func() {
		and := a.Eq(1).And(b.Eq(2))
		m := Compile(and).Masks(and)
		So(m.Used.String(), ShouldEqual, "[1,2]")
		So(m.Equal.String(), ShouldEqual, "[1,2]")

		or := a.Eq(1).Or(b.Eq(2))
		m = Compile(or).Masks(or)
		So(m.Used.String(), ShouldEqual, "[1,2]")
		So(m.Equal.IsEmpty(), ShouldBeTrue)

		not := Not(a.Eq(1))
		m = Compile(not).Masks(not)
		So(m.Used.String(), ShouldEqual, "[1]")
		So(m.Equal.IsEmpty(), ShouldBeTrue)

		in := x.In([]int{1, 2})
		m = Compile(in).Masks(in)
		So(m.Used.String(), ShouldEqual, "[3]")
		So(m.Equal.IsEmpty(), ShouldBeTrue)

		nested := a.Eq(1).And(Or(b.Eq(2), x.Eq(3)))
		an := Compile(nested)
		So(an.Masks(nested).Used.String(), ShouldEqual, "[1,2,3]")
		So(an.Masks(nested).Equal.String(), ShouldEqual, "[1]")
		So(Annotations{}.Masks(nested).Used.IsEmpty(), ShouldBeTrue)
	})

	Convey("顶层谓词", t, func() {
		p1, p2 := a.Eq(1), b.Eq(2)
		So(TopLevelPredicates(And(p1, p2)), ShouldResemble, []Predicate{p1, p2})
		So(TopLevelPredicates(Or(p1, p2)), ShouldBeEmpty)
		So(TopLevelPredicates(p1), ShouldResemble, []Predicate{p1})
		So(TopLevelPredicates(nil), ShouldBeNil)
	})
}

func TestEmitSQL(t *testing.T) {
	d := newDomain(t)
	a, b, x := d.Field("a"), d.Field("b"), d.Field("x")

	Convey("SQL 生成", t, func() {
		Convey("参数按从左到右的顺序收集", func() {
			pa, px := Param("a"), Param("x")
			s := EmitSQL(a.Eq(pa).And(b.Eq("it's"), x.Between(px, 10)))
			So(s.Text, ShouldEqual, "(a = ?) AND (b = 'it''s') AND (x BETWEEN ? AND 10)")
			So(s.FormalParameters, ShouldResemble, []*Parameter{pa, px})
		})

		Convey("比较运算符", func() {
			So(EmitSQL(a.Ne(1)).Text, ShouldEqual, "a != 1")
			So(EmitSQL(a.Lt(1)).Text, ShouldEqual, "a < 1")
			So(EmitSQL(a.Le(1)).Text, ShouldEqual, "a <= 1")
			So(EmitSQL(a.Gt(1)).Text, ShouldEqual, "a > 1")
			So(EmitSQL(a.Ge(1.5)).Text, ShouldEqual, "a >= 1.5")
		})

		Convey("IN", func() {
			s := EmitSQL(x.In(Param("xs")))
			So(s.Text, ShouldEqual, "x IN (?)")
			So(len(s.FormalParameters), ShouldEqual, 1)
			So(EmitSQL(x.In([]int{1, 2})).Text, ShouldEqual, "x IN (1, 2)")
			So(EmitSQL(b.In([]string{"p", "q"})).Text, ShouldEqual, "b IN ('p', 'q')")
			So(EmitSQL(x.In([]int{})).Text, ShouldEqual, "x IN (NULL)")
		})

		Convey("空值与取反", func() {
			So(EmitSQL(Or(a.IsNull(), b.IsNotNull())).Text, ShouldEqual, "(a IS NULL) OR (b IS NOT NULL)")
			So(EmitSQL(Not(Or(a.Eq(1), a.Eq(2)))).Text, ShouldEqual, "NOT ((a = 1) OR (a = 2))")
		})

		Convey("表别名", func() {
			d := newDomain(t, WithAlias(1))
			So(d.Alias(), ShouldEqual, "t1.")
			So(EmitSQL(d.Field("a").Eq(Param("a"))).Text, ShouldEqual, "t1.a = ?")
		})

		Convey("没有谓词", func() {
			So(EmitSQL(nil), ShouldResemble, SQL{})
		})

		Convey("mysql 方言转义反斜杠", func() {
			p := b.Eq(`x\' OR 1=1 -- `)
			So(MySQL.EmitSQL(p).Text, ShouldEqual, `b = 'x\\'' OR 1=1 -- '`)
			So(EmitSQL(p).Text, ShouldEqual, `b = 'x\'' OR 1=1 -- '`)
			So(MySQL.EmitSQL(b.In([]string{"a\x00", "c\n"})).Text, ShouldEqual, `b IN ('a\0', 'c\n')`)
		})

		Convey("NaN 和 Inf 在构造时拒绝", func() {
			So(func() { a.Eq(math.NaN()) }, ShouldPanic)
			So(func() { a.Gt(math.Inf(1)) }, ShouldPanic)
			So(func() { x.Between(0, math.Inf(-1)) }, ShouldPanic)
			So(func() { x.In([]float64{1, math.NaN()}) }, ShouldPanic)
			So(func() { a.Eq(float32(1)) }, ShouldNotPanic)
		})
	})
}

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, c := range []struct {
		v    any
		want string
	}{
		{nil, "NULL"},
		{"o'clock", "'o''clock'"},
		{true, "TRUE"},
		{false, "FALSE"},
		{[]byte{0x01, 0xab}, "X'01ab'"},
		{int8(-3), "-3"},
		{uint64(7), "7"},
		{float32(0.5), "0.5"},
		{ts, "'2024-01-02 03:04:05'"},
		{time.Second, "'1s'"},
		{struct{ A int }{1}, "'{1}'"},
	} {
		assert.Equal(t, c.want, Literal(c.v))
	}
}

func TestFormatLiteral(t *testing.T) {
	for _, v := range []any{math.NaN(), math.Inf(1), float32(math.Inf(-1))} {
		_, err := ANSI.FormatLiteral(v)
		assert.True(t, errors.Is(err, ErrInvalidLiteral))
		_, err = MySQL.FormatLiteral(v)
		assert.True(t, errors.Is(err, ErrInvalidLiteral))
	}
	assert.Panics(t, func() { Literal(math.NaN()) })

	s, err := MySQL.FormatLiteral(`it's C:	mp` + "")
	assert.NoError(t, err)
	assert.Equal(t, `'it''s C:\tmp\Z'`, s)
	assert.Equal(t, "mysql", MySQL.String())
	assert.Equal(t, "ansi", ANSI.String())
}

func TestToMongo(t *testing.T) {
	d := newDomain(t)
	a, b, x := d.Field("a"), d.Field("b"), d.Field("x")

	Convey("mongo 过滤条件", t, func() {
		filter, err := ToMongo(a.Eq(1).And(b.In([]string{"p", "q"}), x.Between(Param("lo"), 9)), map[string]any{"lo": 3})
		So(err, ShouldBeNil)
		So(filter, ShouldResemble, bson.M{"$and": bson.A{
			bson.M{"a": 1},
			bson.M{"b": bson.M{"$in": bson.A{"p", "q"}}},
			bson.M{"x": bson.M{"$gte": 3, "$lte": 9}},
		}})

		filter, err = ToMongo(Or(a.Gt(1), Not(b.IsNull()), x.IsNotNull()), nil)
		So(err, ShouldBeNil)
		So(filter, ShouldResemble, bson.M{"$or": bson.A{
			bson.M{"a": bson.M{"$gt": 1}},
			bson.M{"$nor": bson.A{bson.M{"b": nil}}},
			bson.M{"x": bson.M{"$ne": nil}},
		}})

		_, err = ToMongo(a.Eq(Param("a")), map[string]any{})
		So(errors.Is(err, ErrMissingParameter), ShouldBeTrue)

		filter, err = ToMongo(nil, nil)
		So(err, ShouldBeNil)
		So(filter, ShouldBeEmpty)
	})
}
