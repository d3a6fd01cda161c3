package log

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNewLoggerWithOptions(t *testing.T) {
	Convey("NewLoggerWithOptions", t, func() {
		Convey("nil 选项返回错误", func() {
			_, err := NewLoggerWithOptions(nil)
			So(err, ShouldNotBeNil)
		})

		Convey("非法级别", func() {
			_, err := NewLoggerWithOptions(&Options{Level: "verbose"})
			So(err, ShouldNotBeNil)
		})

		Convey("非法格式", func() {
			_, err := NewLoggerWithOptions(&Options{Format: "xml", Output: "discard"})
			So(err, ShouldNotBeNil)
		})

		Convey("输出到文件", func() {
			path := filepath.Join(t.TempDir(), "logs", "app.log")
			l, err := NewLoggerWithOptions(&Options{
				Level:  "debug",
				Format: "json",
				Output: path,
				Fields: map[string]any{"service": "tablekit"},
			})
			So(err, ShouldBeNil)
			l.Debug("resolved columns", "table", "t_basic")

			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, `"msg":"resolved columns"`)
			So(string(data), ShouldContainSubstring, `"service":"tablekit"`)
		})

		Convey("同时输出到多个文件", func() {
			dir := t.TempDir()
			a, b := filepath.Join(dir, "a.log"), filepath.Join(dir, "b.log")
			l, err := NewLoggerWithOptions(&Options{Output: a + ", " + b})
			So(err, ShouldBeNil)
			l.Info("index chosen", "index", "PRIMARY")

			for _, path := range []string{a, b} {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, "index=PRIMARY")
			}
		})
	})
}

func TestSLog(t *testing.T) {
	Convey("SLog", t, func() {
		var buf bytes.Buffer
		l, err := NewLoggerWithWriter(&buf, "info")
		So(err, ShouldBeNil)

		Convey("低于级别的日志被过滤", func() {
			l.Debug("hidden")
			So(buf.String(), ShouldBeEmpty)
		})

		Convey("With 和 WithGroup", func() {
			l.With("table", "t1").WithGroup("handler").Info("created", "columns", 3)
			So(buf.String(), ShouldContainSubstring, "table=t1")
			So(buf.String(), ShouldContainSubstring, "handler.columns=3")
		})

		Convey("SetDefault 忽略 nil", func() {
			old := Default()
			SetDefault(nil)
			So(Default(), ShouldEqual, old)
			SetDefault(l)
			So(Default(), ShouldEqual, l)
			SetDefault(old)
		})
	})
}
