package handler

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidHandler 表处理器无效（映射错误或已失效）时任何调用都返回该错误
	ErrInvalidHandler = errors.New("invalid table handler")
	// ErrMapping 映射解析失败
	ErrMapping = errors.New("table mapping error")
)

// ValueError 列值不合法，附带 SQLSTATE
type ValueError struct {
	Column   string
	SQLState string
	Message  string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("column %s: %s (SQLSTATE %s)", e.Column, e.Message, e.SQLState)
}
