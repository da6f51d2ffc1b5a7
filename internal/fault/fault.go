// Package fault 定义自动交易链路的错误分类。
package fault

import (
	"errors"
	"fmt"
)

// Kind 表示错误类别。
type Kind string

const (
	// KindData K线不足或序列异常，本次计算失败且不返回部分结果。
	KindData Kind = "data"
	// KindUpstream 交易所或决策模型不可用。
	KindUpstream Kind = "upstream"
	// KindConstraint 仓位或信心度门槛未满足，属于主动跳过。
	KindConstraint Kind = "constraint"
	// KindPersistence 状态或账本读写失败。
	KindPersistence Kind = "persistence"
)

// Error 携带分类、操作名与原始错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Data 包装数据类错误。
func Data(op string, err error) error {
	return wrap(KindData, op, err)
}

// Upstream 包装上游调用失败。
func Upstream(op string, err error) error {
	return wrap(KindUpstream, op, err)
}

// Persistence 包装存储失败。
func Persistence(op string, err error) error {
	return wrap(KindPersistence, op, err)
}

// Constraint 构造门槛未满足的跳过原因。
func Constraint(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConstraint, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf 返回错误链中最外层的分类，未分类时返回空字符串。
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is 判断错误是否属于指定分类。
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason 返回去掉分类前缀的原因描述。
func Reason(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Err != nil {
		return fe.Err.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
