package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
)

var (
	// ErrInvalidQuery is returned for queries outside 2..100 characters.
	ErrInvalidQuery = errors.New("query must be between 2 and 100 characters")
	// ErrEmptyBody marks a successful response without content.
	ErrEmptyBody = errors.New("response has no body")
)

// StatusError 表示目标站点返回了非 2xx 状态码。
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// SearchFailed 表示所有尝试（包括可能的直连回退）都失败了。
type SearchFailed struct {
	Attempts int
	LastErr  error
}

func (e *SearchFailed) Error() string {
	return fmt.Sprintf("failed to fetch results after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *SearchFailed) Unwrap() error {
	return e.LastErr
}

// Blocked reports whether the terminal error was an HTTP 403 from the target site.
func (e *SearchFailed) Blocked() bool {
	return isStatus(e.LastErr, http.StatusForbidden)
}

func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// shouldQuarantine 判断错误是否说明代理本身不可用：连接重置、拒绝、超时或 403。
func shouldQuarantine(err error) bool {
	if err == nil {
		return false
	}
	if isStatus(err, http.StatusForbidden) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
