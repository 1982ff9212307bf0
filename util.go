package persist

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
)

// failure carries an archive error through a panic so that safelyCall can
// tell it apart from a genuine runtime panic.
type failure struct {
	err error
}

func fail(err error) {
	panic(failure{err})
}

func failf(format string, args ...any) {
	panic(failure{fmt.Errorf(format, args...)})
}

type panicked struct {
	reason interface{}
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if f, ok := p.(failure); ok {
				err = f.err
			} else {
				err = panicked{p, string(debug.Stack())}
			}
		}
	}()
	fn()
	return nil
}

func splitByte(s string, sep byte) (string, string, bool) {
	i := strings.IndexByte(s, sep)
	if i < 0 {
		return s, "", false
	} else {
		return s[:i], s[i+1:], true
	}
}

func rpad(s string, n int, pad rune) string {
	rem := n - len(s)
	if rem <= 0 {
		return s
	}
	return s + strings.Repeat(string(pad), rem)
}

func hexstr(b []byte) string {
	if b == nil {
		return "<nil>"
	}
	if len(b) == 0 {
		return "<empty>"
	}
	return hex.EncodeToString(b)
}

func hexAttr(key string, b []byte) slog.Attr {
	return slog.String(key, hexstr(b))
}
