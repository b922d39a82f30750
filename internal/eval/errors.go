package eval

import "errors"

// ErrDecodeFailed covers a malformed framed-buffer payload or a
// truncated count prefix encountered mid-evaluation.
var ErrDecodeFailed = errors.New("eval: decode failed")
