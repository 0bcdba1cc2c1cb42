package binding

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/aivorynet/breakmark/pkg/capture"
)

// sources maps a script filename to the source last executed under it.
var sources sync.Map

// RememberSource records src as the source of filename so breakpoint hits in
// it can list nearby lines. ExecFile does this for every script it runs.
func RememberSource(filename string, src []byte) {
	sources.Store(filename, src)
}

// readSource resolves src the way starlark.ExecFile does: a string, []byte or
// io.Reader, or the contents of filename when src is nil.
func readSource(filename string, src interface{}) ([]byte, error) {
	switch s := src.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	case io.Reader:
		data, err := io.ReadAll(s)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filename, err)
		}
		return data, nil
	case nil:
		return os.ReadFile(filename)
	default:
		return nil, fmt.Errorf("invalid source type %T for %s", src, filename)
	}
}

func sourceContext(filename string, line int) []capture.SourceLine {
	src, ok := sources.Load(filename)
	if !ok {
		return nil
	}
	return capture.SourceContext(src.([]byte), line, capture.SourceContextLines)
}
