package service

import (
	"io"
	"strings"
	"testing"

	"github.com/domusnext/eval/internal/adapter/blob"
)

func newTempBucket(t *testing.T) (*blob.DirBucket, error) {
	t.Helper()
	return blob.NewDirBucket(t.TempDir())
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}
