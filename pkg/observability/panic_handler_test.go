package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "archive job")
		panic("s3 client nil")
	})

	assert.Contains(t, buf.String(), "PANIC recovered")
	assert.Contains(t, buf.String(), "archive job")
	assert.Contains(t, buf.String(), "s3 client nil")
}

func TestRecoverPanicNoPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "noop")
	}()

	assert.Empty(t, buf.String())
}
