package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}

	assert.False(t, ShouldRetry(nil))
	assert.True(t, ShouldRetry(dial))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}))
	assert.True(t, ShouldRetry(timeoutErr{}))
	assert.True(t, ShouldRetry(fmt.Errorf("send: %w", timeoutErr{})))
	assert.False(t, ShouldRetry(read))
	assert.False(t, ShouldRetry(errors.New("telegram: bad request (400)")))
	assert.False(t, ShouldRetry(&url.Error{Op: "Post", URL: "x", Err: context.Canceled}))
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(502))
	assert.True(t, RetryableStatus(503))
	assert.True(t, RetryableStatus(504))
	assert.False(t, RetryableStatus(500))
	assert.False(t, RetryableStatus(429))
	assert.False(t, RetryableStatus(200))
}
