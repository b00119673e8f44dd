package probe

import (
	"context"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"deadline exceeded", context.DeadlineExceeded, OutcomeQueryTimeout},
		{"wrapped deadline", &net.OpError{Op: "read", Err: timeoutErr{}}, OutcomeQueryTimeout},
		{"connection refused", &net.OpError{Op: "read", Err: syscall.ECONNREFUSED}, OutcomeUnreachable},
		{"host unreachable", &net.OpError{Op: "write", Err: syscall.EHOSTUNREACH}, OutcomeUnreachable},
		{"network unreachable", syscall.ENETUNREACH, OutcomeUnreachable},
		{"dial failure", &net.OpError{Op: "dial", Err: errors.New("no route")}, OutcomeUnreachable},
		{"arbitrary error", errors.New("boom"), OutcomeServerFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(nil, tt.err))
		})
	}
}

func TestClassifyReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply *ResolveReply
		want  Outcome
	}{
		{"answers present", &ResolveReply{Rcode: dns.RcodeSuccess, Answers: 2}, OutcomeOK},
		{"noerror empty answer", &ResolveReply{Rcode: dns.RcodeSuccess, Answers: 0}, OutcomeNoAddresses},
		{"nxdomain", &ResolveReply{Rcode: dns.RcodeNameError}, OutcomeDomainNotFound},
		{"refused", &ResolveReply{Rcode: dns.RcodeRefused}, OutcomeServerRefused},
		{"servfail", &ResolveReply{Rcode: dns.RcodeServerFailure}, OutcomeServerFailure},
		{"notimp", &ResolveReply{Rcode: dns.RcodeNotImplemented}, OutcomeServerFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.reply, nil))
		})
	}
}

func TestClassifyIsTotal(t *testing.T) {
	// The degenerate no-reply-no-error case still maps to a code.
	assert.Equal(t, OutcomeServerFailure, Classify(nil, nil))
}

func TestTimingSources(t *testing.T) {
	stop := MonotonicTiming{}.Start()
	time.Sleep(2 * time.Millisecond)
	elapsed := stop()
	assert.Greater(t, elapsed, 0.0)
	assert.Equal(t, PrecisionHigh, MonotonicTiming{}.Precision())
	assert.Equal(t, PrecisionCoarse, CoarseTiming{}.Precision())
}
