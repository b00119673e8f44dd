package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/miekg/dns"
)

// Outcome classifies why a probe succeeded or failed. The set is closed:
// every error the resolution primitive can surface maps to exactly one code.
type Outcome string

const (
	OutcomeOK             Outcome = "OK"
	OutcomeDomainNotFound Outcome = "DOMAIN_NOT_FOUND"
	OutcomeServerRefused  Outcome = "SERVER_REFUSED"
	OutcomeQueryTimeout   Outcome = "QUERY_TIMEOUT"
	OutcomeUnreachable    Outcome = "SERVER_UNREACHABLE"
	OutcomeNoAddresses    Outcome = "NO_ADDRESSES"
	OutcomeServerFailure  Outcome = "SERVER_FAILURE"
)

// Classify maps a resolution attempt's reply and error to an Outcome.
// It is total: any (reply, err) combination yields a code, with
// SERVER_FAILURE as the catch-all.
func Classify(reply *ResolveReply, err error) Outcome {
	if err != nil {
		return classifyError(err)
	}
	if reply == nil {
		return OutcomeServerFailure
	}

	switch reply.Rcode {
	case dns.RcodeSuccess:
		if reply.Answers == 0 {
			return OutcomeNoAddresses
		}
		return OutcomeOK
	case dns.RcodeNameError:
		return OutcomeDomainNotFound
	case dns.RcodeRefused:
		return OutcomeServerRefused
	default:
		return OutcomeServerFailure
	}
}

func classifyError(err error) Outcome {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return OutcomeQueryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeQueryTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return OutcomeUnreachable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return OutcomeUnreachable
	}

	return OutcomeServerFailure
}
