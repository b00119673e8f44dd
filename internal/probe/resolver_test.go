package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func answerA(w dns.ResponseWriter, r *dns.Msg) {
	reply := new(dns.Msg)
	reply.SetReply(r)
	rr, _ := dns.NewRR(r.Question[0].Name + " 60 IN A 192.0.2.10")
	reply.Answer = append(reply.Answer, rr)
	_ = w.WriteMsg(reply)
}

func answerRcode(rcode int) dns.HandlerFunc {
	return func(w dns.ResponseWriter, r *dns.Msg) {
		reply := new(dns.Msg)
		reply.SetRcode(r, rcode)
		_ = w.WriteMsg(reply)
	}
}

func TestDNSResolverSuccess(t *testing.T) {
	addr := startDNSServer(t, answerA)
	r := NewDNSResolver(2 * time.Second)

	reply, err := r.Resolve(context.Background(), addr, "example.com")

	require.NoError(t, err)
	assert.Equal(t, dns.RcodeSuccess, reply.Rcode)
	assert.Equal(t, 1, reply.Answers)
	assert.Equal(t, OutcomeOK, Classify(reply, err))
}

func TestDNSResolverNXDomain(t *testing.T) {
	addr := startDNSServer(t, answerRcode(dns.RcodeNameError))
	r := NewDNSResolver(2 * time.Second)

	reply, err := r.Resolve(context.Background(), addr, "nope.invalid")

	require.NoError(t, err)
	assert.Equal(t, OutcomeDomainNotFound, Classify(reply, err))
}

func TestDNSResolverEmptyAnswer(t *testing.T) {
	addr := startDNSServer(t, answerRcode(dns.RcodeSuccess))
	r := NewDNSResolver(2 * time.Second)

	reply, err := r.Resolve(context.Background(), addr, "example.com")

	require.NoError(t, err)
	assert.Equal(t, OutcomeNoAddresses, Classify(reply, err))
}

func TestDNSResolverTimeout(t *testing.T) {
	addr := startDNSServer(t, func(dns.ResponseWriter, *dns.Msg) {
		// Swallow the query so the client times out.
	})
	r := NewDNSResolver(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.Resolve(ctx, addr, "example.com")

	require.Error(t, err)
	assert.Equal(t, OutcomeQueryTimeout, Classify(nil, err))
}
