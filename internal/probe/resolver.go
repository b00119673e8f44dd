package probe

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
)

// ResolveReply is the classified shape of one resolution attempt's answer.
type ResolveReply struct {
	Rcode   int
	Answers int
}

// Resolver performs one name resolution against a specific server.
// Implementations must honor ctx cancellation and deadlines.
type Resolver interface {
	Resolve(ctx context.Context, server, domain string) (*ResolveReply, error)
}

// DNSResolver resolves A records over UDP using a plain DNS exchange.
type DNSResolver struct {
	client *dns.Client
}

func NewDNSResolver(timeout time.Duration) *DNSResolver {
	return &DNSResolver{
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
	}
}

func (r *DNSResolver) Resolve(ctx context.Context, server, domain string) (*ResolveReply, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeA)

	// Bare IPs get the default DNS port; an explicit port wins.
	addr := server
	if _, _, err := net.SplitHostPort(server); err != nil {
		addr = net.JoinHostPort(server, "53")
	}

	resp, _, err := r.client.ExchangeContext(ctx, msg, addr)
	if err != nil {
		return nil, err
	}

	reply := &ResolveReply{Rcode: resp.Rcode}
	for _, ans := range resp.Answer {
		switch ans.(type) {
		case *dns.A, *dns.AAAA, *dns.CNAME:
			reply.Answers++
		}
	}

	return reply, nil
}
