package probe

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// ErrPingPermission is returned when the ICMP socket cannot be opened
// without elevated privileges. Callers treat it as "pre-flight
// unavailable", not as a run failure.
var ErrPingPermission = errors.New("icmp listen requires root or CAP_NET_RAW")

// Pinger checks whether a resolver host answers ICMP echo at all,
// before any DNS traffic is scheduled against it.
type Pinger struct {
	Timeout time.Duration
}

// Reachable sends one echo request to target and waits for the matching
// reply. A false result means no reply within Timeout, which for a DNS
// server usually predicts SERVER_UNREACHABLE probes.
func (p *Pinger) Reachable(target string) (bool, error) {
	ipAddr, err := net.ResolveIPAddr("ip4", target)
	if err != nil {
		return false, fmt.Errorf("resolve target: %w", err)
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return false, ErrPingPermission
		}
		return false, fmt.Errorf("icmp listen: %w", err)
	}
	defer conn.Close()

	id := os.Getpid() & 0xffff
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   id,
			Seq:  1,
			Data: []byte("nsbench"),
		},
	}

	b, err := msg.Marshal(nil)
	if err != nil {
		return false, fmt.Errorf("icmp marshal: %w", err)
	}

	if _, err := conn.WriteTo(b, ipAddr); err != nil {
		return false, nil
	}

	deadline := time.Now().Add(p.Timeout)
	buf := make([]byte, 1500)

	for {
		_ = conn.SetReadDeadline(deadline)
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return false, nil
		}

		if peer.String() != ipAddr.String() {
			continue
		}

		recv, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), buf[:n])
		if err != nil {
			continue
		}

		if recv.Type == ipv4.ICMPTypeEchoReply {
			if echo, ok := recv.Body.(*icmp.Echo); ok && echo.ID == id {
				return true, nil
			}
		}
	}
}
