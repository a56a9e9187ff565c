// mailctl is a small end-to-end exerciser for the protocol engines: it
// dials a real IMAP or POP3 server, authenticates (plain or SASL), upgrades
// TLS in-band when asked, and drives one folder/mailbox operation, wiring
// every external collaborator the engines only define interfaces for
// (SASL, TLS, Prometheus) to a concrete implementation.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eslider/mails/protocol/netio"
)

func main() {
	var (
		proto     = flag.String("proto", "imap", "protocol: imap or pop")
		host      = flag.String("host", "", "server host")
		port      = flag.Int("port", 0, "server port (default 993/imaps, 143/imap, 995/pop3s, 110/pop3)")
		user      = flag.String("user", "", "username")
		pass      = flag.String("pass", "", "password")
		useTLS    = flag.Bool("tls", false, "connect with implicit TLS")
		startTLS  = flag.Bool("starttls", false, "upgrade to TLS in-band after connect (STARTTLS/STLS)")
		mechanism = flag.String("mech", "", "SASL mechanism: plain, login, or empty for native LOGIN/USER+PASS")
		folder    = flag.String("folder", "INBOX", "IMAP folder to select (imap only)")
		cacheDir  = flag.String("cachedir", "./mailctl-cache", "content-addressed message body cache root")
		insecure  = flag.Bool("insecure-skip-verify", false, "skip TLS certificate verification (testing only)")
	)
	flag.Parse()

	if *host == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "usage: mailctl -proto imap|pop -host H -user U -pass P [-tls] [-starttls] [-mech plain|login] [-folder NAME]")
		os.Exit(2)
	}

	reg := prometheus.NewRegistry()
	metrics := netio.NewMetrics(reg, strings.ToLower(*proto), prometheus.Labels{"host": *host})

	p := resolvePort(*proto, *port, *useTLS)
	tlsCfg := &tls.Config{ServerName: *host, InsecureSkipVerify: *insecure}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := dial(ctx, *host, p, *useTLS, tlsCfg)
	if err != nil {
		log.Fatalf("mailctl: dial %s:%d: %v", *host, p, err)
	}
	nc := netio.New(ctx, conn, metrics)

	switch strings.ToLower(*proto) {
	case "imap":
		if err := runIMAP(nc, *host, *user, *pass, *mechanism, *folder, *cacheDir, *startTLS, tlsCfg); err != nil {
			log.Fatalf("mailctl: %v", err)
		}
	case "pop":
		if err := runPOP(nc, *host, *user, *pass, *mechanism, *cacheDir, *startTLS, tlsCfg); err != nil {
			log.Fatalf("mailctl: %v", err)
		}
	default:
		log.Fatalf("mailctl: unknown -proto %q", *proto)
	}

	printMetrics(reg)
}

func resolvePort(proto string, explicit int, useTLS bool) int {
	if explicit != 0 {
		return explicit
	}
	switch strings.ToLower(proto) {
	case "imap":
		if useTLS {
			return 993
		}
		return 143
	case "pop":
		if useTLS {
			return 995
		}
		return 110
	default:
		return 0
	}
}

func dial(ctx context.Context, host string, port int, useTLS bool, cfg *tls.Config) (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	d := net.Dialer{}
	if !useTLS {
		return d.DialContext(ctx, "tcp", addr)
	}
	tlsDialer := tls.Dialer{NetDialer: &d, Config: cfg}
	return tlsDialer.DialContext(ctx, "tcp", addr)
}

// printMetrics renders the registry's counters to stdout; mailctl is a CLI,
// not a long-running service, so there's no point starting an HTTP server
// just to scrape it once.
func printMetrics(reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Printf("mailctl: gather metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var v float64
			if c := m.GetCounter(); c != nil {
				v = c.GetValue()
			}
			fmt.Printf("%s %v\n", mf.GetName(), v)
		}
	}
}
