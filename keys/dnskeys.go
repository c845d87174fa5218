package keys

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/miekg/dns"
)

// DNSResolver resolves agent public keys from DNS TXT records, DKIM-style.
// The record lives at <agentID>._jacskey.<zone> and has the form
//
//	v=JACS1; a=<signingAlgorithm>; p=<base64 public key>
//
// This provider is verification-only: it can never hand out private keys.
type DNSResolver struct {
	zone       string
	serverAddr string
	client     *dns.Client
}

// NewDNSResolver creates a resolver querying serverAddr (host:port) for
// records under zone.
func NewDNSResolver(zone, serverAddr string) *DNSResolver {
	return &DNSResolver{
		zone:       strings.TrimSuffix(zone, "."),
		serverAddr: serverAddr,
		client:     new(dns.Client),
	}
}

// Resolve looks up the agent's TXT record and parses the published key.
func (r *DNSResolver) Resolve(ctx context.Context, agentID interfaces.AgentID) (interfaces.PublicKey, interfaces.PublicKeyHash, error) {
	name := dns.Fqdn(fmt.Sprintf("%s._jacskey.%s", agentID, r.zone))

	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypeTXT)

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.serverAddr)
	if err != nil {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: dns query failed: %v", interfaces.ErrKeyResolution, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: dns rcode %s for %s", interfaces.ErrKeyResolution, dns.RcodeToString[resp.Rcode], name)
	}

	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		pub, _, err := ParseKeyRecord(strings.Join(txt.Txt, ""))
		if err != nil {
			continue
		}
		return pub, interfaces.HashPublicKey(pub), nil
	}

	return nil, interfaces.PublicKeyHash{}, fmt.Errorf("%w: no key record at %s", interfaces.ErrKeyResolution, name)
}

// SigningKey always fails: DNS publishes verification material only.
func (r *DNSResolver) SigningKey(ctx context.Context, agentID interfaces.AgentID) (*interfaces.SigningKeyHandle, error) {
	return nil, fmt.Errorf("%w: dns resolver cannot provide signing keys", interfaces.ErrKeyResolution)
}

// FormatKeyRecord renders the TXT record value for a public key.
func FormatKeyRecord(algorithm interfaces.SigningAlgorithm, pub interfaces.PublicKey) string {
	return fmt.Sprintf("v=JACS1; a=%s; p=%s", algorithm, base64.StdEncoding.EncodeToString(pub))
}

// ParseKeyRecord parses a TXT record value published by FormatKeyRecord.
func ParseKeyRecord(record string) (interfaces.PublicKey, interfaces.SigningAlgorithm, error) {
	var version, algorithmTag, keyData string
	for _, part := range strings.Split(record, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "v="):
			version = strings.TrimPrefix(part, "v=")
		case strings.HasPrefix(part, "a="):
			algorithmTag = strings.TrimPrefix(part, "a=")
		case strings.HasPrefix(part, "p="):
			keyData = strings.TrimPrefix(part, "p=")
		}
	}

	if version != "JACS1" {
		return nil, "", fmt.Errorf("unsupported key record version: %q", version)
	}
	algorithm, err := interfaces.ParseSigningAlgorithm(algorithmTag)
	if err != nil {
		return nil, "", err
	}
	pub, err := base64.StdEncoding.DecodeString(keyData)
	if err != nil {
		return nil, "", fmt.Errorf("invalid key encoding: %w", err)
	}
	if len(pub) == 0 {
		return nil, "", fmt.Errorf("empty public key in record")
	}
	return pub, algorithm, nil
}
