package proxy

import (
	"crypto/tls"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// maxLeafCerts bounds the MITM leaf certificates kept in memory
const maxLeafCerts = 512

// leafCerts is the goproxy.CertStorage used while intercepting TLS.
// Certificates are kept per SNI hostname in a bounded LRU, and concurrent
// handshakes for a new hostname share a single signing.
type leafCerts struct {
	byHost  *lru.Cache
	signing singleflight.Group
}

func newLeafCerts(size int) (*leafCerts, error) {
	byHost, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating certificate cache: %w", err)
	}
	return &leafCerts{byHost: byHost}, nil
}

func (l *leafCerts) Fetch(hostname string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	if v, ok := l.byHost.Get(hostname); ok {
		return v.(*tls.Certificate), nil
	}

	v, err, _ := l.signing.Do(hostname, func() (any, error) {
		if v, ok := l.byHost.Get(hostname); ok {
			return v, nil
		}
		cert, err := gen()
		if err != nil {
			return nil, err
		}
		l.byHost.Add(hostname, cert)
		logrus.Debugf("Signed leaf certificate for %s (%d cached)", hostname, l.byHost.Len())
		return cert, nil
	})
	if err != nil {
		logrus.Errorf("Certificate for %s: %v", hostname, err)
		return nil, fmt.Errorf("signing certificate for %s: %w", hostname, err)
	}
	return v.(*tls.Certificate), nil
}
