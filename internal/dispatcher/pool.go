package dispatcher

import (
	"crypto/tls"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// Pool round-robins a small set of fasthttp clients so punishment and
// cleanup traffic do not serialize on one connection pool.
type Pool struct {
	clients []*fasthttp.Client
	next    atomic.Uint32
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ClientSessionCache: tls.NewLRUClientSessionCache(128),
	}

	clients := make([]*fasthttp.Client, size)
	for i := range clients {
		clients[i] = &fasthttp.Client{
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        5 * time.Second,
			MaxConnWaitTimeout:  time.Second,
			ReadBufferSize:      32768,
			WriteBufferSize:     16384,
			MaxResponseBodySize: 4 * 1024 * 1024,
			DialDualStack:       true,
			TLSConfig:           tlsConfig,
			// Retries are the engine's job, with backoff.
			MaxIdemponentCallAttempts: 1,
			NoDefaultUserAgentHeader:  true,
		}
	}
	return &Pool{clients: clients}
}

func (p *Pool) client() *fasthttp.Client {
	n := p.next.Add(1)
	return p.clients[int(n)%len(p.clients)]
}
