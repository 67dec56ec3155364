package boundedio

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

func unboundedCalls() {
	http.Get("http://example.com")                                       // want "http.Get has no timeout"
	http.Head("http://example.com")                                      // want "http.Head has no timeout"
	http.Post("http://example.com", "text/plain", strings.NewReader("")) // want "http.Post has no timeout"
	http.PostForm("http://example.com", url.Values{})                    // want "http.PostForm has no timeout"
	net.Dial("tcp", "example.com:80")                                    // want "net.Dial has no timeout"
	http.DefaultClient.Do(nil)                                           // want "http.DefaultClient has no timeout"
}

func clients() {
	_ = &http.Client{}                                // want "http.Client without Timeout"
	_ = http.Client{Transport: http.DefaultTransport} // want "http.Client without Timeout"
	_ = &http.Client{Timeout: 5 * time.Second}
}

func boundedCalls(ctx context.Context) {
	client := &http.Client{Timeout: time.Second}
	client.Get("http://example.com")

	net.DialTimeout("tcp", "example.com:80", time.Second)
	dialer := &net.Dialer{Timeout: time.Second}
	dialer.DialContext(ctx, "tcp", "example.com:80")
}
