package collector

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const pingPort = "80"

// tcpPing measures the time to open a TCP connection to host:port in
// milliseconds. It returns nil when the host is unreachable.
func tcpPing(ctx context.Context, host, port string, timeout time.Duration) any {
	dialer := &net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil
	}
	elapsed := time.Since(start)
	conn.Close()
	return float64(elapsed.Microseconds()) / 1000
}

// publicIP asks an echo service for the address the host is seen from,
// forcing the given address family.
func publicIP(ctx context.Context, echoURL string, ipv6 bool, timeout time.Duration) (string, error) {
	network := "tcp4"
	if ipv6 {
		network = "tcp6"
	}
	dialer := &net.Dialer{Timeout: timeout}
	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, addr)
			},
		},
	}
	defer client.CloseIdleConnections()

	body, err := getText(ctx, client, echoURL)
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(body)
	if net.ParseIP(ip) == nil {
		return "", fmt.Errorf("echo service returned %q", ip)
	}
	return ip, nil
}

func getText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
