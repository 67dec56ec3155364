package collector

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	models "github.com/Schera-ole/hostagent/internal/model"
)

// redisMetrics runs INFO against the configured Redis instance.
func redisMetrics(ctx context.Context, config models.RedisConfig, timeout time.Duration) (map[string]any, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr(),
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		MaxRetries:   -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := client.Info(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("redis info: %w", err)
	}
	return parseRedisInfo(info), nil
}

// parseRedisInfo flattens INFO output into a map. Finite numeric values are
// converted, everything else is kept as a string.
func parseRedisInfo(info string) map[string]any {
	result := make(map[string]any)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			result[key] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			result[key] = f
		} else {
			result[key] = value
		}
	}
	return result
}

// NginxStatus is the parsed stub_status page.
type NginxStatus struct {
	Active   int64 `json:"active"`
	Accepts  int64 `json:"accepts"`
	Handled  int64 `json:"handled"`
	Requests int64 `json:"requests"`
	Reading  int64 `json:"reading"`
	Writing  int64 `json:"writing"`
	Waiting  int64 `json:"waiting"`
}

func nginxMetrics(ctx context.Context, client *http.Client, statusURL string) (*NginxStatus, error) {
	body, err := getText(ctx, client, statusURL)
	if err != nil {
		return nil, err
	}
	return parseNginxStatus(body)
}

// parseNginxStatus parses the ngx_http_stub_status_module output:
//
//	Active connections: 291
//	server accepts handled requests
//	 16630948 16630948 31070465
//	Reading: 6 Writing: 179 Waiting: 106
func parseNginxStatus(body string) (*NginxStatus, error) {
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("unexpected stub_status format: %d lines", len(lines))
	}

	status := &NginxStatus{}
	var err error

	active, ok := strings.CutPrefix(strings.TrimSpace(lines[0]), "Active connections:")
	if !ok {
		return nil, fmt.Errorf("unexpected stub_status header: %q", lines[0])
	}
	if status.Active, err = strconv.ParseInt(strings.TrimSpace(active), 10, 64); err != nil {
		return nil, fmt.Errorf("parse active connections: %w", err)
	}

	counters := strings.Fields(lines[2])
	if len(counters) != 3 {
		return nil, fmt.Errorf("unexpected stub_status counters: %q", lines[2])
	}
	for i, dst := range []*int64{&status.Accepts, &status.Handled, &status.Requests} {
		if *dst, err = strconv.ParseInt(counters[i], 10, 64); err != nil {
			return nil, fmt.Errorf("parse counter %d: %w", i, err)
		}
	}

	// Reading: 6 Writing: 179 Waiting: 106
	fields := strings.Fields(lines[3])
	if len(fields) != 6 {
		return nil, fmt.Errorf("unexpected stub_status states: %q", lines[3])
	}
	for i, dst := range []*int64{&status.Reading, &status.Writing, &status.Waiting} {
		if *dst, err = strconv.ParseInt(fields[2*i+1], 10, 64); err != nil {
			return nil, fmt.Errorf("parse %s: %w", strings.TrimSuffix(fields[2*i], ":"), err)
		}
	}
	return status, nil
}
