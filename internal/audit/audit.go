// Package audit records accepted snapshots for the collector operator.
//
// It implements a publish-subscribe pattern for distributing audit events to
// multiple destinations including files and HTTP endpoints.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Schera-ole/hostagent/internal/config"
	models "github.com/Schera-ole/hostagent/internal/model"
)

const (
	// eventBuffer is the capacity of every event channel.
	eventBuffer = 100

	// urlTimeout bounds a single delivery to the audit URL.
	urlTimeout = 5 * time.Second
)

// AuditLogger is an interface for logging audit events.
type AuditLogger interface {
	// Log records one accepted snapshot.
	Log(hostname, ipAddress string)
}

// auditLogger is a concrete implementation of AuditLogger that sends events to a channel.
type auditLogger struct {
	eventChan chan models.AuditEvent
	logger    *zap.SugaredLogger
}

// NewAuditLogger creates a new AuditLogger that sends events to the provided channel.
func NewAuditLogger(eventChan chan models.AuditEvent, logger *zap.SugaredLogger) AuditLogger {
	return &auditLogger{
		eventChan: eventChan,
		logger:    logger,
	}
}

// Log never blocks: when the channel is full the event is dropped.
func (a *auditLogger) Log(hostname, ipAddress string) {
	event := models.AuditEvent{
		TS:        time.Now().Format(time.RFC3339),
		Hostname:  hostname,
		IPAddress: ipAddress,
	}

	select {
	case a.eventChan <- event:
	default:
		a.logger.Warn("audit event dropped, channel is full")
	}
}

type nopLogger struct{}

func (nopLogger) Log(string, string) {}

// Broadcaster distributes audit events to multiple subscriber channels.
//
// A subscriber that is not ready loses the event; the broadcaster never
// blocks on it. Subscriber channels are closed when source is closed.
func Broadcaster(source <-chan models.AuditEvent, logger *zap.SugaredLogger, subs ...chan<- models.AuditEvent) {
	defer func() {
		for _, subChan := range subs {
			close(subChan)
		}
	}()
	for evt := range source {
		for _, subChan := range subs {
			select {
			case subChan <- evt:
			default:
				logger.Warn("audit event dropped for blocked subscriber")
			}
		}
	}
}

// FileSubscriber appends audit events to path as JSON lines.
func FileSubscriber(events <-chan models.AuditEvent, path string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorw("failed to encode audit event", "error", err)
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Errorw("failed to open audit file", "path", path, "error", err)
			continue
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			logger.Errorw("failed to write audit file", "path", path, "error", err)
		}
		f.Close()
	}
}

// URLSubscriber posts audit events to url.
func URLSubscriber(events <-chan models.AuditEvent, url string, client *http.Client, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorw("failed to encode audit event", "error", err)
			continue
		}
		if err := post(client, url, data); err != nil {
			logger.Warnw("failed to deliver audit event", "url", url, "error", err)
		}
	}
}

func post(client *http.Client, url string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), urlTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Setup starts the subscribers configured in cfg and returns the logger
// feeding them together with a function that flushes and stops them.
// Without any destination the returned logger discards events.
func Setup(cfg config.ServerConfig, logger *zap.SugaredLogger) (AuditLogger, func()) {
	var subs []chan<- models.AuditEvent
	var wg sync.WaitGroup

	if cfg.AuditFile != "" {
		ch := make(chan models.AuditEvent, eventBuffer)
		subs = append(subs, ch)
		wg.Add(1)
		go func() {
			defer wg.Done()
			FileSubscriber(ch, cfg.AuditFile, logger)
		}()
	}
	if cfg.AuditURL != "" {
		ch := make(chan models.AuditEvent, eventBuffer)
		subs = append(subs, ch)
		client := &http.Client{Timeout: urlTimeout}
		wg.Add(1)
		go func() {
			defer wg.Done()
			URLSubscriber(ch, cfg.AuditURL, client, logger)
		}()
	}
	if len(subs) == 0 {
		return nopLogger{}, func() {}
	}

	source := make(chan models.AuditEvent, eventBuffer)
	go Broadcaster(source, logger, subs...)

	var once sync.Once
	return NewAuditLogger(source, logger), func() {
		once.Do(func() {
			close(source)
			wg.Wait()
		})
	}
}
