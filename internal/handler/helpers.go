package handler

import (
	"bytes"
	"compress/gzip"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
)

// maxBodySize bounds an accepted request body before decompression.
const maxBodySize = 10 << 20

func CalculatedHash(compressedBody []byte, key string) []byte {
	h := hmac.New(sha256.New, []byte(key))
	h.Write(compressedBody)
	return h.Sum(nil)
}

// VerifyRequestHash checks the HMAC header against body. Verification is
// skipped when no key is configured.
func VerifyRequestHash(body []byte, headerHash string, key string) error {
	if key == "" {
		return nil
	}
	if headerHash == "" {
		return fmt.Errorf("missing hash")
	}
	headerHashBytes, err := hex.DecodeString(headerHash)
	if err != nil {
		return fmt.Errorf("invalid hash format")
	}
	if !hmac.Equal(headerHashBytes, CalculatedHash(body, key)) {
		return fmt.Errorf("hash mismatch")
	}
	return nil
}

func DecompressBody(body []byte) ([]byte, error) {
	gzipReader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decompressedData, err := io.ReadAll(io.LimitReader(gzipReader, 4*maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	return decompressedData, nil
}

func ReadRequestBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body.Close()
	return body, nil
}

// RemoteIP strips the port from r.RemoteAddr.
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStorageError maps repository failures to HTTP statuses.
func writeStorageError(w http.ResponseWriter, err error, logger *zap.SugaredLogger) {
	switch {
	case errors.Is(err, internalerrors.ErrAgentNotFound):
		http.Error(w, "agent not found", http.StatusNotFound)
	case errors.Is(err, internalerrors.ErrInvalidConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, internalerrors.ErrStorageUnavailable):
		logger.Warnw("storage unavailable", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		logger.Errorw("storage failure", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
