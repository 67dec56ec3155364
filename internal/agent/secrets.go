package agent

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	internalerrors "github.com/Schera-ole/hostagent/internal/errors"
)

// LoadEnvFile loads dir/.env into the process environment. Variables that are
// already set are left alone. A missing file is not an error.
func LoadEnvFile(dir string) error {
	path := filepath.Join(dir, EnvFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadToken reads the agent token from dir/TOKEN.
func LoadToken(dir string) (string, error) {
	path := filepath.Join(dir, TokenFile)
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", internalerrors.ErrTokenMissing, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	token := strings.TrimRight(string(raw), "\r\n")
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: %s is empty", internalerrors.ErrTokenMissing, path)
	}
	return token, nil
}
