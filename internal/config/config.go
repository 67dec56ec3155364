package config

import (
	"flag"
	"os"
	"strings"
)

type ServerConfig struct {
	Address       string
	DatabaseDSN   string
	Key           string
	AgentTokens   []string
	AuditFile     string
	AuditURL      string
	LogLevel      string
	MigrationsDir string
}

func NewServerConfig() (*ServerConfig, error) {
	return parseServerConfig(flag.CommandLine, os.Args[1:])
}

func parseServerConfig(fs *flag.FlagSet, args []string) (*ServerConfig, error) {
	config := &ServerConfig{
		Address:       DefaultAddress,
		MigrationsDir: DefaultMigrationsDir,
	}

	address := fs.String("a", config.Address, "address")
	databaseDSN := fs.String("d", "", "database dsn, empty for in-memory storage")
	key := fs.String("k", "", "key for payload signature verification")
	agentTokens := fs.String("tokens", "", "comma separated agent tokens registered at start")
	auditFile := fs.String("audit-file", "", "path of the audit log file")
	auditURL := fs.String("audit-url", "", "URL receiving audit events")
	logLevel := fs.String("l", "info", "log level")
	migrationsDir := fs.String("migrations", config.MigrationsDir, "directory with SQL migrations")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envVars := map[string]*string{
		"ADDRESS":        address,
		"DATABASE_DSN":   databaseDSN,
		"KEY":            key,
		"AGENT_TOKENS":   agentTokens,
		"AUDIT_FILE":     auditFile,
		"AUDIT_URL":      auditURL,
		"LOG_LEVEL":      logLevel,
		"MIGRATIONS_DIR": migrationsDir,
	}

	for envVar, flag := range envVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	config.Address = *address
	config.DatabaseDSN = *databaseDSN
	config.Key = *key
	config.AgentTokens = splitTokens(*agentTokens)
	config.AuditFile = *auditFile
	config.AuditURL = *auditURL
	config.LogLevel = *logLevel
	config.MigrationsDir = *migrationsDir

	return config, nil
}

func splitTokens(raw string) []string {
	var tokens []string
	for _, token := range strings.Split(raw, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
