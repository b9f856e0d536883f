// Package imapstore implements the message store provider over live IMAP
// accounts. Each configured account is one store; mailboxes are containers
// (hierarchy derived from the LIST delimiter) and messages are items. Every
// item classifies as mail, so merges through this provider route everything
// into the destination inbox.
package imapstore

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/brandon/storemerge/internal/provider"
)

// AccountConfig holds the IMAP settings of one account.
type AccountConfig struct {
	Name     string
	Host     string
	Port     int
	Username string
	Password string
}

// LoadAccounts reads account configurations from the environment: either a
// single IMAP_HOST/IMAP_PORT/IMAP_USERNAME/IMAP_PASSWORD set, or numbered
// ACCOUNT_1_IMAP_HOST style groups.
func LoadAccounts() ([]AccountConfig, error) {
	if host := getEnv("IMAP_HOST", ""); host != "" {
		return []AccountConfig{{
			Name:     getEnv("ACCOUNT_NAME", "default"),
			Host:     host,
			Port:     getEnvInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
		}}, nil
	}

	var accounts []AccountConfig
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", num)
		name := getEnv(prefix+"NAME", "")
		if name == "" {
			break
		}
		accounts = append(accounts, AccountConfig{
			Name:     name,
			Host:     getEnv(prefix+"IMAP_HOST", ""),
			Port:     getEnvInt(prefix+"IMAP_PORT", 993),
			Username: getEnv(prefix+"IMAP_USERNAME", ""),
			Password: getEnv(prefix+"IMAP_PASSWORD", ""),
		})
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no IMAP accounts configured in environment")
	}
	return accounts, nil
}

// Session resolves store paths to configured IMAP accounts.
type Session struct {
	logger   *logrus.Logger
	accounts map[string]AccountConfig
	open     map[string]*Store
}

// NewSession creates a session over the given accounts.
func NewSession(logger *logrus.Logger, accounts []AccountConfig) *Session {
	byName := make(map[string]AccountConfig, len(accounts))
	for _, acc := range accounts {
		byName[acc.Name] = acc
	}
	return &Session{
		logger:   logger,
		accounts: byName,
		open:     make(map[string]*Store),
	}
}

// OpenStore implements provider.Session. The path is an account name; IMAP
// accounts cannot be created on the fly, so create is ignored and unknown
// names fail with ErrStoreNotFound.
func (s *Session) OpenStore(path string, create bool) (provider.Store, error) {
	if store, ok := s.open[path]; ok {
		return store, nil
	}
	cfg, ok := s.accounts[path]
	if !ok {
		return nil, fmt.Errorf("%w: no account named %q", provider.ErrStoreNotFound, path)
	}
	store := &Store{session: s, cfg: cfg, logger: s.logger}
	s.open[path] = store
	return store, nil
}

// DefaultStore implements provider.Session: the account named "default", or
// the only configured one.
func (s *Session) DefaultStore() (provider.Store, error) {
	if _, ok := s.accounts["default"]; ok {
		return s.OpenStore("default", false)
	}
	if len(s.accounts) == 1 {
		for name := range s.accounts {
			return s.OpenStore(name, false)
		}
	}
	return nil, provider.ErrNoDefaultStore
}

// DetachStore implements provider.Session.
func (s *Session) DetachStore(store provider.Store) error {
	imapStore, ok := store.(*Store)
	if !ok {
		return fmt.Errorf("store does not belong to this session")
	}
	delete(s.open, imapStore.cfg.Name)
	return imapStore.Close()
}

// Reclaim implements provider.Session. The server side holds per-connection
// state; a NOOP keeps connections honest and lets the server flush pending
// expunges. Best-effort.
func (s *Session) Reclaim() {
	for _, store := range s.open {
		if store.client != nil {
			_ = store.client.Noop()
		}
	}
}

// Close implements provider.Session.
func (s *Session) Close() error {
	var firstErr error
	for name, store := range s.open {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.open, name)
	}
	return firstErr
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
