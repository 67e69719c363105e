package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/illarion/diarylock/internal/config"
	"github.com/illarion/diarylock/internal/core"
	"github.com/illarion/diarylock/internal/keyring"
	"github.com/illarion/diarylock/internal/logging"
	"github.com/illarion/diarylock/internal/storage"
)

// ConfigPath is the YAML config file set by the -config flag
var ConfigPath string

// session holds everything a command needs
type session struct {
	cfg   *config.Config
	log   *slog.Logger
	store storage.Storage
	coord *core.Coordinator
}

// openSession loads config, opens storage and builds the coordinator.
// It exits the process on failure.
func openSession() *session {
	path := ConfigPath
	if path == "" {
		path = os.Getenv(config.EnvConfig)
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	var store storage.Storage
	switch strings.ToLower(cfg.Storage.Backend) {
	case config.BackendSQLite:
		store, err = storage.OpenSQLite(cfg.Storage.Path)
	case config.BackendPostgres:
		store, err = storage.OpenPostgres(cfg.Storage.Path)
	default:
		store, err = storage.OpenBolt(cfg.Storage.Path)
	}
	if err != nil {
		HandleError(err)
	}
	log.Debug("storage opened", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)

	coord, err := core.New(store, core.WithParams(cfg.Params()), core.WithLogger(log))
	if err != nil {
		store.Close()
		HandleError(err)
	}

	return &session{cfg: cfg, log: log, store: store, coord: coord}
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Warn("failed to close storage", "error", err)
	}
}

// GetPassword retrieves the password of an existing lock from the
// environment, the OS keyring or a terminal prompt, in that order.
// The caller is responsible for calling crypto.ClearBytes on the result.
func GetPassword(diaryID, prompt string) ([]byte, error) {
	if password := envPassword(); password != nil {
		return password, nil
	}

	if stored, err := keyring.GetPassword(diaryID); err == nil {
		return []byte(stored), nil
	}

	password, err := promptPassword(prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// GetPasswordOrExit is like GetPassword but exits on error
func GetPasswordOrExit(diaryID, prompt string) []byte {
	password, err := GetPassword(diaryID, prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return password
}

// GetNewPassword retrieves a password for a new lock.
// Checks the environment first, then prompts with confirmation.
func GetNewPassword(prompt string) ([]byte, error) {
	if password := envPassword(); password != nil {
		return password, nil
	}
	return promptNewPassword(prompt)
}

// GetNewPasswordOrExit is like GetNewPassword but exits on error
func GetNewPasswordOrExit(prompt string) []byte {
	password, err := GetNewPassword(prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	return password
}

// errorMessage returns the lines shown to the user for err
func errorMessage(err error) []string {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		lines := []string{"Error: " + verr.Reason}
		for _, f := range verr.Feedback {
			lines = append(lines, "  - "+f)
		}
		return lines
	case errors.Is(err, core.ErrWrongPassword):
		return []string{"Error: Incorrect password"}
	case errors.Is(err, core.ErrPayloadCorrupted):
		return []string{
			"Error: stored lock payload is damaged",
			"The diary stays locked. The password was not the problem.",
		}
	case errors.Is(err, core.ErrNotLocked):
		return []string{"Error: diary is not locked"}
	case errors.Is(err, core.ErrAlreadyLocked):
		return []string{
			"Error: diary is already locked",
			"Use 'diarylock status' to see current state",
		}
	default:
		return []string{"Error: " + err.Error()}
	}
}

// HandleError prints err and exits
func HandleError(err error) {
	for _, line := range errorMessage(err) {
		fmt.Fprintln(os.Stderr, line)
	}
	os.Exit(1)
}
