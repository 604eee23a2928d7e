package credentials

import (
	"fmt"
	"os"
	"strings"

	"submission-observer/src/logger"
	"submission-observer/src/models"
)

// -----------------------------------------------------------------------------
// File-backed credential source
// -----------------------------------------------------------------------------

// FileSource reads the session credential from a token file written by the
// host login flow, with an optional environment variable override. Absence of
// a credential is not an error here: the connection manager escalates it.
type FileSource struct {
	Config *models.MCredentialConfig
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewFileSource(cfg *models.MCredentialConfig, log *logger.Logger) *FileSource {
	return &FileSource{
		Config: cfg,
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

// Get returns the stored credential, preferring the environment variable
// override. An empty string with nil error means nothing is stored.
func (s *FileSource) Get() (string, error) {
	if s.Config.EnvVar != "" {
		if v := strings.TrimSpace(os.Getenv(s.Config.EnvVar)); v != "" {
			return v, nil
		}
	}

	if s.Config.TokenFile == "" {
		return "", nil
	}

	data, err := os.ReadFile(s.Config.TokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file '%s': %w", s.Config.TokenFile, err)
	}

	return strings.TrimSpace(string(data)), nil
}

// -----------------------------------------------------------------------------

// Available reports whether a usable credential is currently stored.
func (s *FileSource) Available() bool {
	token, err := s.Get()
	if err != nil {
		s.Logger.Warning("Credential check failed: %v", err)
		return false
	}
	return token != ""
}
