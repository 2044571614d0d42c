package handler

import (
	"errors"
	"fmt"
	"strings"

	giturls "github.com/whilp/git-urls"
)

// ErrInvalidRepositoryURL is returned when a repository reference cannot be
// resolved to host/owner/repo.
var ErrInvalidRepositoryURL = errors.New("invalid repository url")

// NormalizeRepositoryURL accepts the usual git remote spellings (https, ssh,
// scp-like git@host:owner/repo.git) and returns https://host/owner/repo.
func NormalizeRepositoryURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidRepositoryURL
	}

	u, err := giturls.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRepositoryURL, err)
	}

	host := u.Hostname()
	if host == "" {
		host = u.Host
	}
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidRepositoryURL)
	}

	path := strings.Trim(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: expected owner/repo, got %q", ErrInvalidRepositoryURL, path)
	}

	return fmt.Sprintf("https://%s/%s/%s", strings.ToLower(host), parts[0], parts[1]), nil
}
