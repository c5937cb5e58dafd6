package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// signatureExt is the only image format signatures are stored in
const signatureExt = ".png"

// ErrInvalidIdentity is returned for identity ids that cannot name a signature file
var ErrInvalidIdentity = errors.New("invalid identity id for signature")

// LocalSignatureStore serves signature images from a directory holding one <identity-id>.png per reviewer
type LocalSignatureStore struct {
	baseDir string
	baseURL string
	logger  *zap.Logger
}

// NewLocalSignatureStore creates a signature store rooted at baseDir. URLs are
// built by joining baseURL and the stored reference.
func NewLocalSignatureStore(baseDir, baseURL string, logger *zap.Logger) *LocalSignatureStore {
	return &LocalSignatureStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Lookup returns the reference of the identity's signature, or "" when none is on file
func (s *LocalSignatureStore) Lookup(ctx context.Context, identityID string) (string, error) {
	ref, err := signatureRef(identityID)
	if err != nil {
		return "", err
	}

	fullPath := s.GetFullPath(ref)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	info, err := os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		s.logger.Error("Failed to stat signature",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to stat signature: %w", err)
	}
	if info.IsDir() {
		return "", nil
	}

	return ref, nil
}

// URL returns the public address of a stored signature
func (s *LocalSignatureStore) URL(ctx context.Context, ref string) (string, error) {
	if err := s.validatePath(s.GetFullPath(ref)); err != nil {
		return "", err
	}
	return s.baseURL + "/" + url.PathEscape(ref), nil
}

// Save writes the identity's signature image, replacing any previous one
func (s *LocalSignatureStore) Save(ctx context.Context, identityID string, content []byte) (string, error) {
	ref, err := signatureRef(identityID)
	if err != nil {
		return "", err
	}

	fullPath := s.GetFullPath(ref)
	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		s.logger.Error("Failed to create signature directory",
			zap.String("path", s.baseDir),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write signature",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write signature: %w", err)
	}

	s.logger.Debug("Signature saved",
		zap.String("identity_id", identityID),
		zap.Int("size", len(content)))

	return ref, nil
}

// BaseDir returns the directory signatures are served from
func (s *LocalSignatureStore) BaseDir() string {
	return s.baseDir
}

// GetFullPath converts a reference to a path under the base directory
func (s *LocalSignatureStore) GetFullPath(ref string) string {
	return filepath.Join(s.baseDir, ref)
}

// validatePath checks that the path is within baseDir
func (s *LocalSignatureStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}

	return nil
}

// signatureRef maps an identity id onto its object name
func signatureRef(identityID string) (string, error) {
	id := strings.TrimSpace(identityID)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentity, identityID)
	}
	return id + signatureExt, nil
}
