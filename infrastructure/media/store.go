// Package media persists downloaded message attachments on local disk.
// Stored references are storage keys, not public URLs; serving is handled
// elsewhere with short-lived links.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/zapdesk/zapdesk/pkg/utils"
)

// Store writes attachment bytes under a root directory using the key
// layout {instanceName}/{timestamp}-{messageID}.{ext}.
type Store struct {
	root   string
	client *http.Client
}

func NewStore(root string) (*Store, error) {
	if err := utils.CreateFolder(root); err != nil {
		return nil, err
	}
	return &Store{
		root:   root,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Download fetches the media behind a provider URL and persists it,
// returning the storage key. The caller treats failures as tolerable: a
// message without its attachment still beats a dropped message.
func (s *Store) Download(ctx context.Context, instanceName, messageID, url, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media fetch returned status %d", resp.StatusCode)
	}

	if mimeType == "" {
		mimeType = resp.Header.Get("Content-Type")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return s.Save(instanceName, messageID, mimeType, data)
}

// Save persists raw attachment bytes and returns the storage key.
func (s *Store) Save(instanceName, messageID, mimeType string, data []byte) (string, error) {
	key := buildKey(instanceName, messageID, mimeType)
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := utils.CreateFolder(filepath.Dir(path)); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{
		"key":  key,
		"size": humanize.Bytes(uint64(len(data))),
	}).Info("[MEDIA] Attachment stored")
	return key, nil
}

// Open returns a reader for a previously stored key.
func (s *Store) Open(key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, filepath.FromSlash(key)))
}

func buildKey(instanceName, messageID, mimeType string) string {
	ext := extensionFor(mimeType)
	ts := time.Now().UnixMilli()
	return fmt.Sprintf("%s/%d-%s%s", sanitize(instanceName), ts, sanitize(messageID), ext)
}

func extensionFor(mimeType string) string {
	base := mimeType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(base)
	switch base {
	case "audio/ogg":
		return ".ogg"
	case "image/jpeg":
		return ".jpg"
	}
	exts, err := mime.ExtensionsByType(base)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, s)
}
