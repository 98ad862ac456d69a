// Package tts asks an external speech-synthesis service for audio URLs and
// caches the results. The game core never touches audio bytes; a failed or
// disabled synthesis yields an empty URL and clients skip narration.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	endpoint string
	cacheDir string
	client   *http.Client
	log      *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]string // cache id -> url
}

func New(endpoint, cacheDir string, log *zap.Logger) *Service {
	return &Service{
		endpoint: endpoint,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log,
		cache:    make(map[string]string),
	}
}

func (s *Service) Enabled() bool {
	return s != nil && s.endpoint != ""
}

type synthRequest struct {
	Text    string `json:"text"`
	CacheID string `json:"cacheId"`
}

type synthResponse struct {
	URL string `json:"url"`
}

// Generate returns the audio URL for text under cacheID, or "" when TTS is
// disabled or synthesis fails. Concurrent calls for the same cache id share
// one outstanding request.
func (s *Service) Generate(ctx context.Context, text, cacheID string) string {
	if !s.Enabled() || text == "" {
		return ""
	}

	key := sanitizeID(cacheID)

	s.mu.RLock()
	url, hit := s.cache[key]
	s.mu.RUnlock()
	if hit {
		return url
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// Re-check under the flight: a follower may enter after the leader
		// already populated the cache.
		s.mu.RLock()
		url, hit := s.cache[key]
		s.mu.RUnlock()
		if hit {
			return url, nil
		}

		if url, ok := s.readCacheFile(key); ok {
			s.store(key, url)
			return url, nil
		}

		url, err := s.synthesize(ctx, text, key)
		if err != nil {
			return "", err
		}
		s.store(key, url)
		s.writeCacheFile(key, url)
		return url, nil
	})
	if err != nil {
		s.log.Warn("tts generation failed", zap.String("cacheId", key), zap.Error(err))
		return ""
	}
	return v.(string)
}

func (s *Service) synthesize(ctx context.Context, text, key string) (string, error) {
	body, err := json.Marshal(synthRequest{Text: text, CacheID: key})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tts service returned %s", resp.Status)
	}

	var sr synthResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("tts response: %w", err)
	}
	return sr.URL, nil
}

func (s *Service) store(key, url string) {
	s.mu.Lock()
	s.cache[key] = url
	s.mu.Unlock()
}

func (s *Service) cachePath(key string) string {
	return filepath.Join(s.cacheDir, key+".url")
}

func (s *Service) readCacheFile(key string) (string, bool) {
	if s.cacheDir == "" {
		return "", false
	}
	raw, err := os.ReadFile(s.cachePath(key))
	if err != nil {
		return "", false
	}
	url := strings.TrimSpace(string(raw))
	return url, url != ""
}

func (s *Service) writeCacheFile(key, url string) {
	if s.cacheDir == "" {
		return
	}
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		s.log.Warn("tts cache dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.cachePath(key), []byte(url), 0o644); err != nil {
		s.log.Warn("tts cache write", zap.String("cacheId", key), zap.Error(err))
	}
}

// sanitizeID keeps alphanumerics, '-' and '_'; everything else becomes '-'.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
