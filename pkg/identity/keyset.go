package identity

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ai-consultation-be/internal/pkg/logger"

	"github.com/MicahParks/jwkset"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeySetTTL        = time.Hour
	defaultMinRefresh       = 30 * time.Second
	maxKeySetDocumentBytes  = 1 << 20
	sharedKeySetCachePrefix = "jwks:"
)

var ErrUnknownKey = errors.New("signing key not found in key set")

// KeyProvider resolves the public key for a token's kid.
type KeyProvider interface {
	Key(ctx context.Context, kid string) (crypto.PublicKey, error)
	Refresh(ctx context.Context) error
}

type KeySetOptions struct {
	URL string
	TTL time.Duration
	// MinRefreshInterval rate-limits forced refreshes. Zero disables the
	// limit, a negative value selects the default.
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
	// Redis is an optional second tier shared between instances.
	Redis  *redis.Client
	Logger logger.ILogger
}

// KeySet caches the identity provider's JWKS in process (go-cache, TTL bound)
// and optionally in redis. Concurrent refreshes are serialized; a redundant
// refresh just overwrites the cached set.
type KeySet struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	httpClient *http.Client
	redis      *redis.Client
	logger     logger.ILogger

	cache     *cache.Cache
	mu        sync.Mutex
	lastFetch time.Time
	now       func() time.Time
}

var _ KeyProvider = (*KeySet)(nil)

func NewKeySet(opts KeySetOptions) *KeySet {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultKeySetTTL
	}
	minRefresh := opts.MinRefreshInterval
	if minRefresh < 0 {
		minRefresh = defaultMinRefresh
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &KeySet{
		url:        opts.URL,
		ttl:        ttl,
		minRefresh: minRefresh,
		httpClient: httpClient,
		redis:      opts.Redis,
		logger:     log,
		cache:      cache.New(ttl, 10*time.Minute),
		now:        time.Now,
	}
}

func (k *KeySet) cacheKey() string {
	return sharedKeySetCachePrefix + k.url
}

// Key returns the key for kid. An unknown kid triggers one refresh so that
// rotated keys are picked up without waiting for the TTL.
func (k *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	keys, err := k.keys(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := keys[kid]; ok {
		return key, nil
	}

	if err := k.Refresh(ctx); err != nil {
		return nil, err
	}
	keys, err = k.keys(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
}

// Refresh re-downloads the key set unless the last download is more recent
// than the minimum refresh interval.
func (k *KeySet) Refresh(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.lastFetch.IsZero() && k.now().Sub(k.lastFetch) < k.minRefresh {
		if _, ok := k.cache.Get(k.cacheKey()); ok {
			return nil
		}
	}
	_, err := k.fetchLocked(ctx)
	return err
}

func (k *KeySet) keys(ctx context.Context) (map[string]crypto.PublicKey, error) {
	if cached, ok := k.cache.Get(k.cacheKey()); ok {
		return cached.(map[string]crypto.PublicKey), nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if cached, ok := k.cache.Get(k.cacheKey()); ok {
		return cached.(map[string]crypto.PublicKey), nil
	}
	if keys := k.loadShared(ctx); keys != nil {
		k.cache.Set(k.cacheKey(), keys, k.ttl)
		return keys, nil
	}
	return k.fetchLocked(ctx)
}

func (k *KeySet) fetchLocked(ctx context.Context) (map[string]crypto.PublicKey, error) {
	if k.url == "" {
		return nil, errors.New("jwks url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, fmt.Errorf("jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("jwks read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}

	keys, err := parseKeySet(body)
	if err != nil {
		return nil, err
	}

	k.cache.Set(k.cacheKey(), keys, k.ttl)
	k.lastFetch = k.now()
	k.storeShared(ctx, body)

	k.logger.Info("IDENTITY", "Key set refreshed", map[string]interface{}{
		"url":  k.url,
		"keys": len(keys),
	})
	return keys, nil
}

func (k *KeySet) loadShared(ctx context.Context) map[string]crypto.PublicKey {
	if k.redis == nil {
		return nil
	}
	raw, err := k.redis.Get(ctx, k.cacheKey()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			k.logger.Warn("IDENTITY", "Shared key set lookup failed", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}
	keys, err := parseKeySet(raw)
	if err != nil {
		return nil
	}
	return keys
}

func (k *KeySet) storeShared(ctx context.Context, raw []byte) {
	if k.redis == nil {
		return
	}
	if err := k.redis.Set(ctx, k.cacheKey(), raw, k.ttl).Err(); err != nil {
		k.logger.Warn("IDENTITY", "Shared key set store failed", map[string]interface{}{"error": err.Error()})
	}
}

// parseKeySet decodes a JWKS document into public keys indexed by kid. Keys
// jwkset rejects, keys marked for encryption and non-asymmetric keys are
// skipped.
func parseKeySet(raw []byte) (map[string]crypto.PublicKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for _, rawKey := range doc.Keys {
		jwk, err := jwkset.NewJWKFromRawJSON(rawKey, jwkset.JWKMarshalOptions{}, jwkset.JWKValidateOptions{})
		if err != nil {
			continue
		}
		meta := jwk.Marshal()
		if meta.USE != "" && meta.USE != jwkset.UseSig {
			continue
		}
		switch pub := jwk.Key().(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
			keys[meta.KID] = pub
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable signing keys")
	}
	return keys, nil
}
