package presigned

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const keyPlaceholder = "{key}"

// Signer generates and validates HMAC-signed presigned URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	urlPattern        string
	baseURL           string
	now               func() time.Time
}

var _ simplemedia.LinkSigner = (*Signer)(nil)

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: time.Hour,
		urlPattern:        "/blobs/{key}",
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign issues a GET link for key valid for ttl
func (s *Signer) Sign(ctx context.Context, key string, ttl time.Duration) (*simplemedia.SignedLink, error) {
	signed, expiresAt, err := s.SignURL(http.MethodGet, s.PathFor(key), ttl)
	if err != nil {
		return nil, err
	}
	return &simplemedia.SignedLink{URL: s.baseURL + signed, ExpiresAt: expiresAt}, nil
}

// PathFor renders the URL pattern for key, escaping each path segment.
func (s *Signer) PathFor(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Replace(s.urlPattern, keyPlaceholder, strings.Join(segments, "/"), 1)
}

// SignURL generates a presigned URL for the given HTTP method and path and
// returns it with its expiration instant.
//
//	url, exp, err := signer.SignURL("GET", "/blobs/photo.jpg", time.Hour)
//	// url: /blobs/photo.jpg?signature=abc123...&expires=1696789012
func (s *Signer) SignURL(method, path string, expiresIn time.Duration) (string, time.Time, error) {
	if len(s.secretKey) == 0 {
		return "", time.Time{}, ErrNoSecretKey
	}
	if expiresIn <= 0 {
		expiresIn = s.defaultExpiration
	}

	expiresAt := s.now().Add(expiresIn).Truncate(time.Second)
	signature := s.generateSignature(s.createPayload(method, path, expiresAt.Unix()))

	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%ssignature=%s&expires=%d", path, separator, signature, expiresAt.Unix()), expiresAt.UTC(), nil
}

// ValidateRequest validates the signature and expiration of an HTTP request
func (s *Signer) ValidateRequest(r *http.Request) error {
	if len(s.secretKey) == 0 {
		return nil
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")
	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}
	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	path := r.URL.EscapedPath()
	clean := url.Values{}
	for k, v := range query {
		if k != "signature" && k != "expires" {
			clean[k] = v
		}
	}
	if len(clean) > 0 {
		path = path + "?" + clean.Encode()
	}

	// HEAD requests are served with the GET signature.
	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return s.Validate(method, path, signature, expiresAt)
}

// Validate validates the signature and expiration for a given method, path, signature, and expiration timestamp
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}
	expected := s.generateSignature(s.createPayload(method, path, expiresAt))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// ExtractObjectKey extracts the object key from an unescaped URL path based on the configured pattern
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	idx := strings.Index(s.urlPattern, keyPlaceholder)
	if idx == -1 {
		return "", fmt.Errorf("URL pattern does not contain {key} placeholder")
	}
	prefix := s.urlPattern[:idx]
	suffix := s.urlPattern[idx+len(keyPlaceholder):]

	if !strings.HasPrefix(path, prefix) {
		return "", fmt.Errorf("path does not match URL pattern prefix")
	}
	key := strings.TrimPrefix(path, prefix)
	if suffix != "" {
		key = strings.TrimSuffix(key, suffix)
	}
	if key == "" {
		return "", fmt.Errorf("path has an empty object key")
	}
	return key, nil
}

// IsEnabled returns true if signature validation is enabled (secret key is set)
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// createPayload creates the signature payload: METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
