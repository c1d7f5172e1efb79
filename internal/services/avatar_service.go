package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mstrand/foyer/internal/models"
	"github.com/mstrand/foyer/internal/storage"
	pkgauth "github.com/mstrand/foyer/pkg/auth"
)

// AvatarAliases maps alias names to their square pixel size. Every ingested
// avatar gets one center-cropped rendition per alias.
var AvatarAliases = map[string]int{
	"x80":  80,
	"x300": 300,
}

const (
	// avatarSourceSize bounds the stored original rendition.
	avatarSourceSize = 300

	// avatarMaxBytes caps how much of a remote image is read.
	avatarMaxBytes = 20 << 20
)

// ErrAvatarPermanent marks an avatar source that will never become
// fetchable: a non-retryable status, an unparseable image, or an account
// that no longer references a source URL. Retrying is pointless.
var ErrAvatarPermanent = errors.New("avatar source unusable")

// AvatarStore is the narrow persistence surface avatar ingestion needs.
type AvatarStore interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	SetAvatarKey(ctx context.Context, id, key string) error
}

// AvatarService downloads external avatar images, stores a normalized
// original plus the alias renditions in the blob store, and records the
// blob key on the account.
type AvatarService struct {
	store        AvatarStore
	blobs        storage.BlobStore
	client       *http.Client
	fetchTimeout time.Duration
	logger       *slog.Logger
}

func NewAvatarService(store AvatarStore, blobs storage.BlobStore, fetchTimeout time.Duration, logger *slog.Logger) *AvatarService {
	return &AvatarService{
		store:        store,
		blobs:        blobs,
		client:       &http.Client{},
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Ingest fetches the account's external avatar URL, stores the normalized
// original and records the blob key. Alias renditions are built separately
// by RegenerateThumbnails. Timeouts and temporary network failures return a
// plain error so the caller can retry; everything unrecoverable wraps
// ErrAvatarPermanent. An account without a source URL is a no-op.
func (s *AvatarService) Ingest(ctx context.Context, accountID string) error {
	a, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: account %s gone", ErrAvatarPermanent, accountID)
		}
		return err
	}
	if a.AvatarURL == nil || *a.AvatarURL == "" {
		return nil
	}

	data, err := s.fetch(ctx, *a.AvatarURL)
	if err != nil {
		return err
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAvatarPermanent, err)
	}

	// The original is normalized to a square crop so every alias derives
	// from the same frame.
	original := imaging.Fill(src, avatarSourceSize, avatarSourceSize, imaging.Center, imaging.Lanczos)

	code, err := pkgauth.GenerateCode()
	if err != nil {
		return err
	}
	baseKey := fmt.Sprintf("user_avatars/%s/%s", a.ID, code[:8])

	if err := s.putJPEG(ctx, baseKey+"/orig.jpg", original); err != nil {
		return err
	}

	if err := s.store.SetAvatarKey(ctx, a.ID, baseKey); err != nil {
		return err
	}

	s.logger.Info("avatar ingested",
		slog.String("account_id", a.ID),
		slog.String("avatar_key", baseKey))
	return nil
}

// RegenerateThumbnails rebuilds the alias renditions from the stored
// original. It is idempotent and a no-op for accounts without an ingested
// avatar.
func (s *AvatarService) RegenerateThumbnails(ctx context.Context, accountID string) error {
	a, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: account %s gone", ErrAvatarPermanent, accountID)
		}
		return err
	}
	if a.AvatarKey == nil {
		return nil
	}

	r, err := s.blobs.Get(ctx, *a.AvatarKey+"/orig.jpg")
	if err != nil {
		return err
	}
	defer r.Close()

	original, err := imaging.Decode(r)
	if err != nil {
		return fmt.Errorf("%w: stored original unreadable: %v", ErrAvatarPermanent, err)
	}

	for alias, size := range AvatarAliases {
		thumb := imaging.Fill(original, size, size, imaging.Center, imaging.Lanczos)
		if err := s.putJPEG(ctx, aliasKey(*a.AvatarKey, alias), thumb); err != nil {
			return err
		}
	}
	return nil
}

// URLs returns the per-alias avatar URLs for an account: the stored
// renditions once ingestion completed, the raw external URL for every alias
// while ingestion is pending, and nil when the account has no avatar.
func (s *AvatarService) URLs(a *models.Account) map[string]string {
	if a.AvatarKey != nil {
		urls := make(map[string]string, len(AvatarAliases))
		for alias := range AvatarAliases {
			urls[alias] = s.blobs.URL(aliasKey(*a.AvatarKey, alias))
		}
		return urls
	}
	if a.AvatarURL != nil && *a.AvatarURL != "" {
		urls := make(map[string]string, len(AvatarAliases))
		for alias := range AvatarAliases {
			urls[alias] = *a.AvatarURL
		}
		return urls
	}
	return nil
}

func (s *AvatarService) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAvatarPermanent, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTransientNetErr(err) {
			return nil, fmt.Errorf("transient avatar fetch failure: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAvatarPermanent, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("transient avatar fetch failure: status %d", resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: status %d", ErrAvatarPermanent, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, avatarMaxBytes+1))
	if err != nil {
		if isTransientNetErr(err) {
			return nil, fmt.Errorf("transient avatar fetch failure: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrAvatarPermanent, err)
	}
	if len(data) > avatarMaxBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrAvatarPermanent, avatarMaxBytes)
	}
	return data, nil
}

func (s *AvatarService) putJPEG(ctx context.Context, key string, img *image.NRGBA) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.blobs.Put(ctx, key, "image/jpeg", &buf)
}

func aliasKey(baseKey, alias string) string {
	return baseKey + "/" + alias + ".jpg"
}

func isTransientNetErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
