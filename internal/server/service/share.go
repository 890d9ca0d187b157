package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"quicktext/internal/server/notify"
	"quicktext/internal/server/storage"
)

// Config tunes the share lifecycle.
type Config struct {
	MaxContentSize int // bytes
	CodeAttempts   int
	BcryptCost     int
}

const (
	defaultMaxContentSize = 50000
	defaultCodeAttempts   = 10
	maxSaveAttempts       = 5
)

// CreateRequest holds the caller supplied fields of a new share.
type CreateRequest struct {
	Content       string
	ContentType   string
	Language      string
	Password      string
	Duration      string
	MaxViews      int
	OneTimeAccess bool
}

// CreateResult is returned after a share has been stored.
type CreateResult struct {
	Code          string              `json:"code"`
	ExpiresAt     time.Time           `json:"expiresAt"`
	HasPassword   bool                `json:"hasPassword"`
	OneTimeAccess bool                `json:"oneTimeAccess"`
	ContentType   storage.ContentType `json:"contentType"`
	Language      string              `json:"language,omitempty"`
	Duration      string              `json:"duration"`
}

// ShareView is what a successful retrieval returns. Views counts the
// retrieval that produced it.
type ShareView struct {
	Content       string              `json:"content"`
	ContentType   storage.ContentType `json:"contentType"`
	Language      string              `json:"language,omitempty"`
	Views         int                 `json:"views"`
	OneTimeAccess bool                `json:"oneTimeAccess"`
	CreatedAt     time.Time           `json:"createdAt"`
	ExpiresAt     time.Time           `json:"expiresAt"`
}

// ShareService contains the business logic for creating, retrieving and
// updating shares.
type ShareService struct {
	store     storage.Store
	publisher notify.Publisher
	cfg       Config
	logger    *zap.Logger
	locks     *codeLocks

	now     func() time.Time
	newCode func() (string, error)
}

// NewShareService creates a new share service. publisher may be nil when
// live updates are not wanted.
func NewShareService(store storage.Store, publisher notify.Publisher, cfg Config, logger *zap.Logger) *ShareService {
	if cfg.MaxContentSize <= 0 {
		cfg.MaxContentSize = defaultMaxContentSize
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = defaultCodeAttempts
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &ShareService{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		locks:     newCodeLocks(),
		now:       func() time.Time { return time.Now().UTC() },
		newCode:   generateCode,
	}
}

func (s *ShareService) validateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if len(content) > s.cfg.MaxContentSize {
		return ErrContentTooLarge
	}
	return nil
}

// Create validates the request, allocates a code and stores the share.
func (s *ShareService) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if err := s.validateContent(req.Content); err != nil {
		return nil, err
	}

	label, lifetime := parseDuration(req.Duration)
	contentType := storage.ParseContentType(req.ContentType)

	maxViews := req.MaxViews
	if maxViews <= 0 {
		maxViews = storage.UnlimitedViews
	}

	language := req.Language
	if language == "" && contentType == storage.ContentCode {
		language = detectLanguage(req.Content)
	}

	var passwordHash string
	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		passwordHash = string(hash)
	}

	now := s.now()
	share := &storage.Share{
		Content:       req.Content,
		ContentType:   contentType,
		Language:      language,
		PasswordHash:  passwordHash,
		MaxViews:      maxViews,
		OneTimeAccess: req.OneTimeAccess,
		CreatedAt:     now,
		ExpiresAt:     now.Add(lifetime),
	}

	if err := s.insert(ctx, share); err != nil {
		return nil, err
	}

	s.logger.Info("share created",
		zap.String("code", share.Code),
		zap.String("content_type", string(contentType)),
		zap.Int("size", len(req.Content)),
		zap.String("duration", label),
		zap.Bool("password", share.HasPassword()),
		zap.Bool("one_time", share.OneTimeAccess),
		zap.Int("max_views", maxViews),
	)

	return &CreateResult{
		Code:          share.Code,
		ExpiresAt:     share.ExpiresAt,
		HasPassword:   share.HasPassword(),
		OneTimeAccess: share.OneTimeAccess,
		ContentType:   contentType,
		Language:      language,
		Duration:      label,
	}, nil
}

// insert stores share under a fresh code, retrying on collisions.
func (s *ShareService) insert(ctx context.Context, share *storage.Share) error {
	for attempt := 1; attempt <= s.cfg.CodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return fmt.Errorf("failed to generate share code: %w", err)
		}
		share.Code = code

		err = s.store.Create(ctx, share)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrCodeCollision) {
			return fmt.Errorf("failed to create share: %w", err)
		}
		s.logger.Debug("share code collision", zap.String("code", code), zap.Int("attempt", attempt))
	}
	return ErrCodeGenerationExhausted
}

// load fetches a share and applies the gates every access shares: existence,
// expiry, exhaustion and password. The caller must hold the code's lock.
func (s *ShareService) load(ctx context.Context, code, password string) (*storage.Share, error) {
	share, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load share: %w", err)
	}

	if share.IsExpired(s.now()) {
		s.remove(ctx, code, "expired")
		return nil, ErrExpired
	}

	if share.OneTimeAccess && share.IsAccessed {
		return nil, ErrNotFound
	}

	if share.ViewsExhausted() {
		s.remove(ctx, code, "view limit reached")
		return nil, ErrNotFound
	}

	if share.HasPassword() {
		if password == "" {
			return nil, ErrPasswordRequired
		}
		if err := bcrypt.CompareHashAndPassword([]byte(share.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidPassword
		}
	}

	return share, nil
}

// remove deletes a share; failures are logged since the expiry sweep will
// catch anything left behind.
func (s *ShareService) remove(ctx context.Context, code, reason string) {
	if err := s.store.Delete(ctx, code); err != nil {
		s.logger.Error("failed to delete share",
			zap.String("code", code),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("share deleted", zap.String("code", code), zap.String("reason", reason))
}

// Retrieve runs every access gate, records the view and returns the content.
// One-time shares and shares that just reached their view limit are deleted
// before Retrieve returns.
func (s *ShareService) Retrieve(ctx context.Context, code, password string) (*ShareView, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	share, err := s.admit(ctx, code, password)
	if err != nil {
		return nil, err
	}

	view := &ShareView{
		Content:       share.Content,
		ContentType:   share.ContentType,
		Language:      share.Language,
		Views:         share.Views,
		OneTimeAccess: share.OneTimeAccess,
		CreatedAt:     share.CreatedAt,
		ExpiresAt:     share.ExpiresAt,
	}

	switch {
	case share.OneTimeAccess:
		s.remove(ctx, code, "one-time access consumed")
	case share.ViewsExhausted():
		s.remove(ctx, code, "view limit reached")
	}

	return view, nil
}

// admit loads the share and records one view. The lock only covers this
// process, so the store's compare-and-swap decides between processes; a
// lost race re-runs the gates against the winner's state.
func (s *ShareService) admit(ctx context.Context, code, password string) (*storage.Share, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		share, err := s.load(ctx, code, password)
		if err != nil {
			return nil, err
		}

		from := share.Revision()
		share.Views++
		if share.OneTimeAccess {
			share.IsAccessed = true
		}

		err = s.store.Save(ctx, share, from)
		switch {
		case err == nil:
			return share, nil
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, storage.ErrConflict):
			s.logger.Debug("concurrent admission, retrying", zap.String("code", code), zap.Int("attempt", attempt))
		default:
			return nil, fmt.Errorf("failed to record view: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to record view: %w", storage.ErrConflict)
}

// CheckAccess applies the same gates as Retrieve without recording a view.
func (s *ShareService) CheckAccess(ctx context.Context, code, password string) (*storage.Share, error) {
	code, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	return s.load(ctx, code, password)
}

// Update replaces the content of a live share and notifies subscribers.
func (s *ShareService) Update(ctx context.Context, code, content string) error {
	if err := s.validateContent(content); err != nil {
		return err
	}
	code, err := normalizeCode(code)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	now := s.now()
	share, err := s.replaceContent(ctx, code, content, now)
	if err != nil {
		return err
	}

	s.logger.Info("share updated", zap.String("code", code), zap.Int("size", len(content)))

	if s.publisher != nil {
		event := notify.Event{
			Code:        code,
			Content:     content,
			ContentType: share.ContentType,
			Timestamp:   now,
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish share update", zap.String("code", code), zap.Error(err))
		}
	}

	return nil
}

// replaceContent swaps in new content, retrying when a view recorded by
// another process changes the record underneath it.
func (s *ShareService) replaceContent(ctx context.Context, code, content string, now time.Time) (*storage.Share, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		share, err := s.store.Get(ctx, code)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to load share: %w", err)
		}

		if share.IsExpired(now) {
			s.remove(ctx, code, "expired")
			return nil, ErrExpired
		}

		share.Content = content
		err = s.store.Save(ctx, share, share.Revision())
		switch {
		case err == nil:
			return share, nil
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrNotFound
		case !errors.Is(err, storage.ErrConflict):
			return nil, fmt.Errorf("failed to update share: %w", err)
		}
	}
	return nil, fmt.Errorf("failed to update share: %w", storage.ErrConflict)
}

// Stats returns aggregate share statistics.
func (s *ShareService) Stats(ctx context.Context) (*storage.Stats, error) {
	stats, err := s.store.Stats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}

// Ping reports whether the backing store is reachable.
func (s *ShareService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
