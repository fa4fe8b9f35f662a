// Package feed keeps a guest's view of the social feed in sync with the
// hosted store: paginated posts, active stories, reactions, comments and
// the stories the guest has already seen.
package feed

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"wedding-site/internal/apperr"
	"wedding-site/internal/models"
	"wedding-site/internal/storage"
	"wedding-site/internal/upload"
)

const (
	DefaultPageSize     = 10
	DefaultStoriesLimit = 60
	DefaultStoryTTL     = 24 * time.Hour
)

// Guest-facing messages.
const (
	MsgNameEmailRequired = "Name and email are required."
	MsgAvatarFailed      = "Profile photo upload failed. Please try again."
	MsgProfileFailed     = "We could not save your profile. Please try again."
	MsgNotSignedIn       = "Please sign in first."
	MsgPostsFailed       = "Unable to load posts."
	MsgStoriesFailed     = "Unable to load stories."
	MsgEmptyComment      = "Comment cannot be empty."
	MsgCommentFailed     = "Failed to add comment."
	MsgReactionFailed    = "Reaction failed."
	MsgUnknownReaction   = "Unknown reaction."
)

// Backend is the hosted store as seen by the feed.
type Backend interface {
	FindGuestByEmail(ctx context.Context, email string) (*models.Guest, error)
	SaveGuest(ctx context.Context, g *models.Guest) error

	ListPosts(ctx context.Context, before *time.Time, limit int) ([]models.Post, error)
	InsertPost(ctx context.Context, p *models.Post) error
	InsertComment(ctx context.Context, c *models.Comment) error
	UpsertReaction(ctx context.Context, r *models.Reaction) error
	DeleteReaction(ctx context.Context, id string) error

	ListActiveStories(ctx context.Context, now time.Time, limit int) ([]models.Story, error)
	InsertStory(ctx context.Context, st *models.Story) error
	UpsertStoryReaction(ctx context.Context, r *models.StoryReaction) error
	DeleteStoryReaction(ctx context.Context, id string) error
	InsertStoryView(ctx context.Context, v *models.StoryView) error
}

// Uploader stores a media file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, folder, guestID string, m upload.Media) (string, error)
}

// KV persists small values on the guest's device.
type KV interface {
	Load(key string, v any) (bool, error)
	Save(key string, v any) error
	Clear(key string) error
}

// Engine is the single owner of the feed state. All reads and writes of
// that state go through its lock; backend calls are made without it.
type Engine struct {
	backend      Backend
	uploader     Uploader
	kv           KV
	now          func() time.Time
	pageSize     int
	storiesLimit int
	storyTTL     time.Duration
	log          zerolog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	guest   *models.Guest
	posts   []models.Post
	hasMore bool
	cursor  *time.Time
	stories []models.Story
	viewed  map[string]int64
	// generation changes on every sign-in and sign-out. Fetches that
	// started under an older generation are discarded.
	generation uint64
}

type Option func(*Engine)

func WithUploader(u Uploader) Option {
	return func(e *Engine) { e.uploader = u }
}

// WithKV sets where the guest and the viewed stories are remembered.
func WithKV(kv KV) Option {
	return func(e *Engine) { e.kv = kv }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

func WithStoryTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.storyTTL = ttl
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log.With().Str("component", "Feed").Logger() }
}

// NewEngine creates a signed-out engine over backend
func NewEngine(backend Backend, opts ...Option) *Engine {
	e := &Engine{
		backend:      backend,
		now:          func() time.Time { return time.Now().UTC() },
		pageSize:     DefaultPageSize,
		storiesLimit: DefaultStoriesLimit,
		storyTTL:     DefaultStoryTTL,
		log:          zerolog.Nop(),
		hasMore:      true,
		viewed:       map[string]int64{},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.kv != nil {
		var viewed map[string]int64
		found, err := e.kv.Load(storage.KeyViewedStories, &viewed)
		if err != nil {
			e.log.Warn().Err(err).Msg("Unable to load viewed stories cache")
		} else if found && viewed != nil {
			e.viewed = viewed
		}
	}
	return e
}

// InitialsAvatar is the generated avatar used when a guest has no photo.
func InitialsAvatar(name string) string {
	if name == "" {
		name = "Guest"
	}
	seed := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return "https://api.dicebear.com/7.x/initials/svg?radius=50&fontSize=40&seed=" + seed + "&backgroundColor=7B9AAB"
}

// SignIn creates or updates the guest profile for email and makes it the
// current guest. The avatar is the uploaded file if any, then the stored
// avatar, then the initials avatar.
func (e *Engine) SignIn(ctx context.Context, name, email string, avatar *upload.Media) (*models.Guest, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, apperr.Validation(MsgNameEmailRequired)
	}

	existing, err := e.backend.FindGuestByEmail(ctx, email)
	if err != nil {
		e.log.Error().Err(err).Msg("Auth error")
		return nil, apperr.Upstream(MsgProfileFailed, err)
	}

	var avatarURL string
	if avatar != nil && e.uploader != nil {
		owner := name
		if existing != nil {
			owner = existing.ID
		}
		avatarURL, err = e.uploader.Upload(ctx, "avatars", owner, *avatar)
		if err != nil {
			e.log.Error().Err(err).Msg("Avatar upload failed")
			return nil, apperr.Upstream(MsgAvatarFailed, err)
		}
	}
	if avatarURL == "" && existing != nil {
		avatarURL = existing.AvatarURL
	}
	if avatarURL == "" {
		avatarURL = InitialsAvatar(name)
	}

	g := &models.Guest{Name: name, Email: email, AvatarURL: avatarURL}
	if existing != nil {
		g.ID = existing.ID
	}
	if err := e.backend.SaveGuest(ctx, g); err != nil {
		e.log.Error().Err(err).Msg("Auth error")
		return nil, apperr.Upstream(MsgProfileFailed, err)
	}

	e.setGuest(g)
	if e.kv != nil {
		if err := e.kv.Save(storage.KeyGuest, g); err != nil {
			e.log.Warn().Err(err).Msg("Unable to store guest locally")
		}
	}
	return cloneGuest(g), nil
}

// Restore makes the locally remembered guest current again. It returns
// nil when nobody is remembered.
func (e *Engine) Restore() (*models.Guest, error) {
	if e.kv == nil {
		return nil, nil
	}
	var g models.Guest
	found, err := e.kv.Load(storage.KeyGuest, &g)
	if err != nil {
		return nil, fmt.Errorf("failed to read saved guest: %w", err)
	}
	if !found || g.ID == "" {
		return nil, nil
	}
	e.setGuest(&g)
	return cloneGuest(&g), nil
}

// SignOut forgets the guest and drops all cached feed state.
func (e *Engine) SignOut() {
	if e.kv != nil {
		if err := e.kv.Clear(storage.KeyGuest); err != nil {
			e.log.Warn().Err(err).Msg("Unable to clear guest cache")
		}
	}
	e.setGuest(nil)
}

func (e *Engine) setGuest(g *models.Guest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.guest = g
	e.posts = nil
	e.stories = nil
	e.hasMore = true
	e.cursor = nil
}

// Guest returns the signed-in guest, or nil.
func (e *Engine) Guest() *models.Guest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneGuest(e.guest)
}

func (e *Engine) currentGuest() (*models.Guest, error) {
	g := e.Guest()
	if g == nil {
		return nil, apperr.Auth(MsgNotSignedIn)
	}
	return g, nil
}

// Posts returns a snapshot of the loaded posts, newest first.
func (e *Engine) Posts() []models.Post {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Post, len(e.posts))
	for i, p := range e.posts {
		out[i] = clonePost(p)
	}
	return out
}

// HasMore reports whether older posts may still be loaded.
func (e *Engine) HasMore() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasMore
}

// Stories returns a snapshot of the active stories, newest first.
func (e *Engine) Stories() []models.Story {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Story, len(e.stories))
	for i, st := range e.stories {
		out[i] = st
		out[i].Reactions = slices.Clone(st.Reactions)
	}
	return out
}

// ViewedStories returns when each viewed story was first seen, in unix
// milliseconds.
func (e *Engine) ViewedStories() map[string]int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.viewed)
}

func cloneGuest(g *models.Guest) *models.Guest {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

func clonePost(p models.Post) models.Post {
	p.Reactions = slices.Clone(p.Reactions)
	p.Comments = slices.Clone(p.Comments)
	return p
}
