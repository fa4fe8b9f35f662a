package feed

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"wedding-site/internal/apperr"
	"wedding-site/internal/models"
	"wedding-site/internal/upload"
)

const (
	MsgSelectMedia  = "Please select a photo or video."
	MsgUploadFailed = "Upload failed. Please try again."
)

// MediaTypeOf classifies m as video or image. The declared content type
// wins; without one the bytes are sniffed.
func MediaTypeOf(m upload.Media) models.MediaType {
	ct := m.ContentType
	if ct == "" && len(m.Data) > 0 {
		ct = mimetype.Detect(m.Data).String()
	}
	if strings.HasPrefix(ct, "video") {
		return models.MediaVideo
	}
	return models.MediaImage
}

// PublishPost uploads m and shares it as a post, then refreshes the feed.
func (e *Engine) PublishPost(ctx context.Context, m upload.Media, caption, location string) (*models.Post, error) {
	guest, err := e.currentGuest()
	if err != nil {
		return nil, err
	}
	mediaURL, err := e.uploadMedia(ctx, "posts", guest.ID, m)
	if err != nil {
		return nil, err
	}

	p := &models.Post{
		GuestID:   guest.ID,
		MediaURL:  mediaURL,
		MediaType: MediaTypeOf(m),
		Caption:   optional(caption),
		Location:  optional(location),
		CreatedAt: e.now(),
	}
	if err := e.backend.InsertPost(ctx, p); err != nil {
		return nil, apperr.Upstream(MsgUploadFailed, err)
	}
	if err := e.FetchPosts(ctx, true); err != nil {
		e.log.Warn().Err(err).Msg("Unable to refresh posts after publishing")
	}
	return p, nil
}

// PublishStory uploads m and shares it as a story that expires after the
// story TTL, then refreshes the stories.
func (e *Engine) PublishStory(ctx context.Context, m upload.Media) (*models.Story, error) {
	guest, err := e.currentGuest()
	if err != nil {
		return nil, err
	}
	mediaURL, err := e.uploadMedia(ctx, "stories", guest.ID, m)
	if err != nil {
		return nil, err
	}

	now := e.now()
	st := &models.Story{
		GuestID:   guest.ID,
		MediaURL:  mediaURL,
		MediaType: MediaTypeOf(m),
		CreatedAt: now,
		ExpiresAt: now.Add(e.storyTTL),
	}
	if err := e.backend.InsertStory(ctx, st); err != nil {
		return nil, apperr.Upstream(MsgUploadFailed, err)
	}
	if err := e.FetchStories(ctx); err != nil {
		e.log.Warn().Err(err).Msg("Unable to refresh stories after publishing")
	}
	return st, nil
}

func (e *Engine) uploadMedia(ctx context.Context, folder, guestID string, m upload.Media) (string, error) {
	if e.uploader == nil {
		return "", apperr.Upstream(MsgUploadFailed, errors.New("no uploader configured"))
	}
	mediaURL, err := e.uploader.Upload(ctx, folder, guestID, m)
	if err != nil {
		e.log.Error().Err(err).Str("folder", folder).Msg("Upload failed")
		return "", apperr.Upstream(MsgUploadFailed, err)
	}
	if mediaURL == "" {
		return "", apperr.Upstream(MsgUploadFailed, errors.New("missing URL"))
	}
	return mediaURL, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

type ComposerKind string

const (
	ComposePost  ComposerKind = "post"
	ComposeStory ComposerKind = "story"
)

type ComposerState int

const (
	ComposerClosed ComposerState = iota
	ComposerOpen
	ComposerUploading
)

func (s ComposerState) String() string {
	switch s {
	case ComposerOpen:
		return "open"
	case ComposerUploading:
		return "uploading"
	default:
		return "closed"
	}
}

// ComposerView is a snapshot of a Composer.
type ComposerView struct {
	State    ComposerState
	Kind     ComposerKind
	HasMedia bool
	Caption  string
	Location string
	Error    string
}

// Composer drafts a new post or story.
type Composer struct {
	engine *Engine

	mu       sync.Mutex
	state    ComposerState
	kind     ComposerKind
	media    *upload.Media
	caption  string
	location string
	err      string
}

func (e *Engine) NewComposer() *Composer {
	return &Composer{engine: e, kind: ComposePost}
}

// Open starts a fresh draft of the given kind.
func (c *Composer) Open(kind ComposerKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
	c.state = ComposerOpen
	c.kind = kind
}

// Close discards the draft.
func (c *Composer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Composer) reset() {
	c.state = ComposerClosed
	c.media = nil
	c.caption = ""
	c.location = ""
	c.err = ""
}

func (c *Composer) SetMedia(m upload.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = &m
}

func (c *Composer) SetCaption(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caption = s
}

func (c *Composer) SetLocation(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = s
}

func (c *Composer) View() ComposerView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ComposerView{
		State:    c.state,
		Kind:     c.kind,
		HasMedia: c.media != nil,
		Caption:  c.caption,
		Location: c.location,
		Error:    c.err,
	}
}

// Submit publishes the draft. On success the composer closes; on failure
// it stays open with an error message.
func (c *Composer) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state != ComposerOpen {
		c.mu.Unlock()
		return apperr.Validation("Composer is not open.")
	}
	if c.media == nil {
		c.err = MsgSelectMedia
		c.mu.Unlock()
		return apperr.Validation(MsgSelectMedia)
	}
	c.state = ComposerUploading
	c.err = ""
	kind, media, caption, location := c.kind, *c.media, c.caption, c.location
	c.mu.Unlock()

	var err error
	if kind == ComposeStory {
		_, err = c.engine.PublishStory(ctx, media)
	} else {
		_, err = c.engine.PublishPost(ctx, media, caption, location)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = ComposerOpen
		c.err = MsgUploadFailed
		return err
	}
	c.reset()
	return nil
}
