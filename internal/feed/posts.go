package feed

import (
	"context"
	"slices"
	"strings"

	"wedding-site/internal/apperr"
	"wedding-site/internal/models"
)

// FetchPosts loads a page of posts. With reset the newest page is merged
// ahead of the cached posts; otherwise the page after the cursor is
// appended. Concurrent calls share one request.
func (e *Engine) FetchPosts(ctx context.Context, reset bool) error {
	if _, err := e.currentGuest(); err != nil {
		return err
	}
	_, err, _ := e.group.Do("posts", func() (any, error) {
		return nil, e.loadPosts(ctx, reset)
	})
	return err
}

func (e *Engine) loadPosts(ctx context.Context, reset bool) error {
	e.mu.Lock()
	if reset {
		e.cursor = nil
	} else if !e.hasMore {
		e.mu.Unlock()
		return nil
	}
	gen := e.generation
	cursor := e.cursor
	e.mu.Unlock()

	page, err := e.backend.ListPosts(ctx, cursor, e.pageSize)
	if err != nil {
		e.log.Error().Err(err).Msg("Error loading posts")
		return apperr.Upstream(MsgPostsFailed, err)
	}
	for i := range page {
		normalizePost(&page[i])
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return nil
	}

	if reset {
		incoming := make(map[string]bool, len(page))
		for _, p := range page {
			incoming[p.ID] = true
		}
		merged := slices.Clone(page)
		for _, p := range e.posts {
			if !incoming[p.ID] {
				merged = append(merged, p)
			}
		}
		e.posts = merged
		e.hasMore = len(page) == e.pageSize
	} else {
		existing := make(map[string]bool, len(e.posts))
		for _, p := range e.posts {
			existing[p.ID] = true
		}
		for _, p := range page {
			if !existing[p.ID] {
				e.posts = append(e.posts, p)
				existing[p.ID] = true
			}
		}
		if len(page) < e.pageSize {
			e.hasMore = false
		}
	}

	if n := len(e.posts); n > 0 {
		oldest := e.posts[n-1].CreatedAt
		e.cursor = &oldest
	}
	return nil
}

func normalizePost(p *models.Post) {
	if p.Reactions == nil {
		p.Reactions = []models.Reaction{}
	}
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	slices.SortStableFunc(p.Comments, func(a, b models.Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// React toggles the guest's reaction on a post. Reacting with the type the
// guest already holds removes it; any other type replaces it. The cache is
// only changed after the store confirms.
func (e *Engine) React(ctx context.Context, postID string, t models.ReactionType) error {
	if !t.Valid() {
		return apperr.Validation(MsgUnknownReaction)
	}
	guest, err := e.currentGuest()
	if err != nil {
		return err
	}

	existing := e.ownPostReaction(postID, guest.ID)

	if existing != nil && existing.ReactionType == t {
		if err := e.backend.DeleteReaction(ctx, existing.ID); err != nil {
			e.log.Error().Err(err).Str("post_id", postID).Msg("Reaction failed")
			return apperr.Upstream(MsgReactionFailed, err)
		}
		e.patchPost(postID, func(p *models.Post) {
			p.Reactions = removeReaction(p.Reactions, existing.ID)
		})
		return nil
	}

	r := &models.Reaction{PostID: postID, GuestID: guest.ID, ReactionType: t}
	if err := e.backend.UpsertReaction(ctx, r); err != nil {
		e.log.Error().Err(err).Str("post_id", postID).Msg("Reaction failed")
		return apperr.Upstream(MsgReactionFailed, err)
	}
	e.patchPost(postID, func(p *models.Post) {
		p.Reactions = putReaction(p.Reactions, *r)
	})
	return nil
}

func (e *Engine) ownPostReaction(postID, guestID string) *models.Reaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, p := range e.posts {
		if p.ID != postID {
			continue
		}
		for _, r := range p.Reactions {
			if r.GuestID == guestID {
				return &r
			}
		}
	}
	return nil
}

// Comment appends a comment by the signed-in guest. Blank content is
// rejected without contacting the store.
func (e *Engine) Comment(ctx context.Context, postID, content string) (*models.Comment, error) {
	guest, err := e.currentGuest()
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation(MsgEmptyComment)
	}

	c := &models.Comment{PostID: postID, GuestID: guest.ID, Content: content, CreatedAt: e.now()}
	if err := e.backend.InsertComment(ctx, c); err != nil {
		e.log.Error().Err(err).Str("post_id", postID).Msg("Failed to add comment")
		return nil, apperr.Upstream(MsgCommentFailed, err)
	}

	e.patchPost(postID, func(p *models.Post) {
		if slices.ContainsFunc(p.Comments, func(existing models.Comment) bool { return existing.ID == c.ID }) {
			return
		}
		p.Comments = append(slices.Clone(p.Comments), *c)
		slices.SortStableFunc(p.Comments, func(a, b models.Comment) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	})
	stored := *c
	return &stored, nil
}

// patchPost applies fn to the cached post with id, if loaded. It reports
// whether the post was found.
func (e *Engine) patchPost(id string, fn func(*models.Post)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.posts {
		if e.posts[i].ID == id {
			fn(&e.posts[i])
			return true
		}
	}
	return false
}

func removeReaction(list []models.Reaction, id string) []models.Reaction {
	return slices.DeleteFunc(slices.Clone(list), func(r models.Reaction) bool { return r.ID == id })
}

// putReaction replaces whatever reaction the same guest held.
func putReaction(list []models.Reaction, r models.Reaction) []models.Reaction {
	out := slices.DeleteFunc(slices.Clone(list), func(x models.Reaction) bool {
		return x.ID == r.ID || x.GuestID == r.GuestID
	})
	return append(out, r)
}
