package feed

import (
	"context"
	"maps"

	"wedding-site/internal/apperr"
	"wedding-site/internal/database"
	"wedding-site/internal/models"
	"wedding-site/internal/storage"
)

// FetchStories replaces the cached stories with the active ones.
// Concurrent calls share one request.
func (e *Engine) FetchStories(ctx context.Context) error {
	if _, err := e.currentGuest(); err != nil {
		return err
	}
	_, err, _ := e.group.Do("stories", func() (any, error) {
		return nil, e.loadStories(ctx)
	})
	return err
}

func (e *Engine) loadStories(ctx context.Context) error {
	e.mu.RLock()
	gen := e.generation
	e.mu.RUnlock()

	now := e.now()
	list, err := e.backend.ListActiveStories(ctx, now, e.storiesLimit)
	if err != nil {
		e.log.Error().Err(err).Msg("Unable to load stories")
		return apperr.Upstream(MsgStoriesFailed, err)
	}

	active := make([]models.Story, 0, len(list))
	for _, st := range list {
		if st.Expired(now) {
			continue
		}
		if st.Reactions == nil {
			st.Reactions = []models.StoryReaction{}
		}
		active = append(active, st)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return nil
	}
	e.stories = active
	return nil
}

// ReactToStory toggles the guest's reaction on a story, like React.
func (e *Engine) ReactToStory(ctx context.Context, storyID string, t models.ReactionType) error {
	if !t.Valid() {
		return apperr.Validation(MsgUnknownReaction)
	}
	guest, err := e.currentGuest()
	if err != nil {
		return err
	}

	existing := e.ownStoryReaction(storyID, guest.ID)

	if existing != nil && existing.ReactionType == t {
		if err := e.backend.DeleteStoryReaction(ctx, existing.ID); err != nil {
			e.log.Error().Err(err).Str("story_id", storyID).Msg("Story reaction failed")
			return apperr.Upstream(MsgReactionFailed, err)
		}
		e.patchStory(storyID, func(st *models.Story) {
			st.Reactions = removeStoryReaction(st.Reactions, existing.ID)
		})
		return nil
	}

	r := &models.StoryReaction{StoryID: storyID, GuestID: guest.ID, ReactionType: t}
	if err := e.backend.UpsertStoryReaction(ctx, r); err != nil {
		e.log.Error().Err(err).Str("story_id", storyID).Msg("Story reaction failed")
		return apperr.Upstream(MsgReactionFailed, err)
	}
	e.patchStory(storyID, func(st *models.Story) {
		st.Reactions = putStoryReaction(st.Reactions, *r)
	})
	return nil
}

func (e *Engine) ownStoryReaction(storyID, guestID string) *models.StoryReaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, st := range e.stories {
		if st.ID != storyID {
			continue
		}
		for _, r := range st.Reactions {
			if r.GuestID == guestID {
				return &r
			}
		}
	}
	return nil
}

func (e *Engine) patchStory(id string, fn func(*models.Story)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.stories {
		if e.stories[i].ID == id {
			fn(&e.stories[i])
			return true
		}
	}
	return false
}

// MarkViewed remembers that the guest opened a story and records the view
// in the store. Viewing a story again changes nothing.
func (e *Engine) MarkViewed(ctx context.Context, storyID string) error {
	e.mu.Lock()
	var snapshot map[string]int64
	if _, seen := e.viewed[storyID]; !seen {
		e.viewed[storyID] = e.now().UnixMilli()
		snapshot = maps.Clone(e.viewed)
	}
	guest := cloneGuest(e.guest)
	e.mu.Unlock()

	if snapshot != nil && e.kv != nil {
		if err := e.kv.Save(storage.KeyViewedStories, snapshot); err != nil {
			e.log.Warn().Err(err).Msg("Unable to store viewed story info")
		}
	}
	if guest == nil {
		return nil
	}

	err := e.backend.InsertStoryView(ctx, &models.StoryView{
		StoryID:   storyID,
		GuestID:   guest.ID,
		CreatedAt: e.now(),
	})
	if err != nil && !database.IsDuplicate(err) {
		e.log.Error().Err(err).Str("story_id", storyID).Msg("Story view error")
		return err
	}
	return nil
}

// HasViewed reports whether the guest has opened the story before.
func (e *Engine) HasViewed(storyID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.viewed[storyID]
	return ok
}

func removeStoryReaction(list []models.StoryReaction, id string) []models.StoryReaction {
	out := make([]models.StoryReaction, 0, len(list))
	for _, r := range list {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

func putStoryReaction(list []models.StoryReaction, r models.StoryReaction) []models.StoryReaction {
	out := make([]models.StoryReaction, 0, len(list)+1)
	for _, x := range list {
		if x.ID != r.ID && x.GuestID != r.GuestID {
			out = append(out, x)
		}
	}
	return append(out, r)
}
