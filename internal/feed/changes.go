package feed

import (
	"context"
	"encoding/json"
	"slices"

	"wedding-site/internal/metrics"
	"wedding-site/internal/models"
)

// Row operations as reported by the change triggers.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// ChangeEvent is a row change published on the feed change channel.
type ChangeEvent struct {
	Table  string          `json:"table"`
	Op     string          `json:"op"`
	Record json.RawMessage `json:"record"`
}

// Action is what Apply did with an event.
type Action string

const (
	ActionIgnored       Action = "ignored"
	ActionPatched       Action = "patched"
	ActionResyncPosts   Action = "resync_posts"
	ActionResyncStories Action = "resync_stories"
)

// Apply folds a change into the cached state. Reaction changes and
// deletions of posts and comments are patched in place; other changes to
// the feed tables trigger a refetch.
func (e *Engine) Apply(ctx context.Context, ev ChangeEvent) Action {
	action := e.reduce(ev)

	switch action {
	case ActionResyncPosts:
		if err := e.FetchPosts(ctx, true); err != nil {
			e.log.Warn().Err(err).Str("table", ev.Table).Msg("Resync of posts failed")
		}
	case ActionResyncStories:
		if err := e.FetchStories(ctx); err != nil {
			e.log.Warn().Err(err).Str("table", ev.Table).Msg("Resync of stories failed")
		}
	}

	metrics.FeedChanges.WithLabelValues(ev.Table, string(action)).Inc()
	e.log.Debug().Str("table", ev.Table).Str("op", ev.Op).Str("action", string(action)).Msg("Applied change")
	return action
}

func (e *Engine) reduce(ev ChangeEvent) Action {
	switch ev.Table {
	case "reactions":
		var r models.Reaction
		if err := json.Unmarshal(ev.Record, &r); err != nil || r.PostID == "" {
			return ActionResyncPosts
		}
		e.patchPost(r.PostID, func(p *models.Post) {
			if ev.Op == OpDelete {
				p.Reactions = removeReaction(p.Reactions, r.ID)
			} else {
				p.Reactions = putReaction(p.Reactions, r)
			}
		})
		return ActionPatched

	case "story_reactions":
		var r models.StoryReaction
		if err := json.Unmarshal(ev.Record, &r); err != nil || r.StoryID == "" {
			return ActionResyncStories
		}
		e.patchStory(r.StoryID, func(st *models.Story) {
			if ev.Op == OpDelete {
				st.Reactions = removeStoryReaction(st.Reactions, r.ID)
			} else {
				st.Reactions = putStoryReaction(st.Reactions, r)
			}
		})
		return ActionPatched

	case "posts":
		if ev.Op != OpDelete {
			return ActionResyncPosts
		}
		var p models.Post
		if err := json.Unmarshal(ev.Record, &p); err != nil || p.ID == "" {
			return ActionResyncPosts
		}
		e.mu.Lock()
		e.posts = slices.DeleteFunc(e.posts, func(x models.Post) bool { return x.ID == p.ID })
		e.mu.Unlock()
		return ActionPatched

	case "comments":
		if ev.Op != OpDelete {
			return ActionResyncPosts
		}
		var c models.Comment
		if err := json.Unmarshal(ev.Record, &c); err != nil || c.PostID == "" {
			return ActionResyncPosts
		}
		e.patchPost(c.PostID, func(p *models.Post) {
			p.Comments = slices.DeleteFunc(slices.Clone(p.Comments), func(x models.Comment) bool { return x.ID == c.ID })
		})
		return ActionPatched

	case "stories":
		return ActionResyncStories
	}
	return ActionIgnored
}

// Run applies events until the channel closes or ctx is done.
func (e *Engine) Run(ctx context.Context, events <-chan ChangeEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.Apply(ctx, ev)
		}
	}
}
