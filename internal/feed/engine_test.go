package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-site/internal/apperr"
	"wedding-site/internal/models"
	"wedding-site/internal/storage"
	"wedding-site/internal/upload"
)

func fixedClock() time.Time { return baseTime.Add(time.Hour) }

func newSignedInEngine(t *testing.T, backend *fakeBackend, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock)}, opts...)
	e := NewEngine(backend, opts...)
	_, err := e.SignIn(context.Background(), "Maria Cruz", "maria@example.com", nil)
	require.NoError(t, err)
	return e
}

func TestInitialsAvatar(t *testing.T) {
	assert.Equal(t,
		"https://api.dicebear.com/7.x/initials/svg?radius=50&fontSize=40&seed=Maria%20Cruz&backgroundColor=7B9AAB",
		InitialsAvatar("Maria Cruz"))
	assert.Contains(t, InitialsAvatar(""), "seed=Guest&")
}

func TestSignIn_AvatarFallbacks(t *testing.T) {
	backend := newFakeBackend()
	uploader := &fakeUploader{}
	kv := newMemoryKV()
	e := NewEngine(backend, WithUploader(uploader), WithKV(kv))
	ctx := context.Background()

	g, err := e.SignIn(ctx, "  Maria Cruz ", " Maria@Example.com ", nil)
	require.NoError(t, err)
	assert.Equal(t, "maria@example.com", g.Email)
	assert.Equal(t, InitialsAvatar("Maria Cruz"), g.AvatarURL)
	assert.Empty(t, uploader.folders)

	g2, err := e.SignIn(ctx, "Maria Cruz", "maria@example.com", &upload.Media{FileName: "me.jpg", ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, g.ID, g2.ID)
	assert.Equal(t, "https://cdn.example.com/avatars/"+g.ID+"/me.jpg", g2.AvatarURL)
	assert.Equal(t, []string{"avatars"}, uploader.folders)

	g3, err := e.SignIn(ctx, "Maria C.", "maria@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, g2.AvatarURL, g3.AvatarURL)
	assert.Equal(t, "Maria C.", g3.Name)

	restored, err := NewEngine(backend, WithKV(kv)).Restore()
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, g3.ID, restored.ID)

	e.SignOut()
	assert.Nil(t, e.Guest())
	restored, err = NewEngine(backend, WithKV(kv)).Restore()
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestSignIn_Errors(t *testing.T) {
	e := NewEngine(newFakeBackend(), WithUploader(&fakeUploader{err: errors.New("s3 down")}))
	ctx := context.Background()

	_, err := e.SignIn(ctx, "", "a@b.c", nil)
	assert.Equal(t, MsgNameEmailRequired, apperr.PublicMessage(err, ""))

	_, err = e.SignIn(ctx, "Ana", "ana@example.com", &upload.Media{FileName: "a.png"})
	assert.Equal(t, MsgAvatarFailed, apperr.PublicMessage(err, ""))
	assert.Nil(t, e.Guest())
}

func TestFetchPosts_RequiresGuest(t *testing.T) {
	backend := newFakeBackend()
	e := NewEngine(backend)

	err := e.FetchPosts(context.Background(), true)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Zero(t, backend.listPostsCalls.Load())
}

func assertOrderedUnique(t *testing.T, posts []models.Post) {
	t.Helper()
	seen := map[string]bool{}
	for i, p := range posts {
		assert.False(t, seen[p.ID], "duplicate post %s", p.ID)
		seen[p.ID] = true
		if i > 0 {
			assert.False(t, p.CreatedAt.After(posts[i-1].CreatedAt), "posts out of order at %d", i)
		}
	}
}

func TestFetchPosts_Paginates(t *testing.T) {
	backend := newFakeBackend()
	backend.addPosts(25)
	e := newSignedInEngine(t, backend)
	ctx := context.Background()

	require.NoError(t, e.FetchPosts(ctx, true))
	assert.Len(t, e.Posts(), 10)
	assert.True(t, e.HasMore())

	require.NoError(t, e.FetchPosts(ctx, false))
	assert.Len(t, e.Posts(), 20)
	assert.True(t, e.HasMore())

	require.NoError(t, e.FetchPosts(ctx, false))
	assert.Len(t, e.Posts(), 25)
	assert.False(t, e.HasMore())

	calls := backend.listPostsCalls.Load()
	require.NoError(t, e.FetchPosts(ctx, false))
	assert.Equal(t, calls, backend.listPostsCalls.Load())

	backend.prependPost(models.Post{ID: "fresh", CreatedAt: baseTime.Add(time.Minute)})
	require.NoError(t, e.FetchPosts(ctx, true))

	posts := e.Posts()
	assert.Len(t, posts, 26)
	assert.Equal(t, "fresh", posts[0].ID)
	assert.True(t, e.HasMore())
	assertOrderedUnique(t, posts)
}

func TestFetchPosts_SortsComments(t *testing.T) {
	backend := newFakeBackend()
	backend.prependPost(models.Post{
		ID:        "p1",
		CreatedAt: baseTime,
		Comments: []models.Comment{
			{ID: "c2", CreatedAt: baseTime.Add(2 * time.Minute)},
			{ID: "c1", CreatedAt: baseTime.Add(time.Minute)},
		},
	})
	e := newSignedInEngine(t, backend)

	require.NoError(t, e.FetchPosts(context.Background(), true))
	posts := e.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "c1", posts[0].Comments[0].ID)
	assert.Equal(t, "c2", posts[0].Comments[1].ID)
	assert.NotNil(t, posts[0].Reactions)
}

func TestFetchPosts_CoalescesConcurrentCalls(t *testing.T) {
	backend := newFakeBackend()
	backend.addPosts(5)
	backend.postsGate = make(chan struct{})
	e := newSignedInEngine(t, backend)

	errs := make(chan error, 5)
	for range 5 {
		go func() { errs <- e.FetchPosts(context.Background(), true) }()
	}

	assert.Eventually(t, func() bool { return backend.listPostsCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(backend.postsGate)

	for range 5 {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, int32(1), backend.listPostsCalls.Load())
	assert.Len(t, e.Posts(), 5)
}

func TestFetchPosts_DiscardsResultAfterSignOut(t *testing.T) {
	backend := newFakeBackend()
	backend.addPosts(3)
	backend.postsGate = make(chan struct{})
	backend.postsEntered = make(chan struct{}, 1)
	e := newSignedInEngine(t, backend)

	done := make(chan error, 1)
	go func() { done <- e.FetchPosts(context.Background(), true) }()

	<-backend.postsEntered
	e.SignOut()
	close(backend.postsGate)

	require.NoError(t, <-done)
	assert.Empty(t, e.Posts())
}

func TestReact_Toggle(t *testing.T) {
	backend := newFakeBackend()
	backend.prependPost(models.Post{ID: "p1", CreatedAt: baseTime})
	e := newSignedInEngine(t, backend)
	ctx := context.Background()
	require.NoError(t, e.FetchPosts(ctx, true))

	require.NoError(t, e.React(ctx, "p1", models.ReactionLove))
	require.Len(t, e.Posts()[0].Reactions, 1)
	assert.Equal(t, models.ReactionLove, e.Posts()[0].Reactions[0].ReactionType)

	require.NoError(t, e.React(ctx, "p1", models.ReactionLove))
	assert.Empty(t, e.Posts()[0].Reactions)
	assert.Empty(t, backend.reactionsOf("p1"))

	require.NoError(t, e.React(ctx, "p1", models.ReactionLove))
	deletes := backend.deleteCalls.Load()
	require.NoError(t, e.React(ctx, "p1", models.ReactionWow))

	reactions := e.Posts()[0].Reactions
	require.Len(t, reactions, 1)
	assert.Equal(t, models.ReactionWow, reactions[0].ReactionType)
	assert.Equal(t, deletes, backend.deleteCalls.Load())
	require.Len(t, backend.reactionsOf("p1"), 1)
	assert.Equal(t, models.ReactionWow, backend.reactionsOf("p1")[0].ReactionType)
}

func TestReact_FailureKeepsCache(t *testing.T) {
	backend := newFakeBackend()
	backend.prependPost(models.Post{ID: "p1", CreatedAt: baseTime})
	e := newSignedInEngine(t, backend)
	ctx := context.Background()
	require.NoError(t, e.FetchPosts(ctx, true))

	backend.reactErr = errors.New("permission denied")
	err := e.React(ctx, "p1", models.ReactionLove)
	assert.Equal(t, MsgReactionFailed, apperr.PublicMessage(err, ""))
	assert.Empty(t, e.Posts()[0].Reactions)

	err = e.React(ctx, "p1", models.ReactionType("angry"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestComment(t *testing.T) {
	backend := newFakeBackend()
	backend.prependPost(models.Post{ID: "p1", CreatedAt: baseTime})
	e := newSignedInEngine(t, backend)
	ctx := context.Background()
	require.NoError(t, e.FetchPosts(ctx, true))

	_, err := e.Comment(ctx, "p1", "   \n ")
	assert.Equal(t, MsgEmptyComment, apperr.PublicMessage(err, ""))
	assert.Zero(t, backend.commentCalls.Load())

	c, err := e.Comment(ctx, "p1", "  Congratulations! ")
	require.NoError(t, err)
	assert.Equal(t, "Congratulations!", c.Content)
	require.NotNil(t, c.Guest)
	assert.Equal(t, "Maria Cruz", c.Guest.Name)

	comments := e.Posts()[0].Comments
	require.Len(t, comments, 1)
	assert.Equal(t, c.ID, comments[0].ID)
}

func TestFetchStories_SkipsExpired(t *testing.T) {
	backend := newFakeBackend()
	now := fixedClock()
	backend.stories = []models.Story{
		{ID: "fresh", CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(23 * time.Hour)},
		{ID: "expired", CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{ID: "edge", CreatedAt: now.Add(-24 * time.Hour), ExpiresAt: now},
	}
	e := newSignedInEngine(t, backend)

	require.NoError(t, e.FetchStories(context.Background()))
	stories := e.Stories()
	require.Len(t, stories, 1)
	assert.Equal(t, "fresh", stories[0].ID)
	assert.NotNil(t, stories[0].Reactions)
}

func TestReactToStory_Toggle(t *testing.T) {
	backend := newFakeBackend()
	now := fixedClock()
	backend.stories = []models.Story{{ID: "s1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}}
	e := newSignedInEngine(t, backend)
	ctx := context.Background()
	require.NoError(t, e.FetchStories(ctx))

	require.NoError(t, e.ReactToStory(ctx, "s1", models.ReactionCelebrate))
	require.NoError(t, e.ReactToStory(ctx, "s1", models.ReactionPray))
	reactions := e.Stories()[0].Reactions
	require.Len(t, reactions, 1)
	assert.Equal(t, models.ReactionPray, reactions[0].ReactionType)

	require.NoError(t, e.ReactToStory(ctx, "s1", models.ReactionPray))
	assert.Empty(t, e.Stories()[0].Reactions)
}

func TestMarkViewed_Idempotent(t *testing.T) {
	backend := newFakeBackend()
	kv := newMemoryKV()
	clock := fixedClock()
	e := newSignedInEngine(t, backend, WithKV(kv), WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	require.NoError(t, e.MarkViewed(ctx, "s1"))
	first := e.ViewedStories()["s1"]

	clock = clock.Add(time.Minute)
	require.NoError(t, e.MarkViewed(ctx, "s1"))

	assert.True(t, e.HasViewed("s1"))
	assert.False(t, e.HasViewed("s2"))
	assert.Equal(t, first, e.ViewedStories()["s1"])
	assert.Len(t, e.ViewedStories(), 1)
	assert.Len(t, backend.views, 1)

	var persisted map[string]int64
	found, err := kv.Load(storage.KeyViewedStories, &persisted)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, map[string]int64{"s1": first}, persisted)

	assert.True(t, NewEngine(backend, WithKV(kv)).HasViewed("s1"))
}
