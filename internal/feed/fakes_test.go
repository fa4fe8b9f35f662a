package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"wedding-site/internal/models"
	"wedding-site/internal/upload"
)

var baseTime = time.Date(2026, 6, 6, 18, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu      sync.Mutex
	seq     int
	guests  map[string]*models.Guest
	posts   []models.Post
	stories []models.Story
	views   map[string]bool

	listPostsCalls   atomic.Int32
	listStoriesCalls atomic.Int32
	upsertCalls      atomic.Int32
	deleteCalls      atomic.Int32
	commentCalls     atomic.Int32
	viewCalls        atomic.Int32

	// postsGate, when set, blocks ListPosts until it is closed.
	postsGate chan struct{}
	// postsEntered receives a value whenever ListPosts starts.
	postsEntered chan struct{}
	reactErr     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{guests: map[string]*models.Guest{}, views: map[string]bool{}}
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

// addPosts seeds n posts, one minute apart, newest first.
func (f *fakeBackend) addPosts(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.posts = append(f.posts, models.Post{
			ID:        f.nextID("post"),
			GuestID:   "author",
			MediaURL:  "https://cdn.example.com/p.jpg",
			MediaType: models.MediaImage,
			CreatedAt: baseTime.Add(-time.Duration(len(f.posts)) * time.Minute),
		})
	}
}

func (f *fakeBackend) prependPost(p models.Post) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append([]models.Post{p}, f.posts...)
}

func (f *fakeBackend) FindGuestByEmail(ctx context.Context, email string) (*models.Guest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guests[email]
	if !ok {
		return nil, nil
	}
	c := *g
	return &c, nil
}

func (f *fakeBackend) SaveGuest(ctx context.Context, g *models.Guest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.guests[g.Email]; ok {
		g.ID = existing.ID
	} else if g.ID == "" {
		g.ID = f.nextID("guest")
	}
	c := *g
	f.guests[g.Email] = &c
	return nil
}

func (f *fakeBackend) ListPosts(ctx context.Context, before *time.Time, limit int) ([]models.Post, error) {
	f.listPostsCalls.Add(1)
	if f.postsEntered != nil {
		f.postsEntered <- struct{}{}
	}
	if f.postsGate != nil {
		<-f.postsGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Post
	for _, p := range f.posts {
		if before != nil && !p.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, clonePost(p))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeBackend) InsertPost(ctx context.Context, p *models.Post) error {
	f.mu.Lock()
	p.ID = f.nextID("post")
	f.mu.Unlock()
	f.prependPost(*p)
	return nil
}

func (f *fakeBackend) InsertComment(ctx context.Context, c *models.Comment) error {
	f.commentCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = f.nextID("comment")
	for _, g := range f.guests {
		if g.ID == c.GuestID {
			gc := *g
			c.Guest = &gc
		}
	}
	for i := range f.posts {
		if f.posts[i].ID == c.PostID {
			f.posts[i].Comments = append(f.posts[i].Comments, *c)
		}
	}
	return nil
}

func (f *fakeBackend) UpsertReaction(ctx context.Context, r *models.Reaction) error {
	f.upsertCalls.Add(1)
	if f.reactErr != nil {
		return f.reactErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.posts {
		if f.posts[i].ID != r.PostID {
			continue
		}
		for j, existing := range f.posts[i].Reactions {
			if existing.GuestID == r.GuestID {
				f.posts[i].Reactions[j].ReactionType = r.ReactionType
				*r = f.posts[i].Reactions[j]
				return nil
			}
		}
		r.ID = f.nextID("reaction")
		f.posts[i].Reactions = append(f.posts[i].Reactions, *r)
	}
	return nil
}

func (f *fakeBackend) DeleteReaction(ctx context.Context, id string) error {
	f.deleteCalls.Add(1)
	if f.reactErr != nil {
		return f.reactErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.posts {
		f.posts[i].Reactions = slices.DeleteFunc(f.posts[i].Reactions, func(r models.Reaction) bool { return r.ID == id })
	}
	return nil
}

func (f *fakeBackend) reactionsOf(postID string) []models.Reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.ID == postID {
			return slices.Clone(p.Reactions)
		}
	}
	return nil
}

// ListActiveStories returns every stored story, leaving expiry filtering
// to the caller, as a store with a skewed clock would.
func (f *fakeBackend) ListActiveStories(ctx context.Context, now time.Time, limit int) ([]models.Story, error) {
	f.listStoriesCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Story, 0, len(f.stories))
	for _, st := range f.stories {
		st.Reactions = slices.Clone(st.Reactions)
		out = append(out, st)
	}
	return out, nil
}

func (f *fakeBackend) InsertStory(ctx context.Context, st *models.Story) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st.ID = f.nextID("story")
	f.stories = append([]models.Story{*st}, f.stories...)
	return nil
}

func (f *fakeBackend) UpsertStoryReaction(ctx context.Context, r *models.StoryReaction) error {
	f.upsertCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.stories {
		if f.stories[i].ID != r.StoryID {
			continue
		}
		for j, existing := range f.stories[i].Reactions {
			if existing.GuestID == r.GuestID {
				f.stories[i].Reactions[j].ReactionType = r.ReactionType
				*r = f.stories[i].Reactions[j]
				return nil
			}
		}
		r.ID = f.nextID("story-reaction")
		f.stories[i].Reactions = append(f.stories[i].Reactions, *r)
	}
	return nil
}

func (f *fakeBackend) DeleteStoryReaction(ctx context.Context, id string) error {
	f.deleteCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.stories {
		f.stories[i].Reactions = slices.DeleteFunc(f.stories[i].Reactions, func(r models.StoryReaction) bool { return r.ID == id })
	}
	return nil
}

func (f *fakeBackend) InsertStoryView(ctx context.Context, v *models.StoryView) error {
	f.viewCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	key := v.StoryID + "/" + v.GuestID
	if f.views[key] {
		return errors.New(`ERROR: duplicate key value violates unique constraint "story_views_pkey"`)
	}
	f.views[key] = true
	return nil
}

type fakeUploader struct {
	mu      sync.Mutex
	folders []string
	owners  []string
	err     error
}

func (u *fakeUploader) Upload(ctx context.Context, folder, guestID string, m upload.Media) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.folders = append(u.folders, folder)
	u.owners = append(u.owners, guestID)
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/" + folder + "/" + guestID + "/" + m.FileName, nil
}

type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryKV() *memoryKV { return &memoryKV{data: map[string][]byte{}} }

func (m *memoryKV) Load(key string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

func (m *memoryKV) Save(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memoryKV) Clear(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
