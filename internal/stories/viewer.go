package stories

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wedding-site/internal/models"
)

// DefaultDuration is how long each story stays on screen.
const DefaultDuration = 5000 * time.Millisecond

// State is the viewer position. GroupIndex and StoryIndex are meaningful
// only while Open is set.
type State struct {
	Open       bool
	GroupIndex int
	StoryIndex int
}

type Option func(*Viewer)

func WithDuration(d time.Duration) Option {
	return func(v *Viewer) {
		if d > 0 {
			v.duration = d
		}
	}
}

// WithViewCallback registers fn to run each time a story comes on screen.
func WithViewCallback(fn func(models.Story)) Option {
	return func(v *Viewer) { v.onView = fn }
}

// WithChangeCallback registers fn to run after every position change,
// including the close.
func WithChangeCallback(fn func(State)) Option {
	return func(v *Viewer) { v.onChange = fn }
}

func WithLogger(log zerolog.Logger) Option {
	return func(v *Viewer) { v.log = log.With().Str("component", "StoryViewer").Logger() }
}

// Viewer steps through story groups. While open, a timer advances to the
// next story after the configured duration.
type Viewer struct {
	duration time.Duration
	onView   func(models.Story)
	onChange func(State)
	log      zerolog.Logger

	mu     sync.Mutex
	groups []Group
	state  State
	timer  *time.Timer
	// seq invalidates timers armed for an earlier position.
	seq uint64
}

func NewViewer(groups []Group, opts ...Option) *Viewer {
	v := &Viewer{
		duration: DefaultDuration,
		groups:   groups,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// State returns the current position.
func (v *Viewer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Current returns the story on screen, if any.
func (v *Viewer) Current() (models.Story, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.currentLocked()
}

func (v *Viewer) currentLocked() (models.Story, bool) {
	if !v.state.Open || v.state.GroupIndex >= len(v.groups) {
		return models.Story{}, false
	}
	group := v.groups[v.state.GroupIndex]
	if v.state.StoryIndex >= len(group.Stories) {
		return models.Story{}, false
	}
	return group.Stories[v.state.StoryIndex], true
}

// Open shows the given story of the given group.
func (v *Viewer) Open(groupIndex, storyIndex int) error {
	v.mu.Lock()
	if groupIndex < 0 || groupIndex >= len(v.groups) {
		v.mu.Unlock()
		return fmt.Errorf("no story group at index %d", groupIndex)
	}
	if storyIndex < 0 || storyIndex >= len(v.groups[groupIndex].Stories) {
		v.mu.Unlock()
		return fmt.Errorf("no story at index %d in group %d", storyIndex, groupIndex)
	}
	v.moveLocked(State{Open: true, GroupIndex: groupIndex, StoryIndex: storyIndex})
	return nil
}

// Next advances to the following story, then to the first story of the
// next group, and closes after the last group.
func (v *Viewer) Next() {
	v.mu.Lock()
	if !v.state.Open {
		v.mu.Unlock()
		return
	}
	v.moveLocked(v.nextLocked())
}

func (v *Viewer) nextLocked() State {
	cur := v.state
	if cur.GroupIndex < 0 || cur.GroupIndex >= len(v.groups) {
		return State{}
	}
	if cur.StoryIndex < len(v.groups[cur.GroupIndex].Stories)-1 {
		return State{Open: true, GroupIndex: cur.GroupIndex, StoryIndex: cur.StoryIndex + 1}
	}
	if cur.GroupIndex < len(v.groups)-1 {
		return State{Open: true, GroupIndex: cur.GroupIndex + 1}
	}
	return State{}
}

// Prev steps back one story, crossing into the last story of the previous
// group. At the very first story it stays put.
func (v *Viewer) Prev() {
	v.mu.Lock()
	cur := v.state
	switch {
	case !cur.Open:
		v.mu.Unlock()
		return
	case cur.StoryIndex > 0:
		v.moveLocked(State{Open: true, GroupIndex: cur.GroupIndex, StoryIndex: cur.StoryIndex - 1})
	case cur.GroupIndex > 0:
		last := 0
		if prev := cur.GroupIndex - 1; prev < len(v.groups) {
			last = len(v.groups[prev].Stories) - 1
		}
		v.moveLocked(State{Open: true, GroupIndex: cur.GroupIndex - 1, StoryIndex: last})
	default:
		v.mu.Unlock()
	}
}

// Close hides the viewer and stops the timer.
func (v *Viewer) Close() {
	v.mu.Lock()
	if !v.state.Open {
		v.mu.Unlock()
		return
	}
	v.moveLocked(State{GroupIndex: v.state.GroupIndex, StoryIndex: v.state.StoryIndex})
}

// SetGroups replaces the groups after a refetch. If the current position no
// longer exists the viewer closes.
func (v *Viewer) SetGroups(groups []Group) {
	v.mu.Lock()
	v.groups = groups
	cur := v.state
	if !cur.Open {
		v.mu.Unlock()
		return
	}
	if cur.GroupIndex < len(groups) && cur.StoryIndex < len(groups[cur.GroupIndex].Stories) {
		v.mu.Unlock()
		return
	}
	v.moveLocked(State{})
}

// moveLocked switches to next, rearms the timer and fires the callbacks.
// It is entered with v.mu held and releases it.
func (v *Viewer) moveLocked(next State) {
	v.seq++
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
	v.state = next

	story, showing := v.currentLocked()
	if showing {
		seq := v.seq
		v.timer = time.AfterFunc(v.duration, func() { v.expire(seq) })
	}
	onView, onChange := v.onView, v.onChange
	v.mu.Unlock()

	if showing {
		v.log.Debug().Str("story", story.ID).Int("group", next.GroupIndex).Int("index", next.StoryIndex).Msg("Showing story")
		if onView != nil {
			onView(story)
		}
	}
	if onChange != nil {
		onChange(next)
	}
}

func (v *Viewer) expire(seq uint64) {
	v.mu.Lock()
	if seq != v.seq || !v.state.Open {
		v.mu.Unlock()
		return
	}
	v.moveLocked(v.nextLocked())
}
