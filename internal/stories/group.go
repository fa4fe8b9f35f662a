// Package stories groups active stories by author and steps a viewer
// through them on a timer.
package stories

import (
	"slices"

	"wedding-site/internal/models"
)

// Group is the run of stories shared by one guest.
type Group struct {
	Key     string
	Guest   *models.Guest
	Stories []models.Story
}

// Latest returns the newest story in the group.
func (g Group) Latest() models.Story {
	return g.Stories[len(g.Stories)-1]
}

func groupKey(st models.Story) string {
	switch {
	case st.Guest != nil && st.Guest.ID != "":
		return st.Guest.ID
	case st.GuestID != "":
		return st.GuestID
	default:
		return "guest"
	}
}

// GroupByGuest buckets stories by author. Stories inside a group run oldest
// first; groups are ordered by their newest story, most recent first.
func GroupByGuest(stories []models.Story) []Group {
	if len(stories) == 0 {
		return nil
	}

	index := make(map[string]int)
	var groups []Group
	for _, st := range stories {
		key := groupKey(st)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Guest: st.Guest})
		}
		groups[i].Stories = append(groups[i].Stories, st)
	}

	for i := range groups {
		slices.SortStableFunc(groups[i].Stories, func(a, b models.Story) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
	}
	slices.SortStableFunc(groups, func(a, b Group) int {
		return b.Latest().CreatedAt.Compare(a.Latest().CreatedAt)
	})
	return groups
}
