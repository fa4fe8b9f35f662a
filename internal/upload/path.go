package upload

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	unsafeChars = regexp.MustCompile(`[^a-z0-9-_]`)
	dashRuns    = regexp.MustCompile(`-+`)
)

// SanitizeSegment makes value safe for use as a single object path segment.
func SanitizeSegment(value, fallback string) string {
	s := strings.ToLower(value)
	s = unsafeChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return fallback
	}
	return s
}

// BuildPath returns {folder}/{guest}/{unixMillis}-{id}[.ext].
func BuildPath(folder, guestID, ext string, now time.Time, id string) string {
	if folder == "" {
		folder = "misc"
	}
	if guestID == "" {
		guestID = "guest"
	}
	path := fmt.Sprintf("%s/%s/%d-%s",
		SanitizeSegment(folder, "misc"),
		SanitizeSegment(guestID, "guest"),
		now.UnixMilli(),
		id,
	)
	if ext != "" {
		path += "." + ext
	}
	return path
}

// Extension returns the lower-cased text after the last dot of fileName.
func Extension(fileName string) string {
	i := strings.LastIndex(fileName, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(fileName[i+1:])
}
