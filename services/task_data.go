// services/task_data.go
package services

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	tweetIDPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)
	numericPattern = regexp.MustCompile(`^\d+$`)
	hashtagTrimSet = "#＃ \t"
)

// ExtractTweetID normalizes a tweet reference to its numeric id. Accepted
// forms: a bare numeric id, or any URL containing /status/<id> or
// /statuses/<id>. Returns "" when no id can be extracted.
func ExtractTweetID(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if numericPattern.MatchString(ref) {
		return ref
	}
	if m := tweetIDPattern.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ""
}

// ExtractUsername normalizes a username reference to the bare handle.
// Accepted forms: "@handle", "handle", or a profile URL whose first path
// segment is the handle. Returns "" when nothing usable remains.
func ExtractUsername(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 0 || parts[0] == "" {
			return ""
		}
		ref = parts[0]
	}
	return strings.TrimPrefix(ref, "@")
}

// NormalizeHashtag guarantees a single leading '#'.
func NormalizeHashtag(tag string) string {
	tag = strings.Trim(strings.TrimSpace(tag), hashtagTrimSet)
	if tag == "" {
		return ""
	}
	return "#" + tag
}
