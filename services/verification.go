// services/verification.go
package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"bones-api/models"

	json "github.com/goccy/go-json"
)

// VerifyResult is what a strategy decides. It is always well-formed: a
// platform error, a timeout, or "the user simply hasn't done it yet" all
// land here as Verified=false with diagnostics in Data, never as an error
// the caller has to handle.
type VerifyResult struct {
	Verified bool                   `json:"verified"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data"`
}

// VerificationService decides whether a user actually performed a task's
// social action, by reading the Twitter API. One strategy per task type;
// adding a task type means adding one entry to the table.
type VerificationService struct {
	Twitter    *TwitterClient
	strategies map[models.TaskType]strategyFunc
}

type strategyFunc func(ctx context.Context, task *models.Task, user *models.User) VerifyResult

func NewVerificationService(twitter *TwitterClient) *VerificationService {
	s := &VerificationService{Twitter: twitter}
	s.strategies = map[models.TaskType]strategyFunc{
		models.TaskTypeLike:       s.verifyLike,
		models.TaskTypeRepost:     s.verifyRepost,
		models.TaskTypeFollow:     s.verifyFollow,
		models.TaskTypePublishTag: s.verifyHashtagPost,
		models.TaskTypeComment:    s.verifyComment,
	}
	return s
}

// Verify dispatches to the task type's strategy. It never mutates the
// completion ledger — recording the outcome is the caller's job.
func (s *VerificationService) Verify(ctx context.Context, task *models.Task, user *models.User) VerifyResult {
	strategy, ok := s.strategies[task.TaskType]
	if !ok {
		return failure("Unknown task type", map[string]interface{}{"taskType": string(task.TaskType)})
	}
	if user.TwitterAccessToken == nil || *user.TwitterAccessToken == "" {
		return failure("Twitter account not connected", nil)
	}
	return strategy(ctx, task, user)
}

// --- strategies ---

func (s *VerificationService) verifyLike(ctx context.Context, task *models.Task, user *models.User) VerifyResult {
	tweetID := ExtractTweetID(task.TaskData.TweetID)
	if tweetID == "" {
		return failure("Missing tweet id", nil)
	}
	userID, err := s.Twitter.EnsureTwitterUserID(ctx, user)
	if err != nil {
		return errorFailure("like", err)
	}

	// Primary: the user's 100 most recent likes.
	resp, err := s.Twitter.Get(ctx, user, "/2/users/"+userID+"/liked_tweets", url.Values{"max_results": {"100"}})
	if err != nil {
		return errorFailure("like", err)
	}
	if resp.OK() {
		ids, err := decodeTweetIDs(resp)
		if err != nil {
			return errorFailure("like", err)
		}
		if contains(ids, tweetID) {
			return success("Like verified successfully", map[string]interface{}{
				"action": "like", "tweetId": tweetID, "endpoint": "liked_tweets",
			})
		}
		return failure("Like not found in recent likes", map[string]interface{}{
			"action": "like", "tweetId": tweetID, "endpoint": "liked_tweets",
		})
	}

	// Fallback: accounts that liked the target tweet.
	fallback, err := s.Twitter.Get(ctx, user, "/2/tweets/"+tweetID+"/liking_users", url.Values{"max_results": {"100"}})
	if err != nil {
		return errorFailure("like", err)
	}
	if !fallback.OK() {
		return apiFailure("liking_users", fallback)
	}
	ids, err := decodeUserIDs(fallback)
	if err != nil {
		return errorFailure("like", err)
	}
	if contains(ids, userID) {
		return success("Like verified successfully", map[string]interface{}{
			"action": "like", "tweetId": tweetID, "endpoint": "liking_users",
		})
	}
	return failure("Like not found yet", map[string]interface{}{
		"action": "like", "tweetId": tweetID, "endpoint": "liking_users",
	})
}

func (s *VerificationService) verifyRepost(ctx context.Context, task *models.Task, user *models.User) VerifyResult {
	tweetID := ExtractTweetID(task.TaskData.TweetID)
	if tweetID == "" {
		return failure("Missing tweet id", nil)
	}
	userID, err := s.Twitter.EnsureTwitterUserID(ctx, user)
	if err != nil {
		return errorFailure("repost", err)
	}

	// Primary: the user's recent tweets with reference metadata.
	resp, err := s.Twitter.Get(ctx, user, "/2/users/"+userID+"/tweets", url.Values{
		"max_results":  {"100"},
		"tweet.fields": {"referenced_tweets"},
	})
	if err != nil {
		return errorFailure("repost", err)
	}
	if resp.OK() {
		var payload struct {
			Data []struct {
				ID               string `json:"id"`
				ReferencedTweets []struct {
					Type string `json:"type"`
					ID   string `json:"id"`
				} `json:"referenced_tweets"`
			} `json:"data"`
		}
		if err := resp.Decode(&payload); err != nil {
			return errorFailure("repost", err)
		}
		for _, tweet := range payload.Data {
			for _, ref := range tweet.ReferencedTweets {
				if ref.Type == "retweeted" && ref.ID == tweetID {
					return success("Retweet verified successfully", map[string]interface{}{
						"action": "repost", "tweetId": tweetID, "matchedTweetId": tweet.ID, "endpoint": "user_tweets",
					})
				}
			}
		}
		return failure("Retweet not found in recent tweets", map[string]interface{}{
			"action": "repost", "tweetId": tweetID, "endpoint": "user_tweets",
		})
	}

	// Fallback: accounts that retweeted the target tweet.
	fallback, err := s.Twitter.Get(ctx, user, "/2/tweets/"+tweetID+"/retweeted_by", url.Values{"max_results": {"100"}})
	if err != nil {
		return errorFailure("repost", err)
	}
	if !fallback.OK() {
		return apiFailure("retweeted_by", fallback)
	}
	ids, err := decodeUserIDs(fallback)
	if err != nil {
		return errorFailure("repost", err)
	}
	if contains(ids, userID) {
		return success("Retweet verified successfully", map[string]interface{}{
			"action": "repost", "tweetId": tweetID, "endpoint": "retweeted_by",
		})
	}
	return failure("Retweet not found yet", map[string]interface{}{
		"action": "repost", "tweetId": tweetID, "endpoint": "retweeted_by",
	})
}

func (s *VerificationService) verifyFollow(ctx context.Context, task *models.Task, user *models.User) VerifyResult {
	handle := ExtractUsername(task.TaskData.Username)
	if handle == "" {
		return failure("Missing target username", nil)
	}
	userID, err := s.Twitter.EnsureTwitterUserID(ctx, user)
	if err != nil {
		return errorFailure("follow", err)
	}

	// Resolve the handle to a numeric id first.
	lookup, err := s.Twitter.Get(ctx, user, "/2/users/by/username/"+handle, nil)
	if err != nil {
		return errorFailure("follow", err)
	}
	if !lookup.OK() {
		return apiFailure("username_lookup", lookup)
	}
	var target struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := lookup.Decode(&target); err != nil {
		return errorFailure("follow", err)
	}
	if target.Data.ID == "" {
		return failure("Target account not found", map[string]interface{}{"username": handle})
	}

	resp, err := s.Twitter.Get(ctx, user, "/2/users/"+userID+"/following", url.Values{"max_results": {"1000"}})
	if err != nil {
		return errorFailure("follow", err)
	}
	if !resp.OK() {
		return apiFailure("following", resp)
	}
	ids, err := decodeUserIDs(resp)
	if err != nil {
		return errorFailure("follow", err)
	}
	if contains(ids, target.Data.ID) {
		return success("Follow verified successfully", map[string]interface{}{
			"action": "follow", "username": handle, "targetId": target.Data.ID,
		})
	}
	return failure("Follow not found yet", map[string]interface{}{
		"action": "follow", "username": handle, "targetId": target.Data.ID,
	})
}

func (s *VerificationService) verifyHashtagPost(ctx context.Context, task *models.Task, user *models.User) VerifyResult {
	hashtag := NormalizeHashtag(task.TaskData.Hashtag)
	if hashtag == "" {
		return failure("Missing hashtag", nil)
	}
	userID, err := s.Twitter.EnsureTwitterUserID(ctx, user)
	if err != nil {
		return errorFailure("publish_tag", err)
	}

	query := fmt.Sprintf("from:%s %s -is:retweet", userID, hashtag)
	return s.searchRecent(ctx, user, query, "publish_tag", map[string]interface{}{"hashtag": hashtag})
}

func (s *VerificationService) verifyComment(ctx context.Context, task *models.Task, user *models.User) VerifyResult {
	tweetID := ExtractTweetID(task.TaskData.TweetID)
	if tweetID == "" {
		return failure("Missing tweet id", nil)
	}
	userID, err := s.Twitter.EnsureTwitterUserID(ctx, user)
	if err != nil {
		return errorFailure("comment", err)
	}

	query := fmt.Sprintf("conversation_id:%s from:%s -is:retweet", tweetID, userID)
	return s.searchRecent(ctx, user, query, "comment", map[string]interface{}{"tweetId": tweetID})
}

// searchRecent runs one recent-search query; at least one hit verifies.
func (s *VerificationService) searchRecent(ctx context.Context, user *models.User, query, action string, extra map[string]interface{}) VerifyResult {
	resp, err := s.Twitter.Get(ctx, user, "/2/tweets/search/recent", url.Values{
		"query":       {query},
		"max_results": {"10"},
	})
	if err != nil {
		return errorFailure(action, err)
	}
	if !resp.OK() {
		return apiFailure("search_recent", resp)
	}

	ids, err := decodeTweetIDs(resp)
	if err != nil {
		return errorFailure(action, err)
	}

	data := map[string]interface{}{"action": action, "query": query}
	for k, v := range extra {
		data[k] = v
	}
	if len(ids) > 0 {
		data["matchedTweetId"] = ids[0]
		return success(verifiedMessage(action), data)
	}
	return failure("No matching tweet found yet", data)
}

// --- result helpers ---

func success(message string, data map[string]interface{}) VerifyResult {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return VerifyResult{Verified: true, Message: message, Data: data}
}

func failure(message string, data map[string]interface{}) VerifyResult {
	if data == nil {
		data = map[string]interface{}{}
	}
	return VerifyResult{Verified: false, Message: message, Data: data}
}

// apiFailure turns a non-success platform response into a failed result
// carrying the status and, best effort, the parsed error body.
func apiFailure(endpoint string, resp *APIResponse) VerifyResult {
	data := map[string]interface{}{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(resp.Body, &parsed); err == nil {
		data["response"] = parsed
	} else {
		data["response"] = string(resp.Body)
	}
	return VerifyResult{
		Verified: false,
		Message:  fmt.Sprintf("Twitter API error (status %d)", resp.StatusCode),
		Data:     data,
	}
}

// errorFailure normalizes a transport-level error (timeout, DNS, bad body)
// into a failed result.
func errorFailure(action string, err error) VerifyResult {
	return VerifyResult{
		Verified: false,
		Message:  "Verification failed",
		Data:     map[string]interface{}{"action": action, "error": err.Error()},
	}
}

func verifiedMessage(action string) string {
	switch action {
	case "publish_tag":
		return "Hashtag post verified successfully"
	case "comment":
		return "Comment verified successfully"
	}
	return "Verified successfully"
}

func decodeTweetIDs(resp *APIResponse) ([]string, error) {
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode tweet list: %w", err)
	}
	ids := make([]string, 0, len(payload.Data))
	for _, t := range payload.Data {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func decodeUserIDs(resp *APIResponse) ([]string, error) {
	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode user list: %w", err)
	}
	ids := make([]string, 0, len(payload.Data))
	for _, u := range payload.Data {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func contains(ids []string, needle string) bool {
	for _, id := range ids {
		if id == needle {
			return true
		}
	}
	return false
}
