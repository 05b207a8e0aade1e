package reddit

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kalambet/sentinel/internal/activity"
)

func userPath(name, rest string) string {
	return "/user/" + url.PathEscape(name) + rest
}

// FetchAccountSnapshot reads the user's about page and trophy case.
// Suspended accounts report activity.ErrNotFound.
func (c *Client) FetchAccountSnapshot(ctx context.Context, subjectID string) (*activity.AccountSnapshot, error) {
	body, err := c.get(ctx, "about", userPath(subjectID, "/about"), nil)
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Get("is_suspended").Bool() || data.Get("name").String() == "" {
		return nil, activity.ErrNotFound
	}

	snap := &activity.AccountSnapshot{
		SubjectID:     data.Get("name").String(),
		CreatedAt:     unixTime(data.Get("created_utc")),
		LinkKarma:     int(data.Get("link_karma").Int()),
		CommentKarma:  int(data.Get("comment_karma").Int()),
		VerifiedEmail: data.Get("has_verified_email").Bool(),
		Premium:       data.Get("is_gold").Bool(),
	}

	trophies, err := c.fetchTrophyCount(ctx, subjectID)
	switch {
	case err == nil:
		snap.TrophyCount = trophies
	case ctx.Err() != nil:
		return nil, err
	default:
		// the trophy case is cosmetic; score without it
		c.logger.Warn("fetching trophies failed", "subject", subjectID, "error", err)
	}
	return snap, nil
}

func (c *Client) fetchTrophyCount(ctx context.Context, subjectID string) (int, error) {
	body, err := c.get(ctx, "trophies", "/api/v1/user/"+url.PathEscape(subjectID)+"/trophies", nil)
	if errors.Is(err, activity.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(gjson.GetBytes(body, "data.trophies.#").Int()), nil
}

// FetchRecentActivity returns up to limit submissions and up to limit
// comments, newest first within each kind.
func (c *Client) FetchRecentActivity(ctx context.Context, subjectID string, limit int) ([]activity.Sample, error) {
	if limit <= 0 || limit > maxListing {
		limit = maxListing
	}
	q := func() url.Values {
		return url.Values{"limit": {strconv.Itoa(limit)}, "sort": {"new"}}
	}

	posts, err := c.get(ctx, "submitted", userPath(subjectID, "/submitted"), q())
	if err != nil {
		return nil, err
	}
	comments, err := c.get(ctx, "comments", userPath(subjectID, "/comments"), q())
	if err != nil {
		return nil, err
	}

	var samples []activity.Sample
	gjson.GetBytes(posts, "data.children").ForEach(func(_, child gjson.Result) bool {
		d := child.Get("data")
		samples = append(samples, activity.Sample{
			Kind:      activity.KindPost,
			Title:     cleanText(d.Get("title").String()),
			Body:      cleanText(d.Get("selftext").String()),
			Container: d.Get("subreddit").String(),
			CreatedAt: unixTime(d.Get("created_utc")),
			Score:     int(d.Get("score").Int()),
		})
		return true
	})
	gjson.GetBytes(comments, "data.children").ForEach(func(_, child gjson.Result) bool {
		d := child.Get("data")
		samples = append(samples, activity.Sample{
			Kind:      activity.KindComment,
			Body:      cleanText(d.Get("body").String()),
			Container: d.Get("subreddit").String(),
			CreatedAt: unixTime(d.Get("created_utc")),
			Score:     int(d.Get("score").Int()),
		})
		return true
	})
	return samples, nil
}

func unixTime(r gjson.Result) time.Time {
	f := r.Float()
	if f <= 0 {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
}
