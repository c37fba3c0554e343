package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kkdai/youtube/v2"
)

var (
	videoPattern    = regexp.MustCompile(`"url":"/watch\?v=([a-zA-Z0-9_-]{11})`)
	youtubePattern  = regexp.MustCompile(`^(?:https?://)?(?:www\.|music\.|m\.)?(?:youtube\.com|youtu\.be)/\S+`)
	ErrNoVideoMatch = errors.New("no video found for the given query")
	ErrNotYouTube   = errors.New("only YouTube links are supported")
	ErrNoAudio      = errors.New("no audio formats found for video")
)

const searchPageLimit = 4 << 20

// YouTube resolves search queries, video links and playlist links through
// the YouTube site and kkdai's client.
type YouTube struct {
	BaseURL string
	HTTP    *http.Client
	client  *youtube.Client
}

func NewYouTube() *YouTube {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &YouTube{
		BaseURL: "https://www.youtube.com",
		HTTP:    httpClient,
		client:  &youtube.Client{HTTPClient: httpClient},
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isPlaylist(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Query().Get("list") != "" && u.Query().Get("v") == ""
}

// Resolve turns query into tracks: a playlist link yields every entry, a
// video link or search text yields one track.
func (y *YouTube) Resolve(ctx context.Context, query string) ([]Track, error) {
	query = strings.TrimSpace(query)
	switch {
	case isURL(query) && !youtubePattern.MatchString(query):
		return nil, ErrNotYouTube
	case isURL(query) && isPlaylist(query):
		return y.playlist(ctx, query)
	}

	id := ""
	if isURL(query) {
		var err error
		if id, err = youtube.ExtractVideoID(query); err != nil {
			return nil, err
		}
	} else {
		var err error
		if id, err = y.Search(ctx, query); err != nil {
			return nil, err
		}
	}

	v, err := y.client.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("youtube client error: %w", err)
	}
	return []Track{{ID: v.ID, Title: v.Title, Duration: v.Duration}}, nil
}

func (y *YouTube) playlist(ctx context.Context, link string) ([]Track, error) {
	pl, err := y.client.GetPlaylistContext(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("youtube playlist error: %w", err)
	}
	tracks := make([]Track, 0, len(pl.Videos))
	for _, e := range pl.Videos {
		tracks = append(tracks, Track{ID: e.ID, Title: e.Title, Duration: e.Duration, Playlist: pl.Title})
	}
	if len(tracks) == 0 {
		return nil, ErrNoVideoMatch
	}
	return tracks, nil
}

// Search returns the ID of the first video on the results page for query.
func (y *YouTube) Search(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/results?search_query=%s", y.BaseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := y.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("YouTube search failed with status code %v", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, searchPageLimit))
	if err != nil {
		return "", err
	}
	if m := videoPattern.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}
	return "", ErrNoVideoMatch
}

// StreamURL returns a direct audio URL for t that ffmpeg can read.
func (y *YouTube) StreamURL(ctx context.Context, t Track) (string, error) {
	v, err := y.client.GetVideoContext(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("youtube client error: %w", err)
	}
	formats := v.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return "", ErrNoAudio
	}
	link, err := y.client.GetStreamURLContext(ctx, v, &formats[0])
	if err != nil {
		return "", fmt.Errorf("get stream URL error: %w", err)
	}
	return link, nil
}
