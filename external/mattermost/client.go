package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/foxseedlab/voicenote/internal/chat"
	"github.com/mattermost/mattermost/server/public/model"
)

// Client talks to the REST API through model.Client4 and to the voice
// plugin's own routes with plain authenticated requests.
type Client struct {
	api      *model.Client4
	siteURL  string
	pluginID string
	token    string
	client   *http.Client
}

func NewClient(siteURL, token, pluginID string) *Client {
	siteURL = strings.TrimRight(siteURL, "/")
	api := model.NewAPIv4Client(siteURL)
	api.SetToken(token)
	return &Client{
		api:      api,
		siteURL:  siteURL,
		pluginID: pluginID,
		token:    token,
		client:   &http.Client{},
	}
}

func (c *Client) UploadFile(ctx context.Context, channelID, filename string, data []byte) (string, error) {
	resp, _, err := c.api.UploadFile(ctx, data, channelID, filename)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", filename, err)
	}
	if resp == nil || len(resp.FileInfos) == 0 || resp.FileInfos[0] == nil {
		return "", fmt.Errorf("upload %s: response has no file info", filename)
	}
	return resp.FileInfos[0].Id, nil
}

func (c *Client) CreatePost(ctx context.Context, p chat.VoicePost) (string, error) {
	post := &model.Post{
		ChannelId: p.ChannelID,
		RootId:    p.RootID,
		Message:   chat.VoicePostMessage,
		Type:      chat.VoicePostType,
	}
	post.SetProps(model.StringInterface{
		"fileId":   p.FileID,
		"duration": p.DurationMillis,
	})
	created, _, err := c.api.CreatePost(ctx, post)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return created.Id, nil
}

type voiceConfigResponse struct {
	VoiceMaxDuration  json.RawMessage `json:"VoiceMaxDuration"`
	VoiceAudioBitrate json.RawMessage `json:"VoiceAudioBitrate"`
}

// VoiceConfig reads the plugin settings. Max duration is in seconds and
// bitrate in kbps; the plugin serves both as strings or numbers.
func (c *Client) VoiceConfig(ctx context.Context) (chat.VoiceConfig, error) {
	resp, err := c.pluginGet(ctx, "/config", "application/json")
	if err != nil {
		return chat.VoiceConfig{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var raw voiceConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return chat.VoiceConfig{}, fmt.Errorf("decode voice config: %w", err)
	}
	maxSeconds, err := parseLooseInt(raw.VoiceMaxDuration)
	if err != nil {
		return chat.VoiceConfig{}, fmt.Errorf("VoiceMaxDuration: %w", err)
	}
	kbps, err := parseLooseInt(raw.VoiceAudioBitrate)
	if err != nil {
		return chat.VoiceConfig{}, fmt.Errorf("VoiceAudioBitrate: %w", err)
	}
	return chat.VoiceConfig{
		MaxDuration: time.Duration(maxSeconds) * time.Second,
		BitRate:     kbps * 1000,
	}, nil
}

// OpenRecording streams the audio of a voice post. The caller closes the body.
func (c *Client) OpenRecording(ctx context.Context, postID string) (io.ReadCloser, error) {
	resp, err := c.pluginGet(ctx, "/recordings/"+url.PathEscape(postID), "audio/*")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) PostDuration(ctx context.Context, postID string) (int64, error) {
	post, _, err := c.api.GetPost(ctx, postID, "")
	if err != nil {
		return 0, fmt.Errorf("get post %s: %w", postID, err)
	}
	switch v := post.GetProp("duration").(type) {
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("post %s duration: %w", postID, err)
		}
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("post %s duration has type %T", postID, v)
	}
}

func (c *Client) pluginGet(ctx context.Context, path, accept string) (*http.Response, error) {
	endpoint := c.siteURL + "/plugins/" + url.PathEscape(c.pluginID) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(model.HeaderAuth, model.HeaderBearer+" "+c.token)
	req.Header.Set("Accept", accept)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if !isHTTPSuccessStatus(resp.StatusCode) {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}
	return resp, nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func parseLooseInt(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return int(f), nil
}
