package chatclient

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

	"github.com/cwrk-planet/tripchat/pkg/chatproto"
)

// HistoryFetcher: источник страниц истории для Timeline.
type HistoryFetcher interface {
	GetMessages(ctx context.Context, tripID string, limit int, before string) (chatproto.MessagesPage, error)
}

// HistoryClient ходит в GET /trips/{tripID}/messages.
type HistoryClient struct {
	baseURL string
	token   string
	userID  string
	http    *http.Client
}

// NewHistoryClient: baseURL вида http://host:port. hc может быть nil.
func NewHistoryClient(baseURL, token, userID string, hc *http.Client) *HistoryClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HistoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		http:    hc,
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GetMessages возвращает страницу по возрастанию времени. Любая ошибка
// оборачивает ErrHistoryFetch.
func (c *HistoryClient) GetMessages(ctx context.Context, tripID string, limit int, before string) (chatproto.MessagesPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before != "" {
		q.Set("before", before)
	}
	u := fmt.Sprintf("%s/trips/%s/messages", c.baseURL, url.PathEscape(tripID))
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return chatproto.MessagesPage{}, fmt.Errorf("%w: %v", ErrHistoryFetch, err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return chatproto.MessagesPage{}, fmt.Errorf("%w: %v", ErrHistoryFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var env errorEnvelope
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
			return chatproto.MessagesPage{}, fmt.Errorf("%w: %d %s: %s", ErrHistoryFetch, resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return chatproto.MessagesPage{}, fmt.Errorf("%w: status %d", ErrHistoryFetch, resp.StatusCode)
	}

	var page chatproto.MessagesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return chatproto.MessagesPage{}, fmt.Errorf("%w: decode: %v", ErrHistoryFetch, err)
	}
	return page, nil
}
