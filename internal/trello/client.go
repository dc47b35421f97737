package trello

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	apiKey     string
	token      string
	httpClient *http.Client
}

type Card struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ShortURL  string    `json:"shortUrl"`
	ListID    string    `json:"idList"`
	MemberIDs []string  `json:"idMembers"`
	LabelIDs  []string  `json:"idLabels"`
	Due       time.Time `json:"due"`
}

type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type NewCard struct {
	ListID      string
	Name        string
	Description string
	Due         time.Time
	LabelIDs    []string
	MemberIDs   []string
}

func NewClient(baseURL, apiKey, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.apiKey)
	params.Set("token", c.token)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to %s: status %d, body: %s", op, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
	}
	return nil
}

func (c *Client) CreateCard(ctx context.Context, nc NewCard) (*Card, error) {
	params := url.Values{}
	params.Set("idList", nc.ListID)
	params.Set("name", nc.Name)
	params.Set("pos", "top")
	if nc.Description != "" {
		params.Set("desc", nc.Description)
	}
	if !nc.Due.IsZero() {
		params.Set("due", nc.Due.UTC().Format(time.RFC3339))
	}
	if len(nc.LabelIDs) > 0 {
		params.Set("idLabels", strings.Join(nc.LabelIDs, ","))
	}
	if len(nc.MemberIDs) > 0 {
		params.Set("idMembers", strings.Join(nc.MemberIDs, ","))
	}

	var card Card
	if err := c.do(ctx, "create card", http.MethodPost, "/cards", params, &card); err != nil {
		return nil, err
	}
	if card.ID == "" {
		return nil, fmt.Errorf("card id is empty in response")
	}
	return &card, nil
}

func (c *Client) MoveCard(ctx context.Context, cardID, listID string) error {
	params := url.Values{}
	params.Set("idList", listID)
	return c.do(ctx, "move card", http.MethodPut, "/cards/"+cardID, params, nil)
}

func (c *Client) AddComment(ctx context.Context, cardID, text string) error {
	params := url.Values{}
	params.Set("text", text)
	return c.do(ctx, "add comment", http.MethodPost, "/cards/"+cardID+"/actions/comments", params, nil)
}

func (c *Client) GetAttachments(ctx context.Context, cardID string) ([]Attachment, error) {
	var attachments []Attachment
	if err := c.do(ctx, "get attachments", http.MethodGet, "/cards/"+cardID+"/attachments", nil, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}

func (c *Client) AddAttachment(ctx context.Context, cardID, name, link string) (*Attachment, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("url", link)
	var a Attachment
	if err := c.do(ctx, "add attachment", http.MethodPost, "/cards/"+cardID+"/attachments", params, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// AttachOnce adds link to the card unless an attachment with the same URL exists.
func (c *Client) AttachOnce(ctx context.Context, cardID, name, link string) (bool, error) {
	existing, err := c.GetAttachments(ctx, cardID)
	if err != nil {
		return false, err
	}
	for _, a := range existing {
		if a.URL == link {
			return false, nil
		}
	}
	if _, err := c.AddAttachment(ctx, cardID, name, link); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) GetBoardLabels(ctx context.Context, boardID string) ([]Label, error) {
	var labels []Label
	if err := c.do(ctx, "get board labels", http.MethodGet, "/boards/"+boardID+"/labels", nil, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func (c *Client) CreateLabel(ctx context.Context, boardID, name, color string) (*Label, error) {
	params := url.Values{}
	params.Set("name", name)
	params.Set("color", color)
	var label Label
	if err := c.do(ctx, "create label", http.MethodPost, "/boards/"+boardID+"/labels", params, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

// EnsureLabel returns the board label called name, creating it when missing.
func (c *Client) EnsureLabel(ctx context.Context, boardID, name, color string) (*Label, error) {
	labels, err := c.GetBoardLabels(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return &l, nil
		}
	}
	return c.CreateLabel(ctx, boardID, name, color)
}
