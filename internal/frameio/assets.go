package frameio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"client-delivery-backend/internal/models"
)

const childrenPageSize = 100

type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

type mediaLinks struct {
	Original struct {
		DownloadURL string `json:"download_url"`
	} `json:"original"`
	Thumbnail struct {
		URL string `json:"url"`
	} `json:"thumbnail"`
}

// Asset is a file or folder inside a Frame.io folder.
type Asset struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	MediaType  string     `json:"media_type"`
	ParentID   string     `json:"parent_id"`
	FileSize   int64      `json:"file_size"`
	CreatedAt  time.Time  `json:"created_at"`
	MediaLinks mediaLinks `json:"media_links"`
}

func (a Asset) IsVideo() bool {
	return a.Type != "folder" && models.IsVideoMediaType(a.MediaType)
}

type childrenPage struct {
	Data  []Asset `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

type createFolderRequest struct {
	Name string `json:"name"`
}

func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*Folder, error) {
	var out dataEnvelope[Folder]
	err := c.do(ctx, "create folder", http.MethodPost,
		c.accountPath("/folders/%s/folders", parentID),
		dataEnvelope[createFolderRequest]{Data: createFolderRequest{Name: name}}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("folder id is empty in response")
	}
	return &out.Data, nil
}

// ListChildren returns every asset directly inside folderID, following
// pagination links.
func (c *Client) ListChildren(ctx context.Context, folderID string) ([]Asset, error) {
	next := c.accountPath("/folders/%s/children?page_size=%d", folderID, childrenPageSize)
	var assets []Asset
	for next != "" {
		var page childrenPage
		pageURL := next
		err := c.RetryWithBackoff(ctx, func() error {
			page = childrenPage{}
			return c.do(ctx, "list folder children", http.MethodGet, pageURL, nil, &page)
		})
		if err != nil {
			return nil, err
		}
		assets = append(assets, page.Data...)
		next = c.resolveNext(page.Links.Next)
	}
	return assets, nil
}

// resolveNext turns the relative next link returned by the API into an
// absolute URL on the configured base.
func (c *Client) resolveNext(link string) string {
	if link == "" {
		return ""
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	// Links carry the /v4 prefix already.
	if strings.HasPrefix(ref.Path, base.Path+"/") {
		return base.Scheme + "://" + base.Host + ref.RequestURI()
	}
	return c.baseURL + "/" + strings.TrimPrefix(ref.RequestURI(), "/")
}

// ListVideoAssets keeps only the video files of folderID.
func (c *Client) ListVideoAssets(ctx context.Context, folderID string) ([]Asset, error) {
	children, err := c.ListChildren(ctx, folderID)
	if err != nil {
		return nil, err
	}
	videos := children[:0]
	for _, a := range children {
		if a.IsVideo() {
			videos = append(videos, a)
		}
	}
	return videos, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*Asset, error) {
	var out dataEnvelope[Asset]
	err := c.RetryWithBackoff(ctx, func() error {
		return c.do(ctx, "get file", http.MethodGet,
			c.accountPath("/files/%s?include=media_links.original,media_links.thumbnail", fileID), nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// DownloadURL returns a short-lived signed URL for the original media.
func (c *Client) DownloadURL(ctx context.Context, fileID string) (string, error) {
	asset, err := c.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if asset.MediaLinks.Original.DownloadURL == "" {
		return "", fmt.Errorf("file %s has no download url", fileID)
	}
	return asset.MediaLinks.Original.DownloadURL, nil
}

// Thumbnail fetches the thumbnail image bytes and their content type.
func (c *Client) Thumbnail(ctx context.Context, fileID string) ([]byte, string, error) {
	asset, err := c.GetFile(ctx, fileID)
	if err != nil {
		return nil, "", err
	}
	if asset.MediaLinks.Thumbnail.URL == "" {
		return nil, "", &APIError{Op: "get thumbnail", StatusCode: http.StatusNotFound, Body: "no thumbnail"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.MediaLinks.Thumbnail.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", &APIError{Op: "get thumbnail", StatusCode: resp.StatusCode, Body: string(body)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read thumbnail: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
