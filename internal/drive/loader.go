// internal/drive/loader.go

// Package drive lists and downloads the pictures of a shared Google Drive folder.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
	"github.com/Corphon/MoodboardPitch/internal/imaging"
	"github.com/Corphon/MoodboardPitch/internal/models"
	"github.com/Corphon/MoodboardPitch/internal/utils"
)

const (
	DefaultBaseURL = "https://drive.google.com"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	maxImageBytes  = 32 << 20
)

const imageQuery = "'%s' in parents and trashed=false and " +
	"(mimeType='image/jpeg' or mimeType='image/png' or mimeType='image/gif' or mimeType='image/webp')"

// EmptyFolderMessage is returned when a folder yields no picture.
const EmptyFolderMessage = "Aucune image trouvée. Vérifiez que :\n" +
	"1. Le dossier contient des images (jpg, png, gif, webp)\n" +
	"2. Le dossier est partagé avec 'Tous ceux qui ont le lien'\n" +
	"3. Le lien est correct (ou la clé API est valide)"

var scrapePattern = regexp.MustCompile(`(?i)\["([a-zA-Z0-9_-]{25,50})","([^"]+\.(jpg|jpeg|png|gif|webp|bmp))"`)

// ProgressFunc receives a completion fraction in [0, 1] and a status line.
type ProgressFunc func(fraction float64, message string)

// File is a listing entry before download.
type File struct {
	ID       string
	Name     string
	MimeType string
}

// Loader fetches pictures either through the Drive API or the public endpoints.
type Loader struct {
	svc     *drivev3.Service
	client  *http.Client
	baseURL string
	maxSide int
	quality int
	logger  *utils.Logger
}

type Option func(*Loader)

// WithService makes ListFolder use the Drive v3 API.
func WithService(svc *drivev3.Service) Option {
	return func(l *Loader) { l.svc = svc }
}

func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithBaseURL replaces https://drive.google.com for the public endpoints.
func WithBaseURL(u string) Option {
	return func(l *Loader) { l.baseURL = strings.TrimRight(u, "/") }
}

func WithImageSize(maxSide, quality int) Option {
	return func(l *Loader) {
		l.maxSide = maxSide
		l.quality = quality
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: DefaultBaseURL,
		maxSide: imaging.DefaultMaxSide,
		quality: imaging.DefaultQuality,
		logger:  utils.GetLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// UsesAPI reports whether listings go through the Drive API.
func (l *Loader) UsesAPI() bool {
	return l.svc != nil
}

// ListFolder returns the pictures directly inside folderID.
func (l *Loader) ListFolder(ctx context.Context, folderID string) ([]File, error) {
	if l.svc != nil {
		return l.listWithAPI(ctx, folderID)
	}
	return l.listFromPage(ctx, folderID)
}

func (l *Loader) listWithAPI(ctx context.Context, folderID string) ([]File, error) {
	var files []File
	pageToken := ""
	for {
		call := l.svc.Files.List().
			Q(fmt.Sprintf(imageQuery, folderID)).
			Fields(googleapi.Field("nextPageToken, files(id, name, mimeType, thumbnailLink)")).
			PageSize(100).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, apperrors.NewUpstreamError("Erreur lors de la lecture du dossier Drive", err)
		}
		for _, f := range resp.Files {
			files = append(files, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
		}
		if resp.NextPageToken == "" {
			return files, nil
		}
		pageToken = resp.NextPageToken
	}
}

// listFromPage scrapes the public folder page. Only works for folders shared
// with anyone holding the link.
func (l *Loader) listFromPage(ctx context.Context, folderID string) ([]File, error) {
	body, _, err := l.get(ctx, l.baseURL+"/drive/folders/"+url.PathEscape(folderID))
	if err != nil {
		return nil, apperrors.NewUpstreamError("Impossible d'accéder au dossier Drive", err)
	}

	var files []File
	seen := make(map[string]bool)
	for _, m := range scrapePattern.FindAllStringSubmatch(string(body), -1) {
		id, name := m[1], m[2]
		if seen[id] {
			continue
		}
		seen[id] = true
		files = append(files, File{ID: id, Name: name, MimeType: imaging.MimeTypeFromName(name)})
	}
	return files, nil
}

// LoadFolder lists the folder behind folderURL and downloads every picture.
// Failed downloads stay in the result with Error set.
func (l *Loader) LoadFolder(ctx context.Context, folderURL string, progress ProgressFunc) ([]models.MoodImage, error) {
	progress = orNoop(progress)

	folderID, err := ExtractFolderID(folderURL)
	if err != nil {
		return nil, err
	}

	progress(0, "Récupération de la liste des images...")
	files, err := l.ListFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperrors.NewValidationError(EmptyFolderMessage, nil)
	}

	l.logger.Info("📁 Drive folder listed", map[string]interface{}{
		"folder_id": folderID,
		"files":     len(files),
		"api":       l.UsesAPI(),
	})

	images := make([]models.MoodImage, 0, len(files))
	loaded := 0
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress(float64(i+1)/float64(len(files)), "Chargement : "+f.Name)

		img := models.MoodImage{
			ID:           f.ID,
			Name:         f.Name,
			MimeType:     f.MimeType,
			ThumbnailURL: l.thumbnailURL(f.ID, 200),
		}
		data, err := l.Download(ctx, f.ID)
		if err != nil {
			l.logger.Warn("⚠️ Drive download failed", map[string]interface{}{
				"file_id": f.ID,
				"name":    f.Name,
				"error":   err,
			})
			img.Error = err.Error()
		} else {
			img.Data = data
			img.MimeType = "image/jpeg"
			loaded++
		}
		images = append(images, img)
	}

	progress(1.0, fmt.Sprintf("%d images chargées", loaded))
	return images, nil
}

// LoadFromIDs downloads individual files; ids that fail are dropped.
func (l *Loader) LoadFromIDs(ctx context.Context, ids []string, progress ProgressFunc) ([]models.MoodImage, error) {
	progress = orNoop(progress)

	var images []models.MoodImage
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("image_%d.jpg", i+1)
		progress(float64(i+1)/float64(len(ids)), "Chargement : "+name)

		data, err := l.Download(ctx, id)
		if err != nil {
			l.logger.Warn("⚠️ Drive file skipped", map[string]interface{}{
				"file_id": id,
				"error":   err,
			})
			continue
		}
		images = append(images, models.MoodImage{
			ID:           id,
			Name:         name,
			MimeType:     "image/jpeg",
			ThumbnailURL: l.thumbnailURL(id, 200),
			Data:         data,
		})
	}
	progress(1.0, fmt.Sprintf("%d images chargées", len(images)))
	return images, nil
}

// Download fetches one file and returns it normalized as JPEG.
// The thumbnail endpoint is tried first since it skips the virus-scan page.
func (l *Loader) Download(ctx context.Context, fileID string) ([]byte, error) {
	if data, ok := l.tryThumbnail(ctx, fileID); ok {
		if out, err := imaging.Normalize(data, l.maxSide, l.quality); err == nil {
			return out, nil
		}
	}

	data, err := l.downloadDirect(ctx, fileID)
	if err != nil {
		return nil, err
	}
	return imaging.Normalize(data, l.maxSide, l.quality)
}

func (l *Loader) tryThumbnail(ctx context.Context, fileID string) ([]byte, bool) {
	body, header, err := l.get(ctx, l.thumbnailURL(fileID, 1024))
	if err != nil || len(body) == 0 || isHTML(header) {
		return nil, false
	}
	return body, true
}

func (l *Loader) downloadDirect(ctx context.Context, fileID string) ([]byte, error) {
	base := l.baseURL + "/uc?export=download&id=" + url.QueryEscape(fileID)

	req, err := l.newRequest(ctx, base)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	if !isHTML(resp.Header) {
		return body, nil
	}

	// Large files answer with a confirmation page and a download_warning cookie.
	token := ""
	for _, c := range resp.Cookies() {
		if strings.HasPrefix(c.Name, "download_warning") {
			token = c.Value
			break
		}
	}
	if token == "" {
		return nil, fmt.Errorf("download %s: file is not publicly accessible", fileID)
	}

	body, header, err := l.get(ctx, base+"&confirm="+url.QueryEscape(token))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	if isHTML(header) {
		return nil, fmt.Errorf("download %s: confirmation refused", fileID)
	}
	return body, nil
}

func (l *Loader) thumbnailURL(fileID string, width int) string {
	return fmt.Sprintf("%s/thumbnail?id=%s&sz=w%d", l.baseURL, url.QueryEscape(fileID), width)
}

func (l *Loader) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (l *Loader) get(ctx context.Context, u string) ([]byte, http.Header, error) {
	req, err := l.newRequest(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, nil, err
	}
	return body, resp.Header, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func isHTML(h http.Header) bool {
	return strings.Contains(h.Get("Content-Type"), "text/html")
}

func orNoop(p ProgressFunc) ProgressFunc {
	if p == nil {
		return func(float64, string) {}
	}
	return p
}

