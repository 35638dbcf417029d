// internal/drive/drive_test.go
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
)

const (
	idA = "1AbCdEfGhIjKlMnOpQrStUvWxYz01"
	idB = "1ZyXwVuTsRqPoNmLkJiHgFeDcBa02"
	idC = "1QqQqQqQqQqQqQqQqQqQqQqQqQq03"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractFolderID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://drive.google.com/drive/folders/" + idA + "?usp=sharing", want: idA},
		{in: "https://drive.google.com/open?id=" + idB, want: idB},
		{in: "  " + idC + "  ", want: idC},
		{in: "https://example.com/nothing", wantErr: true},
		{in: "short", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ExtractFolderID(tt.in)
		if tt.wantErr {
			if !apperrors.IsValidationError(err) {
				t.Errorf("ExtractFolderID(%q) error = %v, want validation error", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ExtractFolderID(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ExtractFolderID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractFileIDsKeepsFirstSeenOrder(t *testing.T) {
	text := strings.Join([]string{
		"https://drive.google.com/file/d/" + idB + "/view",
		"https://drive.google.com/open?id=" + idA,
		"https://drive.google.com/file/d/" + idB + "/view?usp=sharing",
		"not a link",
		"https://drive.google.com/uc?id=" + idC,
	}, "\n")

	got := ExtractFileIDs(text)
	want := []string{idB, idA, idC}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractFileIDs mismatch (-want +got):\n%s", diff)
	}
	if got := ExtractFileIDs("nothing here"); len(got) != 0 {
		t.Errorf("ExtractFileIDs on plain text = %v, want empty", got)
	}
}

func TestListFolderWithAPIFollowsPages(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/files") {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"nextPageToken": "p2",
				"files": []map[string]string{
					{"id": idA, "name": "a.jpg", "mimeType": "image/jpeg"},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"files": []map[string]string{
				{"id": idB, "name": "b.png", "mimeType": "image/png"},
			},
		})
	}))
	defer ts.Close()

	ctx := context.Background()
	svc, err := drivev3.NewService(ctx, option.WithoutAuthentication(), option.WithEndpoint(ts.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	l := NewLoader(WithService(svc))
	if !l.UsesAPI() {
		t.Fatal("UsesAPI() = false with a service configured")
	}

	files, err := l.ListFolder(ctx, "folder123")
	if err != nil {
		t.Fatalf("ListFolder: %v", err)
	}
	want := []File{
		{ID: idA, Name: "a.jpg", MimeType: "image/jpeg"},
		{ID: idB, Name: "b.png", MimeType: "image/png"},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("ListFolder mismatch (-want +got):\n%s", diff)
	}
	if len(queries) != 2 {
		t.Fatalf("requests = %d, want 2", len(queries))
	}
	if !strings.HasPrefix(queries[0], "'folder123' in parents and trashed=false") {
		t.Errorf("query = %q", queries[0])
	}
}

func TestListFolderScrapesPublicPage(t *testing.T) {
	page := `<html><script>var x = [["` + idA + `","Plage.JPG",null],["` + idB + `","neon.webp"],` +
		`["` + idA + `","Plage.JPG"],["` + idC + `","notes.txt"]];</script></html>`
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drive/folders/folder123" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent header")
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer ts.Close()

	l := NewLoader(WithBaseURL(ts.URL))
	files, err := l.ListFolder(context.Background(), "folder123")
	if err != nil {
		t.Fatalf("ListFolder: %v", err)
	}
	want := []File{
		{ID: idA, Name: "Plage.JPG", MimeType: "image/jpeg"},
		{ID: idB, Name: "neon.webp", MimeType: "image/webp"},
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("ListFolder mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadPrefersThumbnail(t *testing.T) {
	img := testPNG(t, 40, 20)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/thumbnail":
			if got := r.URL.Query().Get("sz"); got != "w1024" {
				t.Errorf("sz = %q, want w1024", got)
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write(img)
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	data, err := NewLoader(WithBaseURL(ts.URL)).Download(context.Background(), idA)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("result is not a JPEG: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 20 {
		t.Errorf("size = %dx%d, want 40x20", cfg.Width, cfg.Height)
	}
}

func TestDownloadConfirmCookie(t *testing.T) {
	img := testPNG(t, 16, 16)
	var confirmed bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/thumbnail":
			http.Error(w, "nope", http.StatusForbidden)
		case "/uc":
			if r.URL.Query().Get("confirm") == "tok42" {
				confirmed = true
				w.Header().Set("Content-Type", "application/octet-stream")
				w.Write(img)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "download_warning_13058876669334088843_" + idA, Value: "tok42"})
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html>virus scan warning</html>"))
		}
	}))
	defer ts.Close()

	data, err := NewLoader(WithBaseURL(ts.URL)).Download(context.Background(), idA)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !confirmed {
		t.Error("confirm token was not sent")
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil {
		t.Errorf("result is not a JPEG: %v", err)
	}
}

func TestDownloadPrivateFileFails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>sign in</html>"))
	}))
	defer ts.Close()

	if _, err := NewLoader(WithBaseURL(ts.URL)).Download(context.Background(), idA); err == nil {
		t.Fatal("Download of a private file succeeded")
	}
}

func newFolderServer(t *testing.T, img []byte) *httptest.Server {
	t.Helper()
	page := `[["` + idA + `","one.jpg"],["` + idB + `","two.png"]]`
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/drive/folders/"):
			w.Write([]byte(page))
		case r.URL.Path == "/thumbnail" && r.URL.Query().Get("id") == idA:
			w.Header().Set("Content-Type", "image/png")
			w.Write(img)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestLoadFolderKeepsFailedEntries(t *testing.T) {
	ts := newFolderServer(t, testPNG(t, 8, 8))
	defer ts.Close()

	var messages []string
	var fractions []float64
	progress := func(f float64, msg string) {
		fractions = append(fractions, f)
		messages = append(messages, msg)
	}

	images, err := NewLoader(WithBaseURL(ts.URL)).LoadFolder(context.Background(),
		"https://drive.google.com/drive/folders/"+idC, progress)
	if err != nil {
		t.Fatalf("LoadFolder: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("images = %d, want 2", len(images))
	}
	if !images[0].HasData() || images[0].Error != "" {
		t.Errorf("first image not loaded: %+v", images[0].Name)
	}
	if images[1].HasData() || images[1].Error == "" {
		t.Errorf("second image should carry an error: %+v", images[1].Name)
	}
	if !strings.HasSuffix(images[1].ThumbnailURL, "id="+idB+"&sz=w200") {
		t.Errorf("ThumbnailURL = %q", images[1].ThumbnailURL)
	}

	wantMessages := []string{
		"Récupération de la liste des images...",
		"Chargement : one.jpg",
		"Chargement : two.png",
		"1 images chargées",
	}
	if diff := cmp.Diff(wantMessages, messages); diff != "" {
		t.Errorf("progress messages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.5, 1, 1}, fractions); diff != "" {
		t.Errorf("progress fractions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFolderEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	_, err := NewLoader(WithBaseURL(ts.URL)).LoadFolder(context.Background(), idC, nil)
	if !apperrors.IsValidationError(err) {
		t.Fatalf("error = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "Aucune image trouvée") {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestLoadFromIDsDropsFailures(t *testing.T) {
	ts := newFolderServer(t, testPNG(t, 8, 8))
	defer ts.Close()

	images, err := NewLoader(WithBaseURL(ts.URL)).LoadFromIDs(context.Background(),
		[]string{"", idB, idA}, nil)
	if err != nil {
		t.Fatalf("LoadFromIDs: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("images = %d, want 1", len(images))
	}
	if images[0].ID != idA || images[0].Name != "image_3.jpg" || images[0].MimeType != "image/jpeg" {
		t.Errorf("image = %+v", images[0].Name)
	}
}

func TestLoadFolderHonoursCancellation(t *testing.T) {
	ts := newFolderServer(t, testPNG(t, 8, 8))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoader(WithBaseURL(ts.URL)).LoadFolder(ctx, idC, nil); err == nil {
		t.Fatal("LoadFolder with a cancelled context succeeded")
	}
}

func TestNewServiceWithoutCredentials(t *testing.T) {
	svc, err := NewService(context.Background(), Credentials{
		CredentialsFile: t.TempDir() + "/missing.json",
		TokenFile:       t.TempDir() + "/token.json",
	})
	if err != nil || svc != nil {
		t.Fatalf("NewService = %v, %v; want nil, nil", svc, err)
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	tok := &oauth2.Token{AccessToken: "ya29.acces", RefreshToken: "1//rafraichir", TokenType: "Bearer"}

	for _, secret := range []string{"", "phrase secrète"} {
		path := filepath.Join(t.TempDir(), "auth", "token.json")
		if err := SaveToken(path, tok, secret); err != nil {
			t.Fatalf("SaveToken(secret=%q): %v", secret, err)
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if encrypted := !bytes.Contains(raw, []byte("ya29.acces")); encrypted != (secret != "") {
			t.Errorf("secret=%q: encrypted on disk = %v", secret, encrypted)
		}
		if info, _ := os.Stat(path); info.Mode().Perm() != 0600 {
			t.Errorf("token mode = %v", info.Mode().Perm())
		}

		got, err := LoadToken(path, secret)
		if err != nil {
			t.Fatalf("LoadToken(secret=%q): %v", secret, err)
		}
		if got.AccessToken != tok.AccessToken || got.RefreshToken != tok.RefreshToken {
			t.Errorf("LoadToken = %+v", got)
		}
	}
}

func TestLoadTokenWrongSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := SaveToken(path, &oauth2.Token{AccessToken: "a"}, "bon"); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadToken(path, "mauvais"); err == nil {
		t.Error("LoadToken accepted the wrong secret")
	}
}
