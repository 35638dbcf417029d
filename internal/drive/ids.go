// internal/drive/ids.go
package drive

import (
	"regexp"
	"strings"

	apperrors "github.com/Corphon/MoodboardPitch/internal/errors"
)

var folderIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`folders/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]{25,})$`),
}

var fileIDPattern = regexp.MustCompile(`(?:id=|/d/|/file/d/)([a-zA-Z0-9_-]{25,})`)

// ExtractFolderID pulls the folder id out of a share link or accepts a bare id.
func ExtractFolderID(url string) (string, error) {
	url = strings.TrimSpace(url)
	for _, re := range folderIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", apperrors.NewValidationError("Impossible d'extraire l'ID du dossier depuis : "+url, nil)
}

// ExtractFileIDs finds every file id in free text, first occurrence order.
func ExtractFileIDs(text string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range fileIDPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
