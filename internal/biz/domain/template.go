package domain

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Template is stored, reusable message content referenced by id from rules
// and ad-hoc sends. Content is delivered verbatim; {{placeholders}} are
// resolved by the producing layer, never by the core.
type Template struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Content        string    `json:"content"`
	Variables      []string  `json:"variables,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// ExtractVariables returns the distinct placeholder names in content, in
// first-appearance order.
func ExtractVariables(content string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Media is an attachment resolved for sending.
type Media struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
}

// MimeTypeFor maps a file name to a MIME type by extension.
func MimeTypeFor(fileName string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
		return t
	}
	return "application/octet-stream"
}
