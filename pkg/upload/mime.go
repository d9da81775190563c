package upload

import (
	"path/filepath"
	"strings"
)

// DefaultContentType is used for unknown extensions.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"heic": "image/heic",
	"bmp":  "image/bmp",
	"svg":  "image/svg+xml",
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
	"avi":  "video/x-msvideo",
	"3gp":  "video/3gpp",
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain",
	"csv":  "text/csv",
	"json": "application/json",
	"zip":  "application/zip",
}

// ContentTypeFor returns the MIME type for a file name based on its
// extension. The lookup is case-insensitive.
func ContentTypeFor(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return DefaultContentType
	}

	if ct, ok := contentTypes[ext]; ok {
		return ct
	}

	return DefaultContentType
}
