package scanner

import (
	"path"
	"strings"
)

// defaultMime is returned for any extension not present in the table.
const defaultMime = "application/octet-stream"

// mimeTable is a fixed extension -> MIME type mapping. Deliberately not
// backed by the stdlib mime package, whose table is OS-configurable and
// therefore not deterministic across machines — exactly the kind of
// environment dependency this mapping must not have.
var mimeTable = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".xml":   "application/xml",
	".txt":   "text/plain",
	".md":    "text/markdown",
	".csv":   "text/csv",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".bmp":   "image/bmp",
	".avif":  "image/avif",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mov":   "video/quicktime",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".ogg":   "audio/ogg",
	".pdf":   "application/pdf",
	".wasm":  "application/wasm",
	".zip":   "application/zip",
	".gz":    "application/gzip",
	".map":   "application/json",
	".yaml":  "application/yaml",
	".yml":   "application/yaml",
	".webmanifest": "application/manifest+json",
}

// DetectMime returns the MIME type for relPath by extension, lowercased,
// defaulting to application/octet-stream for unknown or missing extensions.
func DetectMime(relPath string) string {
	ext := strings.ToLower(path.Ext(relPath))
	if mime, ok := mimeTable[ext]; ok {
		return mime
	}
	return defaultMime
}
