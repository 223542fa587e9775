package kilat

import "strings"

// mimeTypes is the exact extension table the static file route consults;
// deliberately narrow rather than a general-purpose MIME database, per
// the URI/MIME utilities being out of scope as anything but a trivial
// lookup.
var mimeTypes = map[string]string{
	".txt":   "text/plain; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".gif":   "image/gif",
	".jpg":   "image/jpeg",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".flv":   "video/x-flv",
	".3gp":   "video/3gpp",
	".m3u8":  "application/vnd.apple.mpegurl",
	".mov":   "video/quicktime",
	".mp4":   "video/mp4",
	".ts":    "video/mp2t",
	".js":    "application/javascript",
	".json":  "application/json",
	".pdf":   "application/pdf",
	".wasm":  "application/wasm",
	".xml":   "application/xml",
	".php":   "application/x-httpd-php",
}

const defaultMimeType = "application/octet-stream"

// MimeType returns the content type for a file extension (as returned
// by path.Ext, including the leading dot), or a generic octet-stream
// type if the extension is unrecognized.
func MimeType(ext string) string {
	if t, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return t
	}
	return defaultMimeType
}
