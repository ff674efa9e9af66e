package mimetypes

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the coarse preview bucket a client uses to pick a renderer
// for a shared file. The engine only ever sees the declared media type;
// it never inspects file bytes.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindPDF     Kind = "pdf"
	KindText    Kind = "text"
	KindArchive Kind = "archive"
	KindFile    Kind = "file"
)

var archiveTypes = []string{
	"application/zip",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
	"application/x-tar",
	"application/gzip",
}

// PreviewKind buckets a declared media type. Parameters (charset etc.)
// are stripped first; known aliases are normalized through the mimetype
// database before matching.
func PreviewKind(mediaType string) Kind {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return KindFile
	}
	if known := mimetype.Lookup(mt); known != nil {
		if known.Is("application/pdf") {
			return KindPDF
		}
		for _, a := range archiveTypes {
			if known.Is(a) {
				return KindArchive
			}
		}
		mt = known.String()
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio
	case strings.HasPrefix(mt, "text/"):
		return KindText
	default:
		return KindFile
	}
}
