package mimetypes

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreviewKind(t *testing.T) {
	req := require.New(t)

	req.Equal(KindImage, PreviewKind("image/png"))
	req.Equal(KindVideo, PreviewKind("video/mp4"))
	req.Equal(KindAudio, PreviewKind("audio/mpeg"))
	req.Equal(KindPDF, PreviewKind("application/pdf"))
	req.Equal(KindArchive, PreviewKind("application/zip"))
	req.Equal(KindText, PreviewKind("text/plain; charset=utf-8"))
	req.Equal(KindFile, PreviewKind("application/octet-stream"))
}

func TestPreviewKind_Malformed(t *testing.T) {
	req := require.New(t)
	req.Equal(KindFile, PreviewKind(""))
	req.Equal(KindFile, PreviewKind("not a media type"))
}
