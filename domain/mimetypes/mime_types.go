package mimetypes

import (
	"mime"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown   MIME = "unknown"
	TextPlain MIME = "text/plain"

	ApplicationPDF MIME = "application/pdf"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageGIF  MIME = "image/gif"
	ImageWebP MIME = "image/webp"

	AudioMPEG MIME = "audio/mpeg"
	AudioOGG  MIME = "audio/ogg"
	AudioWAV  MIME = "audio/wav"

	VideoMP4  MIME = "video/mp4"
	VideoWebM MIME = "video/webm"
)

// attachmentTypes lists what a chat message may carry.
var attachmentTypes = []MIME{
	TextPlain, ApplicationPDF,
	ImagePNG, ImageJPEG, ImageGIF, ImageWebP,
	AudioMPEG, AudioOGG, AudioWAV,
	VideoMP4, VideoWebM,
}

// Matches strips parameters (charset, ...) from detected before comparing.
func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// Attachment returns the accepted attachment type for a detected content type.
func Attachment(detected string) (MIME, bool) {
	for _, candidate := range attachmentTypes {
		if _, ok := Matches(detected, candidate); ok {
			return candidate, true
		}
	}
	return Unknown, false
}

// Detect sniffs data and returns its type with the usual file extension.
func Detect(data []byte) (MIME, string, bool) {
	detected := mimetype.Detect(data)
	accepted, ok := Attachment(detected.String())
	if !ok {
		return Unknown, "", false
	}
	return accepted, detected.Extension(), true
}
