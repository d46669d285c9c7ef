// Package media classifies Telegram messages and moves their files between Telegram and Pyrus.
package media

import (
	"fmt"

	"github.com/go-telegram/bot/models"
)

// Kind is the content type of a Telegram message.
type Kind int

// Message kinds in classification order.
const (
	KindUnsupported Kind = iota
	KindText
	KindPhoto
	KindDocument
	KindAudio
	KindVoice
	KindVideo
	KindSticker
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindDocument:
		return "document"
	case KindAudio:
		return "audio"
	case KindVoice:
		return "voice"
	case KindVideo:
		return "video"
	case KindSticker:
		return "sticker"
	default:
		return "unsupported"
	}
}

// File is a Telegram file reference together with the name it gets in Pyrus.
type File struct {
	Kind   Kind
	FileID string
	Name   string
	// Size is the size reported by Telegram; 0 means unknown.
	Size int64
}

// Document is downloaded file content ready to be sent to a chat.
type Document struct {
	Name    string
	Content []byte
}

// Classify determines the message kind. For file-bearing kinds it returns the file
// reference; for text and unsupported messages the file is nil.
func Classify(msg *models.Message) (Kind, *File) {
	if msg == nil {
		return KindUnsupported, nil
	}

	switch {
	case msg.Text != "":
		return KindText, nil
	case len(msg.Photo) > 0:
		// Telegram lists photo sizes ascending; the last one is the original.
		p := msg.Photo[len(msg.Photo)-1]
		return KindPhoto, &File{
			Kind:   KindPhoto,
			FileID: p.FileID,
			Name:   p.FileUniqueID + ".jpg",
			Size:   int64(p.FileSize),
		}
	case msg.Document != nil:
		name := msg.Document.FileName
		if name == "" {
			name = "document"
		}
		return KindDocument, &File{
			Kind:   KindDocument,
			FileID: msg.Document.FileID,
			Name:   name,
			Size:   int64(msg.Document.FileSize),
		}
	case msg.Audio != nil:
		return KindAudio, &File{
			Kind:   KindAudio,
			FileID: msg.Audio.FileID,
			Name:   fmt.Sprintf("audio_%s.mp3", msg.Audio.FileID),
			Size:   int64(msg.Audio.FileSize),
		}
	case msg.Voice != nil:
		return KindVoice, &File{
			Kind:   KindVoice,
			FileID: msg.Voice.FileID,
			Name:   fmt.Sprintf("voice_%s.ogg", msg.Voice.FileID),
			Size:   int64(msg.Voice.FileSize),
		}
	case msg.Video != nil:
		return KindVideo, &File{
			Kind:   KindVideo,
			FileID: msg.Video.FileID,
			Name:   fmt.Sprintf("video_%s.mp4", msg.Video.FileID),
			Size:   int64(msg.Video.FileSize),
		}
	case msg.Sticker != nil:
		return KindSticker, &File{
			Kind:   KindSticker,
			FileID: msg.Sticker.FileID,
			Name:   fmt.Sprintf("sticker_%s.%s", msg.Sticker.FileUniqueID, stickerExt(msg.Sticker)),
			Size:   int64(msg.Sticker.FileSize),
		}
	}
	return KindUnsupported, nil
}

func stickerExt(s *models.Sticker) string {
	switch {
	case s.IsAnimated:
		return "tgs"
	case s.IsVideo:
		return "webm"
	default:
		return "webp"
	}
}

// Caption returns the text that accompanies the message: caption for media, text otherwise.
func Caption(msg *models.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Caption != "" {
		return msg.Caption
	}
	return msg.Text
}
