package media

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		msg      *models.Message
		wantKind Kind
		wantName string
		wantSize int64
	}{
		{name: "nil message", msg: nil, wantKind: KindUnsupported},
		{name: "plain text", msg: &models.Message{Text: "hello"}, wantKind: KindText},
		{
			name: "photo uses largest size",
			msg: &models.Message{Photo: []models.PhotoSize{
				{FileID: "small", FileUniqueID: "u-small", FileSize: 10},
				{FileID: "big", FileUniqueID: "u-big", FileSize: 1000},
			}},
			wantKind: KindPhoto, wantName: "u-big.jpg", wantSize: 1000,
		},
		{
			name:     "document keeps its name",
			msg:      &models.Message{Document: &models.Document{FileID: "d1", FileName: "report.pdf", FileSize: 55}},
			wantKind: KindDocument, wantName: "report.pdf", wantSize: 55,
		},
		{
			name:     "document without name",
			msg:      &models.Message{Document: &models.Document{FileID: "d1"}},
			wantKind: KindDocument, wantName: "document",
		},
		{
			name:     "audio",
			msg:      &models.Message{Audio: &models.Audio{FileID: "a1", FileSize: 7}},
			wantKind: KindAudio, wantName: "audio_a1.mp3", wantSize: 7,
		},
		{
			name:     "voice",
			msg:      &models.Message{Voice: &models.Voice{FileID: "v1"}},
			wantKind: KindVoice, wantName: "voice_v1.ogg",
		},
		{
			name:     "video",
			msg:      &models.Message{Video: &models.Video{FileID: "vid"}},
			wantKind: KindVideo, wantName: "video_vid.mp4",
		},
		{
			name:     "animated sticker",
			msg:      &models.Message{Sticker: &models.Sticker{FileID: "s", FileUniqueID: "us", IsAnimated: true}},
			wantKind: KindSticker, wantName: "sticker_us.tgs",
		},
		{
			name:     "video sticker",
			msg:      &models.Message{Sticker: &models.Sticker{FileID: "s", FileUniqueID: "us", IsVideo: true}},
			wantKind: KindSticker, wantName: "sticker_us.webm",
		},
		{
			name:     "static sticker",
			msg:      &models.Message{Sticker: &models.Sticker{FileID: "s", FileUniqueID: "us"}},
			wantKind: KindSticker, wantName: "sticker_us.webp",
		},
		{name: "location is unsupported", msg: &models.Message{Location: &models.Location{}}, wantKind: KindUnsupported},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			kind, file := Classify(tc.msg)
			assert.Equal(t, tc.wantKind, kind)
			if tc.wantName == "" {
				assert.Nil(t, file)
				return
			}
			require.NotNil(t, file)
			assert.Equal(t, tc.wantName, file.Name)
			assert.Equal(t, tc.wantSize, file.Size)
		})
	}
}

type fakeDownloader struct {
	calls int
	err   error
}

func (d *fakeDownloader) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return []byte("content-" + fileID), nil
}

type fakeUploader struct {
	calls int
	err   error
}

func (u *fakeUploader) UploadFile(_ context.Context, filename string, content []byte) (string, error) {
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	return "guid-" + filename, nil
}

func TestResolveRejectsOversizeBeforeDownload(t *testing.T) {
	t.Parallel()

	down := &fakeDownloader{}
	up := &fakeUploader{}
	tr := NewTransfer(down, up, 100, nil)

	_, err := tr.Resolve(context.Background(), &File{Kind: KindVideo, FileID: "f", Name: "video_f.mp4", Size: 101})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Equal(t, 0, down.calls, "oversize file must not be downloaded")
	assert.Equal(t, 0, up.calls)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	down := &fakeDownloader{}
	up := &fakeUploader{}
	tr := NewTransfer(down, up, 100, nil)

	guid, err := tr.Resolve(context.Background(), &File{Kind: KindDocument, FileID: "f", Name: "a.pdf", Size: 100})
	require.NoError(t, err)
	assert.Equal(t, "guid-a.pdf", guid)
	assert.Equal(t, 1, down.calls)
	assert.Equal(t, 1, up.calls)
}

func TestResolveReportsStage(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tr := NewTransfer(&fakeDownloader{err: boom}, &fakeUploader{}, 0, nil)
	_, err := tr.Resolve(context.Background(), &File{FileID: "f", Name: "a"})
	var te *TransferError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "download", te.Op)
	assert.ErrorIs(t, err, boom)

	up := &fakeUploader{err: boom}
	tr = NewTransfer(&fakeDownloader{}, up, 0, nil)
	_, err = tr.Resolve(context.Background(), &File{FileID: "f", Name: "a"})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "upload", te.Op)
	assert.Equal(t, 1, up.calls)

	_, err = tr.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}
