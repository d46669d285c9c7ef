package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyrusbridge/tgbridge/internal/bot/handlers"
	"github.com/pyrusbridge/tgbridge/internal/media"
)

type fakeAPI struct {
	mu         sync.Mutex
	groupSizes []int
	singles    []string
	texts      []string
	markups    []models.ReplyMarkup
	failGroup  int // 1-based index of the media group call that fails
	groupCalls int
	filePath   string
}

func (f *fakeAPI) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, p.Text)
	f.markups = append(f.markups, p.ReplyMarkup)
	return &models.Message{}, nil
}

func (f *fakeAPI) SendDocument(_ context.Context, p *bot.SendDocumentParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	upload, ok := p.Document.(*models.InputFileUpload)
	if !ok {
		return nil, errors.New("unexpected document type")
	}
	f.singles = append(f.singles, upload.Filename)
	return &models.Message{}, nil
}

func (f *fakeAPI) SendMediaGroup(_ context.Context, p *bot.SendMediaGroupParams) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groupCalls++
	if f.groupCalls == f.failGroup {
		return nil, errors.New("telegram rejected group")
	}
	f.groupSizes = append(f.groupSizes, len(p.Media))
	return nil, nil
}

func (f *fakeAPI) GetFile(_ context.Context, p *bot.GetFileParams) (*models.File, error) {
	if p.FileID == "missing" {
		return nil, errors.New("file not found")
	}
	return &models.File{FileID: p.FileID, FilePath: f.filePath}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(context.Context, *bot.AnswerCallbackQueryParams) (bool, error) {
	return true, nil
}

func docs(n int) []media.Document {
	out := make([]media.Document, n)
	for i := range out {
		out[i] = media.Document{Name: fmt.Sprintf("f%d.txt", i), Content: []byte("x")}
	}
	return out
}

func TestSendDocumentsChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		count       int
		failGroup   int
		wantGroups  []int
		wantSingles int
		wantErr     bool
	}{
		{name: "single document", count: 1, wantSingles: 1},
		{name: "exactly one batch", count: 10, wantGroups: []int{10}},
		{name: "two full batches and a tail", count: 23, wantGroups: []int{10, 10, 3}},
		{name: "tail of one", count: 11, wantGroups: []int{10}, wantSingles: 1},
		{name: "failed batch does not stop the rest", count: 25, failGroup: 2, wantGroups: []int{10, 5}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{failGroup: tc.failGroup}
			c := NewClient(api, "token", 0, nil)

			err := c.SendDocuments(context.Background(), 1, docs(tc.count))
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantGroups, api.groupSizes)
			assert.Len(t, api.singles, tc.wantSingles)
		})
	}
}

func TestAttachNames(t *testing.T) {
	t.Parallel()

	chunk := []media.Document{
		{Name: "image.png"},
		{Name: "image.png"},
		{Name: "image.png"},
		{Name: `my "scan".pdf`},
		{Name: "  "},
		{Name: "отчёт.docx"},
	}
	assert.Equal(t, []string{
		"image.png",
		"image-2.png",
		"image-3.png",
		"my__scan_.pdf",
		"file",
		"отчёт.docx",
	}, attachNames(chunk))
}

func TestSendDocumentsDuplicateNames(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		parts = map[string]string{}
		refs  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMediaGroup" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		for field, headers := range r.MultipartForm.File {
			for _, h := range headers {
				f, err := h.Open()
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				data, _ := io.ReadAll(f)
				_ = f.Close()
				parts[field] += string(data)
			}
		}
		var items []struct {
			Media string `json:"media"`
		}
		if err := json.Unmarshal([]byte(r.FormValue("media")), &items); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, it := range items {
			refs = append(refs, it.Media)
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":[]}`)
	}))
	defer srv.Close()

	tg, err := bot.New("TOKEN", bot.WithServerURL(srv.URL), bot.WithSkipGetMe())
	require.NoError(t, err)
	c := NewClient(tg, "TOKEN", 0, nil)

	err = c.SendDocuments(context.Background(), 1, []media.Document{
		{Name: "image.png", Content: []byte("FIRST")},
		{Name: "image.png", Content: []byte("SECOND")},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{"image.png": "FIRST", "image-2.png": "SECOND"}, parts)
	assert.Equal(t, []string{"attach://image.png", "attach://image-2.png"}, refs)
}

func TestSendKeyboard(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	c := NewClient(api, "token", 0, nil)
	rows := [][]models.InlineKeyboardButton{{{Text: "Зарегистрироваться", CallbackData: "register"}}}

	require.NoError(t, c.SendKeyboard(context.Background(), 5, "hi", rows))
	require.Len(t, api.markups, 1)
	markup, ok := api.markups[0].(*models.InlineKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, "register", markup.InlineKeyboard[0][0].CallbackData)
}

func TestDownloadFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/photos/file_1.jpg":
			_, _ = io.WriteString(w, "jpeg-bytes")
		case "/botTOKEN/empty":
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	newClient := func(path string) *Client {
		c := NewClient(&fakeAPI{filePath: path}, "TOKEN", 0, nil)
		c.fileBaseURL = srv.URL + "/bot"
		return c
	}

	data, err := newClient("photos/file_1.jpg").DownloadFile(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	_, err = newClient("empty").DownloadFile(context.Background(), "abc")
	assert.Error(t, err)

	_, err = newClient("nope").DownloadFile(context.Background(), "abc")
	assert.ErrorContains(t, err, "unexpected status code 404")

	_, err = newClient("photos/file_1.jpg").DownloadFile(context.Background(), "missing")
	assert.ErrorContains(t, err, "failed to get file")

	_, err = newClient("photos/file_1.jpg").DownloadFile(context.Background(), "")
	assert.Error(t, err)
}

type fakeRegistrar struct {
	patterns []string
}

func (r *fakeRegistrar) RegisterHandler(_ bot.HandlerType, pattern string, _ bot.MatchType, _ bot.HandlerFunc, _ ...bot.Middleware) string {
	r.patterns = append(r.patterns, pattern)
	return pattern
}

func TestRegisterHandlersAppliesMiddlewareInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) bot.Middleware {
		return func(next bot.HandlerFunc) bot.HandlerFunc {
			return func(ctx context.Context, b *bot.Bot, u *models.Update) {
				order = append(order, name)
				next(ctx, b, u)
			}
		}
	}
	h := applyMiddleware(func(context.Context, *bot.Bot, *models.Update) {
		order = append(order, "handler")
	}, []bot.Middleware{mw("outer"), mw("inner")})
	h(context.Background(), nil, &models.Update{})
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)

	reg := &fakeRegistrar{}
	err := RegisterHandlers(reg, nil, map[string]handlers.RegisteredHandler{
		"start": {Pattern: "start", Handler: func(context.Context, *bot.Bot, *models.Update) {}},
		"nil":   {Pattern: "nil"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"start"}, reg.patterns)

	assert.Error(t, RegisterHandlers(nil, nil, nil))
}

func TestTokenPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "12345678...", TokenPrefix("12345678:ABCDEF"))
	assert.Equal(t, "***", TokenPrefix("short"))
}
