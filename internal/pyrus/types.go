package pyrus

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ChannelTelegram is the comment channel used for every message relayed to or from Telegram.
const ChannelTelegram = "telegram"

// emptyCommentText is sent instead of a blank comment text; Pyrus rejects empty text.
const emptyCommentText = "..."

// Channel identifies the comment source or destination.
type Channel struct {
	Type string `json:"type"`
}

// Field is a form field value. Value is left as decoded JSON because
// Pyrus returns numbers, strings and objects depending on the field type.
type Field struct {
	ID    int    `json:"id"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value,omitempty"`
}

// Attachment is a file attached to a task comment.
type Attachment struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Comment is a single task comment.
type Comment struct {
	ID          int          `json:"id"`
	Text        string       `json:"text"`
	CreateDate  string       `json:"create_date"`
	Channel     *Channel     `json:"channel,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// ChannelType returns the comment channel type, or "" if the comment has none.
func (c Comment) ChannelType() string {
	if c.Channel == nil {
		return ""
	}
	return c.Channel.Type
}

// Task is the subset of a Pyrus task used by the bridge.
type Task struct {
	ID         int       `json:"id"`
	FormID     int       `json:"form_id,omitempty"`
	CreateDate string    `json:"create_date"`
	Fields     []Field   `json:"fields,omitempty"`
	Comments   []Comment `json:"comments,omitempty"`
}

// LastComment returns the most recent comment, or false if the task has none.
func (t Task) LastComment() (Comment, bool) {
	if len(t.Comments) == 0 {
		return Comment{}, false
	}
	return t.Comments[len(t.Comments)-1], true
}

// NewTask is the body of POST /tasks.
type NewTask struct {
	FormID int     `json:"form_id"`
	Fields []Field `json:"fields"`
}

// CommentPayload is the body of POST /tasks/{id}/comments.
type CommentPayload struct {
	Channel     Channel  `json:"channel"`
	Text        string   `json:"text"`
	Attachments []string `json:"attachments,omitempty"`
}

// NewCommentPayload builds a Telegram-channel comment. Attachments are file GUIDs
// returned by UploadFile. Blank text is replaced with a placeholder.
func NewCommentPayload(text string, attachments []string) CommentPayload {
	if strings.TrimSpace(text) == "" {
		text = emptyCommentText
	}
	return CommentPayload{
		Channel:     Channel{Type: ChannelTelegram},
		Text:        text,
		Attachments: attachments,
	}
}

// FieldValue returns the value of the field with the given id.
func FieldValue(fields []Field, id int) (any, bool) {
	for _, f := range fields {
		if f.ID == id && f.Value != nil {
			return f.Value, true
		}
	}
	return nil, false
}

// FieldString returns the field value rendered as a string, or "" if absent.
func FieldString(fields []Field, id int) string {
	v, ok := FieldValue(fields, id)
	if !ok {
		return ""
	}
	return ValueString(v)
}

// ValueString renders a decoded JSON scalar. Integral numbers are printed without exponent.
func ValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

type taskEnvelope struct {
	Task *Task `json:"task"`
}

type taskList struct {
	Tasks []Task `json:"tasks"`
}

type uploadResult struct {
	GUID string `json:"guid"`
}
