package pyrus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// FindTask returns the first task of the form whose field equals value, or nil if none matches.
func (c *Client) FindTask(ctx context.Context, formID, fieldID int, value string) (*Task, error) {
	query := url.Values{}
	query.Set("fld"+strconv.Itoa(fieldID), value)

	var list taskList
	err := c.DoJSON(ctx, Request{
		Method:   http.MethodGet,
		Endpoint: fmt.Sprintf("/forms/%d/register", formID),
		Query:    query,
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("failed to look up form %d register: %w", formID, err)
	}
	if len(list.Tasks) == 0 {
		c.logger.DebugContext(ctx, "No tasks found in form register", "form_id", formID, "field_id", fieldID)
		return nil, nil
	}
	return &list.Tasks[0], nil
}

// CreateTask creates a task and returns it.
func (c *Client) CreateTask(ctx context.Context, task NewTask) (*Task, error) {
	var env taskEnvelope
	if err := c.DoJSON(ctx, Request{Method: http.MethodPost, Endpoint: "/tasks", JSON: task}, &env); err != nil {
		return nil, fmt.Errorf("failed to create task in form %d: %w", task.FormID, err)
	}
	if env.Task == nil || env.Task.ID == 0 {
		return nil, fmt.Errorf("create task in form %d: response has no task id", task.FormID)
	}
	c.logger.InfoContext(ctx, "Task created", "task_id", env.Task.ID, "form_id", task.FormID)
	return env.Task, nil
}

// AddComment posts a comment to the task.
func (c *Client) AddComment(ctx context.Context, taskID int, payload CommentPayload) error {
	var env taskEnvelope
	err := c.DoJSON(ctx, Request{
		Method:   http.MethodPost,
		Endpoint: fmt.Sprintf("/tasks/%d/comments", taskID),
		JSON:     payload,
	}, &env)
	if err != nil {
		return fmt.Errorf("failed to comment task %d: %w", taskID, err)
	}
	c.logger.DebugContext(ctx, "Comment sent", "task_id", taskID, "attachments", len(payload.Attachments))
	return nil
}

// OpenChat posts the "chat opened" comment that switches the task to the Telegram channel.
func (c *Client) OpenChat(ctx context.Context, taskID int, text string) error {
	if err := c.AddComment(ctx, taskID, NewCommentPayload(text, nil)); err != nil {
		return fmt.Errorf("failed to open chat: %w", err)
	}
	c.logger.InfoContext(ctx, "Chat opened", "task_id", taskID)
	return nil
}

// UploadFile uploads content as a multipart file and returns the Pyrus file GUID.
func (c *Client) UploadFile(ctx context.Context, filename string, content []byte) (string, error) {
	var res uploadResult
	err := c.DoJSON(ctx, Request{
		Method:   http.MethodPost,
		Endpoint: "/files/upload",
		File:     &FileUpload{FieldName: "file", Filename: filename, Content: content},
	}, &res)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filename, err)
	}
	if res.GUID == "" {
		return "", errors.New("upload response has no guid")
	}
	return res.GUID, nil
}

// DownloadFile fetches the raw content of a file attached to a task.
func (c *Client) DownloadFile(ctx context.Context, fileID int) ([]byte, error) {
	data, err := c.Do(ctx, Request{
		Method:   http.MethodGet,
		URL:      fmt.Sprintf("%s/files/download/%d", c.filesURL, fileID),
		Download: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download file %d: %w", fileID, err)
	}
	return data, nil
}
