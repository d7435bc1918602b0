package genie

import (
	"encoding/json"

	"genie-backend/pkg/api"

	"github.com/tidwall/gjson"
)

const FallbackResponse = "Response received"

// Normalize maps an upstream message payload of unknown shape onto the
// response contract served to clients. The lookup order of every field is
// fixed; clients depend on it.
func Normalize(payload []byte) api.SendMessageResponse {
	out := api.SendMessageResponse{Response: FallbackResponse}
	if !gjson.ValidBytes(payload) {
		return out
	}

	data := gjson.ParseBytes(payload)
	if !data.IsObject() {
		return out
	}

	textAttachment := firstAttachmentWith(data, "text")
	queryAttachment := firstAttachmentWith(data, "query")

	if s, ok := firstString(
		data.Get("content"),
		data.Get("message"),
		data.Get("text"),
		textAttachment.Get("text.content"),
	); ok {
		out.Response = s
	}

	if s, ok := firstString(
		data.Get("query"),
		data.Get("sql"),
		data.Get("query_text"),
		queryAttachment.Get("query.query"),
	); ok {
		out.Query = &s
	}

	if raw, ok := firstArray(
		data.Get("result"),
		data.Get("results"),
		data.Get("data"),
		queryAttachment.Get("query.result.data_typed_array"),
	); ok {
		out.Results = raw
	}

	if attachments := data.Get("attachments"); attachments.Exists() && attachments.Type != gjson.Null {
		out.Attachments = json.RawMessage(attachments.Raw)
	}

	return out
}

// ConversationID extracts the session id from a start-conversation reply.
// Numeric ids are accepted and kept in their JSON text form.
func ConversationID(payload []byte) (string, bool) {
	if !gjson.ValidBytes(payload) {
		return "", false
	}
	data := gjson.ParseBytes(payload)
	if !data.IsObject() {
		return "", false
	}

	for _, path := range []string{"conversation_id", "id", "conversationId", "conversation.id"} {
		v := data.Get(path)
		switch v.Type {
		case gjson.String:
			if v.Str != "" {
				return v.Str, true
			}
		case gjson.Number:
			return v.Raw, true
		}
	}
	return "", false
}

// firstAttachmentWith returns the first attachment that has field set to a
// non-null value. Later attachments are never consulted for that field.
func firstAttachmentWith(data gjson.Result, field string) gjson.Result {
	var found gjson.Result
	attachments := data.Get("attachments")
	if !attachments.IsArray() {
		return found
	}
	attachments.ForEach(func(_, a gjson.Result) bool {
		if !a.IsObject() {
			return true
		}
		if v := a.Get(field); v.Exists() && v.Type != gjson.Null {
			found = a
			return false
		}
		return true
	})
	return found
}

func firstString(candidates ...gjson.Result) (string, bool) {
	for _, c := range candidates {
		if c.Type == gjson.String && c.Str != "" {
			return c.Str, true
		}
	}
	return "", false
}

func firstArray(candidates ...gjson.Result) (json.RawMessage, bool) {
	for _, c := range candidates {
		if c.IsArray() && len(c.Array()) > 0 {
			return json.RawMessage(c.Raw), true
		}
	}
	return nil, false
}
