package api

import "encoding/json"

type StartConversationRequest struct {
	InitialMessage string `json:"initialMessage"`
}

type StartConversationResponse struct {
	ConversationId string `json:"conversationId"`
	Message        string `json:"message"`
}

type SendMessageRequest struct {
	ConversationId string `json:"conversationId"`
	Message        string `json:"message"`
}

// SendMessageResponse is the stable shape every upstream reply is normalized
// into. Results and Attachments are passed through as raw JSON and encode as
// null when absent.
type SendMessageResponse struct {
	Response    string          `json:"response"`
	Query       *string         `json:"query"`
	Results     json.RawMessage `json:"results"`
	Attachments json.RawMessage `json:"attachments"`
	RawData     json.RawMessage `json:"rawData,omitempty"`

	// Upstream is the unmodified Genie reply, kept for the archive only.
	Upstream json.RawMessage `json:"-"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HistoryParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type HistoryItem struct {
	Id         string          `json:"id"`
	Kind       string          `json:"kind"` // "start" or "message"
	Message    string          `json:"message"`
	Response   string          `json:"response,omitempty"`
	Query      *string         `json:"query"`
	Results    json.RawMessage `json:"results,omitempty"`
	StatusCode int             `json:"statusCode"`
	Error      string          `json:"error,omitempty"`
	Archived   bool            `json:"archived,omitempty"`
	Timestamp  string          `json:"timestamp"`
}
