package chat

import (
	"encoding/json"

	"genie-backend/internal/chart"
	"genie-backend/internal/table"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// Message is one bubble in the transcript. Messages are never changed after
// they are rendered.
type Message struct {
	Role        Role
	Text        string
	Query       string
	Results     []table.Record
	Attachments json.RawMessage

	// Chart is set for assistant messages whose results can be plotted.
	Chart *chart.Config
}

// NewPager returns a fresh pager over the results, or nil when there are
// none. Paging state belongs to whoever displays the table.
func (m Message) NewPager() *table.Pager {
	if len(m.Results) == 0 {
		return nil
	}
	return table.NewPager(m.Results)
}

// Renderer displays the transcript. Calls come from the goroutine running
// Submit or Start.
type Renderer interface {
	AppendMessage(msg Message)
	ShowLoading()
	HideLoading()
	SetInputEnabled(enabled bool)
}
