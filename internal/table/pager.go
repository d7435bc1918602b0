package table

import "fmt"

const PageSize = 20

// Pager splits records into fixed size pages. The header is derived once
// from the first record; moving between pages only changes Body.
type Pager struct {
	records []Record
	columns []string
	page    int
}

func NewPager(records []Record) *Pager {
	var columns []string
	if len(records) > 0 {
		columns = records[0].Columns()
	}
	return &Pager{records: records, columns: columns, page: 1}
}

func (p *Pager) Header() []string {
	return p.columns
}

// Body returns the rendered cells of the current page.
func (p *Pager) Body() [][]string {
	start := (p.page - 1) * PageSize
	end := min(start+PageSize, len(p.records))

	rows := make([][]string, 0, end-start)
	for _, rec := range p.records[start:end] {
		row := make([]string, len(p.columns))
		for i, col := range p.columns {
			row[i] = rec.Text(col)
		}
		rows = append(rows, row)
	}
	return rows
}

func (p *Pager) Page() int {
	return p.page
}

func (p *Pager) TotalRows() int {
	return len(p.records)
}

func (p *Pager) TotalPages() int {
	if len(p.records) == 0 {
		return 1
	}
	return (len(p.records) + PageSize - 1) / PageSize
}

// ShowControls reports whether pagination controls are rendered at all.
func (p *Pager) ShowControls() bool {
	return len(p.records) > PageSize
}

func (p *Pager) HasPrev() bool {
	return p.page > 1
}

func (p *Pager) HasNext() bool {
	return p.page < p.TotalPages()
}

func (p *Pager) Next() bool {
	if !p.HasNext() {
		return false
	}
	p.page++
	return true
}

func (p *Pager) Prev() bool {
	if !p.HasPrev() {
		return false
	}
	p.page--
	return true
}

func (p *Pager) Label() string {
	return fmt.Sprintf("Page %d of %d (%d total rows)", p.page, p.TotalPages(), len(p.records))
}
