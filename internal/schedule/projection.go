package schedule

// Row is the computed timing of one item.
type Row struct {
	ItemID          int64  `json:"itemId"`
	Day             int    `json:"day"`
	Label           string `json:"label,omitempty"`
	Indented        bool   `json:"indented"`
	BaseStartTime   string `json:"baseStartTime"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	OvertimeMinutes int    `json:"overtimeMinutes"`
	IsStartCue      bool   `json:"isStartCue"`
}

// Projection answers display-time queries over one immutable set of calculator inputs.
// Build a new Projection on every schedule or ledger change rather than patching one.
type Projection struct {
	schedule Schedule
	ledger   Ledger
	indented IndentedCues
	index    map[int64]int
}

// NewProjection captures copies of the inputs.
func NewProjection(s Schedule, ledger Ledger, indented IndentedCues) *Projection {
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	s.Items = items

	idx := make(map[int64]int, len(items))
	for i, it := range items {
		if _, dup := idx[it.ID]; !dup {
			idx[it.ID] = i
		}
	}
	return &Projection{
		schedule: s,
		ledger:   ledger.Clone(),
		indented: indented.Clone(),
		index:    idx,
	}
}

// DisplayTime returns the overtime-adjusted start time of itemID, or "" when unknown or TBD.
func (p *Projection) DisplayTime(itemID int64) string {
	i, ok := p.index[itemID]
	if !ok {
		return ""
	}
	it := p.schedule.Items[i]
	return StartTimeWithOvertime(i, p.schedule.Items, p.schedule.StartFor(it.DayNumber()), p.ledger, p.indented)
}

// BaseStartTime returns the as-authored start time of itemID.
func (p *Projection) BaseStartTime(itemID int64) string {
	i, ok := p.index[itemID]
	if !ok {
		return ""
	}
	it := p.schedule.Items[i]
	return StartTime(i, p.schedule.Items, p.schedule.StartFor(it.DayNumber()), p.indented)
}

// EndTime returns the overtime-adjusted end time of itemID.
func (p *Projection) EndTime(itemID int64) string {
	i, ok := p.index[itemID]
	if !ok {
		return ""
	}
	it := p.schedule.Items[i]
	return EndTimeWithOvertime(i, p.schedule.Items, p.schedule.StartFor(it.DayNumber()), p.ledger, p.indented)
}

// Row returns the computed row for itemID.
func (p *Projection) Row(itemID int64) (Row, bool) {
	i, ok := p.index[itemID]
	if !ok {
		return Row{}, false
	}
	return p.row(i, StartCueIndex(p.schedule.Items, p.ledger)), true
}

// Rows returns a row per item in authored order.
func (p *Projection) Rows() []Row {
	startIdx := StartCueIndex(p.schedule.Items, p.ledger)
	rows := make([]Row, 0, len(p.schedule.Items))
	for i := range p.schedule.Items {
		rows = append(rows, p.row(i, startIdx))
	}
	return rows
}

// Next returns the first non-indented item after itemID, if any.
func (p *Projection) Next(itemID int64) (Item, bool) {
	i, ok := p.index[itemID]
	if !ok {
		return Item{}, false
	}
	for _, it := range p.schedule.Items[i+1:] {
		if !p.indented.IsIndented(it.ID) {
			return it, true
		}
	}
	return Item{}, false
}

func (p *Projection) row(i, startIdx int) Row {
	items := p.schedule.Items
	it := items[i]
	dayStart := p.schedule.StartFor(it.DayNumber())
	return Row{
		ItemID:          it.ID,
		Day:             it.DayNumber(),
		Label:           it.Label,
		Indented:        p.indented.IsIndented(it.ID),
		BaseStartTime:   StartTime(i, items, dayStart, p.indented),
		StartTime:       StartTimeWithOvertime(i, items, dayStart, p.ledger, p.indented),
		EndTime:         EndTimeWithOvertime(i, items, dayStart, p.ledger, p.indented),
		OvertimeMinutes: p.ledger.OvertimeMinutes[it.ID],
		IsStartCue:      i == startIdx,
	}
}
