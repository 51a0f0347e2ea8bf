package schedule

// StartTime returns the as-authored start time of items[index] rendered as "h:mm AM/PM".
//
// The offset is the planned duration of every preceding item on the same day that is
// not indented. An empty string means "TBD": the item is indented, the index is out of
// range, or dayStart is unset.
func StartTime(index int, items []Item, dayStart string, indented IndentedCues) string {
	minutes, ok := startMinutes(index, items, dayStart, indented)
	if !ok {
		return ""
	}
	return Format12Hour(minutes)
}

// StartTimeWithOvertime returns the start time of items[index] shifted by the ledger.
//
// Per-item overtime counts for same-day, non-indented items from the START cue
// (inclusive) up to index (exclusive). Show-start overtime is added once when index is
// at or after the START cue. Without a START cue every preceding item counts and
// show-start overtime is not applied.
func StartTimeWithOvertime(index int, items []Item, dayStart string, ledger Ledger, indented IndentedCues) string {
	base := StartTime(index, items, dayStart, indented)
	if base == "" {
		return ""
	}
	adjust := OvertimeAdjustment(index, items, ledger, indented)
	if adjust == 0 {
		return base
	}
	minutes, err := Parse12Hour(base)
	if err != nil {
		return base
	}
	return Format12Hour(minutes + adjust)
}

// EndTime returns start time plus the item's own planned duration, or "" when
// the item has no start time.
func EndTime(index int, items []Item, dayStart string, indented IndentedCues) string {
	minutes, ok := startMinutes(index, items, dayStart, indented)
	if !ok {
		return ""
	}
	return Format12Hour(minutes + items[index].TotalSeconds()/60)
}

// EndTimeWithOvertime is EndTime shifted by the same adjustment as StartTimeWithOvertime.
func EndTimeWithOvertime(index int, items []Item, dayStart string, ledger Ledger, indented IndentedCues) string {
	minutes, ok := startMinutes(index, items, dayStart, indented)
	if !ok {
		return ""
	}
	adjust := OvertimeAdjustment(index, items, ledger, indented)
	return Format12Hour(minutes + adjust + items[index].TotalSeconds()/60)
}

// OvertimeAdjustment returns the signed minutes the ledger shifts items[index] by.
func OvertimeAdjustment(index int, items []Item, ledger Ledger, indented IndentedCues) int {
	if index < 0 || index >= len(items) {
		return 0
	}
	day := items[index].DayNumber()
	startIdx := StartCueIndex(items, ledger)

	from := 0
	if startIdx >= 0 {
		from = startIdx
	}

	total := 0
	for i := from; i < index; i++ {
		it := items[i]
		if it.DayNumber() != day || indented.IsIndented(it.ID) {
			continue
		}
		total += ledger.OvertimeMinutes[it.ID]
	}
	if startIdx >= 0 && index >= startIdx {
		total += ledger.ShowStartOvertime
	}
	return total
}

// StartCueIndex resolves the START cue position: the ledger's startCueId when it is in
// the list, otherwise the first item flagged IsStartCue, otherwise -1.
func StartCueIndex(items []Item, ledger Ledger) int {
	if ledger.StartCueID != nil {
		if idx := indexOf(items, *ledger.StartCueID); idx >= 0 {
			return idx
		}
	}
	for i, it := range items {
		if it.IsStartCue {
			return i
		}
	}
	return -1
}

func startMinutes(index int, items []Item, dayStart string, indented IndentedCues) (int, bool) {
	if index < 0 || index >= len(items) {
		return 0, false
	}
	target := items[index]
	if indented.IsIndented(target.ID) || dayStart == "" {
		return 0, false
	}
	base, err := ParseClock(dayStart)
	if err != nil {
		return 0, false
	}

	day := target.DayNumber()
	seconds := 0
	for _, it := range items[:index] {
		if it.DayNumber() != day || indented.IsIndented(it.ID) {
			continue
		}
		seconds += it.TotalSeconds()
	}
	return base + seconds/60, true
}
