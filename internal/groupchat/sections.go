package groupchat

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"pitchbook/internal/metrics"
)

// SectionStatus is the lifecycle of one pitchbook section.
type SectionStatus string

const (
	SectionPending    SectionStatus = "pending"
	SectionInProgress SectionStatus = "in_progress"
	SectionComplete   SectionStatus = "complete"
)

// SectionRecord is derived bookkeeping for one section. Responses are the
// transcript contents that referenced it, in arrival order.
type SectionRecord struct {
	ID        int           `json:"id"`
	Title     string        `json:"title"`
	Status    SectionStatus `json:"status"`
	Responses []string      `json:"responses,omitempty"`
}

var (
	sectionPattern   = regexp.MustCompile(`(?im)^.*SECTION:\s*(\d+)\s*-\s*(.+)$`)
	jsonFencePattern = regexp.MustCompile("(?s)```json\\s*(.*?)```")
)

// SectionTracker buckets transcript messages by the `SECTION: <n> - <title>`
// convention. It is derived, best-effort state: the transcript remains
// authoritative. The loop is the only writer, but stream handlers snapshot
// concurrently.
type SectionTracker struct {
	mu       sync.RWMutex
	sections map[int]*SectionRecord
}

func NewSectionTracker(total int) *SectionTracker {
	sections := make(map[int]*SectionRecord, total)
	for i := 1; i <= total; i++ {
		sections[i] = &SectionRecord{ID: i, Status: SectionPending}
	}
	return &SectionTracker{sections: sections}
}

// Observe scans one message for section references and updates the affected
// records. A section line carrying the word "complete" closes the section;
// any other reference moves it to in_progress and stores the message as a
// response. Returns the IDs that changed.
func (t *SectionTracker) Observe(content string) []int {
	matches := sectionPattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []int
	for _, m := range matches {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		rec, ok := t.sections[id]
		if !ok {
			rec = &SectionRecord{ID: id, Status: SectionPending}
			t.sections[id] = rec
		}

		title, done := splitSectionTitle(m[2])
		if rec.Title == "" && title != "" {
			rec.Title = title
		}
		rec.Responses = append(rec.Responses, content)

		switch {
		case done && rec.Status != SectionComplete:
			rec.Status = SectionComplete
			metrics.SectionsCompleted.Inc()
		case rec.Status == SectionPending:
			rec.Status = SectionInProgress
		}
		changed = append(changed, id)
	}
	return changed
}

// splitSectionTitle separates a trailing completion flag from the title,
// e.g. "Valuation - COMPLETE" -> ("Valuation", true).
func splitSectionTitle(rest string) (string, bool) {
	rest = strings.TrimSpace(rest)
	upper := strings.ToUpper(rest)

	for _, suffix := range []string{"- COMPLETE", "(COMPLETE)", "COMPLETE"} {
		if strings.HasSuffix(upper, suffix) {
			return strings.TrimSpace(rest[:len(rest)-len(suffix)]), true
		}
	}
	return rest, false
}

// FinalizeAll closes every section that produced output. Called when the
// run terminates successfully.
func (t *SectionTracker) FinalizeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rec := range t.sections {
		if rec.Status == SectionInProgress {
			rec.Status = SectionComplete
			metrics.SectionsCompleted.Inc()
		}
	}
}

// Snapshot returns the records ordered by section ID.
func (t *SectionTracker) Snapshot() []SectionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]SectionRecord, 0, len(t.sections))
	for _, rec := range t.sections {
		cp := *rec
		cp.Responses = append([]string(nil), rec.Responses...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CompletedCount returns how many sections are closed.
func (t *SectionTracker) CompletedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, rec := range t.sections {
		if rec.Status == SectionComplete {
			n++
		}
	}
	return n
}

// Highlights extracts fenced JSON blocks from a section's responses, most
// recent first. Downstream rendering treats these as the section's
// structured payloads.
func (t *SectionTracker) Highlights(id int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.sections[id]
	if !ok {
		return nil
	}

	var blocks []string
	for i := len(rec.Responses) - 1; i >= 0; i-- {
		for _, m := range jsonFencePattern.FindAllStringSubmatch(rec.Responses[i], -1) {
			blocks = append(blocks, strings.TrimSpace(m[1]))
		}
	}
	return blocks
}
