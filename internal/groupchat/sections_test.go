package groupchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionTracker_ObserveMovesToInProgress(t *testing.T) {
	tr := NewSectionTracker(8)

	changed := tr.Observe("SECTION: 3 - Valuation Analysis\nDCF suggests a 15% upside.")
	assert.Equal(t, []int{3}, changed)

	snap := tr.Snapshot()
	require.Len(t, snap, 8)
	assert.Equal(t, SectionInProgress, snap[2].Status)
	assert.Equal(t, "Valuation Analysis", snap[2].Title)
	require.Len(t, snap[2].Responses, 1)

	// Untouched sections stay pending.
	assert.Equal(t, SectionPending, snap[0].Status)
}

func TestSectionTracker_CompletionFlagClosesSection(t *testing.T) {
	tr := NewSectionTracker(8)

	tr.Observe("SECTION: 2 - Peer Comparison\nWorking on comparables.")
	tr.Observe("SECTION: 2 - Peer Comparison - COMPLETE\nAll peers covered.")

	snap := tr.Snapshot()
	assert.Equal(t, SectionComplete, snap[1].Status)
	assert.Equal(t, "Peer Comparison", snap[1].Title)
	assert.Equal(t, 1, tr.CompletedCount())
}

func TestSectionTracker_NoSectionReference(t *testing.T) {
	tr := NewSectionTracker(8)
	assert.Nil(t, tr.Observe("General chatter with no section header."))
	assert.Equal(t, 0, tr.CompletedCount())
}

func TestSectionTracker_UnknownSectionIsAdded(t *testing.T) {
	tr := NewSectionTracker(2)
	tr.Observe("SECTION: 9 - Appendix\nExtra material.")

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, 9, snap[2].ID)
	assert.Equal(t, SectionInProgress, snap[2].Status)
}

func TestSectionTracker_FinalizeAll(t *testing.T) {
	tr := NewSectionTracker(3)
	tr.Observe("SECTION: 1 - Overview\ntext")
	tr.Observe("SECTION: 2 - Financials\ntext")

	tr.FinalizeAll()

	snap := tr.Snapshot()
	assert.Equal(t, SectionComplete, snap[0].Status)
	assert.Equal(t, SectionComplete, snap[1].Status)
	// Sections that never produced output stay pending.
	assert.Equal(t, SectionPending, snap[2].Status)
}

func TestSectionTracker_Highlights(t *testing.T) {
	tr := NewSectionTracker(1)
	tr.Observe("SECTION: 1 - Overview\nNarrative first.\n```json\n{\"revenue\": 100}\n```")
	tr.Observe("SECTION: 1 - Overview\nUpdated numbers.\n```json\n{\"revenue\": 120}\n```")

	blocks := tr.Highlights(1)
	require.Len(t, blocks, 2)
	// Most recent response first.
	assert.Equal(t, `{"revenue": 120}`, blocks[0])
	assert.Equal(t, `{"revenue": 100}`, blocks[1])

	assert.Nil(t, tr.Highlights(42))
}
