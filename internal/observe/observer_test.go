package observe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruvelro/maca-engine/internal/media"
	"github.com/ruvelro/maca-engine/internal/queue"
)

type fakeAdmitter struct {
	mu      sync.Mutex
	results map[string]queue.AdmitResult
	calls   []media.Candidate
}

func (f *fakeAdmitter) Admit(c media.Candidate) queue.AdmitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if r, ok := f.results[c.ID]; ok {
		return r
	}
	return queue.Accepted
}

func (f *fakeAdmitter) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.ID
	}
	return out
}

func (f *fakeAdmitter) last(t *testing.T) media.Candidate {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

const emptyGrid = `<ul class="attachments"></ul>`

const uploadingGrid = `<ul class="attachments">
	<li class="attachment uploading" data-id="101"><img src="blob:https://site/aaa"></li>
	<li class="attachment uploading" data-id="102"><img src="blob:https://site/bbb"></li>
</ul>`

const doneGrid = `<ul class="attachments">
	<li class="attachment" data-id="101" aria-label="sunset.jpg"><img src="https://site/101.jpg"></li>
	<li class="attachment" data-id="102" aria-label="beach.jpg"><img src="https://site/102.jpg"></li>
</ul>`

func TestObserver_BatchUploadFlow(t *testing.T) {
	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnUpload: true})

	obs.HandleSnapshot("t1", "https://site/wp-admin/upload.php", emptyGrid)
	obs.HandleUploadSignal("t1")

	// Mid-upload: nodes exist but carry the uploading marker, nothing fires.
	obs.HandleSnapshot("t1", "", uploadingGrid)
	require.Empty(t, fake.ids())

	// Upload finished: class change re-evaluates both nodes.
	obs.HandleSnapshot("t1", "", doneGrid)
	require.Equal(t, []string{"101", "102"}, fake.ids())

	first := fake.calls[0]
	require.Equal(t, "https://site/101.jpg", first.ImageURL)
	require.Equal(t, "sunset.jpg", first.FilenameContext)
	require.Equal(t, "t1", first.TabID)
	require.Equal(t, "https://site/wp-admin/upload.php", first.PageURL)
	require.False(t, first.LowConfidence)

	// Identical snapshot: nothing changed, nothing fires again.
	obs.HandleSnapshot("t1", "", doneGrid)
	require.Len(t, fake.ids(), 2)
}

func TestObserver_InitialScanNeverBatchTriggers(t *testing.T) {
	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnUpload: true})

	// The gate is wide open, but the nodes were already on the page when the
	// observer attached; processing them would rewrite the whole library.
	obs.HandleUploadSignal("t1")
	obs.HandleSnapshot("t1", "", uploadingGrid)
	obs.HandleSnapshot("t1", "", doneGrid)

	require.Empty(t, fake.ids())
}

func TestObserver_NoUploadSessionNoTrigger(t *testing.T) {
	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnUpload: true})

	obs.HandleSnapshot("t1", "", emptyGrid)
	// Nodes appear without any upload signal or uploading marker: somebody
	// else's uploads syncing in, or a filter change.
	obs.HandleSnapshot("t1", "", doneGrid)

	require.Empty(t, fake.ids())
}

func TestObserver_SelectionFlow(t *testing.T) {
	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnSelect: true})

	obs.HandleSnapshot("t1", "", doneGrid)
	require.Empty(t, fake.ids())

	obs.HandleSelection("t1", "102")
	require.Equal(t, []string{"102"}, fake.ids())

	// The gate was consumed; re-selecting fires nothing while triggered.
	obs.HandleSelection("t1", "102")
	require.Len(t, fake.ids(), 1)
}

func TestObserver_SelectionDisabledByDefault(t *testing.T) {
	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnUpload: true})

	obs.HandleSnapshot("t1", "", doneGrid)
	obs.HandleSelection("t1", "101")

	require.Empty(t, fake.ids())
}

func TestObserver_BlobSourceUpgrade(t *testing.T) {
	const blobGrid = `<div>
		<ul class="attachments">
			<li class="attachment" data-id="101"><img src="blob:https://site/aaa"></li>
			<li class="attachment" data-id="103"><img src="blob:https://site/ccc"></li>
		</ul>
		<div class="attachment-details" data-id="101" data-url="https://site/101-full.jpg"></div>
	</div>`

	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnSelect: true})

	obs.HandleSnapshot("t1", "", blobGrid)

	// 101 has a details pane with the real URL: upgraded, high confidence.
	obs.HandleSelection("t1", "101")
	c := fake.last(t)
	require.Equal(t, "https://site/101-full.jpg", c.ImageURL)
	require.False(t, c.LowConfidence)

	// 103 has nothing better than its blob: handed over low-confidence.
	obs.HandleSelection("t1", "103")
	c = fake.last(t)
	require.Equal(t, "blob:https://site/ccc", c.ImageURL)
	require.True(t, c.LowConfidence)
}

func TestObserver_RelativeSourceResolvedAgainstPage(t *testing.T) {
	const relativeGrid = `<ul class="attachments">
		<li class="attachment" data-id="55"><img src="/wp-content/uploads/55.jpg"></li>
	</ul>`

	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnSelect: true})

	obs.HandleSnapshot("t1", "https://site.example/wp-admin/upload.php", relativeGrid)
	obs.HandleSelection("t1", "55")

	c := fake.last(t)
	require.Equal(t, "https://site.example/wp-content/uploads/55.jpg", c.ImageURL)
	require.False(t, c.LowConfidence)
}

func TestObserver_RelativeSourceWithoutPageIsLowConfidence(t *testing.T) {
	const relativeGrid = `<ul class="attachments">
		<li class="attachment" data-id="55"><img src="/wp-content/uploads/55.jpg"></li>
	</ul>`

	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnSelect: true})

	// No page URL ever arrived for this tab: nothing to resolve against.
	obs.HandleSnapshot("t1", "", relativeGrid)
	obs.HandleSelection("t1", "55")

	c := fake.last(t)
	require.Equal(t, "/wp-content/uploads/55.jpg", c.ImageURL)
	require.True(t, c.LowConfidence)
}

func TestObserver_MissingSourceRetriesOnLaterTick(t *testing.T) {
	const bareGrid = `<ul class="attachments">
		<li class="attachment" data-id="101"></li>
	</ul>`
	const renderedGrid = `<ul class="attachments">
		<li class="attachment" data-id="101"><img src="https://site/101.jpg"></li>
	</ul>`

	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnSelect: true})

	obs.HandleSnapshot("t1", "", bareGrid)
	obs.HandleSelection("t1", "101")
	require.Empty(t, fake.ids(), "no usable source yet")

	// The thumbnail rendered; the changed signature re-evaluates the node
	// while the select gate is still open.
	obs.HandleSnapshot("t1", "", renderedGrid)
	require.Equal(t, []string{"101"}, fake.ids())
}

func TestObserver_DuplicateRejectionStopsRetries(t *testing.T) {
	fake := &fakeAdmitter{results: map[string]queue.AdmitResult{
		"102": queue.RejectedDuplicate,
	}}
	obs := New(fake, Config{AutoOnSelect: true})

	obs.HandleSnapshot("t1", "", doneGrid)
	obs.HandleSelection("t1", "102")
	require.Len(t, fake.ids(), 1)

	// The queue already owns the attachment; no point re-offering it.
	obs.Rescan("t1")
	obs.HandleSelection("t1", "102")
	require.Len(t, fake.ids(), 1)
}

func TestObserver_RemoveTabForgetsEverything(t *testing.T) {
	fake := &fakeAdmitter{}
	obs := New(fake, Config{AutoOnSelect: true})

	obs.HandleSnapshot("t1", "", doneGrid)
	obs.HandleSelection("t1", "101")
	require.Len(t, fake.ids(), 1)

	obs.RemoveTab("t1")

	// A fresh connection starts from an initial scan again.
	obs.HandleSnapshot("t1", "", doneGrid)
	obs.HandleSelection("t1", "101")
	require.Len(t, fake.ids(), 2)
}
