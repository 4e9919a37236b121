// Command replay-grid feeds recorded grid snapshots through the observer and
// queue pipeline with stubbed analysis, printing every progress event. Handy
// for checking gate and admission behaviour against real captured HTML
// without a browser or a model endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ruvelro/maca-engine/internal/events"
	"github.com/ruvelro/maca-engine/internal/media"
	"github.com/ruvelro/maca-engine/internal/observe"
	"github.com/ruvelro/maca-engine/internal/queue"
)

func main() {
	tabID := flag.String("tab", "replay", "tab id to replay under")
	gap := flag.Duration("gap", 300*time.Millisecond, "delay between snapshots")
	settle := flag.Duration("settle", 5*time.Second, "how long to wait for the queue to settle")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Println("usage: replay-grid [flags] snapshot.html [snapshot.html ...]")
		fmt.Println()
		fmt.Println("Snapshots are replayed in order as one upload session.")
		flag.PrintDefaults()
		os.Exit(2)
	}

	broker := events.NewBroker()
	defer broker.Clear()

	coord := queue.NewCoordinator(broker, stubAnalyzer{}, stubApplier{}, queue.Options{
		SettleGrace: 500 * time.Millisecond,
	})
	obs := observe.New(coord, observe.Config{AutoOnUpload: true, AutoOnSelect: true})

	sub := broker.Subscribe(events.ProgressEvent)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			p, ok := ev.Payload.(events.Progress)
			if !ok {
				continue
			}
			printProgress(p)
			if p.Terminal() {
				return
			}
		}
	}()

	fmt.Printf("🎞️  Replaying %d snapshot(s) as tab %q\n\n", len(files), *tabID)

	// Open the batch gate the way a real upload burst does: a file-input
	// signal plus two uploading markers. Snapshots captured mid-upload carry
	// their own markers; this covers post-upload captures too.
	obs.HandleUploadSignal(*tabID)
	tracker := obs.Tracker(*tabID)
	tracker.MarkUploading("replay-warm-1")
	tracker.MarkUploading("replay-warm-2")

	for i, path := range files {
		html, err := os.ReadFile(path)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("── snapshot %d: %s\n", i+1, path)
		obs.HandleSnapshot(*tabID, "replay://"+path, string(html))
		time.Sleep(*gap)
	}

	select {
	case <-done:
	case <-time.After(*settle):
		fmt.Println("\n(timed out waiting for the queue to settle)")
	}

	snap, ok := coord.Snapshot(*tabID)
	if !ok {
		fmt.Println("\nNo attachments were admitted.")
		return
	}
	fmt.Printf("\nFinal: %d queued, %d done, %d ok, %d errors\n",
		snap.Queued, snap.Done, snap.OK, snap.Errors)
}

func printProgress(p events.Progress) {
	if p.AttachmentID != "" {
		fmt.Printf("  %-16s #%s (%d/%d)\n", p.Phase, p.AttachmentID, p.Done, p.Queued)
		return
	}
	fmt.Printf("  %-16s (%d/%d, ok %d, err %d)\n", p.Phase, p.Done, p.Queued, p.OK, p.Errors)
}

// stubAnalyzer fabricates metadata from the candidate itself.
type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, c media.Candidate) (media.Metadata, error) {
	alt := c.FilenameContext
	if alt == "" {
		alt = "attachment " + c.ID
	}
	return media.Metadata{Alt: alt, Title: alt}, nil
}

// stubApplier prints instead of writing anywhere.
type stubApplier struct{}

func (stubApplier) Apply(_ context.Context, _, attachmentID string, meta media.Metadata) (media.ApplyResult, error) {
	fmt.Printf("  apply           #%s alt=%q title=%q\n", attachmentID, meta.Alt, meta.Title)
	return media.ApplyResult{Alt: true, Title: true}, nil
}
