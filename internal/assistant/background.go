package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vinodismyname/sheetmind/internal/sheet"
)

// errJoinTimeout is reported when background work outlives the join timeout.
var errJoinTimeout = errors.New("background work did not finish in time")

var chartTypeRe = regexp.MustCompile(`(?i)\b(bar|line|pie|doughnut|scatter|radar)\b`)

type backgroundJob struct {
	fresh   bool
	convID  string
	userID  string
	title   string
	chart   bool
	message string
	snap    *sheet.Snapshot
}

// background is the work that runs next to the primary completion: creating
// the conversation record and generating an inline chart.
type background struct {
	g      *errgroup.Group
	cancel context.CancelFunc

	// chartConfig is written by the chart goroutine and read after wait.
	chartConfig json.RawMessage
}

func (a *Assistant) startBackground(ctx context.Context, job backgroundJob) *background {
	ctx, cancel := context.WithCancel(ctx)
	bg := &background{g: new(errgroup.Group), cancel: cancel}

	if job.fresh && a.store != nil {
		bg.g.Go(func() error {
			return a.store.Create(ctx, job.convID, job.userID, conversationTitle(job.title))
		})
	}

	if job.chart && job.snap != nil && job.snap.Grid.Len() > 0 {
		bg.g.Go(func() error {
			err := a.pool.Do(ctx, func(ctx context.Context) error {
				cfg, err := a.llm.GenerateChart(ctx, job.snap.Grid.Cells(), chartType(job.message), "")
				if err != nil {
					return err
				}
				if len(cfg.Config) > 0 {
					bg.chartConfig = cfg.Config
				}
				return nil
			})
			// A missing chart never fails the request.
			if err != nil {
				a.log.Warn().Err(err).Msg("inline chart generation failed")
			}
			return nil
		})
	}
	return bg
}

// wait joins the background work. Work still running after timeout is
// cancelled and reported as errJoinTimeout.
func (b *background) wait(timeout time.Duration) error {
	defer b.cancel()
	done := make(chan error, 1)
	go func() { done <- b.g.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errJoinTimeout
	}
}

// chartType picks the chart kind named in the message, if any.
func chartType(message string) string {
	return strings.ToLower(chartTypeRe.FindString(message))
}

// conversationTitle is the first line of the opening message, clipped.
func conversationTitle(message string) string {
	title, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	r := []rune(title)
	if len(r) > 100 {
		return string(r[:100])
	}
	return title
}
