package pipeline

import (
	"time"

	"github.com/jo-hoe/wallpaint/internal/paint"
)

// Observer receives measurements of pipeline runs. Kind is empty for
// successful runs.
type Observer interface {
	ObserveRun(outcome Outcome, kind paint.Kind, elapsed time.Duration)
	ObserveSegmentation(elapsed time.Duration, candidates int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(Outcome, paint.Kind, time.Duration) {}
func (nopObserver) ObserveSegmentation(time.Duration, int, error) {}
