package progress

import (
	"time"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

// Observer receives tracker events for instrumentation. Methods are called
// with the tracker lock held and must return quickly.
type Observer interface {
	JobCreated()
	JobCompleted(success bool, elapsed time.Duration)
	JobsActive(n int)
	StageClosed(stage models.Stage, d time.Duration)
	UpdateCoalesced()
	Broadcast(recipients int)
	SubscribersActive(n int)
	SubscriberPruned()
	MessageDropped(reason string)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) JobCreated()                             {}
func (NopObserver) JobCompleted(bool, time.Duration)        {}
func (NopObserver) JobsActive(int)                          {}
func (NopObserver) StageClosed(models.Stage, time.Duration) {}
func (NopObserver) UpdateCoalesced()                        {}
func (NopObserver) Broadcast(int)                           {}
func (NopObserver) SubscribersActive(int)                   {}
func (NopObserver) SubscriberPruned()                       {}
func (NopObserver) MessageDropped(string)                   {}

var _ Observer = NopObserver{}
