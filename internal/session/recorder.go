package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Recorder writes session records to a Store off the caller's goroutine.
// Only the latest record matters, so a record that has not been written
// yet is replaced by a newer one. A Disconnected record ends the session
// and removes it from the store, as does Close.
type Recorder struct {
	store     *Store
	updates   chan Record
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	// written is the user whose record is in the store. Owned by loop.
	written string
}

// NewRecorder starts a recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store:   store,
		updates: make(chan Record, 1),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

// Record queues rec for writing. It never blocks.
func (r *Recorder) Record(rec Record) {
	if rec.UserID == "" {
		return
	}
	for {
		select {
		case r.updates <- rec:
			return
		default:
		}
		select {
		case <-r.updates:
		default:
		}
	}
}

// Close applies the pending record, deletes the stored session and stops
// the recorder. It is safe to call multiple times.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.updates:
			r.write(rec)
		case <-r.done:
			select {
			case rec := <-r.updates:
				r.write(rec)
			default:
			}
			r.remove()
			return
		}
	}
}

func (r *Recorder) write(rec Record) {
	if rec.State == Disconnected.String() {
		r.remove()
		return
	}
	if r.written != "" && r.written != rec.UserID {
		r.remove()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("user_id", rec.UserID).Msg("session record not saved")
		return
	}
	r.written = rec.UserID
}

func (r *Recorder) remove() {
	if r.written == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.store.Delete(ctx, r.written); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("user_id", r.written).Msg("session record not deleted")
		return
	}
	r.written = ""
}
