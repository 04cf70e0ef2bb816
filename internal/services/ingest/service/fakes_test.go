package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"rangeload/internal/core/target"
	"rangeload/internal/modkit/repokit"
	perr "rangeload/internal/platform/errors"
	"rangeload/internal/platform/store"
	"rangeload/internal/services/ingest/domain"
)

// memSource serves byte ranges of in-memory objects
type memSource struct {
	mu      sync.Mutex
	objects map[string]string
	opens   []int64
	deleted []domain.ObjectRef
	openErr error
	delErr  error
}

func newSource(key, body string) *memSource {
	return &memSource{objects: map[string]string{key: body}}
}

func (s *memSource) OpenRange(_ context.Context, ref domain.ObjectRef, offset int64) (domain.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return domain.Object{}, s.openErr
	}
	body, ok := s.objects[ref.Key]
	if !ok {
		return domain.Object{}, perr.NotFoundf("no object %s", ref)
	}
	s.opens = append(s.opens, offset)
	rest := ""
	if offset < int64(len(body)) {
		rest = body[offset:]
	}
	return domain.Object{Body: io.NopCloser(strings.NewReader(rest)), Size: int64(len(body))}, nil
}

func (s *memSource) Delete(_ context.Context, ref domain.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delErr != nil {
		return s.delErr
	}
	s.deleted = append(s.deleted, ref)
	return nil
}

// memSinks records every written row across invocations
type memSinks struct {
	mu     sync.Mutex
	rows   [][]string
	failOn string // first field value that fails the write
	opened int
	closed int
}

func (m *memSinks) OpenSink(context.Context, target.Descriptor) (domain.RowSink, error) {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
	return memSink{m}, nil
}

type memSink struct{ m *memSinks }

func (s memSink) Write(_ context.Context, rec domain.Record) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.failOn != "" && len(rec.Fields) > 0 && rec.Fields[0] == s.m.failOn {
		return perr.WithField(perr.Newf(perr.ErrorCodeWrite, "insert rejected row %d", rec.Row), "a")
	}
	s.m.rows = append(s.m.rows, append([]string(nil), rec.Fields...))
	return nil
}

func (s memSink) Close(context.Context) error {
	s.m.mu.Lock()
	s.m.closed++
	s.m.mu.Unlock()
	return nil
}

func (m *memSinks) firstFields() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r[0])
	}
	return out
}

// recorder keeps dispatched continuations in order
type recorder struct {
	mu   sync.Mutex
	sent []domain.Continuation
	err  error
}

func (r *recorder) Dispatch(_ context.Context, c domain.Continuation) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	r.sent = append(r.sent, c)
	r.mu.Unlock()
	return nil
}

func (r *recorder) next() (domain.Continuation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return domain.Continuation{}, false
	}
	c := r.sent[0]
	r.sent = r.sent[1:]
	return c, true
}

// memStore is an in-memory StorageRepo and TxRunner
type memStore struct {
	store.RowQuerier

	mu        sync.Mutex
	starts    []domain.RunStart
	ends      []domain.RunFinish
	queue     []domain.QueuedContinuation
	inflight  map[int64]claimed
	done      map[int64]string
	leases    map[string]string
	nextID    int64
	failTx    error
	running   int
	staleSeen time.Duration
}

type claimed struct {
	c  domain.QueuedContinuation
	at time.Time
}

func newStore() *memStore {
	return &memStore{done: map[int64]string{}, leases: map[string]string{}, inflight: map[int64]claimed{}}
}

func (m *memStore) Tx(_ context.Context, fn func(q store.RowQuerier) error) error {
	if m.failTx != nil {
		return m.failTx
	}
	return fn(m)
}

func (m *memStore) binder() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return m })
}

func (m *memStore) StartRun(_ context.Context, rs domain.RunStart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts = append(m.starts, rs)
	return nil
}

func (m *memStore) FinishRun(_ context.Context, rf domain.RunFinish) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends = append(m.ends, rf)
	return nil
}

func (m *memStore) Progress(context.Context, string) (domain.JobProgress, error) {
	return domain.JobProgress{}, perr.ErrNotFound
}

func (m *memStore) Runs(_ context.Context, jobID string) ([]domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RunRecord
	for _, rs := range m.starts {
		if rs.JobID == jobID {
			out = append(out, domain.RunRecord{InvocationID: rs.InvocationID, StartOffset: rs.StartOffset, Status: "RUNNING"})
		}
	}
	if len(out) == 0 {
		return nil, perr.NotFoundf("job %s not found", jobID)
	}
	return out, nil
}

func (m *memStore) Enqueue(_ context.Context, jobID string, payload []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.queue = append(m.queue, domain.QueuedContinuation{ID: m.nextID, JobID: jobID, Payload: payload})
	return m.nextID, nil
}

// abandon leaves a continuation claimed by a worker that died at the given time
func (m *memStore) abandon(jobID string, payload []byte, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := domain.QueuedContinuation{ID: m.nextID, JobID: jobID, Payload: payload, Attempts: 1}
	m.inflight[c.ID] = claimed{c: c, at: at}
	m.running++
}

func (m *memStore) ClaimNext(_ context.Context, staleAfter time.Duration) (domain.QueuedContinuation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleSeen = staleAfter
	var c domain.QueuedContinuation
	switch {
	case len(m.queue) > 0:
		c = m.queue[0]
		m.queue = m.queue[1:]
	default:
		found := false
		for id, cl := range m.inflight {
			if staleAfter > 0 && time.Since(cl.at) > staleAfter {
				c, found = cl.c, true
				delete(m.inflight, id)
				m.running--
				break
			}
		}
		if !found {
			return domain.QueuedContinuation{}, false, nil
		}
	}
	c.Attempts++
	m.inflight[c.ID] = claimed{c: c, at: time.Now()}
	m.running++
	return c, true, nil
}

func (m *memStore) FinishQueued(_ context.Context, id int64, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[id] = errText
	delete(m.inflight, id)
	m.running--
	return nil
}

func (m *memStore) ClaimRange(_ context.Context, jobID string, offset int64, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fmt.Sprintf("%s@%d", jobID, offset)
	if _, held := m.leases[k]; held {
		return false, nil
	}
	m.leases[k] = "running"
	return true, nil
}

func (m *memStore) FinishRange(_ context.Context, jobID string, offset int64, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fmt.Sprintf("%s@%d", jobID, offset)
	if failed {
		delete(m.leases, k)
		return nil
	}
	m.leases[k] = "done"
	return nil
}

// enqueuer dispatches onto memStore, the way the queue dispatcher does
type enqueuer struct{ m *memStore }

func (e enqueuer) Dispatch(ctx context.Context, c domain.Continuation) error {
	b, err := json.Marshal(c.Event)
	if err != nil {
		return err
	}
	_, err = e.m.Enqueue(ctx, c.JobID, b)
	return err
}

var errBoom = errors.New("boom")

var snapshotsForTest = target.OratsSnapshots()
