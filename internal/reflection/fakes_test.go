package reflection

import (
	"context"
	"errors"
	"io"
	"sync"
)

var errUpstream = errors.New("upstream unavailable")

type fakeAssistant struct {
	mu sync.Mutex

	insight    string
	insightErr error
	res        *Categorization
	err        error

	// when set, Categorize signals started and waits for release or ctx
	started chan struct{}
	release chan struct{}

	categorizeCalls int
	lastTexts       []string
}

func (a *fakeAssistant) Insight(ctx context.Context, req InsightRequest) (string, error) {
	_ = ctx
	_ = req
	return a.insight, a.insightErr
}

func (a *fakeAssistant) Categorize(ctx context.Context, texts []string) (*Categorization, error) {
	a.mu.Lock()
	a.categorizeCalls++
	a.lastTexts = append([]string(nil), texts...)
	started, release := a.started, a.release
	a.mu.Unlock()

	if release != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.res, a.err
}

func (a *fakeAssistant) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.categorizeCalls
}

// fakeNarrator returns the narrated text as its audio.
type fakeNarrator struct {
	mu    sync.Mutex
	texts []string
	err   error
	hold  chan struct{}
}

func (n *fakeNarrator) Narrate(ctx context.Context, text string) ([]byte, error) {
	n.mu.Lock()
	n.texts = append(n.texts, text)
	hold := n.hold
	n.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n.err != nil {
		return nil, n.err
	}
	return []byte(text), nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	_ = ctx
	_ = filename
	if _, err := io.ReadAll(audio); err != nil {
		return "", err
	}
	return f.text, f.err
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *fakeDispatcher) PublishCategorizeJob(ctx context.Context, sessionID string) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, sessionID)
	return nil
}
