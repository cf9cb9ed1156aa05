package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"foto-produk-maker/internal/imagefile"
)

type fakeClient struct {
	describeCalls  atomic.Int32
	transformCalls atomic.Int32

	mu            sync.Mutex
	lastPrompt    string
	lastImage     string
	describeFunc  func(ctx context.Context, imageBase64 string) (string, error)
	transformFunc func(ctx context.Context, imageBase64, prompt string) (string, error)
}

func (f *fakeClient) DescribeAndPrompt(ctx context.Context, imageBase64, mimeType string) (string, error) {
	f.describeCalls.Add(1)
	f.mu.Lock()
	f.lastImage = imageBase64
	fn := f.describeFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, imageBase64)
	}
	return "auto prompt", nil
}

func (f *fakeClient) Transform(ctx context.Context, imageBase64, mimeType, prompt string) (string, error) {
	f.transformCalls.Add(1)
	f.mu.Lock()
	f.lastImage = imageBase64
	f.lastPrompt = prompt
	fn := f.transformFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, imageBase64, prompt)
	}
	return "data:image/png;base64,cmVzdWx0", nil
}

type observation struct {
	op      string
	outcome string
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (o *recordingObserver) ObserveRequest(op, outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observation{op: op, outcome: outcome})
}

func (o *recordingObserver) all() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observation(nil), o.seen...)
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func testImage(id string) imagefile.ImageFile {
	return imagefile.ImageFile{
		ID:       id,
		Name:     id + ".png",
		MimeType: "image/png",
		Raw:      []byte(id),
		Encoded:  "ZW5jb2RlZC0" + id,
	}
}
