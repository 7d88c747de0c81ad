// ABOUTME: Offline capability that returns deterministic URLs
// ABOUTME: Backs the "fake" provider type and tests; can fail chosen variants or add latency

package capability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake returns one URL per call derived from the prompt and variant.
type Fake struct {
	BaseURL string
	Ext     string
	Delay   time.Duration

	// Fail maps a variant to the error message that call fails with.
	Fail map[int]string

	mu    sync.Mutex
	calls int
}

// NewFake creates a fake capability with URLs under baseURL.
func NewFake(baseURL, ext string) *Fake {
	return &Fake{BaseURL: baseURL, Ext: ext}
}

// Generate returns a stable URL, waiting Delay first.
func (f *Fake) Generate(ctx context.Context, prompt string, p Params) ([]string, error) {
	f.mu.Lock()
	f.calls++
	msg, fail := f.Fail[p.Variant]
	f.mu.Unlock()

	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if fail {
		return nil, errors.New(msg)
	}

	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(prompt+"#"+strconv.Itoa(p.Variant)))
	url := fmt.Sprintf("%s/%s", f.BaseURL, id)
	if f.Ext != "" {
		url += "." + f.Ext
	}
	return []string{url}, nil
}

// Calls returns how many times Generate has been called.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
