// Package gputest is an in-memory implementation of the gpu interfaces. It
// executes recorded transfer commands on plain byte slices, completes fenced
// work only when the host waits, and keeps a ledger of every handle so tests
// can check that each creation is matched by exactly one destruction.
package gputest

import (
	"fmt"
	"sort"
)

const (
	KindFence               = "fence"
	KindSemaphore           = "semaphore"
	KindBuffer              = "buffer"
	KindImage               = "image"
	KindImageView           = "image-view"
	KindSampler             = "sampler"
	KindShader              = "shader"
	KindRenderPass          = "render-pass"
	KindFramebuffer         = "framebuffer"
	KindPipelineLayout      = "pipeline-layout"
	KindPipeline            = "pipeline"
	KindDescriptorSetLayout = "descriptor-set-layout"
	KindDescriptorPool      = "descriptor-pool"
	KindCommandPool         = "command-pool"
	KindCommandBuffer       = "command-buffer"
	KindSwapchain           = "swapchain"
)

// Ledger counts handle creations and destructions per kind.
type Ledger struct {
	created    map[string]int
	destroyed  map[string]int
	events     []string
	violations []string
}

func newLedger() *Ledger {
	return &Ledger{
		created:   make(map[string]int),
		destroyed: make(map[string]int),
	}
}

type handle struct {
	kind      string
	id        int
	ledger    *Ledger
	destroyed bool
}

func (l *Ledger) open(kind string) handle {
	l.created[kind]++
	l.events = append(l.events, "+"+kind)
	return handle{kind: kind, id: l.created[kind], ledger: l}
}

func (h *handle) close() {
	if h.destroyed {
		h.ledger.violate("double destroy of %s #%d", h.kind, h.id)
		return
	}
	h.destroyed = true
	h.ledger.destroyed[h.kind]++
	h.ledger.events = append(h.ledger.events, "-"+h.kind)
}

func (l *Ledger) violate(format string, args ...any) {
	l.violations = append(l.violations, fmt.Sprintf(format, args...))
}

func (l *Ledger) note(event string) {
	l.events = append(l.events, event)
}

// Live is the number of handles of kind that were created and not destroyed.
func (l *Ledger) Live(kind string) int {
	return l.created[kind] - l.destroyed[kind]
}

func (l *Ledger) Created(kind string) int {
	return l.created[kind]
}

func (l *Ledger) Destroyed(kind string) int {
	return l.destroyed[kind]
}

// Leaks lists every kind that still has live handles.
func (l *Ledger) Leaks() []string {
	var leaks []string
	for kind := range l.created {
		if n := l.Live(kind); n != 0 {
			leaks = append(leaks, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	sort.Strings(leaks)
	return leaks
}

// Violations lists protocol errors the fake detected: double destroys,
// resets of in-flight work, semaphore misuse.
func (l *Ledger) Violations() []string {
	return l.violations
}

// Events is the ordered log of creations ("+kind"), destructions ("-kind")
// and queue operations ("acquire", "submit", "present", "wait-idle").
func (l *Ledger) Events() []string {
	return l.events
}

// EventsSince returns the events recorded after mark, where mark is an
// earlier len(Events()).
func (l *Ledger) EventsSince(mark int) []string {
	if mark >= len(l.events) {
		return nil
	}
	return append([]string(nil), l.events[mark:]...)
}
