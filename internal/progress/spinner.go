// Package progress renders a terminal spinner while long cloud calls run.
package progress

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"
)

// Spinner redraws one status line until stopped. Start and Stop may be
// called more than once; extra calls are ignored.
type Spinner struct {
	mu       sync.Mutex
	out      io.Writer
	msg      string
	frames   []string
	interval time.Duration
	ansi     bool
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

// Option customises a Spinner.
type Option func(*Spinner)

// WithInterval sets the redraw interval.
func WithInterval(d time.Duration) Option { return func(s *Spinner) { s.interval = d } }

// WithANSI forces colour and line erasing on or off.
func WithANSI(on bool) Option { return func(s *Spinner) { s.ansi = on } }

// New returns a stopped spinner writing to out (stderr when nil).
func New(out io.Writer, message string, opts ...Option) *Spinner {
	if out == nil {
		out = os.Stderr
	}
	s := &Spinner{
		out:      out,
		msg:      message,
		interval: 100 * time.Millisecond,
		ansi:     runtime.GOOS != "windows",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ansi {
		s.frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	} else {
		s.frames = []string{"-", "\\", "|", "/"}
	}
	return s
}

// Start begins drawing in a background goroutine.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for i := 0; ; i++ {
		s.draw(s.frames[i%len(s.frames)])
		select {
		case <-stop:
			s.clear()
			return
		case <-ticker.C:
		}
	}
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	msg := s.msg
	s.mu.Unlock()
	if s.ansi {
		fmt.Fprintf(s.out, "\r\x1b[2K\x1b[36m%s\x1b[0m %s", frame, msg)
		return
	}
	fmt.Fprintf(s.out, "\r%s %s", frame, msg)
}

func (s *Spinner) clear() {
	if s.ansi {
		fmt.Fprint(s.out, "\r\x1b[2K")
		return
	}
	s.mu.Lock()
	width := len(s.msg) + 2
	s.mu.Unlock()
	fmt.Fprintf(s.out, "\r%*s\r", width, "")
}

// Update replaces the message shown next to the spinner.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.msg = message
	s.mu.Unlock()
}

// Stop erases the status line and waits for the drawing goroutine.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()
	<-done
}

// Running reports whether the spinner is drawing.
func (s *Spinner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
