package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner provides a simple blocking spinner for CLI operations
type SimpleSpinner struct {
	out      io.Writer
	spinner  spinner.Spinner
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}

	mu      sync.Mutex
	message string
	once    sync.Once
}

func newSpinner(message string, sp spinner.Spinner, interval time.Duration) *SimpleSpinner {
	return &SimpleSpinner{
		out:      os.Stdout,
		message:  message,
		spinner:  sp,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// NewConnectionSpinner creates a spinner for network/connection operations (Globe style)
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Globe, 180*time.Millisecond)
}

// NewWaitingSpinner creates a spinner for waiting on external events (Points style)
func NewWaitingSpinner(message string) *SimpleSpinner {
	return newSpinner(message, spinner.Points, 100*time.Millisecond)
}

func (s *SimpleSpinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), msg)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *SimpleSpinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		<-s.stopped
		fmt.Fprint(s.out, "\r\033[K") // Clear the line
	})
}

func (s *SimpleSpinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *SimpleSpinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// RunConnectionSpinner starts a connection spinner and returns a stop function
func RunConnectionSpinner(message string) func() {
	sp := NewConnectionSpinner(message)
	sp.Start()
	return sp.Stop
}
