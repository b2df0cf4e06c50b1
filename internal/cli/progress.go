package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// progressBar renders single-line progress for multi-file imports.
// A disabled bar stays silent so --quiet and piped runs print nothing.
type progressBar struct {
	mu      sync.Mutex
	total   int
	current int
	width   int
	prefix  string
	out     io.Writer
	enabled bool
	started time.Time
}

func newProgressBar(out io.Writer, total int, prefix string, enabled bool) *progressBar {
	return &progressBar{
		total:   total,
		width:   40,
		prefix:  prefix,
		out:     out,
		enabled: enabled && total > 0,
		started: time.Now(),
	}
}

// Increment advances the bar by one step.
func (pb *progressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	if pb.current > pb.total {
		pb.current = pb.total
	}
	pb.render()
}

// Finish completes the bar and ends the line.
func (pb *progressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if !pb.enabled {
		return
	}
	pb.current = pb.total
	pb.render()
	fmt.Fprintln(pb.out)
}

func (pb *progressBar) render() {
	if !pb.enabled {
		return
	}
	percent := float64(pb.current) / float64(pb.total)
	filled := int(float64(pb.width) * percent)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.width-filled)
	switch {
	case percent < 0.5:
		bar = color.YellowString(bar)
	case percent < 1.0:
		bar = color.CyanString(bar)
	default:
		bar = color.GreenString(bar)
	}

	line := fmt.Sprintf("\r%s [%s] %d/%d", pb.prefix, bar, pb.current, pb.total)
	if pb.current > 0 {
		line += fmt.Sprintf(" | %s", formatDuration(time.Since(pb.started)))
	}
	fmt.Fprint(pb.out, line)
}

// spinner shows activity while a single long call runs.
type spinner struct {
	mu      sync.Mutex
	frames  []string
	current int
	prefix  string
	out     io.Writer
	enabled bool
	active  bool
	done    chan struct{}
}

func newSpinner(out io.Writer, prefix string, enabled bool) *spinner {
	return &spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix:  prefix,
		out:     out,
		enabled: enabled,
		done:    make(chan struct{}),
	}
}

// Start begins animating until Stop, Success or Fail.
func (s *spinner) Start() {
	s.mu.Lock()
	if !s.enabled || s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if !s.active {
					s.mu.Unlock()
					return
				}
				fmt.Fprintf(s.out, "\r%s %s", color.CyanString(s.frames[s.current]), s.prefix)
				s.current = (s.current + 1) % len(s.frames)
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop clears the spinner line.
func (s *spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.out, "\r"+strings.Repeat(" ", len(s.prefix)+8)+"\r")
}

// Success stops the spinner and prints a check-marked message.
func (s *spinner) Success(message string) {
	s.Stop()
	if s.enabled {
		successLine(s.out, "%s", message)
	}
}

// Fail stops the spinner and prints a crossed message.
func (s *spinner) Fail(message string) {
	s.Stop()
	if s.enabled {
		failLine(s.out, "%s", message)
	}
}

func successLine(out io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", color.GreenString("✓"), fmt.Sprintf(format, args...))
}

func warnLine(out io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", color.YellowString("⚠"), fmt.Sprintf(format, args...))
}

func failLine(out io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), fmt.Sprintf(format, args...))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "< 1s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
