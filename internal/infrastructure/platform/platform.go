// Package platform is the local stand-in for browser/OS services: capability
// detection, the permission prompt, the push subscription and native notifications.
package platform

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lllypuk/inboxsync/internal/domain/notification"
)

// Permission is the platform notification permission.
type Permission string

// Permission values.
const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps a config value to a Permission; unknown values mean "ask".
func ParsePermission(s string) Permission {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// Capabilities describes what the platform can do.
type Capabilities struct {
	// BackgroundAgent is the service-worker equivalent that receives pushes while the app is closed.
	BackgroundAgent bool

	// Push is the platform push manager.
	Push bool

	// LocalNotifications is the ability to show native desktop notifications.
	LocalNotifications bool
}

// Subscription is a platform push subscription together with the application
// server key it was created for.
type Subscription struct {
	notification.PushSubscription

	ApplicationServerKey string
}

// Prompter asks the user a yes/no question.
type Prompter interface {
	Prompt(ctx context.Context, question string) (bool, error)
}

// TerminalPrompter asks on a terminal. One reader goroutine owns the input,
// so an abandoned prompt never leaves a second reader behind.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	start   sync.Once
	lines   chan string
	readErr error
}

// NewTerminalPrompter creates a prompter reading answers from in.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{
		in:    bufio.NewReader(in),
		out:   out,
		lines: make(chan string),
	}
}

// Prompt implements Prompter. Only "y" and "yes" count as consent. A line typed
// after a prompt was abandoned answers the next prompt.
func (p *TerminalPrompter) Prompt(ctx context.Context, question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.start.Do(func() { go p.read() })

	if _, err := fmt.Fprintf(p.out, "%s [y/N]: ", question); err != nil {
		return false, err
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return false, p.readErr
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// read forwards input lines until the input fails. A final line without a
// newline is still delivered.
func (p *TerminalPrompter) read() {
	for {
		line, err := p.in.ReadString('\n')
		if line != "" {
			p.lines <- line
		}
		if err != nil {
			p.readErr = err
			close(p.lines)
			return
		}
	}
}
