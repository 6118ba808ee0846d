package tool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"sieve/internal/services"
)

// Request is the hand-off passed to the external command.
type Request struct {
	RunID       string
	AssayID     string
	Archive     string
	BulkMembers []string
	MetadataDir string
}

// DefaultArgs is used when no argument template is configured.
var DefaultArgs = []string{"{run_id}", "{archive}", "{metadata_dir}", "{bulk_members}"}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps the configured external command.
type Client struct {
	command string
	args    []string
	timeout time.Duration
	exec    Executor
}

const outputTailLines = 20

// New constructs a tool client.
func New(command string, args []string, timeoutSeconds int, opts ...Option) (*Client, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("tool command required")
	}
	if len(args) == 0 {
		args = DefaultArgs
	}
	client := &Client{
		command: command,
		args:    append([]string(nil), args...),
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Command returns the configured binary.
func (c *Client) Command() string { return c.command }

// Invoke runs the command for req. onOutput receives each output line and
// may be nil. Any non-zero exit, timeout or start failure is reported as an
// external tool error carrying the tail of the command output.
func (c *Client) Invoke(ctx context.Context, req Request, onOutput func(string)) error {
	if strings.TrimSpace(req.Archive) == "" {
		return services.Wrap(services.ErrExternalTool, "tool", "invoke", "Hand-off has no archive path", nil)
	}
	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tail := newLineTail(outputTailLines)
	args := ExpandArgs(c.args, req)
	err := c.exec.Run(runCtx, c.command, args, func(line string) {
		tail.add(line)
		if onOutput != nil {
			onOutput(line)
		}
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	message := fmt.Sprintf("%s exited with error", c.command)
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		message = fmt.Sprintf("%s timed out after %s", c.command, c.timeout)
	}
	if lines := tail.lines(); len(lines) > 0 {
		message += ": " + strings.Join(lines, " | ")
	}
	return services.Wrap(services.ErrExternalTool, "tool", "invoke", message, err)
}

// ExpandArgs substitutes hand-off placeholders in args. {bulk_members}
// standing alone expands into one argument per bulk member; {bulk_member} is
// the first bulk member.
func ExpandArgs(args []string, req Request) []string {
	firstBulk := ""
	if len(req.BulkMembers) > 0 {
		firstBulk = req.BulkMembers[0]
	}
	replacer := strings.NewReplacer(
		"{run_id}", req.RunID,
		"{assay_id}", req.AssayID,
		"{archive}", req.Archive,
		"{bulk_member}", firstBulk,
		"{bulk_members}", strings.Join(req.BulkMembers, ","),
		"{metadata_dir}", req.MetadataDir,
	)
	expanded := make([]string, 0, len(args)+len(req.BulkMembers))
	for _, arg := range args {
		if arg == "{bulk_members}" {
			expanded = append(expanded, req.BulkMembers...)
			continue
		}
		expanded = append(expanded, replacer.Replace(arg))
	}
	return expanded
}

type lineTail struct {
	mu    sync.Mutex
	max   int
	items []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append(t.items, line)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.items...)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
