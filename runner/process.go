package runner

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-runtest/types"
)

// ProcessState is the final state of a spawned process.
type ProcessState int

const (
	ProcessError     ProcessState = iota // never started or could not be waited on
	ProcessExited                        // exited normally with an exit code
	ProcessExpired                       // killed because its timeout elapsed
	ProcessException                     // terminated by a fault
)

func (s ProcessState) String() string {
	switch s {
	case ProcessExited:
		return "exited"
	case ProcessExpired:
		return "expired"
	case ProcessException:
		return "exception"
	default:
		return "error"
	}
}

// ProcessResult is everything the classifier needs about a finished process.
type ProcessResult struct {
	State            ProcessState
	ExitCode         int
	Fault            types.FaultKind
	FaultDescription string
}

type pipeEvent int

const (
	pipeClosed pipeEvent = iota
	pipeLine
	pipeTimeout
)

// process is the exclusively owned handle of one spawned test process.
// Stdout and stderr are merged into a single line stream.
type process struct {
	dir  string
	path string
	args []string
	env  []string

	cmd    *exec.Cmd
	reader *os.File
	lines  chan string
	done   chan struct{}

	mu       sync.Mutex
	start    time.Time
	end      time.Time // the top process was reaped
	drained  time.Time // the output pipe reached EOF or was closed
	timeout  time.Duration
	expired  bool
	released bool
	result   ProcessResult
}

func newProcess(dir, path string, args, env []string) *process {
	return &process{
		dir:     dir,
		path:    path,
		args:    args,
		env:     env,
		timeout: types.NoTimeout,
		result:  ProcessResult{State: ProcessError, ExitCode: -1},
	}
}

// SetTimeout sets the timeout measured from the (possibly reset) start time.
func (p *process) SetTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
}

// ChangeTimeout replaces the timeout of a running process.
func (p *process) ChangeTimeout(d time.Duration) {
	p.SetTimeout(d)
}

// ResetStartTime restarts both the timeout and the total time measurement.
func (p *process) ResetStartTime() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
}

// Start spawns the process.
func (p *process) Start() error {
	cmd := exec.Command(p.path, p.args...)
	cmd.Dir = p.dir
	configureCommand(cmd)
	if len(p.env) > 0 {
		cmd.Env = append(cmd.Environ(), p.env...)
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = writer
	cmd.Stderr = writer

	p.mu.Lock()
	p.start = time.Now()
	p.mu.Unlock()

	if err := cmd.Start(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return fmt.Errorf("failed to start %s: %w", p.path, err)
	}
	// the child holds its own copy of the write end
	_ = writer.Close()

	p.cmd = cmd
	p.reader = reader
	p.lines = make(chan string, 64)
	p.done = make(chan struct{})

	go p.readLines()
	go p.wait()
	return nil
}

func (p *process) readLines() {
	defer close(p.lines)
	defer func() {
		p.mu.Lock()
		p.drained = time.Now()
		p.mu.Unlock()
	}()
	br := bufio.NewReader(p.reader)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			p.lines <- strings.TrimRight(line, "\r\n")
		}
		if err != nil {
			return
		}
	}
}

func (p *process) wait() {
	defer close(p.done)
	err := p.cmd.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.end = time.Now()

	var exitErr *exec.ExitError
	switch {
	case p.expired:
		p.result = ProcessResult{State: ProcessExpired, ExitCode: p.cmd.ProcessState.ExitCode()}
		// children that inherited the pipe must not keep the attempt alive
		_ = p.reader.Close()
	case err == nil || errors.As(err, &exitErr):
		p.result = resultFromState(p.cmd.ProcessState)
	default:
		p.result = ProcessResult{State: ProcessError, ExitCode: -1, FaultDescription: err.Error()}
	}
}

// NextLine waits at most wait for the next output line. It returns pipeClosed
// once all output was read and the process has terminated.
func (p *process) NextLine(wait time.Duration) (string, pipeEvent) {
	deadline := time.Now().Add(wait)
	for {
		p.enforceTimeout()
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", pipeTimeout
		}
		timer := time.NewTimer(remaining)

		if p.lines == nil {
			select {
			case <-p.done:
				timer.Stop()
				return "", pipeClosed
			case <-timer.C:
				p.enforceTimeout()
				return "", pipeTimeout
			}
		}

		select {
		case line, ok := <-p.lines:
			timer.Stop()
			if !ok {
				p.lines = nil
				continue
			}
			return line, pipeLine
		case <-timer.C:
			p.enforceTimeout()
			return "", pipeTimeout
		}
	}
}

// enforceTimeout applies the timeout until the output pipe is drained. A
// background child can keep the pipe open after the top process exited.
func (p *process) enforceTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.expired || p.cmd == nil || p.timeout <= 0 || p.timeout == types.NoTimeout {
		return
	}
	if !p.drained.IsZero() || time.Since(p.start) <= p.timeout {
		return
	}
	p.expired = true
	_ = killProcess(p.cmd.Process)
	if !p.end.IsZero() {
		p.result = ProcessResult{State: ProcessExpired, ExitCode: p.cmd.ProcessState.ExitCode()}
		_ = p.reader.Close()
	}
}

// Interrupt kills a running process and whatever it left holding the output
// pipe. The attempt then ends through the normal output drain and is
// classified from the kill signal.
func (p *process) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.released || !p.drained.IsZero() {
		return
	}
	_ = killProcess(p.cmd.Process)
	if !p.end.IsZero() {
		p.result = killedResult()
		_ = p.reader.Close()
	}
}

// Result returns the final state. It is only meaningful after NextLine
// reported pipeClosed.
func (p *process) Result() ProcessResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// TotalTime is the run time measured from the last start time reset until
// the top process was reaped and its output drained.
func (p *process) TotalTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.start.IsZero() {
		return 0
	}
	if p.end.IsZero() || p.drained.IsZero() {
		return time.Since(p.start)
	}
	end := p.end
	if p.drained.After(end) {
		end = p.drained
	}
	return end.Sub(p.start)
}

// Release kills a process that is still running and drains its output. It is
// safe to call on every exit path, more than once, and on a handle that never
// started.
func (p *process) Release() {
	p.mu.Lock()
	if p.released || p.cmd == nil {
		p.released = true
		p.mu.Unlock()
		return
	}
	p.released = true
	running := p.end.IsZero() || p.drained.IsZero()
	if running {
		_ = killProcess(p.cmd.Process)
	}
	p.mu.Unlock()

	if running {
		_ = p.reader.Close()
	}
	if p.lines != nil {
		for range p.lines {
		}
	}
	<-p.done
	_ = p.reader.Close()
}
