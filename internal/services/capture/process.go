package capture

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Process is a running capture process.
type Process interface {
	Pid() int
	// Interrupt asks the process to finalize its output and exit.
	Interrupt() error
	Kill() error
	// Done is closed once the process has exited and its resources are released.
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed.
	Err() error
}

// Launcher starts capture processes.
type Launcher interface {
	Launch(name string, args []string) (Process, error)
}

// ExecLauncher runs capture binaries with os/exec. ffmpeg finalizes its
// container when it reads "q" on stdin, so Interrupt writes that first and
// falls back to SIGINT.
type ExecLauncher struct {
	log *slog.Logger
}

func NewExecLauncher(log *slog.Logger) *ExecLauncher {
	return &ExecLauncher{log: log}
}

func (l *ExecLauncher) Launch(name string, args []string) (Process, error) {
	cmd := exec.Command(name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	cmd.Stdout = io.Discard
	cmd.Stderr = &lineLogger{log: l.log.With(slog.String("bin", name))}
	cmd.WaitDelay = 2 * time.Second

	if err := cmd.Start(); err != nil {
		stdin.Close()

		return nil, err
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}

	go p.wait()

	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.err = err
	p.mu.Unlock()

	p.stdin.Close()
	close(p.done)
}

func (p *execProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Interrupt() error {
	if _, err := io.WriteString(p.stdin, "q\n"); err == nil {
		return nil
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		return fmt.Errorf("interrupt pid %d: %w", p.Pid(), err)
	}

	return nil
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.err
}

// maxLineLength caps a buffered stderr line. Longer output is logged in
// pieces marked truncated.
const maxLineLength = 4 << 10

// lineLogger turns a process stderr stream into one warn record per line.
// Carriage returns end a line too, so progress output is not accumulated.
type lineLogger struct {
	log *slog.Logger
	buf bytes.Buffer
}

func (w *lineLogger) Write(p []byte) (int, error) {
	n := len(p)

	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")

		chunk := p
		if i >= 0 {
			chunk = p[:i]
		}

		for len(chunk) > 0 {
			room := maxLineLength - w.buf.Len()
			if len(chunk) < room {
				w.buf.Write(chunk)

				break
			}

			w.buf.Write(chunk[:room])
			chunk = chunk[room:]
			w.flush(true)
		}

		if i < 0 {
			break
		}

		w.flush(false)
		p = p[i+1:]
	}

	return n, nil
}

func (w *lineLogger) flush(truncated bool) {
	line := strings.TrimSpace(w.buf.String())
	w.buf.Reset()

	if line == "" {
		return
	}

	if truncated {
		w.log.Warn("capture process output", slog.String("line", line), slog.Bool("truncated", true))

		return
	}

	w.log.Warn("capture process output", slog.String("line", line))
}
