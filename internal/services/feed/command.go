package feed

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// SourcePlaceholder is replaced with the stream URL in detector arguments.
const SourcePlaceholder = "{source}"

// CommandDetector runs an external decoder and treats every stdout line as a
// code. A "Type:" prefix such as zbarcam's "QR-Code:" is stripped.
type CommandDetector struct {
	log  *slog.Logger
	path string
	args []string
}

func NewCommandDetector(log *slog.Logger, path string, args []string) *CommandDetector {
	if len(args) == 0 {
		args = []string{SourcePlaceholder}
	}

	return &CommandDetector{
		log:  log,
		path: path,
		args: args,
	}
}

func (d *CommandDetector) Run(ctx context.Context, source string, emit func(code string)) error {
	const op = "service.feed.CommandDetector.Run"

	args := make([]string, len(d.args))
	for i, a := range d.args {
		args[i] = strings.ReplaceAll(a, SourcePlaceholder, source)
	}

	cmd := exec.CommandContext(ctx, d.path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	d.log.Debug("detector started", slog.String("op", op), slog.Int("pid", cmd.Process.Pid))

	sc := bufio.NewScanner(stdout)
	for sc.Scan() {
		if code := parseLine(sc.Text()); code != "" {
			emit(code)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func parseLine(line string) string {
	line = strings.TrimSpace(line)

	if i := strings.Index(line, ":"); i > 0 {
		switch strings.ToUpper(line[:i]) {
		case "QR-CODE", "EAN-13", "CODE-128", "CODE-39", "I2/5":
			return strings.TrimSpace(line[i+1:])
		}
	}

	return line
}
