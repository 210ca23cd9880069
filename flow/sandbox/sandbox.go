// Package sandbox implements the process-isolated Python execution
// environment the code_executor node type requires: a
// static pre-flight validator over a restricted grammar, and a child
// process run under kernel-enforced CPU/memory limits and a wall-clock
// timeout. Go has no vetted Python AST package worth trusting for a
// security boundary, so the validator is a hand-rolled tokenizer rather
// than a real parser.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Config bounds one Run call. Zero-value fields fall back to the spec's
// defaults (Config{}.normalize()).
type Config struct {
	Timeout        time.Duration // default 3s, minimum 100ms
	MaxMemoryMB    int           // default 256, minimum 16
	MaxInputBytes  int           // default 2 MiB
	MaxStdoutChars int           // default 8000
	MaxResultBytes int           // default 1 MiB
}

func (c Config) normalize() Config {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Timeout < 100*time.Millisecond {
		c.Timeout = 100 * time.Millisecond
	}
	if c.MaxMemoryMB <= 0 {
		c.MaxMemoryMB = 256
	}
	if c.MaxMemoryMB < 16 {
		c.MaxMemoryMB = 16
	}
	if c.MaxInputBytes <= 0 {
		c.MaxInputBytes = 2 * 1024 * 1024
	}
	if c.MaxStdoutChars <= 0 {
		c.MaxStdoutChars = 8000
	}
	if c.MaxResultBytes <= 0 {
		c.MaxResultBytes = 1024 * 1024
	}
	return c
}

// Result is the shape Run always returns, success or failure, per
// the executor's result contract.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Stdout  string `json:"stdout,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Executor runs validated code in an isolated child process. The
// production implementation shells out to python3; tests substitute a
// fake that never touches a subprocess.
type Executor interface {
	Run(ctx context.Context, code string, inputData, execContext map[string]any, cfg Config) Result
}

// PythonExecutor is the production Executor: one child process per call,
// monitored by a single result channel with a hard wall-clock timeout,
// CPU-seconds and address-space capped via `ulimit` on the child so the
// kernel enforces them rather than Go emulating them.
type PythonExecutor struct {
	// PythonBin overrides the python3 binary name (default "python3").
	PythonBin string
}

// Run validates then executes code. Validation failures are reported the
// same way a runtime failure would be (Result.Success == false) since the
// node runtime (flow/nodes) treats code_executor errors uniformly.
func (e PythonExecutor) Run(ctx context.Context, code string, inputData, execContext map[string]any, cfg Config) Result {
	cfg = cfg.normalize()

	if err := Validate(code); err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	payload, err := json.Marshal(map[string]any{
		"code":    code,
		"input":   inputData,
		"context": execContext,
	})
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("encoding sandbox payload: %v", err)}
	}
	if len(payload) > cfg.MaxInputBytes {
		return Result{Success: false, Error: "input exceeds max_input_bytes"}
	}

	harnessPath, cleanup, err := writeHarness()
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("preparing sandbox harness: %v", err)}
	}
	defer cleanup()

	bin := e.PythonBin
	if bin == "" {
		bin = "python3"
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cpuSeconds := int(cfg.Timeout.Seconds()) + 1
	memKB := cfg.MaxMemoryMB * 1024
	shellCmd := fmt.Sprintf("ulimit -v %d; ulimit -t %d; exec %s -I -S %s", memKB, cpuSeconds, bin, harnessPath)

	cmd := exec.CommandContext(runCtx, "bash", "-c", shellCmd)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Success: false, Error: fmt.Sprintf("Timeout after %gs", cfg.Timeout.Seconds())}
	}
	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = runErr.Error()
		}
		return Result{Success: false, Error: msg}
	}

	var res Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("decoding sandbox result: %v", err)}
	}
	if len(res.Stdout) > cfg.MaxStdoutChars {
		res.Stdout = res.Stdout[:cfg.MaxStdoutChars]
	}
	if res.Success {
		if b, err := json.Marshal(res.Result); err == nil && len(b) > cfg.MaxResultBytes {
			return Result{Success: false, Error: "result exceeds max_result_bytes"}
		}
	}
	return res
}

// writeHarness materializes the Python driver script to a temp file and
// returns a cleanup func. One temp file per call keeps the harness
// visible to `ps`/debugging without a shared mutable resource across
// concurrent code_executor invocations.
func writeHarness() (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "flow-sandbox-*.py")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.WriteString(harnessSource); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { _ = os.Remove(f.Name()) }, nil
}

// harnessSource is the restricted execution environment: it reads a JSON
// payload from stdin ({code, input, context}), runs code against the
// exposed globals (math, json, re, input_data,
// context, result, a whitelisted builtins table, a capturing print), and
// writes a Result-shaped JSON object to stdout.
const harnessSource = `
import sys, json, math, re

def _main():
    payload = json.loads(sys.stdin.read())
    code = payload.get("code", "")
    input_data = payload.get("input", {})
    context = payload.get("context", {})

    _stdout_parts = []

    def _print(*args, **kwargs):
        sep = kwargs.get("sep", " ")
        _stdout_parts.append(sep.join(str(a) for a in args))

    _whitelist_names = [
        "abs", "all", "any", "bool", "dict", "enumerate", "filter", "float",
        "int", "len", "list", "map", "max", "min", "pow", "range", "reversed",
        "round", "set", "sorted", "str", "sum", "tuple", "zip",
    ]
    _safe_builtins = {name: getattr(__builtins__, name) for name in _whitelist_names if hasattr(__builtins__, name)}
    _safe_builtins["print"] = _print

    sandbox_globals = {
        "__builtins__": _safe_builtins,
        "math": math,
        "json": json,
        "re": re,
        "input_data": input_data,
        "context": context,
        "result": None,
    }

    try:
        exec(code, sandbox_globals)
        out = {
            "success": True,
            "result": sandbox_globals.get("result"),
            "stdout": "\n".join(_stdout_parts),
        }
    except BaseException as e:
        out = {"success": False, "error": str(e)}

    sys.stdout.write(json.dumps(out))

_main()
`
