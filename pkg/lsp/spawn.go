package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Command describes how to start a language server.
type Command struct {
	Name string
	Args []string
	// Env is appended to the current process environment.
	Env []string
	Dir string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// process is a running server. Its exit is observed by a single Wait.
type process struct {
	cmd    *exec.Cmd
	exited chan struct{}
	err    error
}

// Spawn starts the server and returns a connection over its stdio. The
// server's stderr is discarded.
func Spawn(cmd Command, opts ...Option) (*Conn, error) {
	if cmd.Name == "" {
		return nil, newError(KindSpawnFailed, "spawn", errors.New("no command configured"))
	}

	// The process outlives the call that spawned it, so it is not bound to a context.
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	c.Dir = cmd.Dir
	c.Stderr = io.Discard
	configureProcessGroup(c)

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, newError(KindSpawnFailed, "create stdin pipe", err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, newError(KindSpawnFailed, "create stdout pipe", err)
	}
	if err := c.Start(); err != nil {
		stdin.Close()
		return nil, newError(KindSpawnFailed, cmd.Name, err)
	}

	conn := NewConn(stdout, stdin, opts...)
	proc := &process{cmd: c, exited: make(chan struct{})}
	conn.proc = proc

	// Wait closes stdout, so it runs only once the reader has hit EOF.
	go func() {
		<-conn.readDone
		proc.err = c.Wait()
		close(proc.exited)
	}()
	conn.logger.Debug("LSP server started", "command", cmd.Name, "args", cmd.Args, "pid", c.Process.Pid)
	return conn, nil
}

func (p *process) kill() {
	select {
	case <-p.exited:
		return
	default:
	}
	_ = killProcess(p.cmd)
	<-p.exited
}

// wait waits up to grace for the process to exit on its own, then kills it.
func (p *process) wait(ctx context.Context, grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.exited:
		if _, ok := errors.AsType[*exec.ExitError](p.err); ok {
			return nil
		}
		return p.err
	case <-timer.C:
	case <-ctx.Done():
	}
	p.kill()
	return errors.New("LSP server did not exit in time")
}
