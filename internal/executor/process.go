package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shaiso/Taskq/internal/domain"
	"github.com/shaiso/Taskq/internal/task"
)

// stopTimeout — сколько ждать штатного выхода дочернего процесса.
const stopTimeout = 2 * time.Second

// ProcessConfig — конфигурация единицы-процесса.
type ProcessConfig struct {
	// Path — бинарник дочернего процесса (по умолчанию os.Executable()).
	Path string

	// Args — аргументы дочернего процесса.
	Args []string

	// Env — дополнительные переменные окружения.
	Env []string

	// Grace — запас сверх потолка task (по умолчанию DefaultGrace).
	Grace time.Duration

	Logger *slog.Logger
}

// child — один запущенный дочерний процесс.
type child struct {
	cmd       *exec.Cmd
	requests  *os.File
	enc       *json.Encoder
	responses chan response
	exited    chan struct{}
}

// Process — изоляционная единица в отдельном процессе.
//
// Дочерний процесс — тот же бинарник с ChildEnv=1. Он живёт между
// вызовами и пересоздаётся только после краха или таймаута.
type Process struct {
	cfg    ProcessConfig
	logger *slog.Logger

	mu     sync.Mutex
	cur    *child
	closed bool
}

// NewProcess создаёт единицу-процесс.
func NewProcess(cfg ProcessConfig) *Process {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &Process{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Start запускает дочерний процесс.
func (p *Process) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.cur != nil {
		return nil
	}

	c, err := p.spawn()
	if err != nil {
		return err
	}
	p.cur = c
	return nil
}

func (p *Process) spawn() (*child, error) {
	path := p.cfg.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create request pipe: %w", err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		reqR.Close()
		reqW.Close()
		return nil, fmt.Errorf("create response pipe: %w", err)
	}

	cmd := exec.Command(path, p.cfg.Args...)
	cmd.Env = append(os.Environ(), ChildEnv+"=1")
	cmd.Env = append(cmd.Env, p.cfg.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{reqR, respW} // fd 3, fd 4

	if err := cmd.Start(); err != nil {
		reqR.Close()
		reqW.Close()
		respR.Close()
		respW.Close()
		return nil, fmt.Errorf("start executor child: %w", err)
	}

	// Концы дочернего процесса в родителе не нужны: иначе EOF не наступит.
	reqR.Close()
	respW.Close()

	c := &child{
		cmd:       cmd,
		requests:  reqW,
		enc:       json.NewEncoder(reqW),
		responses: make(chan response, 1),
		exited:    make(chan struct{}),
	}

	go p.readResponses(respR, c.responses)
	go func() {
		err := cmd.Wait()
		p.logger.Debug("executor child exited",
			"pid", cmd.Process.Pid,
			"error", err,
		)
		close(c.exited)
	}()

	p.logger.Info("executor child started", "pid", cmd.Process.Pid)
	return c, nil
}

func (p *Process) readResponses(r io.ReadCloser, out chan<- response) {
	defer close(out)
	defer r.Close()

	dec := json.NewDecoder(r)
	for {
		var resp response
		if err := dec.Decode(&resp); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.logger.Warn("executor child: bad response", "error", err)
			}
			return
		}
		out <- resp
	}
}

// Run отправляет envelope дочернему процессу и ждёт ответ.
func (p *Process) Run(ctx context.Context, env domain.Envelope, limit time.Duration) (Report, error) {
	p.mu.Lock()
	c := p.cur
	p.mu.Unlock()

	if c == nil {
		return Report{Outcome: domain.OutcomeFailed, Err: ErrUnitNotStarted}, ErrUnitNotStarted
	}

	crashed := func(cause string) (Report, error) {
		err := fmt.Errorf("%w: %s", ErrUnitCrashed, cause)
		return Report{Outcome: domain.OutcomeFailed, Err: err}, err
	}

	req := request{Envelope: env, LimitMS: limit.Milliseconds()}
	if err := c.enc.Encode(req); err != nil {
		return crashed("write request: " + err.Error())
	}

	var deadline <-chan time.Time
	if limit > 0 {
		timer := time.NewTimer(limit + 2*p.cfg.Grace)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case resp, ok := <-c.responses:
		if !ok {
			return crashed("response channel closed")
		}
		if resp.ID != env.ID {
			return crashed(fmt.Sprintf("response for %q, expected %q", resp.ID, env.ID))
		}

		rep := Report{Outcome: resp.Outcome, Err: resp.err()}
		switch {
		case resp.Timeout:
			err := fmt.Errorf("%w: limit %s", task.ErrTimeout, limit)
			return Report{Outcome: domain.OutcomeFailed, Err: err}, err
		case resp.Broken:
			return crashed(resp.Error)
		}
		return rep, nil

	case <-deadline:
		p.kill(c)
		err := fmt.Errorf("%w: limit %s, child killed", task.ErrTimeout, limit)
		return Report{Outcome: domain.OutcomeFailed, Err: err}, err

	case <-ctx.Done():
		p.kill(c)
		err := fmt.Errorf("%w: child killed: %w", ErrInterrupted, context.Cause(ctx))
		return Report{Outcome: domain.OutcomeFailed, Err: err}, err
	}
}

// Restart убивает текущий дочерний процесс и запускает новый.
func (p *Process) Restart(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.cur != nil {
		p.kill(p.cur)
		p.cur = nil
	}

	c, err := p.spawn()
	if err != nil {
		return err
	}
	p.cur = c
	return nil
}

// Close закрывает канал запросов и ждёт выхода дочернего процесса.
// Если он не вышел за stopTimeout, процесс убивается.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	c := p.cur
	p.cur = nil
	if c == nil {
		return nil
	}

	c.requests.Close()
	select {
	case <-c.exited:
	case <-time.After(stopTimeout):
		p.logger.Warn("executor child did not exit, killing", "pid", c.cmd.Process.Pid)
		p.kill(c)
	}
	return nil
}

// kill убивает дочерний процесс и ждёт его завершения.
func (p *Process) kill(c *child) {
	c.requests.Close()
	_ = c.cmd.Process.Kill()
	<-c.exited
}

// Pid возвращает pid текущего дочернего процесса (0, если его нет).
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cur == nil {
		return 0
	}
	return p.cur.cmd.Process.Pid
}
