package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"botforge/internal/training"
	"botforge/pkg/types"
)

// Subprocess spawns the external engine binary and drives it through its CLI:
// `<bin> train` to compile an artifact, `<bin> run --enable-api --cors "*"
// --port N [--debug]` to serve, then proxies inference to the child's REST
// webhook. One child process at a time.
type Subprocess struct {
	bin   string
	args  []string
	debug bool
	log   zerolog.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	proxy *RESTClient
}

// SubprocessConfig configures the spawned engine. Command is the engine
// binary plus leading args, e.g. ["rasa"].
type SubprocessConfig struct {
	Command []string
	Debug   bool
	Logger  zerolog.Logger
}

// NewSubprocess validates cfg and returns an unstarted subprocess engine.
func NewSubprocess(cfg SubprocessConfig) (*Subprocess, error) {
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &Subprocess{
		bin:   cfg.Command[0],
		args:  append([]string(nil), cfg.Command[1:]...),
		debug: cfg.Debug,
		log:   cfg.Logger,
	}, nil
}

func (s *Subprocess) Train(ctx context.Context, data training.Data, dir string) (Artifact, error) {
	if err := data.Validate(); err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifact{}, err
	}
	args := append(append([]string(nil), s.args...), "train", "--out", dir)
	cmd := exec.CommandContext(ctx, s.bin, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	s.log.Info().Str("bin", s.bin).Str("out", dir).Msg("engine train start")
	if err := cmd.Run(); err != nil {
		return Artifact{}, fmt.Errorf("engine train: %w", err)
	}
	path, size, err := newestModel(dir)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		ID:          uuid.NewString(),
		Path:        path,
		Fingerprint: data.Fingerprint(),
		SizeBytes:   size,
		CreatedAt:   time.Now(),
	}, nil
}

// newestModel finds the most recent non-empty file the engine wrote under dir.
func newestModel(dir string) (string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	type candidate struct {
		path string
		size int64
		mod  time.Time
	}
	var found []candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		found = append(found, candidate{
			path: filepath.Join(dir, e.Name()),
			size: info.Size(),
			mod:  info.ModTime(),
		})
	}
	if len(found) == 0 {
		return "", 0, fmt.Errorf("engine produced no model artifact in %s", dir)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })
	return found[0].path, found[0].size, nil
}

// Serve starts the engine's own HTTP server on a free local port with the
// flags the engine CLI defines, then polls until it answers. Must be called
// before Infer.
func (s *Subprocess) Serve(ctx context.Context, art Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return fmt.Errorf("engine already running (pid %d)", s.cmd.Process.Pid)
	}
	port, err := pickFreePort("127.0.0.1")
	if err != nil {
		return err
	}
	args := append(append([]string(nil), s.args...),
		"run", "--enable-api", "--cors", "*", "--port", strconv.Itoa(port))
	if !art.Empty() {
		args = append(args, "--model", art.Path)
	}
	if s.debug {
		args = append(args, "--debug")
	}
	cmd := exec.Command(s.bin, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitHealthy(ctx, baseURL, 60*time.Second); err != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		return fmt.Errorf("engine not healthy: %w", err)
	}
	s.log.Info().Int("pid", cmd.Process.Pid).Str("url", baseURL).Msg("engine serving")
	s.cmd = cmd
	s.proxy = NewRESTClient(baseURL)
	return nil
}

func (s *Subprocess) Infer(ctx context.Context, art Artifact, sender, message string) ([]types.BotMessage, error) {
	s.mu.Lock()
	proxy := s.proxy
	s.mu.Unlock()
	if proxy == nil {
		return nil, fmt.Errorf("engine process not running")
	}
	return proxy.Infer(ctx, art, sender, message)
}

// Close terminates the child process group, SIGTERM then SIGKILL.
func (s *Subprocess) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	cmd := s.cmd
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-done
	}
	s.cmd = nil
	s.proxy = nil
	return nil
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// waitHealthy polls the engine's root endpoint until it responds or the
// deadline passes.
func waitHealthy(ctx context.Context, baseURL string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
		if err == nil {
			if resp, err := client.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 500 {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
