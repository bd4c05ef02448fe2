// internal/lobby/supervisor.go
package lobby

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// GameResult is the JSON line a room process prints to stdout as it exits.
type GameResult struct {
	Type   string  `json:"type"`
	Winner *string `json:"winner"`
}

type roomProc struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// Supervisor owns the live room table: it launches room processes, monitors
// them for their result line, and hands every exit to the reap callback
// exactly once. Port allocation lives here too; ports count up from the
// configured base and are never recycled, so two rooms can never collide.
type Supervisor struct {
	log    *logrus.Entry
	onExit func(roomID string, result *GameResult)

	mu       sync.Mutex
	rooms    map[string]*roomProc
	nextPort int

	wg sync.WaitGroup
}

// NewSupervisor builds an empty supervisor. onExit runs on the monitor
// goroutine after a room process has fully exited; it may be nil.
func NewSupervisor(portBase int, log *logrus.Logger, onExit func(string, *GameResult)) *Supervisor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Supervisor{
		log:      log.WithField("component", "supervisor"),
		onExit:   onExit,
		rooms:    make(map[string]*roomProc),
		nextPort: portBase,
	}
}

// NextPort hands out the next room port.
func (s *Supervisor) NextPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.nextPort
	s.nextPort++
	return p
}

// Launch starts argv in dir, registers the process under roomID, and begins
// monitoring it. The room's stdout and stderr are captured; the last
// non-empty stdout line is the game result.
func (s *Supervisor) Launch(roomID, dir string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty room command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("room %s stdout pipe: %w", roomID, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("room %s stderr pipe: %w", roomID, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("room %s start: %w", roomID, err)
	}

	rp := &roomProc{cmd: cmd, done: make(chan struct{})}
	s.mu.Lock()
	s.rooms[roomID] = rp
	s.mu.Unlock()

	s.log.Infof("room %s started: pid=%d dir=%s", roomID, cmd.Process.Pid, dir)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitor(roomID, rp, stdout, stderr)
	}()
	return nil
}

// monitor drains both pipes, waits for the process, decodes the result line,
// and fires the reap callback. It runs for every exit: clean finish, crash,
// or termination.
func (s *Supervisor) monitor(roomID string, rp *roomProc, stdout, stderr io.Reader) {
	defer close(rp.done)

	var lastOut, lastErr string
	var eg errgroup.Group
	eg.Go(func() error {
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				lastOut = line
			}
		}
		return sc.Err()
	})
	eg.Go(func() error {
		sc := bufio.NewScanner(stderr)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				lastErr = line
			}
		}
		return sc.Err()
	})
	_ = eg.Wait()
	waitErr := rp.cmd.Wait()

	var result *GameResult
	switch {
	case waitErr != nil:
		s.log.Warnf("room %s exited abnormally: %v (stderr: %s)", roomID, waitErr, lastErr)
	case lastOut == "":
		s.log.Warnf("room %s finished without a result line", roomID)
	default:
		var res GameResult
		if err := json.Unmarshal([]byte(lastOut), &res); err != nil {
			s.log.Warnf("room %s finished with an undecodable result: %s", roomID, lastOut)
		} else {
			result = &res
			if res.Winner != nil {
				s.log.Infof("room %s finished, winner=%s", roomID, *res.Winner)
			} else {
				s.log.Infof("room %s finished in a draw", roomID)
			}
		}
	}

	if s.onExit != nil {
		s.onExit(roomID, result)
	}
}

// Terminate signals the room with SIGTERM and blocks until its monitor has
// observed the exit. Unknown room ids are a no-op.
func (s *Supervisor) Terminate(roomID string) {
	s.mu.Lock()
	rp, ok := s.rooms[roomID]
	s.mu.Unlock()
	if !ok {
		return
	}
	_ = rp.cmd.Process.Signal(syscall.SIGTERM)
	<-rp.done
}

// Remove deletes the room's table entry and reports whether this call
// removed it. The bool is the idempotency claim: when the operator's
// delete-room races the monitor's reap, exactly one caller sees true.
func (s *Supervisor) Remove(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

// MatchPrefix returns the live room ids beginning with prefix. An empty
// prefix matches nothing: callers resolve explicit ids only.
func (s *Supervisor) MatchPrefix(prefix string) []string {
	if prefix == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id := range s.rooms {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}

// Len reports the number of live rooms.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// Shutdown terminates every live room and waits for all monitors to finish
// their reaps.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	procs := make([]*roomProc, 0, len(s.rooms))
	for _, rp := range s.rooms {
		procs = append(procs, rp)
	}
	s.mu.Unlock()
	for _, rp := range procs {
		_ = rp.cmd.Process.Signal(syscall.SIGTERM)
	}
	s.wg.Wait()
}
