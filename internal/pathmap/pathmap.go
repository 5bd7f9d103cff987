// Package pathmap translates paths between a build container's filesystem
// and the host's when the two mount the work directory at different roots.
//
// The mapping is discovered by comparing inode numbers: the container side
// reports the inode of every ancestor of a path that does not exist on the
// host, and the host side walks up from its work directory until one of its
// directories has an inode found in that chain.
package pathmap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jward/bbls/internal/driver"
	"github.com/jward/bbls/internal/hostfs"
)

// ErrNoDriver is returned when a translation needs the container but no
// command runner was configured.
var ErrNoDriver = errors.New("pathmap: bitbake driver is not set")

// Mapping pairs the container and host directories that are the same mount.
type Mapping struct {
	ContainerRoot string
	HostRoot      string
}

// Reconciler owns the mapping for one scan cycle. The zero mapping means no
// container indirection is in effect.
type Reconciler struct {
	runner      driver.Runner
	fs          hostfs.FS
	hostWorkdir string
	notify      func(path string)
	log         *slog.Logger

	mu      sync.Mutex
	mapping *Mapping
	probed  bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithNotifier sets the callback invoked when a path has no counterpart on the
// other side. The callback's outcome never affects the translation.
func WithNotifier(fn func(path string)) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// New creates a Reconciler. hostWorkdir is where the host-side walk starts.
func New(runner driver.Runner, fsys hostfs.FS, hostWorkdir string, opts ...Option) *Reconciler {
	r := &Reconciler{
		runner:      runner,
		fs:          fsys,
		hostWorkdir: hostWorkdir,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reset forgets the current mapping. The next ToHost call for a path missing
// on the host re-derives it.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapping = nil
	r.probed = false
}

// Mapping returns a copy of the established mapping, or nil.
func (r *Reconciler) Mapping() *Mapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping == nil {
		return nil
	}
	m := *r.mapping
	return &m
}

// ToHost translates a container path to the host. An empty path is returned
// unchanged. Paths that cannot be translated are returned as given.
func (r *Reconciler) ToHost(ctx context.Context, containerPath string) (string, error) {
	if containerPath == "" {
		return "", nil
	}
	m, err := r.ensureMapping(ctx, containerPath)
	if err != nil {
		return containerPath, err
	}
	if m == nil {
		return containerPath, nil
	}
	return r.translate(containerPath, m.ContainerRoot, m.HostRoot, func(p string) bool {
		return r.fs.Exists(p)
	}), nil
}

// ToContainer translates a host path into the container. It never triggers
// discovery: without an established mapping the path is returned unchanged.
func (r *Reconciler) ToContainer(ctx context.Context, hostPath string) (string, error) {
	if hostPath == "" {
		return "", nil
	}
	m := r.Mapping()
	if m == nil {
		return hostPath, nil
	}
	if r.runner == nil {
		return hostPath, ErrNoDriver
	}
	return r.translate(hostPath, m.HostRoot, m.ContainerRoot, func(p string) bool {
		return r.existsInContainer(ctx, p)
	}), nil
}

func (r *Reconciler) ensureMapping(ctx context.Context, containerPath string) (*Mapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mapping != nil || r.probed {
		return r.mapping, nil
	}
	if r.fs.Exists(containerPath) {
		// Not inside a container, or the container shares the host's layout.
		return nil, nil
	}
	if r.runner == nil {
		return nil, ErrNoDriver
	}
	r.probed = true
	r.mapping = r.discover(ctx, containerPath)
	return r.mapping, nil
}

// discover runs FindMapping with the container inode chain of containerPath.
func (r *Reconciler) discover(ctx context.Context, containerPath string) *Mapping {
	res, err := r.runner.Run(ctx, InodeChainCommand(containerPath))
	if err != nil {
		r.log.Warn("container inode lookup failed", "path", containerPath, "error", err)
		return nil
	}
	if res.Status != 0 {
		r.log.Warn("container inode lookup failed", "path", containerPath,
			"status", res.Status, "stderr", strings.TrimSpace(string(res.Stderr)))
		return nil
	}
	m := FindMapping(containerPath, ParseInodes(res.Stdout), r.hostWorkdir, r.fs, r.log)
	if m != nil {
		r.log.Info("found container mount point", "container", m.ContainerRoot, "host", m.HostRoot)
	}
	return m
}

// FindMapping walks the host upward from hostRoot; at each host directory it
// compares the inode against the container chain (index 0 is containerPath
// itself, then each parent). The first match fixes the mapping.
func FindMapping(containerPath string, containerInodes []uint64, hostRoot string, fsys hostfs.FS, log *slog.Logger) *Mapping {
	if log == nil {
		log = slog.Default()
	}
	hostDir := filepath.Clean(hostRoot)
	for !isTop(hostDir) {
		hostIno, err := fsys.Inode(hostDir)
		if err == nil {
			containerDir := filepath.Clean(containerPath)
			for idx := 0; !isTop(containerDir) && idx < len(containerInodes); idx++ {
				log.Debug("comparing container inodes",
					"container", containerDir, "container_inode", containerInodes[idx],
					"host", hostDir, "host_inode", hostIno)
				if containerInodes[idx] == hostIno {
					return &Mapping{ContainerRoot: containerDir, HostRoot: hostDir}
				}
				containerDir = filepath.Dir(containerDir)
			}
		}
		hostDir = filepath.Dir(hostDir)
	}
	return nil
}

func isTop(dir string) bool {
	return dir == "/" || dir == "." || dir == filepath.Dir(dir)
}

// translate re-roots path from one side to the other. When the direct result
// does not exist, one leading "../" is dropped from the relative part; this
// matches containers that mount the work and build directories side by side.
func (r *Reconciler) translate(path, fromRoot, toRoot string, exists func(string) bool) string {
	rel, err := filepath.Rel(fromRoot, path)
	if err != nil {
		return path
	}
	candidate := filepath.Join(toRoot, rel)
	if exists(candidate) {
		return candidate
	}
	if stripped, ok := strings.CutPrefix(rel, ".."+string(filepath.Separator)); ok {
		candidate = filepath.Join(toRoot, stripped)
		if exists(candidate) {
			return candidate
		}
	}
	r.notifyUnresolved(path)
	return path
}

func (r *Reconciler) notifyUnresolved(path string) {
	r.log.Warn("could not find corresponding path inside and outside of the container", "path", path)
	if r.notify == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("unresolved path notification failed", "path", path, "error", fmt.Sprint(rec))
		}
	}()
	r.notify(path)
}

func (r *Reconciler) existsInContainer(ctx context.Context, path string) bool {
	res, err := r.runner.Run(ctx, "test -e "+driver.Quote(path))
	return err == nil && res.Status == 0
}

// InodeChainCommand prints the inode of path and of each of its ancestors,
// one per line, leaf first.
func InodeChainCommand(path string) string {
	return fmt.Sprintf(`f=%s; while [[ $f != / ]]; do stat -c %%i $f; f=$(realpath $(dirname "$f")); done;`,
		driver.Quote(path))
}

var inodeLine = regexp.MustCompile(`^\d+$`)

// ParseInodes extracts one inode number per line; other lines are ignored.
func ParseInodes(out []byte) []uint64 {
	var inodes []uint64
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !inodeLine.MatchString(line) {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 64)
		if err != nil {
			continue
		}
		inodes = append(inodes, n)
	}
	return inodes
}
