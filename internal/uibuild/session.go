package uibuild

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"

	"github.com/mcpapps/mcpapps/internal/domain"
)

// BuildContext is fixed for the lifetime of one build or dev session.
type BuildContext struct {
	Root   string
	Config domain.BuildConfig
	// Plugins are the outer build's plugins; only allow-listed ones reach sub-builds.
	Plugins []api.Plugin
	// Registry returns the current collected registry.
	Registry func() domain.Registry
	// DefaultFramework applies to entities without an explicit framework.
	DefaultFramework domain.Framework
	Dev              bool
}

// Artifact is the built document of one UI-bearing tool.
type Artifact struct {
	Entity  domain.Entity
	HTML    string
	Hash    string
	BuiltAt time.Time
}

func newArtifact(entity domain.Entity, doc string) Artifact {
	sum := blake3.Sum256([]byte(doc))
	return Artifact{
		Entity:  entity,
		HTML:    doc,
		Hash:    hex.EncodeToString(sum[:16]),
		BuiltAt: time.Now(),
	}
}

// session owns the cache and in-flight builds of one BuildContext.
type session struct {
	id    string
	ctx   BuildContext
	group singleflight.Group

	mu     sync.Mutex
	cache  map[string]Artifact
	closed bool
}

func newSession(ctx BuildContext) *session {
	return &session{
		id:    uuid.NewString(),
		ctx:   ctx,
		cache: make(map[string]Artifact),
	}
}

func (s *session) cached(name string) (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.cache[name]
	return artifact, ok
}

// store caches artifact unless the session was torn down meanwhile.
func (s *session) store(name string, artifact Artifact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.cache[name] = artifact
	return true
}

func (s *session) close() {
	s.mu.Lock()
	s.closed = true
	s.cache = make(map[string]Artifact)
	s.mu.Unlock()
}

func (s *session) registry() domain.Registry {
	if s.ctx.Registry == nil {
		return domain.NewRegistry()
	}
	return s.ctx.Registry()
}
