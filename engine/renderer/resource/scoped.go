package resource

// Scoped creates resources through a Store and destroys all of them, newest first, on Release. It is meant for
// defer:
//
//	scope := resource.NewScoped(store)
//	defer scope.Release()
//	vb := scope.Buffer(resource.BufferParams{...})
//
// The in-flight rule still applies: Release must not run while a submitted frame uses the resources.
type Scoped struct {
	store    Store
	releases []func()
}

// NewScoped creates an empty scope over store.
func NewScoped(store Store) *Scoped {
	return &Scoped{store: store}
}

func (s *Scoped) Buffer(params BufferParams) *Buffer {
	buf := s.store.CreateBuffer(params)
	s.releases = append(s.releases, func() { s.store.DestroyBuffer(buf) })
	return buf
}

func (s *Scoped) Texture(params TextureParams) *Texture {
	tex := s.store.CreateTexture(params)
	s.releases = append(s.releases, func() { s.store.DestroyTexture(tex) })
	return tex
}

func (s *Scoped) Sampler(params SamplerParams) *Sampler {
	smp := s.store.CreateSampler(params)
	s.releases = append(s.releases, func() { s.store.DestroySampler(smp) })
	return smp
}

// Len returns the number of resources the scope still owns.
func (s *Scoped) Len() int {
	return len(s.releases)
}

// Release destroys every resource in reverse creation order. Calling it twice is harmless.
func (s *Scoped) Release() {
	for i := len(s.releases) - 1; i >= 0; i-- {
		s.releases[i]()
	}
	s.releases = nil
}
