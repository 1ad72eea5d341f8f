package renderer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Carmen-Shannon/oxy-gfx/common"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-gfx/engine/renderer/technique"
	"go.uber.org/zap"
)

// techniqueEntry is a technique cache slot, keyed by the hash of its path.
type techniqueEntry struct {
	path string
	tech *pipeline.Technique
}

func (d *device) LoadTechnique(path string) (*pipeline.Technique, error) {
	key := common.Hash(path)
	if e, ok := d.techniques[key]; ok {
		return e.tech, nil
	}

	start := time.Now()
	for {
		tech, err := d.buildTechnique(path)
		if err == nil {
			d.techniques[key] = &techniqueEntry{path: path, tech: tech}
			d.watchTechnique(path, tech)
			d.record("technique_load", start)
			d.logger.Info("loaded technique", zap.String("path", path), zap.Uint64("id", tech.ID()))
			return tech, nil
		}

		d.logger.Error("failed to load technique", zap.String("path", path), zap.Error(err))
		if d.retryPrompt == nil || !d.retryPrompt(path, err) {
			return nil, err
		}
	}
}

func (d *device) buildTechnique(path string) (*pipeline.Technique, error) {
	blob, err := d.cache.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrAssetNotFound, err)
		}
		return nil, err
	}
	return d.builder.Build(path, blob, d.backend.SurfaceFormat())
}

func (d *device) ReloadAllTechniques() int {
	if d.inFrame {
		panic("renderer: ReloadAllTechniques called between BeginFrame and EndFrame")
	}
	d.WaitForGpu()

	reloaded := 0
	for _, e := range d.sortedTechniques() {
		source, err := os.ReadFile(e.path)
		if err != nil {
			d.logger.Warn("cannot reload technique", zap.String("path", e.path), zap.Error(err))
			continue
		}
		if common.HashBytes(source) == e.tech.Checksum() {
			continue
		}
		if d.reloadTechnique(e, false) == nil {
			reloaded++
		}
	}
	return reloaded
}

// reloadTechnique rebuilds a technique in place. force recompiles even when the blob checksum matches, which is
// needed when only an included file changed.
func (d *device) reloadTechnique(e *techniqueEntry, force bool) error {
	start := time.Now()
	var blob *technique.Blob
	var err error
	if force {
		blob, err = d.cache.Rebuild(e.path)
	} else {
		blob, err = d.cache.Load(e.path)
	}
	if err == nil {
		err = d.builder.Rebuild(e.tech, blob, d.backend.SurfaceFormat())
	}
	if err != nil {
		d.logger.Error("failed to reload technique, keeping previous pipeline", zap.String("path", e.path), zap.Error(err))
		return err
	}

	d.watchTechnique(e.path, e.tech)
	d.stats.TechniqueReloads++
	d.record("technique_reload", start)
	d.logger.Info("reloaded technique", zap.String("path", e.path), zap.Uint64("id", e.tech.ID()))
	return nil
}

func (d *device) sortedTechniques() []*techniqueEntry {
	entries := make([]*techniqueEntry, 0, len(d.techniques))
	for _, e := range d.techniques {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	return entries
}

func (d *device) DestroyTechnique(tech *pipeline.Technique) {
	if tech == nil {
		return
	}
	for key, e := range d.techniques {
		if e.tech == tech {
			delete(d.techniques, key)
		}
	}
	d.builder.Destroy(tech)
}

func (d *device) CreateRenderSetup(tech *pipeline.Technique, params pipeline.RenderSetupParams) (pipeline.RenderSetupID, error) {
	return d.builder.CreateRenderSetup(tech, params)
}

func (d *device) DestroyRenderSetup(tech *pipeline.Technique, id pipeline.RenderSetupID) {
	d.builder.DestroyRenderSetup(tech, id)
}

// includePath resolves an include recorded in a blob to the file the watcher sees.
func (d *device) includePath(include string) string {
	return filepath.Join(d.cfg.IncludeDir, filepath.FromSlash(include))
}

// watchTechnique registers a technique's JSON and includes with the hot reload watcher.
func (d *device) watchTechnique(path string, tech *pipeline.Technique) {
	if d.watcher == nil {
		return
	}
	files := []string{path}
	for _, inc := range tech.Includes() {
		files = append(files, d.includePath(inc))
	}
	for _, f := range files {
		if err := d.watcher.Watch(f); err != nil {
			d.logger.Warn("cannot watch technique file", zap.String("path", f), zap.Error(err))
		}
	}
}

// processReloads applies the file changes the watcher collected since the previous frame.
func (d *device) processReloads() {
	if d.watcher == nil {
		return
	}
	changed := d.watcher.Take()
	if len(changed) == 0 {
		return
	}
	d.logger.Debug("technique files changed", zap.Strings("paths", changed))
	d.WaitForGpu()

	set := make(map[string]bool, len(changed))
	for _, p := range changed {
		set[p] = true
	}
	for _, e := range d.sortedTechniques() {
		includeChanged := false
		for _, inc := range e.tech.Includes() {
			if set[absPath(d.includePath(inc))] {
				includeChanged = true
				break
			}
		}
		switch {
		case includeChanged:
			_ = d.reloadTechnique(e, true)
		case set[absPath(e.path)]:
			source, err := os.ReadFile(e.path)
			if err != nil || common.HashBytes(source) == e.tech.Checksum() {
				continue
			}
			_ = d.reloadTechnique(e, false)
		}
	}
}

func (d *device) record(event string, start time.Time) {
	if d.profiler != nil {
		d.profiler.Record(event, time.Since(start))
	}
}
