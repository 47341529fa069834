package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	cgerrors "github.com/casegrounds/casegrounds/internal/errors"
)

const (
	vectorFileName = "index.hnsw"
	vectorMetaName = "index.hnsw.meta"
)

// VectorIndex manages one HNSW graph per case, persisted under the vector
// directory at <dir>/<namespace>/index.hnsw with a gob sidecar for the
// string-to-key mappings. Graphs load lazily on first access.
type VectorIndex struct {
	mu         sync.Mutex
	dir        string
	dimensions int
	logger     *slog.Logger
	cases      map[string]*caseVectors
}

// caseVectors is the in-memory state for one case's graph.
type caseVectors struct {
	graph   *hnsw.Graph[uint64]
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// vectorMetadata is the persisted sidecar for one case.
type vectorMetadata struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

// NewVectorIndex creates a vector index rooted at dir.
func NewVectorIndex(dir string, dimensions int, logger *slog.Logger) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, cgerrors.ConfigError(
			fmt.Sprintf("vector dimension must be positive, got %d", dimensions), nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}
	return &VectorIndex{
		dir:        dir,
		dimensions: dimensions,
		logger:     logger,
		cases:      make(map[string]*caseVectors),
	}, nil
}

func newCaseVectors() *caseVectors {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25
	return &caseVectors{
		graph:  graph,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// Add inserts vectors under a case. Existing IDs are replaced via lazy
// deletion: the old graph node is orphaned rather than removed, which avoids
// coder/hnsw instability when deleting nodes.
func (v *VectorIndex) Add(caseID string, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != v.dimensions {
			return fmt.Errorf("vector dimension mismatch: want %d, got %d", v.dimensions, len(vec))
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	cv, err := v.load(caseID)
	if err != nil {
		return err
	}

	for i, id := range ids {
		if oldKey, exists := cv.idMap[id]; exists {
			delete(cv.keyMap, oldKey)
			delete(cv.idMap, id)
		}

		key := cv.nextKey
		cv.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		cv.graph.Add(hnsw.MakeNode(key, vec))
		cv.idMap[id] = key
		cv.keyMap[key] = id
	}

	return v.save(caseID, cv)
}

// Delete removes vectors by chunk ID. Unknown IDs are ignored.
func (v *VectorIndex) Delete(caseID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	cv, err := v.load(caseID)
	if err != nil {
		return err
	}

	changed := false
	for _, id := range ids {
		if key, exists := cv.idMap[id]; exists {
			delete(cv.keyMap, key)
			delete(cv.idMap, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return v.save(caseID, cv)
}

// Query returns up to k nearest chunks for the query vector, closest first.
// Lazily deleted nodes are filtered out, so the caller may receive fewer
// than k hits even when k vectors were once added.
func (v *VectorIndex) Query(caseID string, query []float32, k int) ([]VectorHit, error) {
	if len(query) != v.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: want %d, got %d", v.dimensions, len(query))
	}
	if k <= 0 {
		return []VectorHit{}, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	cv, err := v.load(caseID)
	if err != nil {
		return nil, err
	}
	if cv.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Overfetch to compensate for orphaned nodes still in the graph.
	orphans := cv.graph.Len() - len(cv.idMap)
	nodes := cv.graph.Search(q, k+orphans)

	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		id, live := cv.keyMap[node.Key]
		if !live {
			continue
		}
		dist := cv.graph.Distance(q, node.Value)
		hits = append(hits, VectorHit{
			ChunkID:  id,
			Distance: dist,
			Score:    distanceToScore(dist),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Count returns the number of live vectors for a case.
func (v *VectorIndex) Count(caseID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cv, err := v.load(caseID)
	if err != nil {
		return 0, err
	}
	return len(cv.idMap), nil
}

// DropCase removes a case's graph from memory and disk.
func (v *VectorIndex) DropCase(caseID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.cases, caseID)
	dir := filepath.Join(v.dir, CaseNamespace(caseID))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove vector namespace: %w", err)
	}
	return nil
}

// load returns the case state, reading it from disk on first access.
// Caller must hold v.mu.
func (v *VectorIndex) load(caseID string) (*caseVectors, error) {
	if cv, ok := v.cases[caseID]; ok {
		return cv, nil
	}

	cv := newCaseVectors()
	dir := filepath.Join(v.dir, CaseNamespace(caseID))
	metaPath := filepath.Join(dir, vectorMetaName)

	metaFile, err := os.Open(metaPath)
	if os.IsNotExist(err) {
		v.cases[caseID] = cv
		return cv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open vector metadata: %w", err)
	}
	defer metaFile.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return nil, cgerrors.New(cgerrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("vector metadata for case %q is unreadable", caseID), err)
	}
	if meta.Dimensions != v.dimensions {
		return nil, cgerrors.New(cgerrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("vector index for case %q has dimension %d, expected %d; re-index the case",
				caseID, meta.Dimensions, v.dimensions), nil)
	}

	graphFile, err := os.Open(filepath.Join(dir, vectorFileName))
	if err != nil {
		return nil, fmt.Errorf("open vector graph: %w", err)
	}
	defer graphFile.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := cv.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return nil, cgerrors.New(cgerrors.ErrCodeIndexCorrupt,
			fmt.Sprintf("vector graph for case %q is unreadable", caseID), err)
	}

	cv.idMap = meta.IDMap
	cv.nextKey = meta.NextKey
	for id, key := range cv.idMap {
		cv.keyMap[key] = id
	}

	v.cases[caseID] = cv
	return cv, nil
}

// save persists a case's graph and metadata atomically via temp + rename.
// Caller must hold v.mu.
func (v *VectorIndex) save(caseID string, cv *caseVectors) error {
	dir := filepath.Join(v.dir, CaseNamespace(caseID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create vector namespace: %w", err)
	}

	graphPath := filepath.Join(dir, vectorFileName)
	if err := writeAtomic(graphPath, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := cv.graph.Export(w); err != nil {
			return err
		}
		return w.Flush()
	}); err != nil {
		return fmt.Errorf("save vector graph: %w", err)
	}

	metaPath := filepath.Join(dir, vectorMetaName)
	meta := vectorMetadata{IDMap: cv.idMap, NextKey: cv.nextKey, Dimensions: v.dimensions}
	if err := writeAtomic(metaPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("save vector metadata: %w", err)
	}
	return nil
}

// writeAtomic writes via a temp file in the target directory then renames.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// normalizeInPlace scales a vector to unit length.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
