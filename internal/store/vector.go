package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// VectorStoreConfig configures the HNSW vector index.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension. Required.
	Dimensions int

	// M is the HNSW connectivity parameter (default: 16).
	M int

	// EfSearch is the HNSW search expansion factor (default: 20).
	EfSearch int
}

// HNSWVectorStore implements dense retrieval over coder/hnsw with
// maximal-marginal-relevance selection. A wider candidate pool (fetchK) is
// retrieved first, then k results are chosen balancing similarity to the
// query against similarity to already-selected results.
//
// Vectors are kept alongside the graph because MMR needs pairwise
// similarities between candidates, which the graph search does not return.
type HNSWVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	vectors map[string][]float32 // normalized
	nextKey uint64

	closed bool
}

// NewHNSWVectorStore creates an empty vector store.
func NewHNSWVectorStore(cfg VectorStoreConfig) (*HNSWVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector store requires positive dimensions, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	s := &HNSWVectorStore{
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		vectors: make(map[string][]float32),
	}
	s.graph = newGraph(cfg)
	return s, nil
}

func newGraph(cfg VectorStoreConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Add inserts vectors with their IDs. Existing IDs are lazily replaced:
// the old graph node is orphaned rather than deleted, which sidesteps
// coder/hnsw delete edge cases; orphans are skipped at search time.
func (s *HNSWVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		s.vectors[id] = vec
	}

	return nil
}

// Search retrieves fetchK nearest candidates and selects k of them with MMR.
// lambda in [0,1] trades relevance against diversity: 1.0 is pure relevance,
// lower values penalize redundancy more. An empty index returns an empty
// slice, never an error.
func (s *HNSWVectorStore) Search(ctx context.Context, query []float32, k, fetchK int, lambda float64) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}
	if fetchK < k {
		fetchK = k
	}
	if lambda < 0 || lambda > 1 {
		lambda = 1.0
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	nodes := s.graph.Search(normalized, fetchK)

	type candidate struct {
		id    string
		vec   []float32
		score float32
	}
	candidates := make([]candidate, 0, len(nodes))
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		sim := 1 - s.graph.Distance(normalized, node.Value)
		candidates = append(candidates, candidate{id: id, vec: node.Value, score: sim})
	}
	if len(candidates) == 0 {
		return []*VectorResult{}, nil
	}

	// MMR selection over the candidate pool.
	selected := make([]*VectorResult, 0, k)
	selectedVecs := make([][]float32, 0, k)
	remaining := candidates

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestMMR := math.Inf(-1)
		for i, c := range remaining {
			redundancy := float32(0)
			for _, sv := range selectedVecs {
				if sim := cosineSimilarity(c.vec, sv); sim > redundancy {
					redundancy = sim
				}
			}
			mmr := lambda*float64(c.score) - (1-lambda)*float64(redundancy)
			if mmr > bestMMR {
				bestMMR = mmr
				bestIdx = i
			}
		}

		chosen := remaining[bestIdx]
		selected = append(selected, &VectorResult{ID: chosen.id, Score: chosen.score})
		selectedVecs = append(selectedVecs, chosen.vec)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}

// Count returns the number of live vectors.
func (s *HNSWVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// vectorSnapshot is the on-disk representation. The graph is rebuilt from
// raw vectors on load; corpus sizes here are small enough that rebuild cost
// is dominated by embedding, not graph construction.
type vectorSnapshot struct {
	Config  VectorStoreConfig
	Vectors map[string][]float32
}

// Save persists vectors to disk atomically (temp file + rename).
func (s *HNSWVectorStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector index dir: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector index file: %w", err)
	}

	snap := vectorSnapshot{Config: s.config, Vectors: s.vectors}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode vector index: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close vector index file: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadHNSWVectorStore restores a store persisted by Save.
func LoadHNSWVectorStore(path string) (*HNSWVectorStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	defer func() { _ = f.Close() }()

	var snap vectorSnapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode vector index: %w", err)
	}

	s, err := NewHNSWVectorStore(snap.Config)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(snap.Vectors))
	for id := range snap.Vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic graph construction

	for _, id := range ids {
		vec := snap.Vectors[id]
		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		s.vectors[id] = vec
	}
	return s, nil
}

// Close releases the store.
func (s *HNSWVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] /= norm
	}
}

// cosineSimilarity assumes both inputs are already normalized.
func cosineSimilarity(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}
