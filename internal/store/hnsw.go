package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/klauspost/compress/zstd"
)

// HNSWConfig configures the vector store.
type HNSWConfig struct {
	// Dimensions is the vector dimension. 0 adopts the dimension of the
	// first upserted vector.
	Dimensions int

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 20)
	EfSearch int
}

// HNSWStore implements VectorStore using the coder/hnsw pure Go graph.
// Replaced and deleted records stay in the graph as orphans and are
// filtered at query time.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config HNSWConfig
	path   string

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	records map[string]*Record // vectorless copies

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswMetadata is the .meta snapshot next to the exported graph.
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  HNSWConfig
	Records map[string]*Record
}

// NewHNSWStore creates an empty in-memory store. Save requires a path; use
// OpenHNSWStore for a persistent one.
func NewHNSWStore(cfg HNSWConfig) *HNSWStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	return &HNSWStore{
		graph:   newGraph(cfg),
		config:  cfg,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]*Record),
	}
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// OpenHNSWStore loads the store saved at path, or creates an empty one if
// nothing was saved yet.
func OpenHNSWStore(path string, cfg HNSWConfig) (*HNSWStore, error) {
	s := NewHNSWStore(cfg)
	s.path = path

	if _, err := os.Stat(path + ".meta"); os.IsNotExist(err) {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	if cfg.Dimensions != 0 && s.config.Dimensions != 0 && cfg.Dimensions != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: cfg.Dimensions}
	}
	return s, nil
}

func (s *HNSWStore) errClosed() error {
	return fmt.Errorf("%w: vector store is closed", ErrUnavailable)
}

// Upsert inserts records. An existing ID is orphaned in the graph and
// re-added under a new key.
func (s *HNSWStore) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	dims := s.config.Dimensions
	if dims == 0 {
		dims = len(records[0].Vector)
	}
	for _, r := range records {
		if len(r.Vector) != dims || dims == 0 {
			return ErrDimensionMismatch{Expected: dims, Got: len(r.Vector)}
		}
	}
	s.config.Dimensions = dims

	for _, r := range records {
		if existingKey, exists := s.idMap[r.ID]; exists {
			delete(s.keyMap, existingKey)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[r.ID] = key
		s.keyMap[key] = r.ID
		s.records[r.ID] = r.clone()
	}
	return nil
}

// Search returns the k nearest records. The graph is searched wider by the
// orphan count so lazily deleted nodes cannot crowd out live ones.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, s.errClosed()
	}
	if k <= 0 || len(s.idMap) == 0 {
		return []*Hit{}, nil
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	width := k + s.graph.Len() - len(s.idMap)
	if width > s.graph.Len() {
		width = s.graph.Len()
	}

	nodes := s.graph.Search(normalized, width)

	hits := make([]*Hit, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue
		}
		distance := s.graph.Distance(normalized, node.Value)
		hits = append(hits, &Hit{
			Record: s.records[id].clone(),
			Score:  float64(distanceToScore(distance)),
		})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete removes records by ID (lazy deletion).
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	for _, id := range ids {
		s.deleteLocked(id)
	}
	return nil
}

func (s *HNSWStore) deleteLocked(id string) {
	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
		delete(s.records, id)
	}
}

// DeleteByFilename removes every record of filename.
func (s *HNSWStore) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, s.errClosed()
	}

	n := 0
	for id, r := range s.records {
		if r.Filename == filename {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

// FilenameIDs returns the live record IDs of filename, sorted.
func (s *HNSWStore) FilenameIDs(ctx context.Context, filename string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, s.errClosed()
	}

	ids := []string{}
	for id, r := range s.records {
		if r.Filename == filename {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// IDs returns the live record IDs, sorted.
func (s *HNSWStore) IDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, s.errClosed()
	}

	ids := make([]string, 0, len(s.idMap))
	for id := range s.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of live records.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// HNSWStats reports live records against graph nodes.
type HNSWStats struct {
	ValidIDs   int
	GraphNodes int
	Orphans    int
}

// Stats returns store statistics.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return HNSWStats{}
	}
	return HNSWStats{
		ValidIDs:   len(s.idMap),
		GraphNodes: s.graph.Len(),
		Orphans:    s.graph.Len() - len(s.idMap),
	}
}

// Save persists the graph and a zstd-compressed metadata snapshot.
// Both files are written to a temp file and renamed.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return s.errClosed()
	}
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(s.path, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Config:  s.config,
		Records: s.records,
	}
	if err := writeAtomic(s.path+".meta", func(f *os.File) error {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return err
		}
		if err := gob.NewEncoder(zw).Encode(meta); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	}); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// writeAtomic writes path through a temp file and a rename.
func writeAtomic(path string, write func(f *os.File) error) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *HNSWStore) load() error {
	metaFile, err := os.Open(s.path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer metaFile.Close()

	zr, err := zstd.NewReader(metaFile)
	if err != nil {
		return fmt.Errorf("open metadata stream: %w", err)
	}
	defer zr.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(zr).Decode(&meta); err != nil {
		return fmt.Errorf("decode hnsw metadata: %w", err)
	}

	graphFile, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer graphFile.Close()

	graph := newGraph(meta.Config)
	// coder/hnsw Import requires an io.ByteReader.
	if err := graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.graph = graph
	s.config = meta.Config
	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.records = meta.Records
	if s.idMap == nil {
		s.idMap = make(map[string]uint64)
	}
	if s.records == nil {
		s.records = make(map[string]*Record)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph. Idempotent.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.graph = nil
	return nil
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore maps cosine distance (0 identical, 2 opposite) to [0,1].
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
