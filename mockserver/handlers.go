package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/dshills/vsbench/client"
	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/index"
	"github.com/dshills/vsbench/persistence"
)

// Request types. Field tags use the camelCase spelling; snake_case bodies
// are renamed before decoding.
type indexRequest struct {
	IndexName string `json:"indexName"`
}

type createIndexRequest struct {
	IndexName      string `json:"indexName"`
	Dimension      int    `json:"dimension"`
	IndexType      string `json:"indexType"`
	SpaceType      string `json:"spaceType"`
	EfConstruction int    `json:"efConstruction"`
	M              int    `json:"M"`
}

type addDocumentsRequest struct {
	IndexName string                   `json:"indexName"`
	IDs       []int64                  `json:"ids"`
	Vectors   [][]float32              `json:"vectors"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

type deleteDocumentsRequest struct {
	IndexName string  `json:"indexName"`
	IDs       []int64 `json:"ids"`
}

type searchRequest struct {
	IndexName      string                       `json:"indexName"`
	QueryVector    []float32                    `json:"queryVector"`
	K              int                          `json:"k"`
	EfSearch       int                          `json:"efSearch"`
	Filter         string                       `json:"filter"`
	Filters        []client.StructuredCondition `json:"filters"`
	FilterOp       string                       `json:"filterOp"`
	ReturnMetadata bool                         `json:"returnMetadata"`
}

// decodeRequest reads a JSON body in either naming convention into dst
func decodeRequest(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return err
	}

	normalized := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		normalized[client.CamelName(k)] = v
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func (s *Server) lookup(name string) (index.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[name]
	return idx, ok
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondWithStatus(w, "OK")
}

// handleListIndices returns the names of the loaded indices
func (s *Server) handleListIndices(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.indices))
	for name := range s.indices {
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)
	s.respondWithJSON(w, http.StatusOK, names)
}

// handleCreateIndex creates a new in-memory index
func (s *Server) handleCreateIndex(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	idx, err := index.NewIndex(core.IndexConfig{
		Name:           req.IndexName,
		Dimension:      req.Dimension,
		Kind:           core.IndexKind(req.IndexType),
		Space:          core.Space(req.SpaceType),
		EfConstruction: req.EfConstruction,
		M:              req.M,
	})
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indices[req.IndexName]; exists {
		s.respondWithError(w, http.StatusBadRequest, "Index already exists")
		return
	}
	s.indices[req.IndexName] = idx

	s.respondWithStatus(w, "Index created")
}

// handleAddDocuments inserts documents into an index
func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	var req addDocumentsRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.IDs) != len(req.Vectors) {
		s.respondWithError(w, http.StatusBadRequest, "Number of IDs does not match number of vectors")
		return
	}
	if len(req.Metadatas) > 0 && len(req.Metadatas) != len(req.IDs) {
		s.respondWithError(w, http.StatusBadRequest, "Number of metadatas does not match number of IDs")
		return
	}

	idx, ok := s.lookup(req.IndexName)
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Index not found")
		return
	}

	dimension := idx.Config().Dimension
	for i, vec := range req.Vectors {
		if err := core.ValidateVector(vec, dimension); err != nil {
			s.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("document %d: %v", req.IDs[i], err))
			return
		}
	}

	for i, id := range req.IDs {
		doc := core.Document{ID: id, Vector: req.Vectors[i]}
		if len(req.Metadatas) > 0 {
			doc.Metadata = req.Metadatas[i]
		}
		if err := idx.Add(doc); err != nil {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	s.respondWithStatus(w, "Documents added")
}

// handleDeleteDocuments removes documents from an index
func (s *Server) handleDeleteDocuments(w http.ResponseWriter, r *http.Request) {
	var req deleteDocumentsRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	idx, ok := s.lookup(req.IndexName)
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Index not found")
		return
	}

	for _, id := range req.IDs {
		idx.Delete(id)
	}

	s.respondWithStatus(w, "Documents deleted")
}

// handleGetDocument returns one document with its metadata
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	idx, ok := s.lookup(vars["index"])
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Index not found")
		return
	}

	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid document id")
		return
	}

	doc, ok := idx.Get(id)
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Document not found")
		return
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}

	s.respondWithJSON(w, http.StatusOK, doc)
}

// handleSearch runs a filtered k-nearest-neighbor query
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	idx, ok := s.lookup(req.IndexName)
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Index not found")
		return
	}

	if req.K <= 0 {
		s.respondWithError(w, http.StatusBadRequest, "k must be positive")
		return
	}

	filter, err := ParseFilter(req.Filter)
	if err == nil && filter == nil {
		filter, err = StructuredFilter(req.Filters, req.FilterOp)
	}
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid filter: "+err.Error())
		return
	}

	var match index.Predicate
	if filter != nil {
		match = filter.Eval
	}

	hits, err := idx.Search(req.QueryVector, req.K, match)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := core.SearchResult{
		Hits:      make([]int64, len(hits)),
		Distances: make([]float32, len(hits)),
	}
	if req.ReturnMetadata {
		result.Metadatas = make([]map[string]interface{}, len(hits))
	}
	for i, h := range hits {
		result.Hits[i] = h.ID
		result.Distances[i] = h.Distance
		if req.ReturnMetadata {
			result.Metadatas[i] = h.Metadata
			if result.Metadatas[i] == nil {
				result.Metadatas[i] = map[string]interface{}{}
			}
		}
	}

	s.respondWithJSON(w, http.StatusOK, result)
}

// handleSaveIndex writes a snapshot of a loaded index to the store
func (s *Server) handleSaveIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	idx, ok := s.lookup(req.IndexName)
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Index not found")
		return
	}

	data, err := idx.Serialize()
	if err != nil {
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.SaveSnapshot(r.Context(), req.IndexName, data); err != nil {
		log.WithError(err).WithField("index", req.IndexName).Error("Failed to save snapshot")
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondWithStatus(w, "Index saved")
}

// handleLoadIndex restores a saved index into memory
func (s *Server) handleLoadIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indices[req.IndexName]; exists {
		s.respondWithError(w, http.StatusBadRequest, "Index already exists")
		return
	}

	data, err := s.store.LoadSnapshot(r.Context(), req.IndexName)
	if err != nil {
		if errors.Is(err, persistence.ErrSnapshotNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Index not found on disk")
			return
		}
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	idx, err := index.Deserialize(data)
	if err != nil {
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.indices[req.IndexName] = idx

	s.respondWithStatus(w, "Index loaded")
}

// handleDeleteIndex drops a loaded index from memory
func (s *Server) handleDeleteIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indices[req.IndexName]; !exists {
		s.respondWithError(w, http.StatusNotFound, "Index not found")
		return
	}
	delete(s.indices, req.IndexName)

	s.respondWithStatus(w, "Index deleted")
}

// handleDeleteIndexFromDisk removes a saved snapshot. Loaded indices must be
// deleted from memory first.
func (s *Server) handleDeleteIndexFromDisk(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := decodeRequest(r, &req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.indices[req.IndexName]; exists {
		s.respondWithError(w, http.StatusBadRequest, "Index is loaded. Please delete it first")
		return
	}

	if err := s.store.DeleteSnapshot(r.Context(), req.IndexName); err != nil {
		if errors.Is(err, persistence.ErrSnapshotNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Index not found on disk")
			return
		}
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondWithStatus(w, "Index deleted from disk")
}
