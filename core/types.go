package core

// IndexKind selects the index structure the service builds
type IndexKind string

const (
	IndexFlat        IndexKind = "Flat"
	IndexApproximate IndexKind = "Approximate"
)

// Space is the distance space of an index
type Space string

const (
	SpaceL2 Space = "L2"
	SpaceIP Space = "IP"
)

// IndexConfig describes an index to create on the service. It is immutable
// once the index exists.
type IndexConfig struct {
	Name           string    `json:"name" yaml:"name"`
	Dimension      int       `json:"dimension" yaml:"dimension"`
	Kind           IndexKind `json:"kind" yaml:"kind"`
	Space          Space     `json:"space" yaml:"space"`
	EfConstruction int       `json:"ef_construction" yaml:"ef_construction"`
	M              int       `json:"m" yaml:"m"`
}

// Document is a single vector with its id and optional metadata
type Document struct {
	ID       int64                  `json:"id"`
	Vector   []float32              `json:"vector"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// VectorBatch is an ordered group of documents sent in one add_documents call
type VectorBatch []Document

// IDs returns the document ids in batch order
func (b VectorBatch) IDs() []int64 {
	ids := make([]int64, len(b))
	for i, d := range b {
		ids[i] = d.ID
	}
	return ids
}

// Vectors returns the document vectors in batch order
func (b VectorBatch) Vectors() [][]float32 {
	vectors := make([][]float32, len(b))
	for i, d := range b {
		vectors[i] = d.Vector
	}
	return vectors
}

// HasMetadata reports whether any document in the batch carries metadata
func (b VectorBatch) HasMetadata() bool {
	for _, d := range b {
		if d.Metadata != nil {
			return true
		}
	}
	return false
}

// SearchQuery is one k-nearest-neighbor request
type SearchQuery struct {
	Vector         []float32        `json:"vector"`
	K              int              `json:"k"`
	EfSearch       int              `json:"ef_search"`
	Filter         FilterExpression `json:"filter"`
	ReturnMetadata bool             `json:"return_metadata"`
}

// SearchResult holds the ordered hits of a search. Distances are ascending,
// most similar first.
type SearchResult struct {
	Hits      []int64                  `json:"hits"`
	Distances []float32                `json:"distances"`
	Metadatas []map[string]interface{} `json:"metadatas,omitempty"`
}
