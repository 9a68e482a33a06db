// Package proto defines the request and response messages of the search RPC
// service. They travel as JSON over the pkg/grpc transport.
package proto

// Method names registered by the search service.
const (
	MethodSearch      = "SearchService.Search"
	MethodSearchFused = "SearchService.SearchFused"
	MethodHealth      = "SearchService.Health"
)

// SearchRequest is the input to the Search RPC (body channel only).
type SearchRequest struct {
	Query string `json:"query"`
	Limit int32  `json:"limit"`
}

// SearchFusedRequest is the input to the SearchFused RPC. Zero weights fall
// back to the server's configured split.
type SearchFusedRequest struct {
	Query       string  `json:"query"`
	Limit       int32   `json:"limit"`
	BodyWeight  float64 `json:"body_weight"`
	TitleWeight float64 `json:"title_weight"`
}

// SearchResponse is the output of both search RPCs.
type SearchResponse struct {
	Query     string         `json:"query"`
	Mode      string         `json:"mode"`
	Results   []SearchResult `json:"results"`
	CacheHit  bool           `json:"cache_hit"`
	LatencyMs int64          `json:"latency_ms"`
}

// SearchResult is one resolved document.
type SearchResult struct {
	DocID uint32 `json:"doc_id"`
	Title string `json:"title"`
}

// HealthCheckResponse uses the status names of the gRPC health protocol.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
