package graph

// GraphClient builds the relationship graph and its analytics from a
// finalized entity registry and its co-occurrence events.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	workers       int
	topK          int
	progressEvery int
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// Workers controls how many goroutines aggregate event pairs in parallel.
// TopK is the length of every node's strongest-connections list.
// ProgressEvery is the number of betweenness sources between progress logs.
type NewGraphClientParams struct {
	Workers       int
	TopK          int
	ProgressEvery int
}

const (
	DefaultWorkers       = 4
	DefaultTopK          = 10
	DefaultProgressEvery = 500
)

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters. Zero values select the defaults.
//
// Example:
//
//	client := graph.NewGraphClient(graph.NewGraphClientParams{
//		Workers: 8,
//		TopK:    10,
//	})
//	g, err := client.Build(ctx, registry.Entities, registry.Events)
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) *GraphClient {
	workers := params.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	topK := params.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	every := params.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	return &GraphClient{
		workers:       workers,
		topK:          topK,
		progressEvery: every,
	}
}
