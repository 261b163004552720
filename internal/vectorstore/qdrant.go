// Package vectorstore mirrors hypercube coordinates into Qdrant for
// similar-record search.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// GenomeField is the payload key holding a record's genome. It is indexed
// as a keyword so searches can exclude a genome server-side.
const GenomeField = "genome"

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client talks to Qdrant's collections and points services over gRPC.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient prepares a gRPC connection. Dialing is lazy, so an unreachable
// server surfaces on the first call.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates a cosine collection of the given dimension with
// a keyword index on GenomeField, unless it already exists.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	if _, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}
	_, err := c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: dimension, Distance: pb.Distance_Cosine},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	_, err = c.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      GenomeField,
		FieldType:      pb.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("index %s.%s: %w", name, GenomeField, err)
	}
	return nil
}

// Point is one vector to upsert. Payload values may be strings, integers,
// floats or booleans; anything else is stored as its fmt representation.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Upsert writes a batch of points and waits until they are searchable.
func (c *Client) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*pb.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: p.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: p.Vector}}},
			Payload: encodePayload(p.Payload),
		})
	}
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// SearchQuery is a nearest-neighbour request.
type SearchQuery struct {
	Vector []float32
	Limit  uint64
	// ExcludeGenome drops points whose GenomeField equals it.
	ExcludeGenome string
	// MinScore drops hits scoring below it when positive.
	MinScore float32
}

// SearchResult holds a single vector search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Genome returns the hit's GenomeField payload.
func (r SearchResult) Genome() string {
	g, _ := r.Payload[GenomeField].(string)
	return g
}

// Search returns the closest points, best first.
func (c *Client) Search(ctx context.Context, collection string, q SearchQuery) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         q.Vector,
		Limit:          q.Limit,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if q.ExcludeGenome != "" {
		req.Filter = &pb.Filter{MustNot: []*pb.Condition{{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   GenomeField,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: q.ExcludeGenome}},
			}},
		}}}
	}
	if q.MinScore > 0 {
		threshold := q.MinScore
		req.ScoreThreshold = &threshold
	}

	resp, err := c.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	results := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, SearchResult{
			ID:      r.Id.GetUuid(),
			Score:   r.Score,
			Payload: decodePayload(r.Payload),
		})
	}
	return results, nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func encodePayload(in map[string]any) map[string]*pb.Value {
	out := make(map[string]*pb.Value, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case string:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: x}}
		case bool:
			out[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
		case int:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
		case int64:
			out[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}
		case float64:
			out[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}
		case nil:
			out[k] = &pb.Value{Kind: &pb.Value_NullValue{}}
		default:
			out[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(x)}}
		}
	}
	return out
}

func decodePayload(in map[string]*pb.Value) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch x := v.GetKind().(type) {
		case *pb.Value_StringValue:
			out[k] = x.StringValue
		case *pb.Value_BoolValue:
			out[k] = x.BoolValue
		case *pb.Value_IntegerValue:
			out[k] = x.IntegerValue
		case *pb.Value_DoubleValue:
			out[k] = x.DoubleValue
		}
	}
	return out
}
