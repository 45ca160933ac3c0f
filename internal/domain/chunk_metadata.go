package domain

// FragmentRole marks a fragment as one of the k data segments or one of the m
// parity segments. The role is informational; reconstruction treats every
// fragment the same.
type FragmentRole string

const (
	RoleData   FragmentRole = "data"
	RoleParity FragmentRole = "parity"
)

// FragmentLocation - where one erasure-coded fragment of a chunk lives
type FragmentLocation struct {
	Index  int          `json:"index" dynamodbav:"index"`
	Role   FragmentRole `json:"role" dynamodbav:"role"`
	Hash   string       `json:"hash" dynamodbav:"hash"` // CRC64 (ISO) of the fragment bytes
	Server string       `json:"server" dynamodbav:"server"`
	Key    string       `json:"key" dynamodbav:"key"`
}

// ChunkMetadata - representation of an erasure coded chunk's layout
type ChunkMetadata struct {
	ChunkID      string             `json:"chunk_id" dynamodbav:"chunk_id"` // Partition Key
	OriginalSize int64              `json:"original_size" dynamodbav:"original_size"`
	PaddingSize  int64              `json:"padding_size" dynamodbav:"padding_size"`
	FragmentSize int64              `json:"fragment_size" dynamodbav:"fragment_size"`
	DataShards   int                `json:"k" dynamodbav:"k"`
	ParityShards int                `json:"m" dynamodbav:"m"`
	Fragments    []FragmentLocation `json:"fragments" dynamodbav:"fragments"` // Ordered by index
}

// TotalShards returns n = k + m.
func (c ChunkMetadata) TotalShards() int {
	return c.DataShards + c.ParityShards
}

// FragmentsByServer groups the chunk's fragments by the server holding them,
// preserving index order within each server.
func (c ChunkMetadata) FragmentsByServer() map[string][]FragmentLocation {
	byServer := make(map[string][]FragmentLocation)
	for _, f := range c.Fragments {
		byServer[f.Server] = append(byServer[f.Server], f)
	}
	return byServer
}

// Servers returns the distinct servers holding fragments of the chunk, in
// fragment order.
func (c ChunkMetadata) Servers() []string {
	seen := make(map[string]struct{}, len(c.Fragments))
	servers := make([]string, 0, len(c.Fragments))
	for _, f := range c.Fragments {
		if _, ok := seen[f.Server]; ok {
			continue
		}
		seen[f.Server] = struct{}{}
		servers = append(servers, f.Server)
	}
	return servers
}

// RoleForIndex returns the role of fragment index i for a (k, m) layout.
func RoleForIndex(i, dataShards int) FragmentRole {
	if i < dataShards {
		return RoleData
	}
	return RoleParity
}
