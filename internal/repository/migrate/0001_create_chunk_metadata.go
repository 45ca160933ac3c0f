package migrate

import (
	"context"
)

const (
	ChunkMetadataTableName = "chunk_metadata"
	ChunkMetadataVersion   = "20250731000000_chunk_metadata_table"
)

// CreateChunkMetadataTable holds chunk layouts keyed by chunk_id.
type CreateChunkMetadataTable struct {
	Table string // defaults to ChunkMetadataTableName
}

func (m *CreateChunkMetadataTable) Version() string {
	return ChunkMetadataVersion
}

func (m *CreateChunkMetadataTable) TableName() string {
	if m.Table == "" {
		return ChunkMetadataTableName
	}
	return m.Table
}

func (m *CreateChunkMetadataTable) Up(ctx context.Context, client TableAPI) error {
	return createKeyedTable(ctx, client, m.TableName(), "chunk_id", "ErasureCodingMetadata")
}

func (m *CreateChunkMetadataTable) Down(ctx context.Context, client TableAPI) error {
	return deleteTable(ctx, client, m.TableName())
}
