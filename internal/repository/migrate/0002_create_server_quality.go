package migrate

import (
	"context"
)

const (
	ServerQualityTableName = "server_quality"
	ServerQualityVersion   = "20250815000000_server_quality_table"
)

// CreateServerQualityTable holds estimator snapshots keyed by area.
type CreateServerQualityTable struct {
	Table string // defaults to ServerQualityTableName
}

func (m *CreateServerQualityTable) Version() string {
	return ServerQualityVersion
}

func (m *CreateServerQualityTable) TableName() string {
	if m.Table == "" {
		return ServerQualityTableName
	}
	return m.Table
}

func (m *CreateServerQualityTable) Up(ctx context.Context, client TableAPI) error {
	return createKeyedTable(ctx, client, m.TableName(), "area", "ServerQualitySnapshots")
}

func (m *CreateServerQualityTable) Down(ctx context.Context, client TableAPI) error {
	return deleteTable(ctx, client, m.TableName())
}
