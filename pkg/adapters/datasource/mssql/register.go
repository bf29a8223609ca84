package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Kind:        models.SourceKindMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2019+, Azure SQL Database",
			Status:      datasource.StatusAvailable,
			DefaultPort: DefaultPort(),
		},
		Factory: func(ctx context.Context, desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (datasource.SourceAdapter, error) {
			return NewAdapter(desc, connMgr, logger)
		},
	})
}
