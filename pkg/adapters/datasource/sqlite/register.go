package sqlite

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Kind:        models.SourceKindSQLite,
			DisplayName: "SQLite",
			Description: "SQLite 3 database files, opened read-only",
			Status:      datasource.StatusAvailable,
		},
		Factory: func(ctx context.Context, desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (datasource.SourceAdapter, error) {
			return NewAdapter(desc, connMgr, logger)
		},
	})
}
