package mysql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sourcesense/pkg/adapters/datasource"
	"github.com/ekaya-inc/sourcesense/pkg/models"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Kind:        models.SourceKindMySQL,
			DisplayName: "MySQL",
			Description: "MySQL 8+, MariaDB 10.6+, Aurora MySQL",
			Status:      datasource.StatusAvailable,
			DefaultPort: DefaultPort(),
		},
		Factory: func(ctx context.Context, desc models.ConnectionDescriptor, connMgr *datasource.ConnectionManager, logger *zap.Logger) (datasource.SourceAdapter, error) {
			return NewAdapter(desc, connMgr, logger)
		},
	})
}
