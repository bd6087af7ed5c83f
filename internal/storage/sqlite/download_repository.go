package sqlite

import (
	"database/sql"

	"github.com/italolelis/seafile_downloader/internal/storage"
)

// DownloadRepository combines the read and write sides over one connection.
type DownloadRepository struct {
	*DownloadReadRepository
	*DownloadWriteRepository
}

var _ storage.DownloadRepository = (*DownloadRepository)(nil)

func NewDownloadRepository(dbConn *sql.DB) *DownloadRepository {
	return &DownloadRepository{
		DownloadReadRepository:  NewDownloadReadRepository(dbConn),
		DownloadWriteRepository: NewDownloadWriteRepository(dbConn),
	}
}
