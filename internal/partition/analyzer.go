// Package partition groups files by account value into proposed sessions.
package partition

import (
	"fmt"

	"github.com/sheetflow/backend/internal/models"
)

// Analyze groups files by their primary account value. Each file lands in
// exactly one partition; files are never split across groups. Partitions
// come back in first-seen order, which callers must not rely on.
//
// Precondition: every file has an account column assigned. Files with an
// assigned column but no extracted values group under their own file name
// so they stay visible rather than silently vanishing.
func Analyze(files []*models.UploadedFile) ([]models.Partition, error) {
	var unassigned []string
	for _, f := range files {
		if f.AccountColumnName == "" {
			unassigned = append(unassigned, f.FileName)
		}
	}
	if len(unassigned) > 0 {
		return nil, fmt.Errorf("files missing account column assignment: %v", unassigned)
	}

	index := make(map[string]int)
	partitions := make([]models.Partition, 0)

	for _, f := range files {
		key := f.PrimaryAccount()
		if key == "" {
			key = f.FileName
		}

		i, ok := index[key]
		if !ok {
			i = len(partitions)
			index[key] = i
			partitions = append(partitions, models.Partition{
				AccountName: key,
				SessionName: DefaultSessionName(key, 0),
				Selected:    true,
			})
		}

		p := &partitions[i]
		p.FileIDs = append(p.FileIDs, f.FileID)
		p.FileCount++
		p.TotalRows += f.RowCount
		p.TotalAmount += f.TotalAmount
	}

	for i := range partitions {
		partitions[i].SessionName = DefaultSessionName(partitions[i].AccountName, partitions[i].FileCount)
	}

	return partitions, nil
}

// DefaultSessionName derives the editable session name proposed for a
// partition.
func DefaultSessionName(account string, fileCount int) string {
	return fmt.Sprintf("%s (%d files)", account, fileCount)
}
