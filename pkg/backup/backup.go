package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	namePrefix = "watchlist-"
	nameSuffix = ".json"
	timeLayout = "20060102-150405.000"
)

// BackupData is one saved copy of the watch-list.
type BackupData struct {
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Watchlist []string  `json:"watchlist"`
}

// Storage defines interface for backup storage
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type BackupService struct {
	storage Storage
	version string
	now     func() time.Time
}

func NewBackupService(storage Storage, version string) *BackupService {
	return &BackupService{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// CreateBackup saves logins and returns the backup name. Names sort in
// creation order.
func (bs *BackupService) CreateBackup(ctx context.Context, logins []string) (string, error) {
	data := BackupData{
		Version:   bs.version,
		Timestamp: bs.now().UTC(),
		Watchlist: append([]string(nil), logins...),
	}

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup data: %w", err)
	}

	name := namePrefix + data.Timestamp.Format(timeLayout) + nameSuffix
	if err := bs.storage.Save(ctx, name, bytes.NewReader(jsonData)); err != nil {
		return "", fmt.Errorf("failed to save backup: %w", err)
	}
	return name, nil
}

func (bs *BackupService) RestoreBackup(ctx context.Context, name string) (*BackupData, error) {
	reader, err := bs.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}
	defer reader.Close()

	var data BackupData
	if err := json.NewDecoder(reader).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode backup %s: %w", name, err)
	}
	return &data, nil
}

// ListBackups returns backup names, oldest first.
func (bs *BackupService) ListBackups(ctx context.Context) ([]string, error) {
	names, err := bs.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, name := range names {
		if strings.HasSuffix(name, nameSuffix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest backup name, or "" when there is none.
func (bs *BackupService) Latest(ctx context.Context) (string, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[len(names)-1], nil
}

// Prune deletes all but the newest keep backups and returns how many were
// removed.
func (bs *BackupService) Prune(ctx context.Context, keep int) (int, error) {
	names, err := bs.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for len(names)-removed > keep {
		if err := bs.storage.Delete(ctx, names[removed]); err != nil {
			return removed, fmt.Errorf("failed to delete backup %s: %w", names[removed], err)
		}
		removed++
	}
	return removed, nil
}
