package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	blobcore "raffleledger/internal/blob/core"
)

// ArchivePrefix is the key prefix under which ledger archives are written.
const ArchivePrefix = "archives/"

// ErrArchiveUnavailable is returned when no archive store is configured.
var ErrArchiveUnavailable = errors.New("archive store not configured")

// Archive is the exported ledger: every raffle with its entries and the full
// history, including undone entries.
type Archive struct {
	ExportedAt time.Time    `json:"exportedAt"`
	Raffles    []Raffle     `json:"raffles"`
	History    []HistoryLog `json:"history"`
}

// ExportArchive snapshots the ledger in one read and writes it as JSON to
// the archive store under ArchivePrefix.
func (s *Service) ExportArchive(ctx context.Context) (blobcore.Info, error) {
	var info blobcore.Info
	err := s.run(ctx, opExportArchive, func(ctx context.Context) (string, error) {
		if s.archives == nil {
			return "", ErrArchiveUnavailable
		}
		archive := Archive{ExportedAt: s.now()}
		if err := s.store.View(ctx, func(view TransactionView) error {
			archive.Raffles = view.ListRaffles()
			archive.History = view.ListHistory()
			return nil
		}); err != nil {
			return "", err
		}
		payload, err := json.MarshalIndent(archive, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode archive: %w", err)
		}
		key := ArchiveKey(archive.ExportedAt)
		info, err = s.archives.Put(ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
			ContentType: "application/json",
			Metadata: map[string]string{
				"raffles": strconv.Itoa(len(archive.Raffles)),
				"history": strconv.Itoa(len(archive.History)),
			},
		})
		return key, err
	})
	if err != nil {
		return blobcore.Info{}, err
	}
	s.logger.Info("ledger archive written", "key", info.Key, "size_bytes", info.Size, "driver", s.archives.Driver())
	return info, nil
}

// ArchiveKey names the archive taken at ts.
func ArchiveKey(ts time.Time) string {
	return ArchivePrefix + ts.UTC().Format("20060102T150405.000Z") + ".json"
}

// ListArchives returns previously exported archives ordered by key.
func (s *Service) ListArchives(ctx context.Context) ([]blobcore.Info, error) {
	if s.archives == nil {
		return nil, ErrArchiveUnavailable
	}
	return s.archives.List(ctx, ArchivePrefix)
}

// OpenArchive returns a reader over one archive; the caller closes it.
func (s *Service) OpenArchive(ctx context.Context, key string) (blobcore.Info, io.ReadCloser, error) {
	if s.archives == nil {
		return blobcore.Info{}, nil, ErrArchiveUnavailable
	}
	if !strings.HasPrefix(key, ArchivePrefix) {
		key = ArchivePrefix + key
	}
	return s.archives.Get(ctx, key)
}
