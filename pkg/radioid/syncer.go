// Package radioid keeps the DMR user table in step with the RadioID.net
// CSV export.
package radioid

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/database"
	"github.com/dbehnke/ysf-gateway/pkg/logger"
)

const (
	// DefaultURL is the RadioID user export
	DefaultURL = "https://radioid.net/static/user.csv"
	// DefaultInterval is the time between downloads
	DefaultInterval = 24 * time.Hour
	// BatchSize for database upserts
	BatchSize = 1000
)

// UserWriter is the part of the user repository the syncer writes to
type UserWriter interface {
	UpsertBatch(users []database.DMRUser, batchSize int) error
	Count() (int64, error)
}

// Config selects the source and cadence of the sync
type Config struct {
	URL      string
	Interval time.Duration
}

// Syncer downloads the RadioID user list into the database
type Syncer struct {
	repo     UserWriter
	url      string
	interval time.Duration
	logger   *logger.Logger
	client   *http.Client
}

// NewSyncer creates a syncer; zero config fields take the defaults
func NewSyncer(cfg Config, repo UserWriter, log *logger.Logger) *Syncer {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Syncer{
		repo:     repo,
		url:      cfg.URL,
		interval: cfg.Interval,
		logger:   log.WithComponent("radioid"),
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Start syncs once, then on every interval until ctx is done
func (s *Syncer) Start(ctx context.Context) {
	if err := s.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("RadioID sync failed", logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("RadioID syncer stopped")
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("RadioID sync failed", logger.Error(err))
			}
		}
	}
}

// Sync downloads the export and upserts every valid row
func (s *Syncer) Sync(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("Downloading RadioID database", logger.String("url", s.url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download database: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	users, err := s.parseCSV(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to parse CSV: %w", err)
	}
	if err := s.repo.UpsertBatch(users, BatchSize); err != nil {
		return fmt.Errorf("failed to save users: %w", err)
	}

	count, _ := s.repo.Count()
	s.logger.Info("RadioID database sync complete",
		logger.Int("parsed", len(users)),
		logger.Int64("total_users", count),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// parseCSV reads RADIO_ID,CALLSIGN,FIRST_NAME,LAST_NAME,CITY,STATE,COUNTRY
// rows after a header line. Short rows and bad IDs are skipped.
func (s *Syncer) parseCSV(r io.Reader) ([]database.DMRUser, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	now := time.Now()
	var users []database.DMRUser
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Debug("Skipping CSV line", logger.Int("line", line), logger.Error(err))
			continue
		}
		if len(record) < 7 {
			continue
		}
		radioID, err := strconv.ParseUint(strings.TrimSpace(record[0]), 10, 32)
		if err != nil {
			continue
		}
		users = append(users, database.DMRUser{
			RadioID:   uint32(radioID),
			Callsign:  strings.ToUpper(strings.TrimSpace(record[1])),
			FirstName: record[2],
			LastName:  record[3],
			City:      record[4],
			State:     record[5],
			Country:   record[6],
			UpdatedAt: now,
		})
	}
	return users, nil
}
