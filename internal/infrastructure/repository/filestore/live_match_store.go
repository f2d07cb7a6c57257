package filestore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/riskibarqy/livefeed-updater/internal/domain/livematch"
	"github.com/riskibarqy/livefeed-updater/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
)

var _ livematch.Repository = (*LiveMatchStore)(nil)

// Sorted keys keep the document byte-stable for identical databases.
var storeJSON = sonic.Config{
	SortMapKeys:    true,
	ValidateString: true,
}.Froze()

// LiveMatchStore keeps the live database in one JSON document. Writes go
// to a temp file in the same directory and replace the target by rename, so
// readers only ever see a complete previous or next version.
type LiveMatchStore struct {
	path   string
	logger *logging.Logger
	now    func() time.Time

	beforeRename func(tmpPath string) error
}

func NewLiveMatchStore(path string, logger *logging.Logger) *LiveMatchStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveMatchStore{
		path:   filepath.Clean(path),
		logger: logger,
		now:    time.Now,
	}
}

func (s *LiveMatchStore) Path() string {
	return s.path
}

// ErrCorruptDatabase marks a stored document that cannot be decoded.
var ErrCorruptDatabase = crerr.New("live database is corrupt")

// Load returns the stored database. A missing or empty file is an empty
// database. An unparseable file is moved aside and also yields an empty
// database.
func (s *LiveMatchStore) Load(ctx context.Context) (livematch.Database, error) {
	db, err := s.read()
	if crerr.Is(err, ErrCorruptDatabase) {
		s.quarantine(ctx, err)
		return livematch.Database{}, nil
	}
	return db, err
}

// Snapshot reads the stored database without touching the file. A corrupt
// document is reported as ErrCorruptDatabase and left in place.
func (s *LiveMatchStore) Snapshot(_ context.Context) (livematch.Database, error) {
	return s.read()
}

func (s *LiveMatchStore) read() (livematch.Database, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return livematch.Database{}, nil
		}
		return nil, crerr.Wrapf(err, "read live database %s", s.path)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return livematch.Database{}, nil
	}

	var db livematch.Database
	if err := storeJSON.Unmarshal(raw, &db); err != nil {
		return nil, crerr.Mark(crerr.Wrapf(err, "decode live database %s", s.path), ErrCorruptDatabase)
	}
	if db == nil {
		db = livematch.Database{}
	}

	for key, record := range db {
		if strings.TrimSpace(record.MatchID) == "" {
			record.MatchID = key
			db[key] = record
		}
	}
	return db, nil
}

func (s *LiveMatchStore) quarantine(ctx context.Context, decodeErr error) {
	target := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	if err := os.Rename(s.path, target); err != nil {
		s.logger.ErrorContext(ctx, "live database is corrupt and could not be moved aside",
			"path", s.path,
			"decode_error", decodeErr,
			"error", err,
		)
		return
	}
	s.logger.WarnContext(ctx, "live database is corrupt, moved aside and starting empty",
		"path", s.path,
		"quarantined_to", target,
		"error", decodeErr,
	)
}

// Persist atomically replaces the stored document with db.
func (s *LiveMatchStore) Persist(ctx context.Context, db livematch.Database) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db == nil {
		db = livematch.Database{}
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	enc := storeJSON.NewEncoder(buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(db); err != nil {
		return crerr.Wrap(err, "encode live database")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return crerr.Wrapf(err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return crerr.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(buf.B); err != nil {
		_ = tmp.Close()
		return crerr.Wrap(err, "write temp file")
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return crerr.Wrap(err, "chmod temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return crerr.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return crerr.Wrap(err, "close temp file")
	}

	if s.beforeRename != nil {
		if err := s.beforeRename(tmpPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return crerr.Wrapf(err, "replace %s", s.path)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		s.logger.DebugContext(ctx, "directory sync after rename failed", "dir", dir, "error", err)
	}
	return nil
}

func syncDir(dir string) error {
	handle, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer handle.Close()
	return handle.Sync()
}
