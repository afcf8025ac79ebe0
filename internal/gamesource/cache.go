package gamesource

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
)

// archiveCache stores completed monthly archives as zstd-compressed PGN
// files. Cache faults are logged and treated as misses; the API remains
// the source of truth.
type archiveCache struct {
	dir string
	log zerolog.Logger
}

func (c *archiveCache) path(key string) string {
	return filepath.Join(c.dir, key+".pgn.zst")
}

func (c *archiveCache) read(key string) (string, bool) {
	f, err := os.Open(c.path(key))
	if err != nil {
		return "", false
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return "", false
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return "", false
	}
	c.log.Debug().Str("key", key).Msg("cache hit")
	return string(data), true
}

// write lands the archive via a temp file and rename, so a crash cannot
// leave a truncated entry behind.
func (c *archiveCache) write(key, pgn string) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.log.Warn().Err(err).Msg("cache dir create failed")
		return
	}
	tmp, err := os.CreateTemp(c.dir, key+".tmp-*")
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	defer os.Remove(tmp.Name())

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	if _, err := io.WriteString(enc, pgn); err != nil {
		enc.Close()
		tmp.Close()
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	if err := tmp.Close(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	if err := os.Rename(tmp.Name(), c.path(key)); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	c.log.Debug().Str("key", key).Msg("cache stored")
}
