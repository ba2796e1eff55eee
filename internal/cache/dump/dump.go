package dump

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Borislavv/go-ash-perf/config"
	"github.com/Borislavv/go-ash-perf/internal/cache/db/model"
	"github.com/rs/zerolog/log"
)

var (
	ErrDumpNotEnabled = errors.New("persistence mode is not enabled")
	ErrNoDump         = errors.New("no dump found")
	errCorrupted      = errors.New("corrupted dump record")
)

const bufSize = 512 * 1024

// Source is the cache side of a dump: live entries out, restored entries in.
type Source interface {
	Walk(ctx context.Context, fn func(entry *model.Entry) bool)
	Restore(entry *model.Entry) bool
}

type Dumper interface {
	Dump(ctx context.Context) error
	Load(ctx context.Context) error
	LoadVersion(ctx context.Context, v string) error
}

// Dump writes every live entry into <dir>/v<N>/<name>-<timestamp>.dump[.gz].
// Each record is prefixed with its length and, when enabled, a crc32 checksum.
type Dump struct {
	cfg    *config.PersistenceCfg
	source Source
}

func New(cfg *config.PersistenceCfg, source Source) *Dump {
	return &Dump{cfg: cfg, source: source}
}

func (d *Dump) Dump(ctx context.Context) error {
	if !d.cfg.Enabled() {
		return ErrDumpNotEnabled
	}
	start := time.Now()

	versionDir := filepath.Join(d.cfg.Dir, "v"+strconv.Itoa(latestVersion(d.cfg.Dir)+1))
	if err := os.MkdirAll(versionDir, 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}

	ext := ".dump"
	if d.cfg.Gzip {
		ext += ".gz"
	}
	name := filepath.Join(versionDir, fmt.Sprintf("%s-%s%s", d.cfg.Name, start.Format("20060102T150405"), ext))

	written, err := d.write(ctx, name)
	if err != nil {
		_ = os.RemoveAll(versionDir)
		log.Error().Err(err).Str("file", name).Msg("[dump] dumping failed")
		return err
	}

	if d.cfg.MaxVersions > 0 {
		rotateVersionDirs(d.cfg.Dir, d.cfg.MaxVersions)
	}

	log.Info().
		Int("written", written).
		Str("file", name).
		Str("elapsed", time.Since(start).String()).
		Msg("[dump] dumping finished")
	return nil
}

func (d *Dump) write(ctx context.Context, name string) (written int, err error) {
	tmp := name + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create dump file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	var (
		writer io.Writer = f
		gw     *gzip.Writer
	)
	if d.cfg.Gzip {
		gw = gzip.NewWriter(f)
		writer = gw
	}
	bw := bufio.NewWriterSize(writer, bufSize)

	d.source.Walk(ctx, func(e *model.Entry) bool {
		if err = writeRecord(bw, encodeEntry(e), d.cfg.Crc32Control); err != nil {
			return false
		}
		written++
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return 0, err
	}

	if err = bw.Flush(); err != nil {
		return 0, fmt.Errorf("flush dump: %w", err)
	}
	if gw != nil {
		if err = gw.Close(); err != nil {
			return 0, fmt.Errorf("close gzip: %w", err)
		}
	}
	if err = f.Close(); err != nil {
		return 0, fmt.Errorf("close dump file: %w", err)
	}
	if err = os.Rename(tmp, name); err != nil {
		return 0, fmt.Errorf("rename dump file: %w", err)
	}
	return written, nil
}

// Load restores the newest version.
func (d *Dump) Load(ctx context.Context) error {
	if !d.cfg.Enabled() {
		return ErrDumpNotEnabled
	}
	v := latestVersion(d.cfg.Dir)
	if v == 0 {
		return fmt.Errorf("%w in %s", ErrNoDump, d.cfg.Dir)
	}
	return d.load(ctx, filepath.Join(d.cfg.Dir, "v"+strconv.Itoa(v)))
}

// LoadVersion restores a specific version dir, e.g. "v3".
func (d *Dump) LoadVersion(ctx context.Context, v string) error {
	if !d.cfg.Enabled() {
		return ErrDumpNotEnabled
	}
	return d.load(ctx, filepath.Join(d.cfg.Dir, v))
}

func (d *Dump) load(ctx context.Context, dir string) error {
	start := time.Now()

	files, _ := filepath.Glob(filepath.Join(dir, d.cfg.Name+"-*.dump*"))
	files = slices.DeleteFunc(files, func(f string) bool { return strings.HasSuffix(f, ".tmp") })
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", ErrNoDump, dir)
	}
	slices.Sort(files)
	fn := files[len(files)-1]

	restored, skipped, failures, err := d.read(ctx, fn)

	log.Info().
		Int("restored", restored).
		Int("skipped", skipped).
		Int("fails", failures).
		Str("file", fn).
		Str("elapsed", time.Since(start).String()).
		Msg("[dump] restoring finished")

	if err != nil {
		return err
	}
	if failures > 0 {
		return fmt.Errorf("load finished with %d errors", failures)
	}
	return nil
}

func (d *Dump) read(ctx context.Context, fn string) (restored, skipped, failures int, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("open dump: %w", err)
	}
	defer func() { _ = f.Close() }()

	var reader io.Reader = f
	if strings.HasSuffix(fn, ".gz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("open gzip: %w", err)
		}
		defer func() { _ = gzr.Close() }()
		reader = gzr
	}

	br := bufio.NewReaderSize(reader, bufSize)
	for {
		if err = ctx.Err(); err != nil {
			return restored, skipped, failures, err
		}

		buf, err := readRecord(br, d.cfg.Crc32Control)
		if errors.Is(err, io.EOF) {
			return restored, skipped, failures, nil
		}
		if errors.Is(err, errCorrupted) {
			log.Warn().Err(err).Str("file", fn).Msg("[dump] skipping record")
			failures++
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("file", fn).Msg("[dump] read error")
			return restored, skipped, failures + 1, nil
		}

		e, err := decodeEntry(buf)
		if err != nil {
			log.Warn().Err(err).Str("file", fn).Msg("[dump] entry decode error")
			failures++
			continue
		}
		if d.source.Restore(e) {
			restored++
		} else {
			skipped++
		}
	}
}

func writeRecord(w io.Writer, data []byte, withCRC bool) error {
	var crc uint32
	if withCRC {
		crc = crc32.ChecksumIEEE(data)
	}
	var meta [8]byte
	binary.LittleEndian.PutUint32(meta[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(meta[4:8], crc)
	if _, err := w.Write(meta[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readRecord returns io.EOF at a clean end of file and errCorrupted on a checksum mismatch.
func readRecord(r io.Reader, withCRC bool) ([]byte, error) {
	var meta [8]byte
	if _, err := io.ReadFull(r, meta[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, binary.LittleEndian.Uint32(meta[0:4]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	if withCRC && crc32.ChecksumIEEE(buf) != binary.LittleEndian.Uint32(meta[4:8]) {
		return nil, fmt.Errorf("%w: crc mismatch", errCorrupted)
	}
	return buf, nil
}

// encodeEntry layout: keyLen u32 | key | compressed u8 | createdAt i64 | ttl i64 | payload.
func encodeEntry(e *model.Entry) []byte {
	raw, payload := e.Raw(), e.PayloadBytes()
	buf := make([]byte, 0, 4+len(raw)+1+16+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(raw)))
	buf = append(buf, raw...)
	var flag byte
	if e.IsCompressed() {
		flag = 1
	}
	buf = append(buf, flag)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.CreatedAt()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.TTL()))
	return append(buf, payload...)
}

func decodeEntry(buf []byte) (*model.Entry, error) {
	if len(buf) < 4 {
		return nil, errCorrupted
	}
	keyLen := int(binary.LittleEndian.Uint32(buf))
	buf = buf[4:]
	if len(buf) < keyLen+17 {
		return nil, errCorrupted
	}
	raw := string(buf[:keyLen])
	buf = buf[keyLen:]
	compressed := buf[0] == 1
	createdAt := time.Unix(0, int64(binary.LittleEndian.Uint64(buf[1:9])))
	ttl := time.Duration(binary.LittleEndian.Uint64(buf[9:17]))
	payload := append([]byte(nil), buf[17:]...)
	return model.NewEntry(raw, payload, compressed, createdAt, ttl), nil
}

// latestVersion returns the highest v<N> number under baseDir, 0 when none.
func latestVersion(baseDir string) int {
	versions := listVersions(baseDir)
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}

func listVersions(baseDir string) []int {
	entries, _ := filepath.Glob(filepath.Join(baseDir, "v*"))
	var out []int
	for _, dir := range entries {
		v, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "v"))
		if err == nil && v > 0 {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return out
}

// rotateVersionDirs keeps only the newest max version dirs, removes the rest.
func rotateVersionDirs(baseDir string, max int) {
	versions := listVersions(baseDir)
	if len(versions) <= max {
		return
	}
	for _, v := range versions[:len(versions)-max] {
		dir := filepath.Join(baseDir, "v"+strconv.Itoa(v))
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("[dump] failed to remove old dump dir")
			continue
		}
		log.Info().Msgf("[dump] removed old dump dir: %s", dir)
	}
}
