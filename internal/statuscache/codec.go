// Package statuscache persists completed status reports and decides
// whether a persisted report can still serve a later request. The codec
// stores the report next to the provenance that produced it; the
// validator, wait policy and filters turn that provenance into a reuse
// decision.
package statuscache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/treestat/treestat/internal/models"
)

// FormatVersion tags the artifact layout. Bump on any wire change.
const FormatVersion uint32 = 1

const (
	headerLen  = 12 // magic + version
	trailerLen = 8  // crc + sentinel
	// Smallest possible entry: kind byte, three empty u16 strings,
	// mode, empty u32 diff.
	minEntryLen = 15
)

var (
	artifactMagic    = []byte("TSTATCHE")
	artifactSentinel = []byte("TSND")
)

// Provenance records how a cached report was produced. Identity is
// compared by exact token equality, never by ordering.
type Provenance struct {
	Identity models.IndexIdentity
	Config   models.ReportingConfig
	Root     string
}

// DecodeErrorKind separates "wrong format generation" from "broken
// bytes"; callers route the two differently.
type DecodeErrorKind int

const (
	DecodeCorrupt DecodeErrorKind = iota + 1
	DecodeVersionMismatch
)

// DecodeError is the only error Decode returns.
type DecodeError struct {
	Kind   DecodeErrorKind
	Detail string
	Got    uint32
	Want   uint32
}

func (e *DecodeError) Error() string {
	if e.Kind == DecodeVersionMismatch {
		return fmt.Sprintf("status cache: format version %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("status cache: corrupt artifact: %s", e.Detail)
}

func corrupt(format string, args ...any) *DecodeError {
	return &DecodeError{Kind: DecodeCorrupt, Detail: fmt.Sprintf(format, args...)}
}

// Encode serializes a report with its provenance. The layout is
// big-endian: magic, version, provenance, report, crc trailer.
func Encode(report *models.StatusReport, prov Provenance) ([]byte, error) {
	w := &wireWriter{}
	w.raw(artifactMagic)
	w.u32(FormatVersion)

	w.i64(prov.Identity.Size)
	w.i64(prov.Identity.MTimeNS)
	w.u64(prov.Identity.Ino)
	w.u64(prov.Identity.Dev)
	w.u8(uint8(prov.Config.Untracked))
	w.u8(uint8(prov.Config.Ignored))
	w.u8(configFlags(prov.Config))
	if len(prov.Config.PathScope) > math.MaxUint16 {
		return nil, fmt.Errorf("status cache: %d scope prefixes will not encode", len(prov.Config.PathScope))
	}
	w.u16(uint16(len(prov.Config.PathScope)))
	for _, s := range prov.Config.PathScope {
		w.str(s)
	}
	w.str(prov.Root)

	w.i64(report.GeneratedAt.UnixNano())
	if report.Branch != nil {
		w.u8(1)
		w.str(report.Branch.Label)
		w.str(report.Branch.Upstream)
		w.u32(uint32(report.Branch.Ahead))  // #nosec G115 -- counts are small and non-negative
		w.u32(uint32(report.Branch.Behind)) // #nosec G115 -- counts are small and non-negative
		w.bool(report.Branch.HasAheadBehind)
	} else {
		w.u8(0)
	}
	w.bool(report.HasConflicts)

	w.u32(uint32(len(report.Entries))) // #nosec G115 -- entry counts stay far below 2^32
	for i := range report.Entries {
		e := &report.Entries[i]
		w.u8(uint8(e.Kind))
		w.str(e.Path)
		w.str(e.OldOID)
		w.str(e.NewOID)
		w.u32(e.Mode)
		w.blob(e.Diff)
	}
	if w.err != nil {
		return nil, w.err
	}

	body := w.buf.Bytes()
	out := make([]byte, 0, len(body)+trailerLen)
	out = append(out, body...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(body))
	out = append(out, artifactSentinel...)
	return out, nil
}

// Decode parses an artifact back into a report and its provenance. The
// version tag is judged before anything else; all structural damage
// comes back as DecodeCorrupt, never a panic.
func Decode(data []byte) (*models.StatusReport, Provenance, error) {
	var prov Provenance
	if len(data) < headerLen+trailerLen {
		return nil, prov, corrupt("%d bytes is too short", len(data))
	}
	if !bytes.Equal(data[:len(artifactMagic)], artifactMagic) {
		return nil, prov, corrupt("bad magic")
	}
	version := binary.BigEndian.Uint32(data[len(artifactMagic):headerLen])
	if version != FormatVersion {
		return nil, prov, &DecodeError{Kind: DecodeVersionMismatch, Got: version, Want: FormatVersion}
	}
	body, tail := data[:len(data)-trailerLen], data[len(data)-trailerLen:]
	if !bytes.Equal(tail[4:], artifactSentinel) {
		return nil, prov, corrupt("missing trailer sentinel")
	}
	if got, want := binary.BigEndian.Uint32(tail[:4]), crc32.ChecksumIEEE(body); got != want {
		return nil, prov, corrupt("checksum mismatch")
	}

	r := &wireReader{buf: body, off: headerLen}
	prov.Identity.Size = r.i64()
	prov.Identity.MTimeNS = r.i64()
	prov.Identity.Ino = r.u64()
	prov.Identity.Dev = r.u64()
	prov.Config.Untracked = models.UntrackedMode(r.u8())
	prov.Config.Ignored = models.IgnoredMode(r.u8())
	flags := r.u8()
	prov.Config.Verbose = flags&flagVerbose != 0
	prov.Config.WantAheadBehind = flags&flagAheadBehind != 0
	prov.Config.SkipNestedRoots = flags&flagSkipNested != 0
	nScope := int(r.u16())
	for i := 0; i < nScope && r.err == nil; i++ {
		prov.Config.PathScope = append(prov.Config.PathScope, r.str())
	}
	prov.Root = r.str()
	if r.err == nil {
		if prov.Config.Untracked > models.UntrackedComplete {
			r.fail("untracked mode %d out of range", prov.Config.Untracked)
		} else if prov.Config.Ignored > models.IgnoredMatching {
			r.fail("ignored mode %d out of range", prov.Config.Ignored)
		}
	}

	report := &models.StatusReport{Root: prov.Root}
	report.GeneratedAt = time.Unix(0, r.i64())
	if r.u8() != 0 {
		br := &models.BranchSummary{}
		br.Label = r.str()
		br.Upstream = r.str()
		br.Ahead = int(r.u32())
		br.Behind = int(r.u32())
		br.HasAheadBehind = r.bool()
		report.Branch = br
	}
	report.HasConflicts = r.bool()

	count := int(r.u32())
	if r.err == nil && count*minEntryLen > len(body)-r.off {
		r.fail("entry count %d exceeds payload", count)
	}
	if r.err == nil && count > 0 {
		report.Entries = make([]models.StatusEntry, 0, count)
	}
	for i := 0; i < count && r.err == nil; i++ {
		var e models.StatusEntry
		kind := r.u8()
		if kind < uint8(models.KindModified) || kind > uint8(models.KindUnmerged) {
			r.fail("entry %d: kind %d out of range", i, kind)
			break
		}
		e.Kind = models.EntryKind(kind)
		e.Path = r.str()
		e.OldOID = r.str()
		e.NewOID = r.str()
		e.Mode = r.u32()
		e.Diff = r.blob()
		report.Entries = append(report.Entries, e)
	}
	if r.err != nil {
		return nil, Provenance{}, r.err
	}
	if r.off != len(body) {
		return nil, Provenance{}, corrupt("%d trailing bytes", len(body)-r.off)
	}
	return report, prov, nil
}

// WriteFile encodes and persists atomically: a concurrent reader sees
// either the previous artifact or the complete new one, nothing between.
func WriteFile(path string, report *models.StatusReport, prov Provenance) error {
	data, err := Encode(report, prov)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("status cache: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("status cache: %w", err)
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, 0o600)
	}
	if werr == nil {
		werr = os.Rename(tmpName, path)
	}
	if werr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("status cache: write %s: %w", path, werr)
	}
	return nil
}

// ReadFile loads and decodes an artifact.
func ReadFile(path string) (*models.StatusReport, Provenance, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- cache path is caller-chosen configuration
	if err != nil {
		return nil, Provenance{}, err
	}
	return Decode(data)
}

const (
	flagVerbose     = 1 << 0
	flagAheadBehind = 1 << 1
	flagSkipNested  = 1 << 2
)

func configFlags(cfg models.ReportingConfig) uint8 {
	var f uint8
	if cfg.Verbose {
		f |= flagVerbose
	}
	if cfg.WantAheadBehind {
		f |= flagAheadBehind
	}
	if cfg.SkipNestedRoots {
		f |= flagSkipNested
	}
	return f
}

type wireWriter struct {
	buf bytes.Buffer
	err error
}

func (w *wireWriter) raw(b []byte) { w.buf.Write(b) }
func (w *wireWriter) u8(v uint8)   { w.buf.WriteByte(v) }

func (w *wireWriter) u16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *wireWriter) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *wireWriter) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *wireWriter) i64(v int64) { w.u64(uint64(v)) } // #nosec G115 -- two's complement round trip

func (w *wireWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *wireWriter) str(s string) {
	if len(s) > math.MaxUint16 {
		if w.err == nil {
			w.err = fmt.Errorf("status cache: string of %d bytes will not encode", len(s))
		}
		return
	}
	w.u16(uint16(len(s)))
	w.buf.WriteString(s)
}

func (w *wireWriter) blob(s string) {
	w.u32(uint32(len(s))) // #nosec G115 -- diff text stays far below 2^32
	w.buf.WriteString(s)
}

type wireReader struct {
	buf []byte
	off int
	err *DecodeError
}

func (r *wireReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = corrupt(format, args...)
	}
}

func (r *wireReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("truncated at offset %d", r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *wireReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *wireReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *wireReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *wireReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *wireReader) i64() int64 { return int64(r.u64()) } // #nosec G115 -- two's complement round trip

func (r *wireReader) bool() bool { return r.u8() != 0 }

func (r *wireReader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *wireReader) blob() string {
	n := r.u32()
	if r.err == nil && int(n) > len(r.buf)-r.off {
		r.fail("blob of %d bytes exceeds payload", n)
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
