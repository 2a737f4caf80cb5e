// Package snapshot implements the versioned binary "SMEE" on-disk
// format: a self-describing serialization of the tokenizer
// output, bitmap index, dense proxy arrays, and the precomputed necessity
// cache. Save is atomic (write to a temp path, then rename); Load is
// strictly version-checked and refuses to operate on a mismatch.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/pable/smeecher/internal/bitmapidx"
	"github.com/pable/smeecher/internal/engine"
)

const (
	magic   = "SMEE"
	version = uint32(3)
)

// VersionMismatchError is returned by Load when the file's version header
// does not match the version this build expects; it is always fatal.
type VersionMismatchError struct {
	Observed uint32
	Expected uint32
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("snapshot version mismatch: observed %d, expected %d (rebuild required)", e.Observed, e.Expected)
}

// CorruptError wraps an I/O or structural decode failure; it is fatal
// and the caller should rebuild the snapshot.
type CorruptError struct{ Err error }

func (e *CorruptError) Error() string { return fmt.Sprintf("snapshot corrupt: %v", e.Err) }
func (e *CorruptError) Unwrap() error { return e.Err }

// Save atomically writes eng to path: the snapshot is first written to
// path+".tmp" and then renamed into place, so a reader never observes a
// partially-written file.
func Save(eng *engine.Engine, path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	if err := writeAll(w, eng); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// Load reads and strictly validates a snapshot file, returning a
// fully-populated read-only Engine.
func Load(path string) (*engine.Engine, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReaderSize(f, 1<<20)
	eng, err := readAll(r)
	if err != nil {
		if _, ok := err.(*VersionMismatchError); ok {
			return nil, err
		}
		return nil, &CorruptError{Err: err}
	}
	return eng, nil
}

func writeAll(w io.Writer, eng *engine.Engine) error {
	if _, err := io.WriteString(w, magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, version); err != nil {
		return err
	}

	nPlace := uint64(eng.Arrays.Len())
	nTokens := uint64(len(eng.Index.IDToToken))
	if err := binary.Write(w, binary.LittleEndian, nPlace); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, nTokens); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(eng.TotalMatch)); err != nil {
		return err
	}

	for _, s := range [][]any{
		{eng.Arrays.Placement},
		{eng.Arrays.ItemCount},
		{eng.Arrays.ComponentCount},
		{eng.Arrays.CompletedItemCount},
		{eng.Arrays.UnitCount},
		{eng.Arrays.TwoStarCount},
		{eng.Arrays.ThreeStarCount},
		{eng.Arrays.UnitGoldValue},
	} {
		if err := binary.Write(w, binary.LittleEndian, s[0]); err != nil {
			return err
		}
	}

	if err := writeBitmap(w, eng.Index.AllPlayers); err != nil {
		return err
	}

	for _, tok := range eng.Index.IDToToken {
		if err := writeShortString(w, tok); err != nil {
			return err
		}
	}
	for _, label := range eng.Labels {
		if err := writeShortString(w, label); err != nil {
			return err
		}
	}
	for _, stats := range eng.Index.Stats {
		if err := writeBitmap(w, stats.Bitmap); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, stats.PlacementSum); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, stats.Count); err != nil {
			return err
		}
	}

	nc := eng.Necessity
	if nc == nil {
		nc = engine.NewNecessityCache(int(nTokens))
	}
	for _, arr := range [][]float32{nc.Tau, nc.CiLo, nc.CiHi, nc.Se, nc.RawTau, nc.FracTrimmed, nc.EP01, nc.EP99} {
		if err := binary.Write(w, binary.LittleEndian, arr); err != nil {
			return err
		}
	}
	for _, arr := range [][]int32{nc.NTreated, nc.NControl, nc.NUsed} {
		if err := binary.Write(w, binary.LittleEndian, arr); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, nc.ScopeMinStar)
}

func readAll(r io.Reader) (*engine.Engine, error) {
	magicBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magicBuf) != magic {
		return nil, fmt.Errorf("bad magic %q", magicBuf)
	}
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if v != version {
		return nil, &VersionMismatchError{Observed: v, Expected: version}
	}

	var nPlace, nTokens, totalMatch uint64
	if err := binary.Read(r, binary.LittleEndian, &nPlace); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &nTokens); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &totalMatch); err != nil {
		return nil, err
	}

	eng := engine.New()
	eng.TotalMatch = int64(totalMatch)
	a := eng.Arrays
	a.Placement = make([]int8, nPlace)
	if err := binary.Read(r, binary.LittleEndian, a.Placement); err != nil {
		return nil, err
	}
	int16Fields := []*[]int16{&a.ItemCount, &a.ComponentCount, &a.CompletedItemCount, &a.UnitCount, &a.TwoStarCount, &a.ThreeStarCount}
	for _, f := range int16Fields {
		*f = make([]int16, nPlace)
		if err := binary.Read(r, binary.LittleEndian, *f); err != nil {
			return nil, err
		}
	}
	a.UnitGoldValue = make([]int32, nPlace)
	if err := binary.Read(r, binary.LittleEndian, a.UnitGoldValue); err != nil {
		return nil, err
	}

	allPlayers, err := readBitmap(r)
	if err != nil {
		return nil, err
	}
	eng.Index.AllPlayers = allPlayers

	eng.Index.IDToToken = make([]string, nTokens)
	eng.Index.TokenToID = make(map[string]int32, nTokens)
	for i := uint64(0); i < nTokens; i++ {
		s, err := readShortString(r)
		if err != nil {
			return nil, err
		}
		eng.Index.IDToToken[i] = s
		eng.Index.TokenToID[s] = int32(i)
	}
	eng.Labels = make([]string, nTokens)
	for i := uint64(0); i < nTokens; i++ {
		s, err := readShortString(r)
		if err != nil {
			return nil, err
		}
		eng.Labels[i] = s
	}
	eng.Index.Stats = make([]bitmapidx.TokenStats, nTokens)
	for i := uint64(0); i < nTokens; i++ {
		bm, err := readBitmap(r)
		if err != nil {
			return nil, err
		}
		var psum int64
		var count int32
		if err := binary.Read(r, binary.LittleEndian, &psum); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		eng.Index.Stats[i] = bitmapidx.TokenStats{Bitmap: bm, PlacementSum: psum, Count: count}
	}

	nc := engine.NewNecessityCache(int(nTokens))
	for _, arr := range [][]float32{nc.Tau, nc.CiLo, nc.CiHi, nc.Se, nc.RawTau, nc.FracTrimmed, nc.EP01, nc.EP99} {
		if err := binary.Read(r, binary.LittleEndian, arr); err != nil {
			return nil, err
		}
	}
	for _, arr := range [][]int32{nc.NTreated, nc.NControl, nc.NUsed} {
		if err := binary.Read(r, binary.LittleEndian, arr); err != nil {
			return nil, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, nc.ScopeMinStar); err != nil {
		return nil, err
	}
	eng.Necessity = nc

	return eng, nil
}

func writeShortString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long for short-string encoding: %d bytes", len(s))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readShortString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeBitmap(w io.Writer, bm *roaring.Bitmap) error {
	if bm == nil || bm.IsEmpty() {
		return binary.Write(w, binary.LittleEndian, uint32(0))
	}
	buf, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("serialize bitmap: %w", err)
	}
	if len(buf) > math.MaxUint32 {
		return fmt.Errorf("bitmap too large to serialize: %d bytes", len(buf))
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(buf))); err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

func readBitmap(r io.Reader) (*roaring.Bitmap, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	bm := roaring.New()
	if n == 0 {
		return bm, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if err := bm.UnmarshalBinary(buf); err != nil {
		return nil, fmt.Errorf("unmarshal bitmap: %w", err)
	}
	return bm, nil
}
