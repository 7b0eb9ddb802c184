package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	fileMagic   = 0x49585443 // "CTXI"
	fileVersion = 1

	currentFileName = "CURRENT"
	headerSize      = 12
	trailerSize     = 4
)

var errCorrupt = errors.New("index file corrupt")

// File layout:
//
//	magic (4) | format version (4) | payload length (4) | zstd payload | crc32 of payload (4)
//
// Decompressed payload:
//
//	version (8) | ctime (8) | dim (4) | count (4) | model name | count * (path | dim * float32)
//
// Strings are a uint32 length followed by bytes. Integers are little endian.
func encodeSnapshot(s *snapshot) ([]byte, error) {
	raw := make([]byte, 0, 32+len(s.info.ModelName)+len(s.paths)*(s.info.Dim*4+64))
	raw = binary.LittleEndian.AppendUint64(raw, s.info.Version)
	raw = binary.LittleEndian.AppendUint64(raw, uint64(s.info.Ctime))
	raw = binary.LittleEndian.AppendUint32(raw, uint32(s.info.Dim))
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(s.paths)))
	raw = appendString(raw, s.info.ModelName)
	for i, path := range s.paths {
		raw = appendString(raw, path)
		for _, v := range s.vectors[i] {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	payload := enc.EncodeAll(raw, nil)

	out := make([]byte, 0, headerSize+len(payload)+trailerSize)
	out = binary.LittleEndian.AppendUint32(out, fileMagic)
	out = binary.LittleEndian.AppendUint32(out, fileVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(payload))
	return out, nil
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("short file: %w", errCorrupt)
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != fileMagic {
		return nil, fmt.Errorf("invalid magic %x: %w", magic, errCorrupt)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != fileVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	length := int(binary.LittleEndian.Uint32(data[8:12]))
	if len(data) != headerSize+length+trailerSize {
		return nil, fmt.Errorf("length mismatch: %w", errCorrupt)
	}
	payload := data[headerSize : headerSize+length]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(data[headerSize+length:]) {
		return nil, fmt.Errorf("checksum mismatch: %w", errCorrupt)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	r := &reader{buf: raw}
	s := &snapshot{}
	s.info.Version = r.uint64()
	s.info.Ctime = int64(r.uint64())
	s.info.Dim = int(r.uint32())
	count := int(r.uint32())
	s.info.ModelName = r.string()
	s.info.Count = count
	if r.err != nil {
		return nil, r.err
	}
	s.paths = make([]string, 0, count)
	s.vectors = make([][]float32, 0, count)
	for i := 0; i < count; i++ {
		s.paths = append(s.paths, r.string())
		vec := make([]float32, s.info.Dim)
		for j := range vec {
			vec[j] = math.Float32frombits(r.uint32())
		}
		s.vectors = append(s.vectors, vec)
	}
	if r.err != nil {
		return nil, r.err
	}
	s.prepare()
	return s, nil
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}

type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("truncated payload: %w", errCorrupt)
		return nil
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *reader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) string() string {
	n := int(r.uint32())
	return string(r.take(n))
}

func fileName(version uint64) string {
	return fmt.Sprintf("INDEX-%06d.bin", version)
}

// writeFileAtomic writes data to dir/name through a synced temp file and
// a rename, then syncs the directory.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
