package IO

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// ShardName returns the data and index file names of one shard.
func ShardName(outPrefix string, shard int) (bin, idx string) {
	return fmt.Sprintf("%s-%03d.bin", outPrefix, shard), fmt.Sprintf("%s-%03d.idx", outPrefix, shard)
}

type shardWriter struct {
	dataF, idxF *os.File
	wData, wIdx *bufio.Writer
	cur         int64
}

func openShard(outPrefix string, shard int) (*shardWriter, error) {
	bin, idx := ShardName(outPrefix, shard)
	dataF, err := os.Create(bin)
	if err != nil {
		return nil, err
	}
	idxF, err := os.Create(idx)
	if err != nil {
		dataF.Close()
		return nil, err
	}
	return &shardWriter{
		dataF: dataF,
		idxF:  idxF,
		wData: bufio.NewWriter(dataF),
		wIdx:  bufio.NewWriter(idxF),
	}, nil
}

func (s *shardWriter) write(ids []int) error {
	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)

	// offset + length to idx
	binary.LittleEndian.PutUint64(buf8, uint64(s.cur))
	if _, err := s.wIdx.Write(buf8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf8, uint64(len(ids)))
	if _, err := s.wIdx.Write(buf8); err != nil {
		return err
	}

	for _, id := range ids {
		binary.LittleEndian.PutUint32(buf4, uint32(int32(id)))
		if _, err := s.wData.Write(buf4); err != nil {
			return err
		}
	}
	s.cur += int64(4 * len(ids))
	return nil
}

func (s *shardWriter) close() error {
	errs := []error{s.wData.Flush(), s.wIdx.Flush(), s.dataF.Close(), s.idxF.Close()}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ExportTokenIDsBinary tokenizes inPath line by line and writes the ids as
// shards no larger than maxShardBytes (a sequence is never split):
//
//   - <prefix>-NNN.bin = concatenated int32 token sequences
//   - <prefix>-NNN.idx = uint64 (offset, length) pairs, one per sequence
//
// Blank lines are skipped. It returns the number of sequences written.
func ExportTokenIDsBinary(ctx context.Context, tok Tokenizer, inPath, outPrefix string, maxShardBytes int64) (int, error) {
	if tok == nil {
		return 0, fmt.Errorf("export: tokenizer is not initialized")
	}
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()
	reader := bufio.NewReaderSize(inF, 1<<20)

	shard := 0
	w, err := openShard(outPrefix, shard)
	if err != nil {
		return 0, err
	}
	defer func() {
		if w != nil {
			w.close()
		}
	}()

	n := 0
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return n, readErr
		}
		if text := strings.TrimSpace(line); text != "" {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			ids, err := tok.Encode(text)
			if err != nil {
				return n, fmt.Errorf("%s line %d: %w", inPath, n+1, err)
			}
			if w.cur > 0 && w.cur+int64(4*len(ids)) > maxShardBytes {
				if err := w.close(); err != nil {
					w = nil
					return n, err
				}
				shard++
				if w, err = openShard(outPrefix, shard); err != nil {
					return n, err
				}
			}
			if err := w.write(ids); err != nil {
				return n, err
			}
			n++
		}
		if readErr == io.EOF {
			break
		}
	}
	err = w.close()
	w = nil
	return n, err
}

// ReadTokenIDShard loads every sequence of one shard written by
// ExportTokenIDsBinary.
func ReadTokenIDShard(outPrefix string, shard int) ([][]int, error) {
	bin, idx := ShardName(outPrefix, shard)
	data, err := os.ReadFile(bin)
	if err != nil {
		return nil, err
	}
	index, err := os.ReadFile(idx)
	if err != nil {
		return nil, err
	}
	if len(index)%16 != 0 {
		return nil, fmt.Errorf("%s: truncated index (%d bytes)", idx, len(index))
	}
	out := make([][]int, 0, len(index)/16)
	for p := 0; p < len(index); p += 16 {
		off := int64(binary.LittleEndian.Uint64(index[p:]))
		n := int64(binary.LittleEndian.Uint64(index[p+8:]))
		if off < 0 || n < 0 || off+4*n > int64(len(data)) {
			return nil, fmt.Errorf("%s: entry %d points outside %s", idx, p/16, bin)
		}
		ids := make([]int, n)
		for i := range ids {
			ids[i] = int(int32(binary.LittleEndian.Uint32(data[off+int64(4*i):])))
		}
		out = append(out, ids)
	}
	return out, nil
}
