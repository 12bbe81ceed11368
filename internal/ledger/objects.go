package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/morozRed/unitsmith/internal/fileutil"
)

const objectExt = ".zst"

var (
	errObjectMissing = errors.New("stored copy is missing")
	errObjectCorrupt = errors.New("stored copy does not match its recorded hash")
)

// objectPool stores zstd-compressed file contents addressed by the sha256
// of the uncompressed bytes.
type objectPool struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newObjectPool(dir string) (*objectPool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &objectPool{dir: dir, encoder: encoder, decoder: decoder}, nil
}

func (p *objectPool) close() {
	p.encoder.Close()
	p.decoder.Close()
}

func (p *objectPool) path(hash string) string {
	prefix := "00"
	if len(hash) >= 2 {
		prefix = hash[:2]
	}
	return filepath.Join(p.dir, prefix, hash+objectExt)
}

// put stores data and returns its hash. An existing object is reused only
// when it still decodes to the same content.
func (p *objectPool) put(data []byte) (string, error) {
	hash := fileutil.HashBytes(data)
	if _, err := p.get(hash); err == nil {
		return hash, nil
	}
	path := p.path(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	compressed := p.encoder.EncodeAll(data, nil)
	if err := fileutil.WriteAtomic(path, compressed, 0o644); err != nil {
		return "", err
	}
	return hash, nil
}

// get returns the verified content for hash.
func (p *objectPool) get(hash string) ([]byte, error) {
	compressed, err := os.ReadFile(p.path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errObjectMissing
	}
	if err != nil {
		return nil, err
	}
	data, err := p.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errObjectCorrupt, err)
	}
	if fileutil.HashBytes(data) != hash {
		return nil, errObjectCorrupt
	}
	return data, nil
}

func (p *objectPool) exists(hash string) bool {
	_, err := os.Stat(p.path(hash))
	return err == nil
}

func (p *objectPool) remove(hash string) (int64, error) {
	path := p.path(hash)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	if err := os.Remove(path); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// walk lists stored hashes and leftover temporary files.
func (p *objectPool) walk() (hashes []string, temps []string, err error) {
	err = filepath.WalkDir(p.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasPrefix(name, fileutil.TempPrefix):
			temps = append(temps, path)
		case strings.HasSuffix(name, objectExt):
			hashes = append(hashes, strings.TrimSuffix(name, objectExt))
		}
		return nil
	})
	return hashes, temps, err
}
