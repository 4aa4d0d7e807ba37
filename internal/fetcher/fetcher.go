// Package fetcher implements the Indexer's two block-retrieval
// strategies: a bulk strategy that reads raw blocks straight off disk
// during the initial catch-up, and a per-block daemon-RPC strategy
// used for steady-state tailing once the indexer reaches the chain
// tip. internal/indexer owns the transition between them; this
// package only implements each strategy's FetchBlock.
package fetcher

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tapyrus-index/utxoindexd/internal/daemon"
	"github.com/tapyrus-index/utxoindexd/pkg/wire"
)

// Fetcher retrieves a decoded raw block by its hex block hash.
type Fetcher interface {
	FetchBlock(blockhash string) (*wire.Block, error)
}

// RPCFetcher fetches one block at a time via the daemon's getblock
// RPC, decoding the raw hex response with pkg/wire. Used once the
// indexer has caught up to the chain tip.
type RPCFetcher struct {
	Client *daemon.Client
}

func NewRPCFetcher(client *daemon.Client) *RPCFetcher {
	return &RPCFetcher{Client: client}
}

func (f *RPCFetcher) FetchBlock(blockhash string) (*wire.Block, error) {
	rawHex, err := f.Client.Block(blockhash, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch block %s: %w", blockhash, err)
	}
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("decode block hex %s: %w", blockhash, err)
	}
	blk, err := wire.DecodeBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("decode block %s: %w", blockhash, err)
	}
	return blk, nil
}

// BulkFetcher serves blocks out of a local directory of raw block
// files, laid out the way Bitcoin Core's `blocks/blkNNNNN.dat` files
// are: a repeating sequence of (4-byte magic, 4-byte little-endian
// length, raw block bytes). Used for the initial catch-up pass, where
// reading pre-synced files off disk is far cheaper than one RPC round
// trip per block. Every block found is indexed by its computed hash
// up front so FetchBlock is a single map lookup.
type BulkFetcher struct {
	magic  uint32
	byHash map[string][]byte // hex blockhash -> raw block bytes
}

// NewBulkFetcher scans dir for files matching pattern, indexing every
// block they contain by hash.
func NewBulkFetcher(dir string, pattern string, magic uint32) (*BulkFetcher, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob block files: %w", err)
	}
	bf := &BulkFetcher{magic: magic, byHash: make(map[string][]byte)}
	for _, path := range matches {
		if err := bf.indexFile(path); err != nil {
			return nil, fmt.Errorf("index block file %s: %w", path, err)
		}
	}
	return bf, nil
}

func (bf *BulkFetcher) indexFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	off := 0
	for off < len(data) {
		if len(data)-off < 8 {
			break
		}
		magic := binary.LittleEndian.Uint32(data[off : off+4])
		if magic != bf.magic {
			break // trailing padding or corrupt tail; stop at first mismatch
		}
		size := binary.LittleEndian.Uint32(data[off+4 : off+8])
		off += 8
		if uint32(len(data)-off) < size {
			break
		}
		raw := data[off : off+int(size)]
		off += int(size)

		blk, err := wire.DecodeBlock(raw)
		if err != nil {
			continue // skip anything this decoder can't parse
		}
		bf.byHash[blk.Header.Hash().String()] = raw
	}
	return nil
}

func (bf *BulkFetcher) FetchBlock(blockhash string) (*wire.Block, error) {
	raw, ok := bf.byHash[blockhash]
	if !ok {
		return nil, fmt.Errorf("bulk fetcher: block %s not found on disk", blockhash)
	}
	return wire.DecodeBlock(raw)
}

// Len reports how many blocks this BulkFetcher indexed. The Indexer
// logs it when it drops the bulk fetcher after its first pass and
// switches to RPCFetcher.
func (bf *BulkFetcher) Len() int {
	return len(bf.byHash)
}

// Has reports whether blockhash is available from bulk files.
func (bf *BulkFetcher) Has(blockhash string) bool {
	_, ok := bf.byHash[blockhash]
	return ok
}
