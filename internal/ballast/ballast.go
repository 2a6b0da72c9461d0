// Package ballast manages sacrificial disk-space files: provisioning,
// verification, release under pressure, and cooldown-gated replenishment.
// Each pool is guarded by a lock file so concurrent mutation from
// different daemon instances (or a stale crashed process) can't corrupt
// the pool.
package ballast

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/focusd/sbh/internal/model"
	"github.com/focusd/sbh/internal/sbherrors"
)

// headerMagic identifies an SBH ballast file; headerSize is the fixed
// on-disk prefix every ballast file carries regardless of its reserved
// size.
const (
	headerMagic = "SBH_BALLAST_FILE_v1\n"
	headerSize  = 64
)

// Pool manages one mount's ballast files, guarded by a single mutex and a
// per-pool lock file on disk shared across processes.
type Pool struct {
	mu sync.Mutex

	mountID   string
	dir       string
	poolID    uint64
	fileSize  int64
	lockPath  string
	lockFile  *os.File

	files []model.BallastFile

	lastReplenishAttempt time.Time
}

// NewPool constructs a Pool for one mount, with poolID derived from the
// mount id so pool identity survives a daemon restart.
func NewPool(mountID, dir string, poolID uint64, fileSize int64) *Pool {
	return &Pool{
		mountID:  mountID,
		dir:      dir,
		poolID:   poolID,
		fileSize: fileSize,
		lockPath: filepath.Join(dir, fmt.Sprintf(".sbh-ballast-%d.lock", poolID)),
	}
}

// Lock acquires the per-pool lock file, blocking concurrent mutation from
// another process against the same pool directory.
func (p *Pool) Lock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockFile != nil {
		return nil
	}
	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return sbherrors.Wrap(sbherrors.KindBallast, "failed to open pool lock file", err)
	}
	if err := flock(f); err != nil {
		f.Close()
		return sbherrors.Wrap(sbherrors.KindBallast, "failed to acquire pool lock", err)
	}
	p.lockFile = f
	return nil
}

// Unlock releases the pool lock file.
func (p *Pool) Unlock() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockFile == nil {
		return nil
	}
	err := funlock(p.lockFile)
	p.lockFile.Close()
	p.lockFile = nil
	return err
}

func ballastFileName(poolID uint64, index uint32) string {
	return fmt.Sprintf(".sbh-ballast-%d-%d.bin", poolID, index)
}

// Provision creates count files of fileSize bytes, preferring a
// reserve-without-writing syscall and falling back to pseudo-random
// content writes on filesystems where that syscall defeats deduplication
// via reflink (copy-on-write filesystems return ENOTSUP/EOPNOTSUPP).
func (p *Pool) Provision(count int) ([]model.BallastFile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	created := make([]model.BallastFile, 0, count)
	idx := p.nextFreeIndexLocked()

	for i := 0; i < count; i++ {
		bf, err := p.createFileLocked(idx)
		if err != nil {
			return created, sbherrors.Wrap(sbherrors.KindBallast, "provision failed for "+bf.Path, err)
		}
		p.files = append(p.files, bf)
		created = append(created, bf)
		idx++
	}

	return created, nil
}

// nextFreeIndexLocked returns one past the highest index currently present,
// for appending new files without colliding with an index that survived a
// prior Release. Callers must hold p.mu.
func (p *Pool) nextFreeIndexLocked() uint32 {
	var next uint32
	for _, bf := range p.files {
		if bf.Index >= next {
			next = bf.Index + 1
		}
	}
	return next
}

// createFileLocked provisions a single file at idx. Callers must hold p.mu.
func (p *Pool) createFileLocked(idx uint32) (model.BallastFile, error) {
	path := filepath.Join(p.dir, ballastFileName(p.poolID, idx))
	bf := model.BallastFile{
		Path:         path,
		IntendedSize: p.fileSize,
		PoolID:       p.poolID,
		Index:        idx,
		State:        model.BallastProvisioning,
	}

	if err := p.writeOneFile(path, idx); err != nil {
		return bf, err
	}

	bf.ActualSize = p.fileSize
	bf.State = model.BallastPresent
	bf.LastVerified = time.Now()
	return bf, nil
}

func (p *Pool) writeOneFile(path string, index uint32) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	header := buildHeader(p.poolID, index)
	if _, err := f.WriteAt(header, 0); err != nil {
		return err
	}

	remaining := p.fileSize - headerSize
	if remaining < 0 {
		remaining = 0
	}

	if err := reserveSpace(f, headerSize, remaining); err == nil {
		return nil
	}

	// Fallback: write pseudo-random data in chunks, since a sparse file on
	// a copy-on-write filesystem would reflink-dedupe to nothing and defeat
	// the ballast's purpose.
	return writeRandomFill(f, headerSize, remaining)
}

// Header layout (spec.md §6): the 20-byte magic, immediately followed by
// the 64-bit pool id, the 32-bit file index, and a CRC32 over everything
// before it; the remainder of headerSize is zero padding.
const (
	headerPoolIDOffset   = len(headerMagic)
	headerIndexOffset    = headerPoolIDOffset + 8
	headerChecksumOffset = headerIndexOffset + 4
	headerChecksummedLen = headerChecksumOffset
)

func buildHeader(poolID uint64, index uint32) []byte {
	buf := make([]byte, headerSize)
	copy(buf, []byte(headerMagic))
	binary.BigEndian.PutUint64(buf[headerPoolIDOffset:headerIndexOffset], poolID)
	binary.BigEndian.PutUint32(buf[headerIndexOffset:headerChecksumOffset], index)
	checksum := crc32.ChecksumIEEE(buf[:headerChecksummedLen])
	binary.BigEndian.PutUint32(buf[headerChecksumOffset:headerChecksumOffset+4], checksum)
	return buf
}

func verifyHeader(buf []byte, wantPoolID uint64, wantIndex uint32) bool {
	if len(buf) < headerSize {
		return false
	}
	if string(buf[:len(headerMagic)]) != headerMagic {
		return false
	}
	poolID := binary.BigEndian.Uint64(buf[headerPoolIDOffset:headerIndexOffset])
	index := binary.BigEndian.Uint32(buf[headerIndexOffset:headerChecksumOffset])
	if poolID != wantPoolID || index != wantIndex {
		return false
	}
	checksum := binary.BigEndian.Uint32(buf[headerChecksumOffset : headerChecksumOffset+4])
	return crc32.ChecksumIEEE(buf[:headerChecksummedLen]) == checksum
}

func writeRandomFill(f *os.File, offset, size int64) error {
	const chunkSize = 1 << 20
	buf := make([]byte, chunkSize)
	var written int64
	for written < size {
		n := chunkSize
		if remaining := size - written; remaining < int64(chunkSize) {
			n = int(remaining)
		}
		if _, err := rand.Read(buf[:n]); err != nil {
			return err
		}
		if _, err := f.WriteAt(buf[:n], offset+written); err != nil {
			return err
		}
		written += int64(n)
	}
	return nil
}

// Verify re-reads every file's header and validates it, marking any file
// that fails validation as Corrupt.
func (p *Pool) Verify() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, bf := range p.files {
		if bf.State != model.BallastPresent {
			continue
		}
		f, err := os.Open(bf.Path)
		if err != nil {
			p.files[i].State = model.BallastCorrupt
			continue
		}
		buf := make([]byte, headerSize)
		_, readErr := f.ReadAt(buf, 0)
		f.Close()
		if readErr != nil || !verifyHeader(buf, bf.PoolID, bf.Index) {
			p.files[i].State = model.BallastCorrupt
			continue
		}
		p.files[i].LastVerified = time.Now()
	}
	return nil
}

// Release deletes the first n files in stable (index-ascending) order and
// returns the bytes freed. Atomic with respect to a concurrent Verify
// because both hold the pool mutex.
func (p *Pool) Release(n int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sort.Slice(p.files, func(i, j int) bool { return p.files[i].Index < p.files[j].Index })

	var freed int64
	released := 0
	remaining := p.files[:0]
	for _, bf := range p.files {
		if released < n && bf.State == model.BallastPresent {
			p.files = markReleasing(p.files, bf.Index)
			if err := os.Remove(bf.Path); err != nil && !os.IsNotExist(err) {
				remaining = append(remaining, bf)
				continue
			}
			freed += bf.ActualSize
			released++
			continue
		}
		remaining = append(remaining, bf)
	}
	p.files = remaining
	return freed, nil
}

func markReleasing(files []model.BallastFile, index uint32) []model.BallastFile {
	for i := range files {
		if files[i].Index == index {
			files[i].State = model.BallastReleasing
		}
	}
	return files
}

// Replenish recreates the lowest-numbered missing index below
// intendedCount, one at a time, gated by cooldown: callers should only
// invoke this after pressure has returned to Green for at least the
// configured cooldown, except during Emergency where the supervisor
// (never the scanner) may bypass the cooldown directly by not calling
// this gate at all. Recreating the specific missing index rather than
// appending a fresh one restores the pool to a byte-identical Present
// state after a Provision/Release round trip.
func (p *Pool) Replenish(intendedCount int, cooldown time.Duration, now time.Time) (*model.BallastFile, error) {
	p.mu.Lock()
	present := len(p.files)
	last := p.lastReplenishAttempt
	missing := p.missingIndexLocked(intendedCount)
	p.mu.Unlock()

	if present >= intendedCount || missing < 0 {
		return nil, nil
	}
	if !last.IsZero() && now.Sub(last) < cooldown {
		return nil, nil
	}

	p.mu.Lock()
	p.lastReplenishAttempt = now
	bf, err := p.createFileLocked(uint32(missing))
	if err == nil {
		p.files = append(p.files, bf)
	}
	p.mu.Unlock()

	if err != nil {
		return nil, sbherrors.Wrap(sbherrors.KindBallast, "replenish failed for "+bf.Path, err)
	}
	return &bf, nil
}

// missingIndexLocked returns the lowest index in [0, intendedCount) not
// currently present, or -1 if none is missing. Callers must hold p.mu.
func (p *Pool) missingIndexLocked(intendedCount int) int {
	present := make(map[uint32]bool, len(p.files))
	for _, bf := range p.files {
		present[bf.Index] = true
	}
	for i := 0; i < intendedCount; i++ {
		if !present[uint32(i)] {
			return i
		}
	}
	return -1
}

// Inventory summarizes the pool's current state for the published
// snapshot.
func (p *Pool) Inventory() model.MountBallastInventory {
	p.mu.Lock()
	defer p.mu.Unlock()

	inv := model.MountBallastInventory{}
	for _, bf := range p.files {
		if bf.State == model.BallastPresent {
			inv.Present++
			inv.TotalBytes += bf.ActualSize
		}
	}
	return inv
}

// Files returns a snapshot copy of the pool's current file records.
func (p *Pool) Files() []model.BallastFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.BallastFile, len(p.files))
	copy(out, p.files)
	return out
}
