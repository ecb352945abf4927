// offline_file.go persists the offline store to a CBOR file.

package beacon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var offlineEncMode cbor.EncMode

func init() {
	var err error
	offlineEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("beacon: CBOR encoder initialization failed: " + err.Error())
	}
}

// offlineFileVersion is bumped when the snapshot layout changes.
// Snapshots with another version are ignored on load.
const offlineFileVersion = 1

type offlineSnapshot struct {
	Version int                 `cbor:"1,keyasint"`
	Records []offlineFileRecord `cbor:"2,keyasint"`
}

// Records are kept in their wire encoding so field types come back
// exactly as they were captured.
type offlineFileRecord struct {
	Tier       string   `cbor:"1,keyasint"`
	EnqueuedAt int64    `cbor:"2,keyasint"`
	Attempts   int      `cbor:"3,keyasint"`
	Events     [][]byte `cbor:"4,keyasint"`
}

// FileStore is an OfflinePersister writing one CBOR snapshot file. Each
// Save writes a temporary file and renames it into place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore at path. The parent directory must
// exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save implements OfflinePersister.
func (f *FileStore) Save(records []OfflineRecord) error {
	snap := offlineSnapshot{Version: offlineFileVersion}
	for _, r := range records {
		snap.Records = append(snap.Records, offlineFileRecord{
			Tier:       string(r.Batch.Tier),
			EnqueuedAt: r.EnqueuedAt.UnixMilli(),
			Attempts:   r.Attempts,
			Events:     r.Batch.EncodedRecords(),
		})
	}
	data, err := offlineEncMode.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding offline snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing offline snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming offline snapshot into place: %w", err)
	}
	return nil
}

// Load implements OfflinePersister. A missing file is an empty store.
func (f *FileStore) Load() ([]OfflineRecord, error) {
	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading offline snapshot: %w", err)
	}

	var snap offlineSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding offline snapshot: %w", err)
	}
	if snap.Version != offlineFileVersion {
		return nil, nil
	}

	out := make([]OfflineRecord, 0, len(snap.Records))
	for _, fr := range snap.Records {
		records := make([]Record, 0, len(fr.Events))
		for _, enc := range fr.Events {
			var r Record
			if err := r.UnmarshalJSON(enc); err != nil {
				continue
			}
			records = append(records, r)
		}
		batch, _ := NewBatch(Tier(fr.Tier), records, 0)
		out = append(out, OfflineRecord{
			Batch:      batch,
			EnqueuedAt: time.UnixMilli(fr.EnqueuedAt),
			Attempts:   fr.Attempts,
		})
	}
	return out, nil
}
