package contract

import (
	"fmt"
	"math"

	"github.com/fxamacker/cbor/v2"
)

// The persisted layout encodes every struct as a CBOR array whose elements
// follow field declaration order. Encoding uses Core Deterministic Encoding
// and writes nil slices as empty arrays, so equal states always produce
// identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.NilContainers = cbor.NilContainerAsEmpty
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("contract: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic("contract: CBOR decoder initialization failed: " + err.Error())
	}
}

type wireRoot struct {
	_        struct{} `cbor:",toarray"`
	Computer wireComputer
	Counter  wireCounter
}

type wireComputer struct {
	_     struct{} `cbor:",toarray"`
	Owner string
	Disk  wireDisk
}

type wireDisk struct {
	_           struct{} `cbor:",toarray"`
	Name        string
	Folder      wireFolder
	Permissions []wirePermission
}

type wireFolder struct {
	_     struct{} `cbor:",toarray"`
	ID    int8
	Files []string
}

type wirePermission struct {
	_        struct{} `cbor:",toarray"`
	ID       int64
	Writable bool
}

type wireCounter struct {
	_   struct{} `cbor:",toarray"`
	Val int8
}

// Store serializes s into its persisted layout.
func Store(s *StateRoot) ([]byte, error) {
	if s == nil {
		return nil, ErrUninitialized
	}
	perms := make([]wirePermission, len(s.computer.disk.permissions))
	for i, p := range s.computer.disk.permissions {
		perms[i] = wirePermission{ID: p.ID, Writable: p.Writable}
	}
	w := wireRoot{
		Computer: wireComputer{
			Owner: s.computer.owner,
			Disk: wireDisk{
				Name: s.computer.disk.name,
				Folder: wireFolder{
					ID:    s.computer.disk.folder.id,
					Files: s.computer.disk.folder.files,
				},
				Permissions: perms,
			},
		},
		Counter: wireCounter{Val: s.counter.val},
	}
	data, err := encMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// Load rebuilds a StateRoot from bytes produced by Store. Empty input means
// the contract was never initialized.
func Load(data []byte) (*StateRoot, error) {
	if len(data) == 0 {
		return nil, ErrUninitialized
	}
	var w wireRoot
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	perms := make([]Permission, len(w.Computer.Disk.Permissions))
	for i, p := range w.Computer.Disk.Permissions {
		perms[i] = Permission{ID: p.ID, Writable: p.Writable}
	}
	files := w.Computer.Disk.Folder.Files
	if files == nil {
		files = []string{}
	}
	return &StateRoot{
		computer: Computer{
			owner: w.Computer.Owner,
			disk: Disk{
				name: w.Computer.Disk.Name,
				folder: Folder{
					id:    w.Computer.Disk.Folder.ID,
					files: files,
				},
				permissions: perms,
			},
		},
		counter: Counter{val: w.Counter.Val},
	}, nil
}
