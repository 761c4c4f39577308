package contract

import (
	"fmt"
	"slices"
)

// initialCounter seeds the counter on initialization.
const initialCounter int8 = 3

// StateRoot is the single persisted aggregate of the contract. It is only
// modified through the entry points in this package.
type StateRoot struct {
	computer Computer
	counter  Counter
}

// Initialize builds the state created by the "new" entry point.
func Initialize(owner string) *StateRoot {
	return &StateRoot{
		computer: Computer{owner: owner},
		counter:  Counter{val: initialCounter},
	}
}

// Counter returns the current counter value.
func (s *StateRoot) Counter() int8 {
	return s.counter.Get()
}

// Computer returns a copy of the file catalog.
func (s *StateRoot) Computer() Computer {
	return s.computer.clone()
}

// Clone returns a deep copy that shares no slices with s.
func (s *StateRoot) Clone() *StateRoot {
	if s == nil {
		return nil
	}
	return &StateRoot{
		computer: s.computer.clone(),
		counter:  s.counter,
	}
}

// Equal reports whether both roots hold the same state.
func (s *StateRoot) Equal(o *StateRoot) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.counter == o.counter &&
		s.computer.owner == o.computer.owner &&
		s.computer.disk.name == o.computer.disk.name &&
		s.computer.disk.folder.id == o.computer.disk.folder.id &&
		slices.Equal(s.computer.disk.folder.files, o.computer.disk.folder.files) &&
		slices.Equal(s.computer.disk.permissions, o.computer.disk.permissions)
}

// Snapshot is a read-only, JSON friendly view of a StateRoot.
type Snapshot struct {
	Owner       string       `json:"owner"`
	DiskName    string       `json:"disk_name"`
	FolderID    int8         `json:"folder_id"`
	Files       []string     `json:"files"`
	Permissions []Permission `json:"permissions"`
	Counter     int8         `json:"counter"`
}

// Snapshot copies the state into a Snapshot.
func (s *StateRoot) Snapshot() Snapshot {
	return Snapshot{
		Owner:       s.computer.owner,
		DiskName:    s.computer.disk.name,
		FolderID:    s.computer.disk.folder.id,
		Files:       s.computer.Files(),
		Permissions: s.computer.Permissions(),
		Counter:     s.counter.val,
	}
}

func (s *StateRoot) String() string {
	return fmt.Sprintf("StateRoot{owner=%q counter=%d files=%d}",
		s.computer.owner, s.counter.val, len(s.computer.disk.folder.files))
}
