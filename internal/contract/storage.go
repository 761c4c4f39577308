package contract

// Computer is the root of the file catalog. Its owner is fixed when the
// contract is initialized.
type Computer struct {
	owner string
	disk  Disk
}

// Disk holds one folder and the permissions granted alongside each file.
type Disk struct {
	name        string
	folder      Folder
	permissions []Permission
}

// Folder is an append-only list of file names in insertion order.
type Folder struct {
	id    int8
	files []string
}

// Permission is appended for every file added to the disk.
type Permission struct {
	ID       int64 `json:"id"`
	Writable bool  `json:"writable"`
}

// defaultPermission is what every AddFile grants. The id does not identify
// the file it was created for.
var defaultPermission = Permission{ID: 1, Writable: true}

// AddFile appends name to the folder and one permission to the disk. Names
// are not validated; empty and duplicate names are kept as given.
func (c *Computer) AddFile(name string) {
	c.disk.folder.files = append(c.disk.folder.files, name)
	c.disk.permissions = append(c.disk.permissions, defaultPermission)
}

// Owner returns the account that initialized the contract.
func (c Computer) Owner() string {
	return c.owner
}

// Files returns a copy of the folder's file names.
func (c Computer) Files() []string {
	out := make([]string, len(c.disk.folder.files))
	copy(out, c.disk.folder.files)
	return out
}

// Permissions returns a copy of the disk's permissions.
func (c Computer) Permissions() []Permission {
	out := make([]Permission, len(c.disk.permissions))
	copy(out, c.disk.permissions)
	return out
}

func (c Computer) clone() Computer {
	out := c
	out.disk.folder.files = c.Files()
	out.disk.permissions = c.Permissions()
	return out
}
